package extra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"vandvik/config"
	"vandvik/models"

	google_translate_tts "github.com/GrailFinder/google-translate-tts"
	"github.com/GrailFinder/google-translate-tts/handlers"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/neurosnap/sentences/english"
)

// Orator voices completed replies. At most one utterance plays at a time:
// Speak cancels whatever is in progress, Cancel is idempotent.
type Orator interface {
	Speak(text string)
	Cancel()
	// Voices may be empty until the provider's async enumeration lands.
	Voices() []models.Voice
	SetVoice(uri string)
	SetRate(rate float64)
}

func NewOrator(log *slog.Logger, cfg *config.Config) Orator {
	switch strings.ToUpper(cfg.TTS_PROVIDER) {
	case "GOOGLE":
		return newGoogleOrator(log, cfg)
	default:
		return newKokoroOrator(log, cfg)
	}
}

// playback shares the single speaker between providers.
type playback struct {
	mu      sync.Mutex
	current *beep.Ctrl
	cancel  context.CancelFunc
}

func (p *playback) begin() context.Context {
	p.stop()
	ctx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()
	return ctx
}

func (p *playback) stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	speaker.Lock()
	p.mu.Lock()
	if p.current != nil {
		p.current.Streamer = nil
		p.current = nil
	}
	p.mu.Unlock()
	speaker.Unlock()
}

// play decodes one mp3 utterance piece and blocks until it finishes or the
// context cancels.
func (p *playback) play(ctx context.Context, log *slog.Logger, body io.ReadCloser, rate float64) error {
	defer body.Close()
	streamer, format, err := mp3.Decode(body)
	if err != nil {
		return fmt.Errorf("mp3 decode failed: %w", err)
	}
	defer streamer.Close()
	var piece beep.Streamer = streamer
	if rate > 0 && rate != 1.0 {
		piece = beep.ResampleRatio(3, rate, streamer)
	}
	// speaker complains when initialized more than once
	if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
		log.Debug("failed to init speaker", "error", err)
	}
	done := make(chan bool)
	ctrl := &beep.Ctrl{Streamer: beep.Seq(piece, beep.Callback(func() {
		close(done)
	}))}
	p.mu.Lock()
	p.current = ctrl
	p.mu.Unlock()
	speaker.Play(ctrl)
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// impl https://github.com/remsky/Kokoro-FastAPI
type KokoroOrator struct {
	logger *slog.Logger
	url    string
	pb     playback

	mu     sync.Mutex
	voices []models.Voice
	voice  string
	rate   float64
}

func newKokoroOrator(log *slog.Logger, cfg *config.Config) *KokoroOrator {
	o := &KokoroOrator{
		logger: log,
		url:    strings.TrimSuffix(cfg.TTS_URL, "/"),
		voice:  "af_bella",
		rate:   cfg.TTS_SPEED,
	}
	// the voice list may populate after an initially empty read
	go o.fetchVoices()
	return o
}

func (o *KokoroOrator) fetchVoices() {
	resp, err := http.Get(o.url + "/audio/voices") //nolint:noctx
	if err != nil {
		o.logger.Warn("failed to fetch voice list", "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		o.logger.Warn("failed to fetch voice list", "status", resp.Status)
		return
	}
	data := struct {
		Voices []string `json:"voices"`
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		o.logger.Warn("failed to decode voice list", "error", err)
		return
	}
	voices := make([]models.Voice, 0, len(data.Voices))
	for _, v := range data.Voices {
		voices = append(voices, models.Voice{Name: v, Lang: "en-US", URI: v})
	}
	o.mu.Lock()
	o.voices = voices
	o.mu.Unlock()
	o.logger.Debug("voice list populated", "count", len(voices))
}

func (o *KokoroOrator) Voices() []models.Voice {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.Voice(nil), o.voices...)
}

func (o *KokoroOrator) SetVoice(uri string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if uri != "" {
		o.voice = uri
	}
}

func (o *KokoroOrator) SetRate(rate float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rate = models.VoicePref{Rate: rate}.ClampedRate()
}

func (o *KokoroOrator) Speak(text string) {
	ctx := o.pb.begin()
	go o.speakRoutine(ctx, text)
}

func (o *KokoroOrator) speakRoutine(ctx context.Context, text string) {
	tokenizer, _ := english.NewSentenceTokenizer(nil)
	plain := PlainText(text)
	for _, sentence := range tokenizer.Tokenize(plain) {
		if ctx.Err() != nil {
			return
		}
		s := strings.TrimSpace(sentence.Text)
		if s == "" {
			continue
		}
		body, err := o.requestSound(ctx, s)
		if err != nil {
			o.logger.Error("tts failed", "sentence", s, "error", err)
			return
		}
		if err := o.pb.play(ctx, o.logger, body, 1.0); err != nil {
			if ctx.Err() == nil {
				o.logger.Error("playback failed", "error", err)
			}
			return
		}
	}
}

func (o *KokoroOrator) requestSound(ctx context.Context, text string) (io.ReadCloser, error) {
	o.mu.Lock()
	voice, rate := o.voice, o.rate
	o.mu.Unlock()
	payload := map[string]interface{}{
		"input":           text,
		"voice":           voice,
		"response_format": "mp3",
		"stream":          false,
		"speed":           rate,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url+"/audio/speech", bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (o *KokoroOrator) Cancel() {
	o.logger.Debug("attempted to stop orator")
	o.pb.stop()
}

// GoogleTranslateOrator is the no-server fallback provider; its "voices"
// are translate language codes.
type GoogleTranslateOrator struct {
	logger *slog.Logger
	speech *google_translate_tts.Speech
	pb     playback

	mu   sync.Mutex
	rate float64
}

var googleVoices = []models.Voice{
	{Name: "English", Lang: "en", URI: "en"},
	{Name: "English (UK)", Lang: "en-GB", URI: "en-GB"},
	{Name: "Hindi", Lang: "hi", URI: "hi"},
	{Name: "Spanish", Lang: "es", URI: "es"},
	{Name: "French", Lang: "fr", URI: "fr"},
	{Name: "German", Lang: "de", URI: "de"},
}

func newGoogleOrator(log *slog.Logger, cfg *config.Config) *GoogleTranslateOrator {
	return &GoogleTranslateOrator{
		logger: log,
		speech: &google_translate_tts.Speech{
			Folder:   os.TempDir() + "/vandvik-tts", // Temporary directory for caching
			Language: cfg.TTS_LANGUAGE,
			Speed:    float32(cfg.TTS_SPEED),
			Handler:  &handlers.Beep{},
		},
		rate: cfg.TTS_SPEED,
	}
}

func (o *GoogleTranslateOrator) Voices() []models.Voice {
	return append([]models.Voice(nil), googleVoices...)
}

func (o *GoogleTranslateOrator) SetVoice(uri string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if uri != "" {
		o.speech.Language = uri
	}
}

func (o *GoogleTranslateOrator) SetRate(rate float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rate = models.VoicePref{Rate: rate}.ClampedRate()
}

func (o *GoogleTranslateOrator) Speak(text string) {
	ctx := o.pb.begin()
	go o.speakRoutine(ctx, text)
}

func (o *GoogleTranslateOrator) speakRoutine(ctx context.Context, text string) {
	tokenizer, _ := english.NewSentenceTokenizer(nil)
	plain := PlainText(text)
	for _, sentence := range tokenizer.Tokenize(plain) {
		if ctx.Err() != nil {
			return
		}
		s := strings.TrimSpace(sentence.Text)
		if s == "" {
			continue
		}
		reader, err := o.speech.GenerateSpeech(s)
		if err != nil {
			o.logger.Error("generate speech failed", "sentence", s, "error", err)
			return
		}
		o.mu.Lock()
		rate := o.rate
		o.mu.Unlock()
		if err := o.pb.play(ctx, o.logger, io.NopCloser(reader), rate); err != nil {
			if ctx.Err() == nil {
				o.logger.Error("playback failed", "error", err)
			}
			return
		}
	}
}

func (o *GoogleTranslateOrator) Cancel() {
	o.logger.Debug("attempted to stop google translate orator")
	o.pb.stop()
	if o.speech != nil {
		_ = o.speech.Stop()
	}
}
