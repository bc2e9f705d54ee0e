package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"vandvik/config"
	"vandvik/convo"
	"vandvik/extra"
	"vandvik/llm"
	"vandvik/models"
	"vandvik/storage"
	"vandvik/turn"
)

var (
	cfg        *config.Config
	logger     *slog.Logger
	logLevel   = new(slog.LevelVar)
	store      *convo.Store
	provider   *storage.ProviderSQL
	saver      *storage.DebouncedSaver
	ctl        *turn.Controller
	orator     extra.Orator
	recognizer extra.Recognizer
	caps       models.Capabilities
	voicePref  models.VoicePref
	configErr  string
	sink       = &tuiSink{}
)

// modelBinder adapts the llm client to the controller's session port.
type modelBinder struct {
	client *llm.Client
}

func (b modelBinder) Rebind(msgs []models.Message) turn.Session {
	return modelSession{sess: b.client.Bind(msgs)}
}

type modelSession struct {
	sess *llm.Session
}

func (m modelSession) SendStreaming(ctx context.Context, text string) (turn.Stream, error) {
	st, err := m.sess.SendStreaming(ctx, text)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// negotiateCapabilities decides once at startup which speech features the
// rest of the program may offer.
func negotiateCapabilities(cfg *config.Config) models.Capabilities {
	speechOut := cfg.TTS_ENABLED &&
		(strings.ToUpper(cfg.TTS_PROVIDER) == "GOOGLE" || cfg.TTS_URL != "")
	return models.Capabilities{
		SpeechInput:  cfg.STT_ENABLED && cfg.STT_URL != "",
		SpeechOutput: speechOut,
	}
}

func onTranscript(text string) {
	app.QueueUpdateDraw(func() {
		restoring = true
		textArea.SetText(text, true)
		restoring = false
	})
}

func onSpeechError(err error) {
	logger.Error("speech input failed", "error", err)
	app.QueueUpdateDraw(func() {
		errLine = "Speech recognition is unavailable. Check the whisper server."
		updateStatusLine()
	})
}

func init() {
	var err error
	cfg, err = config.LoadConfig("config.toml")
	if err != nil {
		fmt.Println("failed to load config.toml", err)
		os.Exit(1)
	}
	logfile, err := os.OpenFile(cfg.LogFile,
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		slog.Error("failed to open log file", "error", err, "filename", cfg.LogFile)
		os.Exit(1)
	}
	logLevel.Set(slog.LevelInfo)
	logger = slog.New(slog.NewTextHandler(logfile, &slog.HandlerOptions{Level: logLevel}))
	provider, err = storage.NewProviderSQL(cfg.DBPATH, logger)
	if err != nil {
		logger.Error("failed to open db", "error", err, "path", cfg.DBPATH)
		os.Exit(1)
	}
	saver = storage.NewDebouncedSaver(provider, logger, 500*time.Millisecond)
	store = convo.NewStore(models.DefaultGreeting)
	convos, err := provider.LoadConversations()
	if err != nil {
		logger.Error("failed to load conversations", "error", err)
	}
	if len(convos) > 0 {
		store.Replace(convos)
	} else {
		store.Create()
	}
	caps = negotiateCapabilities(cfg)
	voicePref = models.VoicePref{Rate: 1.0}
	if pref, err := provider.LoadVoicePref(); err != nil {
		logger.Warn("failed to load voice preference", "error", err)
	} else if pref != nil {
		voicePref = *pref
	}
	if caps.SpeechOutput {
		orator = extra.NewOrator(logger, cfg)
		orator.SetVoice(voicePref.VoiceURI)
		orator.SetRate(voicePref.Rate)
	}
	var binder turn.Binder
	var gen turn.Generator
	client, err := llm.NewClient(logger, cfg)
	if err != nil {
		// the UI still comes up for browsing history; submission is disabled
		configErr = "API key is not configured. Set GEMINI_API_KEY or api_key in config.toml."
		logger.Error("model client unavailable", "error", err)
	} else {
		binder = modelBinder{client: client}
		gen = client
	}
	var listener turn.Listener
	if caps.SpeechInput {
		recognizer = extra.NewWhisperRecognizer(logger, cfg, onTranscript, onSpeechError)
		listener = recognizer
	}
	ctl = turn.NewController(store, binder, gen, orator, listener, saver, sink, logger,
		turn.Config{
			MoodEnabled: cfg.MoodEnabled,
			Mood:        cfg.Mood,
			SpeechOn:    caps.SpeechOutput,
		})
}
