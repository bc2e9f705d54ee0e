package extra

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"time"

	"vandvik/config"

	"github.com/gordonklaus/portaudio"
)

var specialRE = regexp.MustCompile(`\[.*?\]`)

// Recognizer captures microphone audio and reports interim transcripts
// while listening. Each transcript callback carries the full text heard
// so far, not a delta.
type Recognizer interface {
	Start() error
	Stop()
	Listening() bool
}

// WhisperRecognizer ships the accumulated capture to a whisper.cpp server
// on a fixed interval. Transcription of the whole buffer each tick keeps
// earlier words stable as more audio arrives.
type WhisperRecognizer struct {
	logger       *slog.Logger
	serverURL    string
	sampleRate   int
	lang         string
	interval     time.Duration
	onTranscript func(text string)
	onError      func(err error)

	mu        sync.Mutex
	buf       bytes.Buffer
	listening bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

func NewWhisperRecognizer(logger *slog.Logger, cfg *config.Config, onTranscript func(string), onError func(error)) *WhisperRecognizer {
	interval := time.Duration(cfg.STT_INTERVAL_MS) * time.Millisecond
	if interval <= 0 {
		interval = 1500 * time.Millisecond
	}
	return &WhisperRecognizer{
		logger:       logger,
		serverURL:    cfg.STT_URL,
		sampleRate:   cfg.STT_SR,
		lang:         cfg.STT_LANG,
		interval:     interval,
		onTranscript: onTranscript,
		onError:      onError,
	}
}

func (r *WhisperRecognizer) Listening() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listening
}

// Start opens the microphone and begins the interim transcription loop.
// Starting while already listening is a no-op.
func (r *WhisperRecognizer) Start() error {
	r.mu.Lock()
	if r.listening {
		r.mu.Unlock()
		return nil
	}
	r.buf.Reset()
	r.listening = true
	r.stopCh = make(chan struct{})
	stopCh := r.stopCh
	r.mu.Unlock()
	if err := r.microphoneStream(r.sampleRate, stopCh); err != nil {
		r.mu.Lock()
		r.listening = false
		r.mu.Unlock()
		return fmt.Errorf("failed to init microphone: %w", err)
	}
	r.wg.Add(1)
	go r.transcribeLoop(stopCh)
	return nil
}

// Stop ends the capture. Idempotent; a final transcript for the full
// buffer is emitted before return.
func (r *WhisperRecognizer) Stop() {
	r.mu.Lock()
	if !r.listening {
		r.mu.Unlock()
		return
	}
	r.listening = false
	close(r.stopCh)
	r.mu.Unlock()
	r.wg.Wait()
	if text, err := r.transcribe(); err == nil && text != "" {
		r.emitTranscript(text)
	}
	r.mu.Lock()
	r.buf.Reset()
	r.mu.Unlock()
}

func (r *WhisperRecognizer) transcribeLoop(stopCh chan struct{}) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			text, err := r.transcribe()
			if err != nil {
				r.logger.Error("interim transcription failed", "error", err)
				go r.Stop()
				if r.onError != nil {
					r.onError(err)
				}
				return
			}
			if text != "" {
				r.emitTranscript(text)
			}
		}
	}
}

func (r *WhisperRecognizer) emitTranscript(text string) {
	if r.onTranscript != nil {
		r.onTranscript(text)
	}
}

// transcribe posts the capture so far as a WAV file and returns the
// cleaned transcript.
func (r *WhisperRecognizer) transcribe() (string, error) {
	r.mu.Lock()
	audio := make([]byte, r.buf.Len())
	copy(audio, r.buf.Bytes())
	r.mu.Unlock()
	if len(audio) == 0 {
		return "", nil
	}
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "recording.wav")
	if err != nil {
		return "", fmt.Errorf("fn: transcribe: %w", err)
	}
	r.writeWavHeader(part, len(audio))
	if _, err := io.Copy(part, bytes.NewReader(audio)); err != nil {
		return "", fmt.Errorf("fn: transcribe: %w", err)
	}
	if err := writer.WriteField("response_format", "text"); err != nil {
		return "", fmt.Errorf("fn: transcribe: %w", err)
	}
	if r.lang != "" {
		if err := writer.WriteField("language", r.lang); err != nil {
			return "", fmt.Errorf("fn: transcribe: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("fn: transcribe: %w", err)
	}
	resp, err := http.Post(r.serverURL, writer.FormDataContentType(), body) //nolint:noctx
	if err != nil {
		return "", fmt.Errorf("fn: transcribe: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fn: transcribe: unexpected status code: %d", resp.StatusCode)
	}
	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("fn: transcribe: %w", err)
	}
	resptext := strings.TrimRight(string(respBytes), "\n")
	// in case there are special tokens like [_BEG_]
	resptext = specialRE.ReplaceAllString(resptext, "")
	return strings.TrimSpace(strings.ReplaceAll(resptext, "\n ", "\n")), nil
}

func (r *WhisperRecognizer) writeWavHeader(w io.Writer, dataSize int) {
	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataSize))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1)
	binary.LittleEndian.PutUint16(header[22:24], 1)
	binary.LittleEndian.PutUint32(header[24:28], uint32(r.sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(r.sampleRate)*1*(16/8))
	binary.LittleEndian.PutUint16(header[32:34], 1*(16/8))
	binary.LittleEndian.PutUint16(header[34:36], 16)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataSize))
	if _, err := w.Write(header); err != nil {
		r.logger.Error("writeWavHeader", "error", err)
	}
}

func (r *WhisperRecognizer) microphoneStream(sampleRate int, stopCh chan struct{}) error {
	// Temporarily redirect stderr to suppress ALSA warnings during PortAudio init
	origStderr, err := syscall.Dup(syscall.Stderr)
	if err != nil {
		return fmt.Errorf("failed to dup stderr: %w", err)
	}
	nullFD, err := syscall.Open("/dev/null", syscall.O_WRONLY, 0)
	if err != nil {
		syscall.Close(origStderr)
		return fmt.Errorf("failed to open /dev/null: %w", err)
	}
	// redirect stderr
	syscall.Dup2(nullFD, syscall.Stderr)
	defer func() {
		// Restore stderr
		syscall.Dup2(origStderr, syscall.Stderr)
		syscall.Close(origStderr)
		syscall.Close(nullFD)
	}()
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init failed: %w", err)
	}
	in := make([]int16, 64)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(in), in)
	if err != nil {
		if paErr := portaudio.Terminate(); paErr != nil {
			return fmt.Errorf("failed to open microphone: %w; terminate error: %w", err, paErr)
		}
		return fmt.Errorf("failed to open microphone: %w", err)
	}
	r.wg.Add(1)
	go func(stream *portaudio.Stream) {
		defer r.wg.Done()
		defer func() {
			if err := stream.Close(); err != nil {
				r.logger.Error("closing stream", "error", err)
			}
		}()
		if err := stream.Start(); err != nil {
			r.logger.Error("microphoneStream", "error", err)
			return
		}
		for {
			select {
			case <-stopCh:
				return
			default:
			}
			if err := stream.Read(); err != nil {
				r.logger.Error("reading stream", "error", err)
				return
			}
			r.mu.Lock()
			if err := binary.Write(&r.buf, binary.LittleEndian, in); err != nil {
				r.logger.Error("writing to buffer", "error", err)
				r.mu.Unlock()
				return
			}
			r.mu.Unlock()
		}
	}(stream)
	return nil
}
