package storage

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"vandvik/models"
)

func testProvider(t *testing.T) *ProviderSQL {
	t.Helper()
	p, err := NewProviderSQL(":memory:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("failed to open sqlite in-memory db: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestConversationsRoundTrip(t *testing.T) {
	p := testProvider(t)
	loaded, err := p.LoadConversations()
	if err != nil {
		t.Fatalf("load on empty db failed: %v", err)
	}
	if loaded != nil {
		t.Fatalf("expected nil before any save, got: %v", loaded)
	}
	cases := []struct {
		convos []models.Conversation
	}{
		{convos: []models.Conversation{
			{ID: "a", Title: "First", Messages: []models.Message{
				{Author: models.AuthorCompanion, Text: "hello"},
				{Author: models.AuthorUser, Text: "hi"},
			}},
		}},
		{convos: []models.Conversation{
			{ID: "b", Title: "Newest", Messages: []models.Message{
				{Author: models.AuthorCompanion, Text: "hello"},
			}},
			{ID: "a", Title: "First", Messages: []models.Message{
				{Author: models.AuthorCompanion, Text: "hello"},
			}},
		}},
	}
	for i, tc := range cases {
		t.Run(fmt.Sprintf("run_%d", i), func(t *testing.T) {
			if err := p.SaveConversations(tc.convos); err != nil {
				t.Fatalf("save failed: %v", err)
			}
			loaded, err := p.LoadConversations()
			if err != nil {
				t.Fatalf("load failed: %v", err)
			}
			if len(loaded) != len(tc.convos) {
				t.Fatalf("expected %d conversations, got %d", len(tc.convos), len(loaded))
			}
			for j := range loaded {
				if loaded[j].ID != tc.convos[j].ID || loaded[j].Title != tc.convos[j].Title {
					t.Fatalf("conversation %d mismatch: %+v", j, loaded[j])
				}
				if len(loaded[j].Messages) != len(tc.convos[j].Messages) {
					t.Fatalf("conversation %d message count mismatch", j)
				}
			}
		})
	}
}

func TestEmptyListNeverPersisted(t *testing.T) {
	p := testProvider(t)
	convos := []models.Conversation{
		{ID: "a", Title: "Keep Me", Messages: []models.Message{
			{Author: models.AuthorCompanion, Text: "hello"},
		}},
	}
	if err := p.SaveConversations(convos); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := p.SaveConversations(nil); err != nil {
		t.Fatalf("empty save failed: %v", err)
	}
	loaded, err := p.LoadConversations()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Title != "Keep Me" {
		t.Fatalf("empty snapshot erased history: %v", loaded)
	}
}

func TestVoicePrefRoundTrip(t *testing.T) {
	p := testProvider(t)
	pref, err := p.LoadVoicePref()
	if err != nil {
		t.Fatalf("load on empty db failed: %v", err)
	}
	if pref != nil {
		t.Fatalf("expected nil before any save, got: %+v", pref)
	}
	if err := p.SaveVoicePref(models.VoicePref{VoiceURI: "af_bella", Rate: 1.5}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	pref, err = p.LoadVoicePref()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if pref.VoiceURI != "af_bella" || pref.Rate != 1.5 {
		t.Fatalf("round trip mismatch: %+v", pref)
	}
}

func TestVoicePrefRateClampedOnLoad(t *testing.T) {
	p := testProvider(t)
	cases := []struct {
		rate float64
		want float64
	}{
		{rate: 10.0, want: models.MaxSpeechRate},
		{rate: 0.1, want: models.MinSpeechRate},
		{rate: 1.2, want: 1.2},
	}
	for i, tc := range cases {
		t.Run(fmt.Sprintf("run_%d", i), func(t *testing.T) {
			if err := p.setValue(keyVoicePref,
				fmt.Sprintf(`{"voiceURI":"v","rate":%v}`, tc.rate)); err != nil {
				t.Fatalf("seed failed: %v", err)
			}
			pref, err := p.LoadVoicePref()
			if err != nil {
				t.Fatalf("load failed: %v", err)
			}
			if pref.Rate != tc.want {
				t.Fatalf("expected rate %v, got %v", tc.want, pref.Rate)
			}
		})
	}
}

// recordingStore counts writes behind the debouncer.
type recordingStore struct {
	mu    sync.Mutex
	saves [][]models.Conversation
}

func (r *recordingStore) SaveConversations(convos []models.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves = append(r.saves, convos)
	return nil
}
func (r *recordingStore) LoadConversations() ([]models.Conversation, error) { return nil, nil }
func (r *recordingStore) SaveVoicePref(pref models.VoicePref) error         { return nil }
func (r *recordingStore) LoadVoicePref() (*models.VoicePref, error)         { return nil, nil }

func TestDebouncedSaverCoalesces(t *testing.T) {
	rec := &recordingStore{}
	saver := NewDebouncedSaver(rec, slog.New(slog.NewTextHandler(io.Discard, nil)), 50*time.Millisecond)
	for i := 0; i < 10; i++ {
		saver.Save([]models.Conversation{{ID: fmt.Sprintf("c%d", i)}})
	}
	time.Sleep(200 * time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.saves) != 1 {
		t.Fatalf("expected one coalesced write, got %d", len(rec.saves))
	}
	if rec.saves[0][0].ID != "c9" {
		t.Fatalf("expected the latest snapshot, got: %v", rec.saves[0])
	}
}

func TestDebouncedSaverFlush(t *testing.T) {
	rec := &recordingStore{}
	saver := NewDebouncedSaver(rec, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Minute)
	saver.Save([]models.Conversation{{ID: "c"}})
	saver.Flush()
	rec.mu.Lock()
	got := len(rec.saves)
	rec.mu.Unlock()
	if got != 1 {
		t.Fatalf("flush did not write the pending snapshot")
	}
	// a second flush with nothing pending is a no-op
	saver.Flush()
	rec.mu.Lock()
	got = len(rec.saves)
	rec.mu.Unlock()
	if got != 1 {
		t.Fatalf("flush wrote without pending data")
	}
}
