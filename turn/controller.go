// Package turn drives one conversation turn at a time: a user submission
// through to a finalized companion reply or a rolled-back failure.
package turn

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"vandvik/convo"
	"vandvik/models"
)

// Session is a model binding for one conversation's history.
type Session interface {
	SendStreaming(ctx context.Context, text string) (Stream, error)
}

// Stream yields reply fragments in delivery order; Recv returns io.EOF
// after the final fragment. It is finite and not restartable.
type Stream interface {
	Recv() (string, error)
}

// Binder rebuilds the model-session binding from a conversation's messages.
type Binder interface {
	Rebind(msgs []models.Message) Session
}

// Generator serves the secondary title and suggestion calls.
type Generator interface {
	GenerateTitle(ctx context.Context, firstMessage string) (string, error)
	GenerateSuggestions(ctx context.Context, lastReply string) ([]string, error)
}

// Speaker voices a completed reply; Speak cancels any utterance in progress.
type Speaker interface {
	Speak(text string)
	Cancel()
}

// Listener is the speech-input side; Stop is idempotent.
type Listener interface {
	Stop()
}

// Persister snapshots the full conversation list.
type Persister interface {
	Save(convos []models.Conversation)
}

// EventSink delivers controller state to the UI.
type EventSink interface {
	ConversationChanged(convoID string)
	ConversationListChanged()
	TitleChanged(convoID, title string)
	SuggestionsChanged(chips []string)
	ErrorChanged(msg string)
	InputRestored(text string)
	TurnStateChanged(inFlight bool)
}

const transportErrMsg = "An error occurred while communicating with the AI. Please try again."

// Controller owns the turn state machine:
// Idle -> Sending -> Streaming -> {Completed | Failed} -> Idle.
// A single global in-flight gate admits at most one outstanding turn across
// all conversations; a second submission is rejected, not queued.
type Controller struct {
	store    *convo.Store
	binder   Binder
	gen      Generator
	speaker  Speaker
	listener Listener
	persist  Persister
	sink     EventSink
	logger   *slog.Logger

	moodEnabled bool
	mood        string

	mu          sync.Mutex
	inFlight    bool
	session     Session
	speechOn    bool
	suggestions []string
	lastErr     string

	bg sync.WaitGroup
}

type Config struct {
	MoodEnabled bool
	Mood        string
	SpeechOn    bool
}

func NewController(store *convo.Store, binder Binder, gen Generator,
	speaker Speaker, listener Listener, persist Persister,
	sink EventSink, logger *slog.Logger, cfg Config) *Controller {
	c := &Controller{
		store:       store,
		binder:      binder,
		gen:         gen,
		speaker:     speaker,
		listener:    listener,
		persist:     persist,
		sink:        sink,
		logger:      logger,
		moodEnabled: cfg.MoodEnabled,
		mood:        cfg.Mood,
		speechOn:    cfg.SpeechOn,
		suggestions: models.DefaultSuggestions,
	}
	c.rebind()
	return c
}

// NewChat creates and activates a fresh conversation; suggestion chips and
// any displayed error are reset.
func (c *Controller) NewChat() {
	c.cancelSpeech()
	c.store.Create()
	c.rebind()
	c.setError("")
	c.setSuggestions(models.DefaultSuggestions)
	c.snapshot()
	c.sink.ConversationListChanged()
	c.sink.ConversationChanged(c.store.ActiveID())
}

// SelectChat activates the named conversation and rebinds the model session.
// Absent ids are ignored.
func (c *Controller) SelectChat(id string) {
	if !c.store.Select(id) {
		return
	}
	c.cancelSpeech()
	c.rebind()
	c.sink.ConversationChanged(id)
}

// DeleteChat removes a conversation. An in-flight turn bound to it keeps
// streaming; its store updates target the removed id and are dropped there.
func (c *Controller) DeleteChat(id string) {
	wasActive := c.store.ActiveID() == id
	if created := c.store.Delete(id); created != nil || wasActive {
		c.rebind()
		c.setError("")
		c.setSuggestions(models.DefaultSuggestions)
		c.sink.ConversationChanged(c.store.ActiveID())
	}
	c.snapshot()
	c.sink.ConversationListChanged()
}

// rebind recomputes the session binding from the active conversation; the
// greeting and empty placeholders are excluded inside the binder.
func (c *Controller) rebind() {
	active, ok := c.store.Active()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !ok || c.binder == nil {
		c.session = nil
		return
	}
	c.session = c.binder.Rebind(active.Messages)
}

// Submit starts a turn. Blank input, submissions while a turn is in flight
// and submissions while an error is displayed are no-ops; the return value
// reports whether a turn started. A displayed error is cleared only by
// editing the input (InputEdited), never by resubmitting.
func (c *Controller) Submit(text string) bool {
	prompt := strings.TrimSpace(text)
	if prompt == "" {
		return false
	}
	c.mu.Lock()
	if c.inFlight || c.lastErr != "" {
		c.mu.Unlock()
		return false
	}
	active, ok := c.store.Active()
	if !ok {
		c.mu.Unlock()
		return false
	}
	c.inFlight = true
	sess := c.session
	c.mu.Unlock()

	c.cancelSpeech()
	if c.listener != nil {
		c.listener.Stop()
	}
	c.setSuggestions(nil)
	c.sink.TurnStateChanged(true)

	// one atomic store update: observers never see the user message
	// without its pending placeholder
	convoID := active.ID
	if err := c.store.AppendMessages(convoID,
		models.Message{Author: models.AuthorUser, Text: prompt},
		models.Message{Author: models.AuthorCompanion, Text: ""},
	); err != nil {
		c.logger.Error("failed to append turn messages", "error", err, "convo", convoID)
		c.release()
		return false
	}
	c.sink.ConversationChanged(convoID)

	if len(active.Messages) == 1 { // only the greeting: first user turn
		c.setProvisionalTitle(convoID, prompt)
	}
	c.snapshot()

	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		c.run(convoID, prompt, sess)
	}()
	return true
}

// run drives Sending -> Streaming -> {Completed | Failed}; the gate release
// is deferred so it happens on every path.
func (c *Controller) run(convoID, prompt string, sess Session) {
	defer c.release()
	if sess == nil {
		c.logger.Error("no model session bound", "convo", convoID)
		c.fail(convoID, prompt)
		return
	}
	text := prompt
	if c.moodEnabled {
		text = "[System Note: The user's current detected mood is " + c.mood + ".] " + prompt
	}
	stream, err := sess.SendStreaming(context.Background(), text)
	if err != nil {
		c.fail(convoID, prompt)
		return
	}
	var acc strings.Builder
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			c.logger.Error("stream failed", "error", err, "convo", convoID)
			c.fail(convoID, prompt)
			return
		}
		acc.WriteString(chunk)
		// the UI always sees the complete text so far, never a raw delta
		if err := c.store.MutateLastMessage(convoID, acc.String()); err != nil {
			// conversation deleted mid-stream: drop the update
			c.logger.Debug("dropping stream update", "error", err, "convo", convoID)
			continue
		}
		c.sink.ConversationChanged(convoID)
	}
	c.complete(convoID, acc.String())
}

func (c *Controller) complete(convoID, finalText string) {
	c.snapshot()
	// secondary call: its failure falls back to defaults and is never a
	// user-facing error
	chips := models.DefaultSuggestions
	if c.gen != nil {
		generated, err := c.gen.GenerateSuggestions(context.Background(), finalText)
		if err != nil {
			c.logger.Warn("suggestion generation failed", "error", err)
		} else {
			chips = generated
		}
	}
	c.setSuggestions(chips)
	c.mu.Lock()
	speak := c.speechOn && c.speaker != nil && finalText != ""
	c.mu.Unlock()
	if speak {
		c.speaker.Speak(finalText)
	}
}

// fail unwinds a turn: the user message and placeholder come off the
// conversation it was bound to; error display and input restore are global
// (single input box), see DESIGN.md.
func (c *Controller) fail(convoID, prompt string) {
	if err := c.store.TruncateTail(convoID, 2); err != nil {
		c.logger.Debug("rollback target gone", "error", err, "convo", convoID)
	}
	c.setError(transportErrMsg)
	c.sink.InputRestored(prompt)
	c.setSuggestions(models.DefaultSuggestions)
	c.snapshot()
	c.sink.ConversationChanged(convoID)
}

func (c *Controller) release() {
	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()
	c.sink.TurnStateChanged(false)
}

func (c *Controller) setProvisionalTitle(convoID, prompt string) {
	title := prompt
	// truncate on a rune boundary; prompts are not ASCII-only
	if r := []rune(title); len(r) > models.ProvisionalTitleLen {
		title = string(r[:models.ProvisionalTitleLen])
	}
	if err := c.store.SetTitle(convoID, title); err != nil {
		return
	}
	c.sink.TitleChanged(convoID, title)
	if c.gen == nil {
		return
	}
	c.bg.Add(1)
	go func() { // fire and forget; the provisional title stands on failure
		defer c.bg.Done()
		generated, err := c.gen.GenerateTitle(context.Background(), prompt)
		if err != nil {
			c.logger.Warn("title generation failed", "error", err)
			return
		}
		if err := c.store.SetTitle(convoID, generated); err != nil {
			return
		}
		c.sink.TitleChanged(convoID, generated)
		c.snapshot()
	}()
}

// InputEdited clears a displayed error so submission is re-enabled.
func (c *Controller) InputEdited() {
	c.cancelSpeech()
	c.mu.Lock()
	hadErr := c.lastErr != ""
	c.mu.Unlock()
	if hadErr {
		c.setError("")
	}
}

// SetSpeechEnabled toggles voice output; disabling cancels any utterance
// immediately.
func (c *Controller) SetSpeechEnabled(on bool) {
	c.mu.Lock()
	c.speechOn = on
	c.mu.Unlock()
	if !on {
		c.cancelSpeech()
	}
}

func (c *Controller) SpeechEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speechOn
}

func (c *Controller) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

func (c *Controller) Suggestions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.suggestions...)
}

func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// CancelSpeech stops voice output, e.g. before speech input starts.
func (c *Controller) CancelSpeech() {
	c.cancelSpeech()
}

// Shutdown waits for background work (stream turns, title generation).
func (c *Controller) Shutdown() {
	c.bg.Wait()
}

func (c *Controller) cancelSpeech() {
	if c.speaker != nil {
		c.speaker.Cancel()
	}
}

func (c *Controller) setError(msg string) {
	c.mu.Lock()
	c.lastErr = msg
	c.mu.Unlock()
	c.sink.ErrorChanged(msg)
}

func (c *Controller) setSuggestions(chips []string) {
	c.mu.Lock()
	c.suggestions = chips
	c.mu.Unlock()
	c.sink.SuggestionsChanged(chips)
}

func (c *Controller) snapshot() {
	if c.persist != nil {
		c.persist.Save(c.store.List())
	}
}
