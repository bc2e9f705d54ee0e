package models

// Author marks who wrote a message.
type Author string

const (
	AuthorUser      Author = "user"
	AuthorCompanion Author = "companion"
)

type Message struct {
	Author Author `json:"author"`
	Text   string `json:"text"`
}

// Conversation is identified by ID for its whole lifetime; messages are only
// appended to or truncated from the tail, never reordered.
type Conversation struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
}

func (c *Conversation) Clone() Conversation {
	msgs := make([]Message, len(c.Messages))
	copy(msgs, c.Messages)
	return Conversation{ID: c.ID, Title: c.Title, Messages: msgs}
}

// VoicePref is persisted separately from conversations.
type VoicePref struct {
	VoiceURI string  `json:"voiceURI"`
	Rate     float64 `json:"rate"`
}

const (
	MinSpeechRate = 0.5
	MaxSpeechRate = 2.0
)

func (v VoicePref) ClampedRate() float64 {
	switch {
	case v.Rate < MinSpeechRate:
		return MinSpeechRate
	case v.Rate > MaxSpeechRate:
		return MaxSpeechRate
	default:
		return v.Rate
	}
}

// Voice describes one synthesis voice offered by the TTS provider.
type Voice struct {
	Name string
	Lang string
	URI  string
}

// Capabilities is the immutable descriptor produced once at startup;
// adapters and the UI consult it instead of probing at runtime.
type Capabilities struct {
	SpeechInput  bool
	SpeechOutput bool
}
