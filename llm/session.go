package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"vandvik/models"
)

// Session is bound to one conversation's history and rebuilt on every
// active-conversation change. The leading companion greeting and empty
// streaming placeholders are never part of the model history.
type Session struct {
	client  *Client
	history []models.GenContent
}

// Bind builds a session from a conversation's message list.
func (c *Client) Bind(msgs []models.Message) *Session {
	history := make([]models.GenContent, 0, len(msgs))
	for i, m := range msgs {
		if m.Text == "" {
			continue
		}
		if i == 0 && m.Author == models.AuthorCompanion {
			// the seeded greeting never goes to the model
			continue
		}
		history = append(history, models.GenContent{
			Role:  roleFor(m.Author),
			Parts: []models.GenPart{{Text: m.Text}},
		})
	}
	return &Session{client: c, history: history}
}

func roleFor(a models.Author) string {
	if a == models.AuthorUser {
		return "user"
	}
	return "model"
}

// SendStreaming starts one streamed exchange. The returned stream is finite
// and not restartable; its fragments concatenate to the full reply. The
// exchange is committed to the session history only when the stream ends
// normally, so a failed turn leaves the binding as it was.
func (s *Session) SendStreaming(ctx context.Context, text string) (*Stream, error) {
	userTurn := models.GenContent{Role: "user", Parts: []models.GenPart{{Text: text}}}
	contents := append(append([]models.GenContent{}, s.history...), userTurn)
	req := models.NewGenerateReq(contents, s.client.sysPrompt)
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", s.client.apiBase, s.client.model)
	resp, err := s.client.post(ctx, url, req)
	if err != nil {
		s.client.logger.Error("streaming send failed", "error", err)
		return nil, err
	}
	return &Stream{
		session:  s,
		userTurn: userTurn,
		body:     resp.Body,
		reader:   bufio.NewReader(resp.Body),
	}, nil
}

// Stream yields reply fragments; Recv returns io.EOF after the final one.
type Stream struct {
	session  *Session
	userTurn models.GenContent
	body     io.ReadCloser
	reader   *bufio.Reader
	acc      strings.Builder
	done     bool
}

var dataPrefix = []byte("data: ")

func (st *Stream) Recv() (string, error) {
	if st.done {
		return "", io.EOF
	}
	for {
		line, err := st.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				st.finish()
				return "", io.EOF
			}
			st.abort()
			st.session.client.logger.Error("error reading response body", "error", err, "line", string(line))
			return "", fmt.Errorf("stream read failed: %w", err)
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		line = bytes.TrimPrefix(line, dataPrefix)
		if bytes.Equal(line, []byte("[DONE]")) {
			st.finish()
			return "", io.EOF
		}
		chunk := models.GenerateResp{}
		if err := json.Unmarshal(line, &chunk); err != nil {
			st.abort()
			st.session.client.logger.Error("failed to decode chunk", "error", err, "line", string(line))
			return "", fmt.Errorf("malformed stream chunk: %w", err)
		}
		if chunk.Error != nil {
			st.abort()
			return "", fmt.Errorf("api error mid-stream: %s", chunk.Error.Message)
		}
		text := chunk.Text()
		if text == "" {
			continue
		}
		st.acc.WriteString(text)
		return text, nil
	}
}

func (st *Stream) Close() error {
	if st.done {
		return nil
	}
	st.done = true
	return st.body.Close()
}

// finish commits both turns to the session so later turns in the same
// conversation carry the full exchange.
func (st *Stream) finish() {
	if st.done {
		return
	}
	st.done = true
	st.body.Close()
	st.session.history = append(st.session.history, st.userTurn, models.GenContent{
		Role:  "model",
		Parts: []models.GenPart{{Text: st.acc.String()}},
	})
}

// abort discards the exchange; partial fragments are not retained.
func (st *Stream) abort() {
	if st.done {
		return
	}
	st.done = true
	st.body.Close()
}
