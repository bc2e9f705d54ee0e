package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vandvik/models"
)

func testClient(url string) *Client {
	return &Client{
		httpClient: http.DefaultClient,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		apiBase:    url,
		apiKey:     "test-key",
		model:      "gemini-test",
		sysPrompt:  "test system prompt",
	}
}

func chunkJSON(text string) string {
	resp := models.GenerateResp{}
	resp.Candidates = append(resp.Candidates, struct {
		Content      models.GenContent `json:"content"`
		FinishReason string            `json:"finishReason"`
	}{Content: models.GenContent{Role: "model", Parts: []models.GenPart{{Text: text}}}})
	data, _ := json.Marshal(resp)
	return string(data)
}

func TestBindFiltersGreetingAndPlaceholders(t *testing.T) {
	c := testClient("http://unused")
	msgs := []models.Message{
		{Author: models.AuthorCompanion, Text: "hello, I am the greeting"},
		{Author: models.AuthorUser, Text: "hi"},
		{Author: models.AuthorCompanion, Text: ""},
		{Author: models.AuthorCompanion, Text: "a real reply"},
		{Author: models.AuthorUser, Text: "and another"},
	}
	sess := c.Bind(msgs)
	if len(sess.history) != 3 {
		t.Fatalf("expected 3 history entries, got %d: %+v", len(sess.history), sess.history)
	}
	wantRoles := []string{"user", "model", "user"}
	for i, h := range sess.history {
		if h.Role != wantRoles[i] {
			t.Fatalf("entry %d role: %q, want %q", i, h.Role, wantRoles[i])
		}
	}
	if sess.history[1].Parts[0].Text != "a real reply" {
		t.Fatalf("wrong entry survived filtering: %+v", sess.history[1])
	}
}

func TestBindKeepsNonLeadingCompanionText(t *testing.T) {
	c := testClient("http://unused")
	sess := c.Bind([]models.Message{
		{Author: models.AuthorUser, Text: "hi"},
		{Author: models.AuthorCompanion, Text: "reply"},
	})
	if len(sess.history) != 2 {
		t.Fatalf("companion reply at index > 0 must be kept, got %d entries", len(sess.history))
	}
}

func TestStreamRecvAndCommit(t *testing.T) {
	var gotPath string
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		gotKey = r.Header.Get("x-goog-api-key")
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: %s\n\n", chunkJSON("Hel"))
		fmt.Fprintf(w, ": keepalive comment\n\n")
		fmt.Fprintf(w, "data: %s\n\n", chunkJSON("lo!"))
		fmt.Fprintf(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()
	sess := testClient(srv.URL).Bind(nil)
	stream, err := sess.SendStreaming(context.Background(), "say hello")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	var acc strings.Builder
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("recv failed: %v", err)
		}
		acc.WriteString(chunk)
	}
	if acc.String() != "Hello!" {
		t.Fatalf("fragments do not concatenate to the reply: %q", acc.String())
	}
	if !strings.Contains(gotPath, "models/gemini-test:streamGenerateContent?alt=sse") {
		t.Fatalf("unexpected request path: %s", gotPath)
	}
	if gotKey != "test-key" {
		t.Fatalf("api key header missing")
	}
	// a normal end commits both turns to the session history
	if len(sess.history) != 2 {
		t.Fatalf("expected committed exchange, got %d entries", len(sess.history))
	}
	if sess.history[0].Parts[0].Text != "say hello" {
		t.Fatalf("user turn not committed: %+v", sess.history[0])
	}
	if sess.history[1].Role != "model" || sess.history[1].Parts[0].Text != "Hello!" {
		t.Fatalf("model turn not committed: %+v", sess.history[1])
	}
}

func TestStreamErrorChunkDiscardsExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "data: %s\n\n", chunkJSON("partial"))
		fmt.Fprintf(w, "data: %s\n\n", `{"error":{"code":429,"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`)
	}))
	defer srv.Close()
	sess := testClient(srv.URL).Bind(nil)
	stream, err := sess.SendStreaming(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if _, err := stream.Recv(); err != nil {
		t.Fatalf("first chunk should arrive: %v", err)
	}
	_, err = stream.Recv()
	if err == nil || err == io.EOF {
		t.Fatalf("expected mid-stream error, got: %v", err)
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("error does not carry the api message: %v", err)
	}
	if len(sess.history) != 0 {
		t.Fatalf("failed exchange must not be committed: %+v", sess.history)
	}
}

func TestSendStreamingHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":403,"message":"key not valid","status":"PERMISSION_DENIED"}}`)
	}))
	defer srv.Close()
	sess := testClient(srv.URL).Bind(nil)
	_, err := sess.SendStreaming(context.Background(), "prompt")
	if err == nil {
		t.Fatalf("expected an error for status 403")
	}
	if !strings.Contains(err.Error(), "key not valid") {
		t.Fatalf("error does not carry the api message: %v", err)
	}
}

func TestGenerateTitle(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		want    string
		wantErr bool
	}{
		{name: "quotes stripped", text: `"Weather Small Talk"`, want: "Weather Small Talk"},
		{name: "plain", text: "Weekend Plans", want: "Weekend Plans"},
		{name: "empty is an error", text: "   ", wantErr: true},
	}
	for i, tc := range cases {
		t.Run(fmt.Sprintf("run_%d_%s", i, tc.name), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, chunkJSON(tc.text))
			}))
			defer srv.Close()
			title, err := testClient(srv.URL).GenerateTitle(context.Background(), "first message")
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected an error, got title %q", title)
				}
				return
			}
			if err != nil {
				t.Fatalf("title call failed: %v", err)
			}
			if title != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, title)
			}
		})
	}
}

func TestGenerateSuggestions(t *testing.T) {
	var gotReq models.GenerateReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotReq); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		fmt.Fprint(w, chunkJSON(`{"suggestions":["Tell me more 🌟","What else? 🤔","Surprise me 🎲"]}`))
	}))
	defer srv.Close()
	chips, err := testClient(srv.URL).GenerateSuggestions(context.Background(), "the last reply")
	if err != nil {
		t.Fatalf("suggestion call failed: %v", err)
	}
	if len(chips) != 3 || chips[0] != "Tell me more 🌟" {
		t.Fatalf("unexpected chips: %v", chips)
	}
	if gotReq.GenerationConfig == nil || gotReq.GenerationConfig.ResponseMIMEType != "application/json" {
		t.Fatalf("structured output config missing: %+v", gotReq.GenerationConfig)
	}
	if gotReq.GenerationConfig.ResponseSchema == nil || gotReq.GenerationConfig.ResponseSchema.Type != "OBJECT" {
		t.Fatalf("response schema missing: %+v", gotReq.GenerationConfig)
	}
}

func TestGenerateSuggestionsEmptyList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chunkJSON(`{"suggestions":[]}`))
	}))
	defer srv.Close()
	_, err := testClient(srv.URL).GenerateSuggestions(context.Background(), "reply")
	if err == nil {
		t.Fatalf("empty suggestion list must be an error")
	}
}
