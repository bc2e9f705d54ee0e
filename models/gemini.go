package models

import "strings"

// wire types for the generativelanguage REST API

type GenPart struct {
	Text string `json:"text"`
}

type GenContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []GenPart `json:"parts"`
}

type Schema struct {
	Type       string             `json:"type"`
	Items      *Schema            `json:"items,omitempty"`
	Properties map[string]*Schema `json:"properties,omitempty"`
	Required   []string           `json:"required,omitempty"`
}

type GenerationConfig struct {
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
	ResponseSchema   *Schema `json:"responseSchema,omitempty"`
}

type GenerateReq struct {
	Contents          []GenContent      `json:"contents"`
	SystemInstruction *GenContent       `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}

func NewGenerateReq(contents []GenContent, sysPrompt string) *GenerateReq {
	req := &GenerateReq{Contents: contents}
	if sysPrompt != "" {
		req.SystemInstruction = &GenContent{Parts: []GenPart{{Text: sysPrompt}}}
	}
	return req
}

// GenerateResp is both the unary response and a single streamed chunk.
type GenerateResp struct {
	Candidates []struct {
		Content      GenContent `json:"content"`
		FinishReason string     `json:"finishReason"`
	} `json:"candidates"`
	Error *APIError `json:"error,omitempty"`
}

type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Text concatenates the text parts of the first candidate.
func (r *GenerateResp) Text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

type SuggestionList struct {
	Suggestions []string `json:"suggestions"`
}

// SuggestionSchema is the response schema passed with the follow-up
// suggestion call; the model replies with {"suggestions": [...]}.
func SuggestionSchema() *Schema {
	return &Schema{
		Type: "OBJECT",
		Properties: map[string]*Schema{
			"suggestions": {Type: "ARRAY", Items: &Schema{Type: "STRING"}},
		},
		Required: []string{"suggestions"},
	}
}
