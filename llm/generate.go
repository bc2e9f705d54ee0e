package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"vandvik/models"
)

func (c *Client) generate(ctx context.Context, req *models.GenerateReq) (*models.GenerateResp, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", c.apiBase, c.model)
	httpResp, err := c.post(ctx, url, req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	resp := &models.GenerateResp{}
	if err := json.Unmarshal(body, resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("api error: %s", resp.Error.Message)
	}
	return resp, nil
}

// GenerateTitle asks for a short conversation title from the opening message.
func (c *Client) GenerateTitle(ctx context.Context, firstMessage string) (string, error) {
	prompt := fmt.Sprintf(
		"Generate a very short, concise title (3-5 words) for a conversation that starts with this message: %q", firstMessage)
	req := models.NewGenerateReq([]models.GenContent{
		{Role: "user", Parts: []models.GenPart{{Text: prompt}}},
	}, "")
	resp, err := c.generate(ctx, req)
	if err != nil {
		return "", err
	}
	title := strings.ReplaceAll(strings.TrimSpace(resp.Text()), `"`, "")
	if title == "" {
		return "", fmt.Errorf("empty title in response")
	}
	return title, nil
}

// GenerateSuggestions asks for follow-up suggestion chips as structured JSON.
func (c *Client) GenerateSuggestions(ctx context.Context, lastReply string) ([]string, error) {
	prompt := fmt.Sprintf(
		"Based on this statement: %q, generate 3 short, relevant, and engaging follow-up suggestions for a user to continue the conversation. Include an emoji in each suggestion.", lastReply)
	req := models.NewGenerateReq([]models.GenContent{
		{Role: "user", Parts: []models.GenPart{{Text: prompt}}},
	}, "")
	req.GenerationConfig = &models.GenerationConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   models.SuggestionSchema(),
	}
	resp, err := c.generate(ctx, req)
	if err != nil {
		return nil, err
	}
	list := models.SuggestionList{}
	if err := json.Unmarshal([]byte(resp.Text()), &list); err != nil {
		return nil, fmt.Errorf("failed to decode suggestions: %w", err)
	}
	if len(list.Suggestions) == 0 {
		return nil, fmt.Errorf("no suggestions in response")
	}
	return list.Suggestions, nil
}
