// Package gemini answers conversation turns with Google's Gemini models.
package gemini

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	genai "github.com/google/generative-ai-go/genai"
	"github.com/robertarktes/turf-booking-assistant/internal/domain"
	"google.golang.org/api/option"
)

const (
	temperature     = 0.7
	maxOutputTokens = 1024
)

type Client struct {
	client *genai.Client
	model  string
}

func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrap(err, "create gemini client")
	}
	return &Client{client: client, model: model}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Complete sends the last message of history as the new turn with the rest as chat history.
func (c *Client) Complete(ctx context.Context, system string, history []domain.ChatMessage) (string, error) {
	if len(history) == 0 {
		return "", errors.Wrap(domain.ErrExternalService, "empty conversation")
	}

	// A model value per call: the system instruction differs between calls.
	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(temperature)
	model.SetMaxOutputTokens(maxOutputTokens)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	last := history[len(history)-1]
	cs := model.StartChat()
	cs.History = toContents(history[:len(history)-1])

	resp, err := cs.SendMessage(ctx, genai.Text(last.Content))
	if err != nil {
		return "", errors.Mark(errors.Wrap(err, "gemini send message"), domain.ErrExternalService)
	}
	text := responseText(resp)
	if text == "" {
		return "", errors.Wrap(domain.ErrExternalService, "gemini returned no text")
	}
	return text, nil
}

// toContents maps stored turns to Gemini roles. History has to open with a user turn.
func toContents(history []domain.ChatMessage) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		role := "user"
		if m.Role == domain.RoleAssistant {
			role = "model"
		}
		if len(contents) == 0 && role == "model" {
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return contents
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return strings.TrimSpace(sb.String())
}
