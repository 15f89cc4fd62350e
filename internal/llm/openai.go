package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultOpenAIBaseURL = "https://api.openai.com"

// openAIAdapter shapes requests for the OpenAI Responses API and parses its
// SSE stream.
type openAIAdapter struct{}

type openAIRequest struct {
	Model        string    `json:"model"`
	Instructions string    `json:"instructions,omitempty"`
	Input        []Message `json:"input"`
	Stream       bool      `json:"stream"`
}

type openAIStreamEvent struct {
	Type     string          `json:"type"`
	Delta    string          `json:"delta"`
	Response *openAIResponse `json:"response"`
}

type openAIResponse struct {
	Output []struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	Usage *openAIUsage `json:"usage"`
}

type openAIUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (openAIAdapter) defaultModel() string { return DefaultOpenAIModel }

func (openAIAdapter) endpoint(baseURL string) string {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}

	return strings.TrimRight(baseURL, "/") + "/v1/responses"
}

func (a openAIAdapter) newRequest(ctx context.Context, url, token, model, systemPrompt string, history []Message) (*http.Request, error) {
	body, err := json.Marshal(openAIRequest{
		Model:        model,
		Instructions: systemPrompt,
		Input:        history,
		Stream:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+token)

	return req, nil
}

// parseStream accumulates output_text deltas into a running answer. The
// deltas are provisional: the unified text carried by the terminal
// response.completed event overwrites them, and token usage is read from
// that same event. Malformed event payloads are skipped.
func (a openAIAdapter) parseStream(r io.Reader, onDelta func(string)) (*streamResult, error) {
	scanner := newSSEScanner(r)
	result := &streamResult{}

	var accumulated strings.Builder

	for {
		event, err := scanner.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read stream: %w", err)
		}

		if event.data == doneSentinel {
			break
		}

		var parsed openAIStreamEvent
		if json.Unmarshal([]byte(event.data), &parsed) != nil {
			continue
		}

		eventType := parsed.Type
		if eventType == "" {
			eventType = event.name
		}

		switch eventType {
		case "response.output_text.delta":
			accumulated.WriteString(parsed.Delta)

			if onDelta != nil {
				onDelta(parsed.Delta)
			}
		case "response.completed", "response.done":
			if parsed.Response == nil {
				continue
			}

			if final := parsed.Response.finalText(); final != "" {
				result.content = final
			}

			if parsed.Response.Usage != nil {
				result.inputTokens = parsed.Response.Usage.InputTokens
				result.outputTokens = parsed.Response.Usage.OutputTokens
			}
		}
	}

	if result.content == "" {
		result.content = accumulated.String()
	}

	return result, nil
}

// finalText joins the output_text parts of the completed response object.
func (r *openAIResponse) finalText() string {
	var sb strings.Builder

	for _, item := range r.Output {
		for _, content := range item.Content {
			if content.Type == "output_text" {
				sb.WriteString(content.Text)
			}
		}
	}

	return sb.String()
}
