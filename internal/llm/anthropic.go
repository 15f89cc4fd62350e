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

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
	anthropicMaxTokens      = 4096
)

// anthropicAdapter shapes requests for the Anthropic Messages API and parses
// its SSE stream.
type anthropicAdapter struct{}

type anthropicRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
	Stream    bool      `json:"stream"`
}

type anthropicStreamEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Usage *anthropicUsage `json:"usage"`
	} `json:"message"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Usage *anthropicUsage `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicMessage struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage *anthropicUsage `json:"usage"`
}

func (anthropicAdapter) defaultModel() string { return DefaultAnthropicModel }

func (anthropicAdapter) endpoint(baseURL string) string {
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}

	return strings.TrimRight(baseURL, "/") + "/v1/messages"
}

func (a anthropicAdapter) newRequest(ctx context.Context, url, token, model, systemPrompt string, history []Message) (*http.Request, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:     model,
		MaxTokens: anthropicMaxTokens,
		System:    systemPrompt,
		Messages:  history,
		Stream:    true,
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
	req.Header.Set("x-api-key", token)
	req.Header.Set("anthropic-version", anthropicVersion)

	return req, nil
}

// parseStream concatenates content_block_delta text. Input-token usage
// arrives with message_start, output-token usage with message_delta. When
// the stream carried no content at all the whole buffer is reparsed as one
// non-streaming message object.
func (a anthropicAdapter) parseStream(r io.Reader, onDelta func(string)) (*streamResult, error) {
	var raw bytes.Buffer

	scanner := newSSEScanner(io.TeeReader(r, &raw))
	result := &streamResult{}

	var (
		content     strings.Builder
		sawStreamed bool
	)

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

		var parsed anthropicStreamEvent
		if json.Unmarshal([]byte(event.data), &parsed) != nil {
			continue
		}

		eventType := parsed.Type
		if eventType == "" {
			eventType = event.name
		}

		switch eventType {
		case "message_start":
			if parsed.Message != nil && parsed.Message.Usage != nil {
				result.inputTokens = parsed.Message.Usage.InputTokens
			}
		case "content_block_delta":
			if parsed.Delta != nil {
				sawStreamed = true
				content.WriteString(parsed.Delta.Text)

				if onDelta != nil {
					onDelta(parsed.Delta.Text)
				}
			}
		case "message_delta":
			if parsed.Usage != nil {
				result.outputTokens = parsed.Usage.OutputTokens
			}
		case "message_stop":
			// Terminal event; nothing to record.
		}
	}

	if sawStreamed {
		result.content = content.String()
		return result, nil
	}

	// No streamed content: treat the buffer as a single non-streaming
	// message object.
	var message anthropicMessage
	if err := json.Unmarshal(raw.Bytes(), &message); err == nil {
		for _, block := range message.Content {
			if block.Type == "text" {
				content.WriteString(block.Text)
			}
		}

		if message.Usage != nil {
			result.inputTokens = message.Usage.InputTokens
			result.outputTokens = message.Usage.OutputTokens
		}
	}

	result.content = content.String()

	return result, nil
}
