package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pgconvo/pgconvo/internal/errors"
)

// wireAdapter is the per-provider slice of the client: request shaping and
// stream parsing. Everything else (history, retries, error taxonomy) is
// provider-agnostic.
type wireAdapter interface {
	defaultModel() string
	endpoint(baseURL string) string
	newRequest(ctx context.Context, url, token, model, systemPrompt string, history []Message) (*http.Request, error)
	parseStream(r io.Reader, onDelta func(string)) (*streamResult, error)
}

type streamResult struct {
	content      string
	inputTokens  int
	outputTokens int
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Model      string
	MaxHistory int
	Timeout    time.Duration

	// OnDelta, when set, receives provisional streamed text fragments. The
	// value assembled from deltas is non-authoritative; the final answer is
	// whatever Chat returns.
	OnDelta func(string)
}

// Client holds one conversation and performs provider round-trips. One
// instance serves one database session; it is not safe for concurrent turns,
// matching the one-in-flight-call-per-conversation model.
type Client struct {
	auth       TokenSource
	adapter    wireAdapter
	httpClient *http.Client
	baseURL    string
	onDelta    func(string)
	maxHistory int

	mu           sync.Mutex
	model        string
	systemPrompt string
	history      []Message
}

// NewClient creates a client for the provider declared by the token source.
func NewClient(auth TokenSource, opts Options) (*Client, error) {
	var adapter wireAdapter

	switch auth.Provider() {
	case ProviderOpenAI:
		adapter = openAIAdapter{}
	case ProviderAnthropic:
		adapter = anthropicAdapter{}
	default:
		return nil, errors.Newf(errors.ErrTypeConfig, "unsupported provider: %s", auth.Provider())
	}

	model := opts.Model
	if model == "" {
		model = adapter.defaultModel()
	}

	maxHistory := opts.MaxHistory
	if maxHistory <= 0 {
		maxHistory = MaxHistory
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &Client{
		auth:       auth,
		adapter:    adapter,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    opts.BaseURL,
		onDelta:    opts.OnDelta,
		maxHistory: maxHistory,
		model:      model,
	}, nil
}

// SetSystemPrompt replaces the system prompt used on every round-trip.
func (c *Client) SetSystemPrompt(prompt string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.systemPrompt = prompt
}

// ClearHistory drops the conversation history, keeping the system prompt.
func (c *Client) ClearHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history = nil
}

// History returns a defensive copy of the conversation history.
func (c *Client) History() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	copied := make([]Message, len(c.history))
	copy(copied, c.history)

	return copied
}

// SetModel overrides the model used for subsequent round-trips.
func (c *Client) SetModel(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if model == "" {
		model = c.adapter.defaultModel()
	}

	c.model = model
}

// Model returns the active model.
func (c *Client) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.model
}

// Chat appends the user message, performs one provider round-trip (two when
// a 401 triggers the single transparent credential refresh), appends the
// assistant answer to history, and returns it.
func (c *Client) Chat(ctx context.Context, userText string) (*ChatResponse, error) {
	c.append(Message{Role: RoleUser, Content: userText})

	result, err := c.roundTrip(ctx)
	if errors.IsType(err, errors.ErrTypeAuthorization) {
		if refreshErr := c.auth.Refresh(ctx); refreshErr != nil {
			return nil, errors.Wrap(refreshErr, errors.ErrTypeAuthorization, "credential refresh failed")
		}

		result, err = c.roundTrip(ctx)
		if errors.IsType(err, errors.ErrTypeAuthorization) {
			return nil, errors.NewAuthorizationError(c.auth.Provider())
		}
	}

	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(result.content) == "" {
		return nil, errors.New(errors.ErrTypeParse, "model returned an empty response")
	}

	c.append(Message{Role: RoleAssistant, Content: result.content})

	return &ChatResponse{
		Content:    result.content,
		TokensUsed: result.inputTokens + result.outputTokens,
	}, nil
}

// roundTrip performs exactly one streaming request/response exchange.
func (c *Client) roundTrip(ctx context.Context) (*streamResult, error) {
	token, err := c.auth.AccessToken(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeAuthorization, "failed to obtain access token")
	}

	c.mu.Lock()
	model := c.model
	systemPrompt := c.systemPrompt
	history := make([]Message, len(c.history))
	copy(history, c.history)
	c.mu.Unlock()

	url := c.adapter.endpoint(c.baseURL)

	req, err := c.adapter.newRequest(ctx, url, token, model, systemPrompt, history)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeInternal, "failed to build provider request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeConnectivity, "provider request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	result, err := c.adapter.parseStream(resp.Body, c.onDelta)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeParse, "failed to parse provider stream")
	}

	return result, nil
}

// statusError maps a non-200 response onto the error taxonomy.
func (c *Client) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return errors.New(errors.ErrTypeAuthorization, "provider rejected the access token")
	case resp.StatusCode == http.StatusTooManyRequests:
		return errors.New(errors.ErrTypeRateLimit, "provider rate limit reached, try again later")
	case resp.StatusCode >= http.StatusInternalServerError:
		return errors.Newf(errors.ErrTypeTransient, "provider service error (status %d)", resp.StatusCode)
	default:
		return errors.Newf(errors.ErrTypeInternal, "provider request failed (status %d): %s",
			resp.StatusCode, vendorErrorMessage(body))
	}
}

// vendorErrorMessage digs the human-readable message out of a vendor error
// envelope, falling back to the truncated raw body.
func vendorErrorMessage(body []byte) string {
	var envelope struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}

	raw := strings.TrimSpace(string(body))
	if len(raw) > 200 {
		raw = raw[:200] + "..."
	}

	if raw == "" {
		return "no response body"
	}

	return raw
}

// append adds a message and trims the oldest entries so the history never
// exceeds the bound. Trimming runs immediately after every append.
func (c *Client) append(message Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history = append(c.history, message)
	if excess := len(c.history) - c.maxHistory; excess > 0 {
		c.history = c.history[excess:]
	}
}

var _ Service = (*Client)(nil)

func (c *Client) String() string {
	return fmt.Sprintf("llm.Client(provider=%s, model=%s)", c.auth.Provider(), c.Model())
}
