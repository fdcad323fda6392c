package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"sync"
	"time"

	openaigo "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"reflection-journal/internal/domain"
	"reflection-journal/internal/integrations/paramstore"
)

const (
	defaultBaseURL        = "https://api.openai.com/v1/"
	defaultModel          = "gpt-4o-mini"
	defaultRequestTimeout = 30 * time.Second
	defaultMaxRetries     = 2
)

// tokenPayload is the expected JSON shape stored in SSM for the API token.
type tokenPayload struct {
	Token string `json:"token"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
	Err        error
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

func (e *HTTPStatusError) Unwrap() error {
	return e.Err
}

// Client generates chat completions for the journal. The API key and model
// are resolved on first use, from options or from SSM, and cached once a
// resolution succeeds.
type Client struct {
	getter         Getter
	paramPrefix    string
	baseURL        string
	httpClient     *http.Client
	requestTimeout time.Duration
	maxRetries     int
	staticKey      string
	staticModel    string

	mu     sync.Mutex
	loaded bool
	model  string
	sdk    openaigo.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRequestTimeout bounds every attempt of a single request.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// WithMaxRetries sets how many times a failed request is retried by the SDK.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithAPIKey skips the SSM lookup of the API token.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.staticKey = strings.TrimSpace(key)
	}
}

// WithModel skips the SSM lookup of the model name.
func WithModel(model string) Option {
	return func(c *Client) {
		c.staticModel = strings.TrimSpace(model)
	}
}

// NewClient creates a Client. ps may be nil only when both WithAPIKey and
// WithModel are supplied.
func NewClient(ps Getter, paramPrefix string, opts ...Option) (*Client, error) {
	c := &Client{
		getter:         ps,
		paramPrefix:    strings.TrimRight(strings.TrimSpace(paramPrefix), "/"),
		baseURL:        defaultBaseURL,
		requestTimeout: defaultRequestTimeout,
		maxRetries:     defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.staticKey == "" || c.staticModel == "" {
		if ps == nil {
			return nil, errors.New("openai: paramstore getter must not be nil")
		}
		if c.paramPrefix == "" {
			return nil, errors.New("openai: parameter prefix must not be empty")
		}
	}
	return c, nil
}

func (c *Client) tokenParameterName() string {
	return c.paramPrefix + "/open-ai-token"
}

func (c *Client) modelParameterName() string {
	return c.paramPrefix + "/config/openai_model"
}

// resolve returns the SDK client and model. A failed resolution is not
// cached, so the next call tries SSM again.
func (c *Client) resolve(ctx context.Context) (openaigo.Client, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c.sdk, c.model, nil
	}

	apiKey := c.staticKey
	if apiKey == "" {
		key, err := fetchAPIKeyFromParamStore(ctx, c.getter, c.tokenParameterName())
		if err != nil {
			return openaigo.Client{}, "", err
		}
		apiKey = key
	}
	model := c.staticModel
	if model == "" {
		m, err := c.getter.GetParameter(ctx, c.modelParameterName())
		switch {
		case errors.Is(err, paramstore.ErrParameterNotFound):
			m = defaultModel
		case err != nil:
			return openaigo.Client{}, "", fmt.Errorf("openai: load model: %w", err)
		}
		model = strings.TrimSpace(m)
		if model == "" {
			return openaigo.Client{}, "", errors.New("openai: model parameter is empty")
		}
	}

	c.sdk = openaigo.NewClient(
		option.WithBaseURL(normalizeBaseURL(c.baseURL)),
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(c.resolvedHTTPClient()),
		option.WithMaxRetries(c.maxRetries),
		option.WithRequestTimeout(c.requestTimeout),
	)
	c.model = model
	c.loaded = true
	return c.sdk, c.model, nil
}

// resolvedHTTPClient returns the configured HTTP client, or a default one
// whose timeout covers every retry of a request.
func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: c.requestTimeout * time.Duration(c.maxRetries+1)}
}

func normalizeBaseURL(baseURL string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return defaultBaseURL
	}
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base + "/"
}

// Generate returns the complete response for turns.
func (c *Client) Generate(ctx context.Context, turns []domain.Turn, temperature float64) (string, error) {
	sdk, model, err := c.resolve(ctx)
	if err != nil {
		return "", err
	}

	res, err := sdk.Chat.Completions.New(ctx, chatParams(model, turns, temperature))
	if err != nil {
		return "", fmt.Errorf("openai: request failed: %w", statusError(err))
	}
	if len(res.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}
	return res.Choices[0].Message.Content, nil
}

// GenerateStream yields response fragments as they arrive. Their
// concatenation equals the complete response. A failure is yielded once as
// the final element.
func (c *Client) GenerateStream(ctx context.Context, turns []domain.Turn, temperature float64) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		sdk, model, err := c.resolve(ctx)
		if err != nil {
			yield("", err)
			return
		}

		stream := sdk.Chat.Completions.NewStreaming(ctx, chatParams(model, turns, temperature))
		defer func() { _ = stream.Close() }()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			fragment := chunk.Choices[0].Delta.Content
			if fragment == "" {
				continue
			}
			if !yield(fragment, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield("", fmt.Errorf("openai: stream failed: %w", statusError(err)))
		}
	}
}

func chatParams(model string, turns []domain.Turn, temperature float64) openaigo.ChatCompletionNewParams {
	return openaigo.ChatCompletionNewParams{
		Model:       openaigo.ChatModel(model),
		Messages:    toMessages(turns),
		Temperature: openaigo.Float(temperature),
	}
}

func toMessages(turns []domain.Turn) []openaigo.ChatCompletionMessageParamUnion {
	out := make([]openaigo.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case domain.RoleSystem:
			out = append(out, openaigo.SystemMessage(t.Text))
		case domain.RoleAssistant:
			out = append(out, openaigo.AssistantMessage(t.Text))
		default:
			out = append(out, openaigo.UserMessage(t.Text))
		}
	}
	return out
}

// statusError converts SDK API errors into HTTPStatusError so callers can
// branch on the status code without importing the SDK.
func statusError(err error) error {
	var apiErr *openaigo.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	url := ""
	if apiErr.Request != nil && apiErr.Request.URL != nil {
		url = apiErr.Request.URL.String()
	}
	return &HTTPStatusError{
		StatusCode: apiErr.StatusCode,
		URL:        url,
		Body:       apiErr.Message,
		Err:        err,
	}
}

func fetchAPIKeyFromParamStore(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("openai: paramstore getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("openai: token parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("openai: fetch token from paramstore: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("openai: unmarshal paramstore token value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", fmt.Errorf("openai: API token is empty")
	}
	return tp.Token, nil
}
