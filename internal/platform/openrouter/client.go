// Package openrouter implements adapters.Completion against the OpenRouter
// chat completions API.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	"github.com/yungbote/hypermind-backend/internal/observability"
	"github.com/yungbote/hypermind-backend/internal/platform/envutil"
	"github.com/yungbote/hypermind-backend/internal/platform/ctxutil"
	"github.com/yungbote/hypermind-backend/internal/platform/httpx"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

const service = "openrouter"

// DefaultModels maps a hint to the model id used when no override is set.
var DefaultModels = map[adapters.ModelHint]string{
	adapters.HintReasoning: "deepseek/deepseek-r1",
	adapters.HintCoding:    "qwen/qwen-2.5-coder-32b-instruct",
	adapters.HintContext:   "google/gemini-2.0-flash-exp:free",
	adapters.HintSpeed:     "google/gemini-2.0-flash-exp:free",
	adapters.HintVision:    "qwen/qwen-2.5-vl-72b-instruct:free",
	adapters.HintRoleplay:  "deepseek/deepseek-r1",
}

type Config struct {
	APIKey      string
	BaseURL     string
	Referer     string
	Title       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  int
	// Models overrides DefaultModels per hint.
	Models map[adapters.ModelHint]string
}

// ConfigFromEnv reads OPENROUTER_* variables. OPENROUTER_MODEL_<HINT>
// overrides a single hint, e.g. OPENROUTER_MODEL_SPEED.
func ConfigFromEnv() Config {
	cfg := Config{
		APIKey:     envutil.String("OPENROUTER_API_KEY", ""),
		BaseURL:    envutil.String("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		Referer:    envutil.String("OPENROUTER_REFERER", "https://rapidlearn.app"),
		Title:      envutil.String("OPENROUTER_TITLE", "RapidLearn"),
		MaxTokens:  envutil.Int("OPENROUTER_MAX_TOKENS", 4096),
		Timeout:    envutil.Seconds("OPENROUTER_TIMEOUT_SECONDS", 180*time.Second),
		MaxRetries: envutil.Int("OPENROUTER_MAX_RETRIES", 2),
		Models:     map[adapters.ModelHint]string{},
	}
	cfg.Temperature = 0.7
	for hint := range DefaultModels {
		if m := envutil.String("OPENROUTER_MODEL_"+strings.ToUpper(string(hint)), ""); m != "" {
			cfg.Models[hint] = m
		}
	}
	return cfg
}

type Client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
	sleep      func(context.Context, time.Duration) error
}

func New(log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing OPENROUTER_API_KEY")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Client{
		log:        log.With("service", "OpenRouterClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		sleep:      httpx.SleepCtx,
	}, nil
}

// Model resolves the model id for a hint. Unknown hints use the speed model.
func (c *Client) Model(hint adapters.ModelHint) string {
	if m := c.cfg.Models[hint]; m != "" {
		return m
	}
	if m := DefaultModels[hint]; m != "" {
		return m
	}
	return DefaultModels[adapters.HintSpeed]
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

// Content is either a string or a list of parts for vision requests.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("openrouter http %d: %s", e.StatusCode, e.Body)
}

func (e *httpError) HTTPStatusCode() int { return e.StatusCode }

func (c *Client) Complete(ctx context.Context, msgs []adapters.Message, hint adapters.ModelHint, opts adapters.CompletionOptions) (string, error) {
	if len(msgs) == 0 {
		return "", adapters.Errorf(service, adapters.InvalidResponse, "no messages")
	}
	req := chatRequest{
		Model:       c.Model(hint),
		Messages:    toChatMessages(msgs),
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}

	var out chatResponse
	if err := c.do(ctx, req, &out); err != nil {
		return "", err
	}
	if out.Error != nil {
		return "", adapters.Errorf(service, adapters.InvalidResponse, "%s", out.Error.Message)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", adapters.Errorf(service, adapters.InvalidResponse, "empty completion from %s", req.Model)
	}
	return out.Choices[0].Message.Content, nil
}

func toChatMessages(msgs []adapters.Message) []chatMessage {
	out := make([]chatMessage, 0, len(msgs))
	for _, m := range msgs {
		if len(m.Images) == 0 {
			out = append(out, chatMessage{Role: m.Role, Content: m.Content})
			continue
		}
		parts := []contentPart{{Type: "text", Text: m.Content}}
		for _, u := range m.Images {
			parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: u}})
		}
		out = append(out, chatMessage{Role: m.Role, Content: parts})
	}
	return out
}

func (c *Client) doOnce(ctx context.Context, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("HTTP-Referer", c.cfg.Referer)
	req.Header.Set("X-Title", c.cfg.Title)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *Client) do(ctx context.Context, req chatRequest, out any) error {
	backoff := 1 * time.Second
	start := time.Now()

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, raw, err := c.doOnce(ctx, req)
		if err == nil {
			observability.Current().ObserveLLM(req.Model, resp.StatusCode, time.Since(start))
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return adapters.Wrap(service, adapters.InvalidResponse, fmt.Errorf("decode: %w", uErr))
			}
			return nil
		}
		if !httpx.IsRetryableError(err) || attempt >= c.cfg.MaxRetries {
			observability.Current().ObserveLLM(req.Model, statusOf(resp), time.Since(start))
			return classify(err)
		}

		sleepFor := httpx.Jitter(httpx.RetryAfterDuration(resp, backoff, 10*time.Second), 0.2)
		c.log.Warn("OpenRouter request retrying", append([]interface{}{
			"model", req.Model,
			"retry", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		}, ctxutil.LogFields(ctx)...)...)
		if sErr := c.sleep(ctx, sleepFor); sErr != nil {
			return sErr
		}
		backoff *= 2
	}
}

// classify keeps caller cancellation as-is so the executor can tell a
// shutdown apart from a service failure.
func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var he *httpError
	if errors.As(err, &he) {
		return adapters.Wrap(service, adapters.FromHTTPStatus(he.StatusCode), err)
	}
	if httpx.IsRetryableError(err) {
		return adapters.Wrap(service, adapters.ServiceUnavailable, err)
	}
	return adapters.Wrap(service, adapters.IOError, err)
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}
