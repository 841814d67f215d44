package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultSource     = "en"
	DefaultTarget     = "es"
	DefaultTimeout    = 10 * time.Second
	DefaultMaxElapsed = 15 * time.Second
)

var (
	ErrNotConfigured = errors.New("translate: no endpoint configured")
	ErrEmptyResult   = errors.New("translate: empty translation")
)

// StatusError is a non-2xx reply from the translation endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("translate: status %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type Options struct {
	// URL is the full translate endpoint, e.g. http://libretranslate:5000/translate.
	URL    string
	APIKey string
	Source string
	Target string

	Timeout time.Duration
	// MaxElapsed bounds the whole retry loop.
	MaxElapsed      time.Duration
	InitialInterval time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to a LibreTranslate-compatible endpoint.
type Client struct {
	url             string
	apiKey          string
	source          string
	target          string
	timeout         time.Duration
	maxElapsed      time.Duration
	initialInterval time.Duration
	hc              *http.Client
	log             *slog.Logger
}

func NewClient(opts Options) *Client {
	c := &Client{
		url:             strings.TrimSpace(opts.URL),
		apiKey:          opts.APIKey,
		source:          opts.Source,
		target:          opts.Target,
		timeout:         opts.Timeout,
		maxElapsed:      opts.MaxElapsed,
		initialInterval: opts.InitialInterval,
		hc:              opts.HTTPClient,
		log:             opts.Logger,
	}
	if c.source == "" {
		c.source = DefaultSource
	}
	if c.target == "" {
		c.target = DefaultTarget
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.maxElapsed <= 0 {
		c.maxElapsed = DefaultMaxElapsed
	}
	if c.hc == nil {
		c.hc = &http.Client{}
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

// Enabled reports whether an endpoint is configured.
func (c *Client) Enabled() bool { return c != nil && c.url != "" }

type request struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type response struct {
	TranslatedText string `json:"translatedText"`
}

// Translate returns text in the target language. 429 and 5xx replies and
// transport errors are retried with exponential backoff; other statuses are not.
func (c *Client) Translate(ctx context.Context, text string) (string, error) {
	if !c.Enabled() {
		return "", ErrNotConfigured
	}
	if strings.TrimSpace(text) == "" {
		return text, nil
	}
	body, err := json.Marshal(request{Q: text, Source: c.source, Target: c.target, Format: "text", APIKey: c.apiKey})
	if err != nil {
		return "", err
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.maxElapsed
	if c.initialInterval > 0 {
		bo.InitialInterval = c.initialInterval
	}

	var out string
	attempt := 0
	op := func() error {
		attempt++
		res, err := c.do(ctx, body)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && !se.retryable() {
				return backoff.Permanent(err)
			}
			if errors.Is(err, ErrEmptyResult) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			c.log.Debug("translate attempt failed", "attempt", attempt, "err", err)
			return err
		}
		out = res
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return "", err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, body []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	var r response
	if err := json.Unmarshal(raw, &r); err != nil {
		return "", fmt.Errorf("translate: decode: %w", err)
	}
	if r.TranslatedText == "" {
		return "", ErrEmptyResult
	}
	return r.TranslatedText, nil
}

// Result is a best-effort translation.
type Result struct {
	Text       string `json:"text"`
	Original   string `json:"original"`
	Translated bool   `json:"translated"`
}

// TranslateOrOriginal never fails: when translation is unavailable the
// original text comes back with Translated false.
func (c *Client) TranslateOrOriginal(ctx context.Context, text string) Result {
	res := Result{Text: text, Original: text}
	if !c.Enabled() || strings.TrimSpace(text) == "" {
		return res
	}
	out, err := c.Translate(ctx, text)
	if err != nil {
		c.log.Warn("translation failed, returning original", "err", err)
		return res
	}
	res.Text = out
	res.Translated = true
	return res
}
