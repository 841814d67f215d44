package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"voicecall-platform/internal/batchcall"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.elevenlabs.io"

	DefaultSubmitTimeout = 30 * time.Second
	DefaultStatusTimeout = 15 * time.Second
	DefaultReadTimeout   = 15 * time.Second

	headerAPIKey = "xi-api-key"

	// maxBodyBytes bounds how much of a vendor response we buffer.
	maxBodyBytes = 4 << 20
)

// Operation names used in errors and metrics.
const (
	OpSubmit            = "submit"
	OpStatus            = "status"
	OpListConversations = "list_conversations"
	OpGetConversation   = "get_conversation"
	OpGetAgent          = "get_agent"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Observer is notified after every vendor request with its duration and result.
type Observer func(op string, d time.Duration, err error)

// Options configures a Client. Zero timeouts fall back to the defaults.
type Options struct {
	BaseURL string
	APIKey  string

	SubmitTimeout time.Duration
	StatusTimeout time.Duration
	ReadTimeout   time.Duration

	// RatePerSecond caps outbound requests. Zero disables the limiter.
	RatePerSecond float64

	HTTPClient *http.Client
	Observer   Observer
}

// Client talks to the ElevenLabs Conversational AI REST API.
//
// It never retries: a failed attempt is reported to the caller as a typed error.
type Client struct {
	baseURL string
	apiKey  string

	submitTimeout time.Duration
	statusTimeout time.Duration
	readTimeout   time.Duration

	httpClient *http.Client
	limiter    *rate.Limiter
	observe    Observer
}

// NewClient fails with ErrMissingCredential when no API key is configured.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrMissingCredential
	}
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("elevenlabs: invalid base url: %w", err)
	}

	c := &Client{
		baseURL:       base,
		apiKey:        opts.APIKey,
		submitTimeout: orDefault(opts.SubmitTimeout, DefaultSubmitTimeout),
		statusTimeout: orDefault(opts.StatusTimeout, DefaultStatusTimeout),
		readTimeout:   orDefault(opts.ReadTimeout, DefaultReadTimeout),
		httpClient:    opts.HTTPClient,
		observe:       opts.Observer,
	}
	if c.httpClient == nil {
		// Per-call deadlines come from context; no client-wide timeout.
		c.httpClient = &http.Client{}
	}
	if opts.RatePerSecond > 0 {
		burst := int(opts.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return c, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// SubmitBatchCall posts a validated batch request.
func (c *Client) SubmitBatchCall(ctx context.Context, req batchcall.CallBatchRequest) (BatchResponse, error) {
	status, body, err := c.do(ctx, OpSubmit, c.submitTimeout, http.MethodPost, "/v1/convai/batch-calling/submit", nil, req)
	if err != nil {
		return BatchResponse{}, err
	}
	if !isSuccess(status) {
		return BatchResponse{}, &VendorError{Op: OpSubmit, StatusCode: status, Body: decodeErrorBody(body)}
	}

	var out BatchResponse
	if err := decodeResponse(OpSubmit, body, &out); err != nil {
		return BatchResponse{}, err
	}
	if out.ID == "" {
		return BatchResponse{}, &InvalidResponseError{Op: OpSubmit, Reason: "missing id"}
	}
	return out, nil
}

// GetBatchCallStatus fetches the current state of a submitted batch.
func (c *Client) GetBatchCallStatus(ctx context.Context, batchID string) (BatchResponse, error) {
	if !ValidIdentifier(batchID) {
		return BatchResponse{}, fmt.Errorf("%w: batch id %q", ErrInvalidIdentifier, batchID)
	}
	status, body, err := c.do(ctx, OpStatus, c.statusTimeout, http.MethodGet, "/v1/convai/batch-calling/"+batchID, nil, nil)
	if err != nil {
		return BatchResponse{}, err
	}
	if status == http.StatusNotFound {
		return BatchResponse{}, &NotFoundError{Resource: "batch call", ID: batchID}
	}
	if !isSuccess(status) {
		return BatchResponse{}, &VendorError{Op: OpStatus, StatusCode: status, Body: decodeErrorBody(body)}
	}

	var out BatchResponse
	if err := decodeResponse(OpStatus, body, &out); err != nil {
		return BatchResponse{}, err
	}
	if _, ok := out.Raw["status"]; !ok {
		return BatchResponse{}, &InvalidResponseError{Op: OpStatus, Reason: "missing status"}
	}
	return out, nil
}

// ListConversations returns one page of conversations.
func (c *Client) ListConversations(ctx context.Context, q ConversationQuery) (ConversationPage, error) {
	params := url.Values{}
	if q.AgentID != "" {
		params.Set("agent_id", q.AgentID)
	}
	if q.PageSize > 0 {
		params.Set("page_size", strconv.Itoa(q.PageSize))
	}
	if q.PageToken != "" {
		params.Set("page_token", q.PageToken)
	}

	status, body, err := c.do(ctx, OpListConversations, c.readTimeout, http.MethodGet, "/v1/convai/conversations", params, nil)
	if err != nil {
		return ConversationPage{}, err
	}
	if !isSuccess(status) {
		return ConversationPage{}, &VendorError{Op: OpListConversations, StatusCode: status, Body: decodeErrorBody(body)}
	}
	var page ConversationPage
	if err := json.Unmarshal(body, &page); err != nil {
		return ConversationPage{}, &InvalidResponseError{Op: OpListConversations, Reason: err.Error()}
	}
	return page, nil
}

// GetConversation fetches a conversation with transcript and analysis.
func (c *Client) GetConversation(ctx context.Context, conversationID string) (Conversation, error) {
	raw, err := c.getObject(ctx, OpGetConversation, "conversation", "/v1/convai/conversations/", conversationID)
	if err != nil {
		return Conversation{}, err
	}
	return Conversation{Raw: raw}, nil
}

// GetAgent fetches an agent's configuration.
func (c *Client) GetAgent(ctx context.Context, agentID string) (Agent, error) {
	raw, err := c.getObject(ctx, OpGetAgent, "agent", "/v1/convai/agents/", agentID)
	if err != nil {
		return Agent{}, err
	}
	return Agent{Raw: raw}, nil
}

func (c *Client) getObject(ctx context.Context, op, resource, prefix, id string) (map[string]any, error) {
	if !ValidIdentifier(id) {
		return nil, fmt.Errorf("%w: %s id %q", ErrInvalidIdentifier, resource, id)
	}
	status, body, err := c.do(ctx, op, c.readTimeout, http.MethodGet, prefix+id, nil, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, &NotFoundError{Resource: resource, ID: id}
	}
	if !isSuccess(status) {
		return nil, &VendorError{Op: op, StatusCode: status, Body: decodeErrorBody(body)}
	}
	raw, err := decodeObject(body)
	if err != nil || raw == nil {
		return nil, &InvalidResponseError{Op: op, Reason: "body is not a JSON object"}
	}
	return raw, nil
}

// ValidIdentifier reports whether id is safe to use as a URL path segment.
func ValidIdentifier(id string) bool {
	return identifierPattern.MatchString(id)
}

// do performs one request under its own timeout and returns the status code
// and the buffered body. Transport failures come back as errors; HTTP
// statuses are left for the caller to interpret.
func (c *Client) do(ctx context.Context, op string, timeout time.Duration, method, path string, query url.Values, payload any) (status int, body []byte, err error) {
	if c.apiKey == "" {
		return 0, nil, ErrMissingCredential
	}

	start := time.Now()
	defer func() {
		if c.observe != nil {
			c.observe(op, time.Since(start), err)
		}
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, fmt.Errorf("elevenlabs: %s: rate limiter: %w", op, err)
		}
	}

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("elevenlabs: %s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(raw)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(opCtx, method, u, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("elevenlabs: %s: create request: %w", op, err)
	}
	req.Header.Set(headerAPIKey, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, c.transportError(ctx, opCtx, op, timeout, err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, c.transportError(ctx, opCtx, op, timeout, err)
	}
	return resp.StatusCode, body, nil
}

// transportError distinguishes our own deadline from the caller's cancellation.
func (c *Client) transportError(parent, opCtx context.Context, op string, timeout time.Duration, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("elevenlabs: %s: %w", op, parent.Err())
	}
	if errors.Is(opCtx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Op: op, After: timeout}
	}
	return fmt.Errorf("elevenlabs: %s: %w", op, err)
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func decodeResponse(op string, body []byte, out *BatchResponse) error {
	if err := json.Unmarshal(body, out); err != nil {
		return &InvalidResponseError{Op: op, Reason: "body is not a JSON object"}
	}
	if out.Raw == nil {
		return &InvalidResponseError{Op: op, Reason: "empty body"}
	}
	return nil
}

// decodeErrorBody returns parsed JSON when possible and the raw text otherwise.
func decodeErrorBody(body []byte) any {
	var v any
	if err := json.Unmarshal(body, &v); err == nil && v != nil {
		return v
	}
	return string(body)
}
