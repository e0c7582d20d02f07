package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	DefaultEmailBaseURL = "https://api.resend.com"
	defaultHTTPTimeout  = 15 * time.Second
	maxErrorBodyBytes   = 1024
)

type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// EmailRequest is the provider wire payload.
type EmailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Tags    []Tag    `json:"tags,omitempty"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

// Validate rejects requests the provider would refuse anyway. The returned
// error is never retried.
func (r EmailRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.From) == "" {
		missing = append(missing, "from")
	}
	if len(r.To) == 0 {
		missing = append(missing, "to")
	}
	if strings.TrimSpace(r.Subject) == "" {
		missing = append(missing, "subject")
	}
	if strings.TrimSpace(r.HTML) == "" {
		missing = append(missing, "html")
	}
	if len(missing) > 0 {
		return emailError("email request is missing required fields", goerrors.CategoryValidation, http.StatusBadRequest, "EMAIL_INVALID", map[string]any{"fields": missing})
	}
	for _, to := range r.To {
		if !strings.Contains(to, "@") {
			return emailError("invalid recipient address", goerrors.CategoryValidation, http.StatusBadRequest, "EMAIL_INVALID", map[string]any{"field": "to"})
		}
	}
	return nil
}

// Recipient returns a log-friendly recipient list.
func (r EmailRequest) Recipient() string {
	return strings.Join(r.To, ",")
}

type EmailClientConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// EmailClient talks to a Resend-compatible HTTP API. One Send is one attempt.
type EmailClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewEmailClient(cfg EmailClientConfig) *EmailClient {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultEmailBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &EmailClient{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		client:  client,
	}
}

// Send posts req and returns the provider message id.
func (c *EmailClient) Send(ctx context.Context, req EmailRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if c.apiKey == "" {
		return "", emailError("email api key is not configured", goerrors.CategoryAuth, http.StatusUnauthorized, "EMAIL_NOT_CONFIGURED", nil)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to encode email request").
			WithTextCode("EMAIL_INVALID")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build email request").
			WithTextCode("EMAIL_REQUEST_BUILD_FAILED")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryExternal, "email provider request failed").
			WithTextCode("EMAIL_PROVIDER_UNREACHABLE")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		preview := ""
		raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		if readErr == nil {
			preview = strings.TrimSpace(string(raw))
		}
		category, textCode := classifyStatus(resp.StatusCode)
		return "", emailError("email provider returned non-2xx status", category, resp.StatusCode, textCode, map[string]any{
			"status_code": resp.StatusCode,
			"body":        preview,
		})
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out); err != nil {
		// Accepted without a readable id.
		return "", nil
	}
	return out.ID, nil
}

func classifyStatus(status int) (goerrors.Category, string) {
	switch {
	case status == http.StatusTooManyRequests:
		return goerrors.CategoryRateLimit, "EMAIL_RATE_LIMITED"
	case status >= 500:
		return goerrors.CategoryExternal, "EMAIL_PROVIDER_UNAVAILABLE"
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return goerrors.CategoryAuth, "EMAIL_UNAUTHORIZED"
	case status == http.StatusRequestTimeout:
		return goerrors.CategoryExternal, "EMAIL_PROVIDER_TIMEOUT"
	default:
		return goerrors.CategoryBadInput, "EMAIL_REJECTED"
	}
}

func emailError(message string, category goerrors.Category, code int, textCode string, metadata map[string]any) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}
