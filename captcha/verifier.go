package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

var (
	// ErrMissing means the client supplied no captcha token at all.
	ErrMissing = errors.New("captcha token missing")
	// ErrFailed means the verification service rejected the token.
	ErrFailed = errors.New("captcha verification failed")
	// ErrUnavailable wraps transport or decoding failures talking to the
	// verification service. Callers should surface it as retryable, distinct
	// from a rejected token.
	ErrUnavailable = errors.New("captcha service unavailable")
)

// Config defines a public type used by stepauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Secret    string
	VerifyURL string
	Timeout   time.Duration
}

// Verifier checks client-supplied reCAPTCHA tokens against the remote
// verification service with a bounded timeout.
type Verifier struct {
	config Config
	client *http.Client
}

type verifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New(cfg Config) (*Verifier, error) {
	if cfg.Secret == "" {
		return nil, errors.New("captcha secret is required")
	}
	if cfg.VerifyURL == "" {
		cfg.VerifyURL = defaultVerifyURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	return &Verifier{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Verify checks one client token. It returns nil on success, [ErrMissing]
// for an empty token, [ErrFailed] when the service rejects the token, and
// [ErrUnavailable] when the service cannot be reached or answers garbage.
func (v *Verifier) Verify(ctx context.Context, clientToken string) error {
	if clientToken == "" {
		return ErrMissing
	}

	form := url.Values{
		"secret":   {v.config.Secret},
		"response": {clientToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.config.VerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}

	var body verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if !body.Success {
		return ErrFailed
	}
	return nil
}
