package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

const mePath = "/api/auth/me"

// errRetryable marks an attempt that may succeed if repeated (transport error or 5xx gateway status).
var errRetryable = errors.New("retryable")

// RemoteResolver asks the user service who owns a token by forwarding it as the "token" cookie.
type RemoteResolver struct {
	endpoint string
	client   *fasthttp.Client
	timeout  time.Duration
	attempts int
}

type Option func(*RemoteResolver)

// WithTimeout bounds one attempt when the caller's context has no earlier deadline.
func WithTimeout(d time.Duration) Option {
	return func(r *RemoteResolver) { r.timeout = d }
}

func WithRetry(attempts int) Option {
	return func(r *RemoteResolver) { r.attempts = attempts }
}

func NewRemoteResolver(baseURL string, opts ...Option) *RemoteResolver {
	r := &RemoteResolver{
		endpoint: strings.TrimRight(strings.TrimSpace(baseURL), "/") + mePath,
		client: &fasthttp.Client{
			Name:            "cheese-arena",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    5 * time.Second,
			MaxConnsPerHost: 64,
		},
		timeout:  5 * time.Second,
		attempts: 3,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.attempts = max(r.attempts, 1)
	return r
}

func (r *RemoteResolver) Resolve(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrNoToken
	}

	var err error
	for n := 1; n <= r.attempts; n++ {
		var id string
		id, err = r.lookup(ctx, token)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, errRetryable) || n == r.attempts {
			break
		}
		wait := time.NewTimer(time.Duration(100<<min(n-1, 5)) * time.Millisecond)
		select {
		case <-ctx.Done():
			wait.Stop()
			return "", fmt.Errorf("resolve identity: %w", ctx.Err())
		case <-wait.C:
		}
	}
	if errors.Is(err, ErrInvalidToken) {
		return "", err
	}
	return "", fmt.Errorf("resolve identity: %w", err)
}

func (r *RemoteResolver) lookup(ctx context.Context, token string) (string, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(r.endpoint)
	req.Header.SetCookie("token", token)

	deadline := time.Now().Add(r.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := r.client.DoDeadline(req, resp, deadline); err != nil {
		return "", fmt.Errorf("%w: %w", errRetryable, err)
	}

	switch status := resp.StatusCode(); {
	case status == fasthttp.StatusUnauthorized, status == fasthttp.StatusForbidden:
		return "", ErrInvalidToken
	case status >= 200 && status < 300:
		return decodeUserID(resp.Body())
	case status == fasthttp.StatusInternalServerError, status == fasthttp.StatusBadGateway,
		status == fasthttp.StatusServiceUnavailable, status == fasthttp.StatusGatewayTimeout:
		return "", fmt.Errorf("%w: auth service status %d", errRetryable, status)
	default:
		return "", fmt.Errorf("auth service status %d", status)
	}
}

type meResponse struct {
	User struct {
		ID    string `json:"id"`
		OID   string `json:"_id"`
		Email string `json:"email"`
	} `json:"user"`
}

// decodeUserID prefers the document id over the public id.
func decodeUserID(body []byte) (string, error) {
	var me meResponse
	if err := json.Unmarshal(body, &me); err != nil {
		return "", fmt.Errorf("decode auth response: %w", err)
	}
	if id := strings.TrimSpace(me.User.OID); id != "" {
		return id, nil
	}
	if id := strings.TrimSpace(me.User.ID); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("%w: user without id", ErrInvalidToken)
}
