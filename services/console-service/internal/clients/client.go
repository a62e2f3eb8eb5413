package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nvoloshyn/placedesk/libs/httpx"
	"github.com/nvoloshyn/placedesk/services/console-service/internal/upgrade"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Identity is the caller the console acts on behalf of. It travels on the
// request context and becomes headers on every upstream call, mirroring
// what the gateway injects at the edge.
type Identity struct {
	UserID    string
	AccountID string
	Role      string
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFrom(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}

type Config struct {
	PlacesBaseURL   string
	BillingBaseURL  string
	FeaturesBaseURL string
	Timeout         time.Duration
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

func newRequest(ctx context.Context, method, url string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	id := IdentityFrom(ctx)
	if id.UserID != "" {
		req.Header.Set("X-User-Id", id.UserID)
	}
	if id.AccountID != "" {
		req.Header.Set("X-Account-Id", id.AccountID)
	}
	if id.Role != "" {
		req.Header.Set("X-Role", id.Role)
	}
	if rid := httpx.RequestIDFromContext(ctx); rid != "" {
		req.Header.Set(httpx.RequestIDHeader, rid)
	}
	return req, nil
}

func do(client *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", upgrade.ErrUnavailable, err)
	}
	return resp, nil
}

// errorMessage extracts the {"error": ...} body from a failed response,
// falling back to the raw body and finally the status text.
func errorMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	if msg := strings.TrimSpace(string(raw)); msg != "" {
		return msg
	}
	return http.StatusText(resp.StatusCode)
}
