package clients

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nvoloshyn/placedesk/services/console-service/internal/upgrade"
)

// FeaturesClient writes feature toggles over HTTP and classifies plan-gating
// rejections.
type FeaturesClient struct {
	baseURL string
	http    *http.Client
}

func NewFeaturesClient(baseURL string, timeout time.Duration) *FeaturesClient {
	return &FeaturesClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPClient(timeout),
	}
}

func (c *FeaturesClient) SetFeature(ctx context.Context, placeID string, feature upgrade.Feature, enabled bool) error {
	payload := map[string]any{
		"place_id": placeID,
		"feature":  string(feature),
		"enabled":  enabled,
	}
	req, err := newRequest(ctx, http.MethodPut, c.baseURL+"/api/v1/features", payload)
	if err != nil {
		return err
	}
	resp, err := do(c.http, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return classifyRejection(resp)
}

// ListFeatures returns the current toggle states for a place.
func (c *FeaturesClient) ListFeatures(ctx context.Context, placeID string) (map[string]bool, error) {
	req, err := newRequest(ctx, http.MethodGet, c.baseURL+"/api/v1/features?place_id="+url.QueryEscape(placeID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := do(c.http, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errorMessage(resp))
	}
	var body struct {
		Features map[string]bool `json:"features"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Features, nil
}

// classifyRejection maps a failed toggle response to the error taxonomy.
// The structured plan_required code is canonical; the legacy message-prefix
// scheme is recognized for servers that predate it.
func classifyRejection(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Code         string `json:"code"`
		Feature      string `json:"feature"`
		RequiredTier string `json:"required_tier"`
		Error        string `json:"error"`
	}
	_ = json.Unmarshal(raw, &body)

	if body.Code == "plan_required" {
		return &upgrade.GatingError{
			Feature:      upgrade.Feature(body.Feature),
			RequiredTier: body.RequiredTier,
			Message:      body.Error,
		}
	}
	if gate, ok := upgrade.GatingFromMessage(body.Error); ok {
		return gate
	}
	if body.Error != "" {
		return errors.New(body.Error)
	}
	if msg := strings.TrimSpace(string(raw)); msg != "" {
		return errors.New(msg)
	}
	return errors.New(http.StatusText(resp.StatusCode))
}
