package clients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nvoloshyn/placedesk/services/console-service/internal/upgrade"
)

// BillingClient changes and reads place subscriptions over HTTP.
type BillingClient struct {
	baseURL string
	http    *http.Client
}

func NewBillingClient(baseURL string, timeout time.Duration) *BillingClient {
	return &BillingClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPClient(timeout),
	}
}

func (c *BillingClient) ChangePlan(ctx context.Context, placeID, plan string, featureToEnable upgrade.Feature) error {
	payload := map[string]string{
		"place_id": placeID,
		"plan":     plan,
	}
	if featureToEnable != "" {
		payload["feature_to_enable"] = string(featureToEnable)
	}
	req, err := newRequest(ctx, http.MethodPost, c.baseURL+"/api/v1/billing/plan", payload)
	if err != nil {
		return err
	}
	resp, err := do(c.http, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// The server message is surfaced to the user verbatim.
		return errors.New(errorMessage(resp))
	}
	return nil
}

func (c *BillingClient) GetStatus(ctx context.Context, placeID string) (upgrade.SubscriptionStatus, error) {
	u := c.baseURL + "/api/v1/billing/subscription?place_id=" + url.QueryEscape(placeID)
	req, err := newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return upgrade.SubscriptionOther, err
	}
	resp, err := do(c.http, req)
	if err != nil {
		return upgrade.SubscriptionOther, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return upgrade.SubscriptionOther, errors.New(errorMessage(resp))
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return upgrade.SubscriptionOther, err
	}
	switch body.Status {
	case "none", "":
		return upgrade.SubscriptionNone, nil
	case "trialing":
		return upgrade.SubscriptionTrialing, nil
	case "active":
		return upgrade.SubscriptionActive, nil
	default:
		return upgrade.SubscriptionOther, nil
	}
}
