package clients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/nvoloshyn/placedesk/services/console-service/internal/upgrade"
)

// PlacesClient reads the places directory over HTTP.
type PlacesClient struct {
	baseURL string
	http    *http.Client
}

func NewPlacesClient(baseURL string, timeout time.Duration) *PlacesClient {
	return &PlacesClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPClient(timeout),
	}
}

func (c *PlacesClient) ListOwned(ctx context.Context, accountID string) ([]upgrade.Place, error) {
	req, err := newRequest(ctx, http.MethodGet, c.baseURL+"/api/v1/places", nil)
	if err != nil {
		return nil, err
	}
	if accountID != "" {
		req.Header.Set("X-Account-Id", accountID)
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
		Places []struct {
			ID           string `json:"id"`
			Name         string `json:"name"`
			LocationType string `json:"location_type"`
		} `json:"places"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	places := make([]upgrade.Place, 0, len(body.Places))
	for _, p := range body.Places {
		places = append(places, upgrade.Place{ID: p.ID, Name: p.Name, LocationType: p.LocationType})
	}
	return places, nil
}
