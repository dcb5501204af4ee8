package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/playperu/chargehunt/internal/chargehunt"
)

// HTTPProvider queries a JSON endpoint:
//
//	GET <base>?lat=..&lng=..&radius=..&offset=..&limit=..
//	{"stations": [{"id": "SE_1", "lat": 59.3, "lng": 18.0, "name": "...", "operator": "..."}]}
type HTTPProvider struct {
	base   *url.URL
	client *http.Client
}

func NewHTTPProvider(baseURL string, client *http.Client) (*HTTPProvider, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing provider url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("provider url %q: unsupported scheme", baseURL)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPProvider{base: u, client: client}, nil
}

func (p *HTTPProvider) FetchStations(ctx context.Context, q Query) ([]chargehunt.Station, error) {
	u := *p.base
	params := u.Query()
	params.Set("lat", strconv.FormatFloat(q.Latitude, 'f', -1, 64))
	params.Set("lng", strconv.FormatFloat(q.Longitude, 'f', -1, 64))
	params.Set("radius", strconv.FormatFloat(q.Radius, 'f', 0, 64))
	params.Set("offset", strconv.Itoa(q.Offset))
	params.Set("limit", strconv.Itoa(q.Limit))
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching stations: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		Stations []record `json:"stations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding stations: %w", err)
	}

	out := make([]chargehunt.Station, 0, len(payload.Stations))
	for _, r := range payload.Stations {
		if r.ID == "" {
			continue
		}
		out = append(out, r.station())
	}
	return out, nil
}
