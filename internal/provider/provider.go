// Package provider adapts external station sources to the catalog's
// normalized station list. Providers make no promise that consecutive
// pages are disjoint.
package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/playperu/chargehunt/internal/chargehunt"
)

// Query asks for one page of stations around a center.
type Query struct {
	Latitude  float64
	Longitude float64
	Radius    float64 // meters
	Offset    int
	Limit     int
}

type Provider interface {
	FetchStations(ctx context.Context, q Query) ([]chargehunt.Station, error)
}

// StatusError is returned for a non-2xx provider response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("provider responded %d", e.StatusCode)
	}
	return fmt.Sprintf("provider responded %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether retrying the same request may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout
}

// record is the wire and seed-file shape of a station.
type record struct {
	ID       string            `json:"id" yaml:"id"`
	Lat      float64           `json:"lat" yaml:"lat"`
	Lng      float64           `json:"lng" yaml:"lng"`
	Name     string            `json:"name" yaml:"name"`
	Operator string            `json:"operator" yaml:"operator"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

func (r record) station() chargehunt.Station {
	return chargehunt.Station{
		ExternalID:  r.ID,
		Latitude:    r.Lat,
		Longitude:   r.Lng,
		DisplayName: r.Name,
		Operator:    r.Operator,
		Metadata:    r.Metadata,
	}
}
