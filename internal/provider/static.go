package provider

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/playperu/chargehunt/internal/chargehunt"
	"github.com/playperu/chargehunt/internal/geomath"
)

// StaticProvider serves stations from a YAML seed file. It answers radius
// queries the same way a remote provider would, so the sync pipeline can
// run against it unchanged.
type StaticProvider struct {
	stations []chargehunt.Station
}

func NewStaticProvider(stations []chargehunt.Station) *StaticProvider {
	s := slices.Clone(stations)
	slices.SortFunc(s, func(a, b chargehunt.Station) int {
		return strings.Compare(a.ExternalID, b.ExternalID)
	})
	return &StaticProvider{stations: s}
}

// LoadStaticProvider reads a seed file of the form:
//
//	stations:
//	  - { id: SE_1, lat: 59.33, lng: 18.07, name: Sergels torg, operator: Vattenfall }
func LoadStaticProvider(path string) (*StaticProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	var seed struct {
		Stations []record `yaml:"stations"`
	}
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parsing seed file %s: %w", path, err)
	}

	stations := make([]chargehunt.Station, 0, len(seed.Stations))
	for i, r := range seed.Stations {
		if r.ID == "" {
			return nil, fmt.Errorf("seed file %s: station %d has no id", path, i)
		}
		stations = append(stations, r.station())
	}
	return NewStaticProvider(stations), nil
}

func (p *StaticProvider) FetchStations(ctx context.Context, q Query) ([]chargehunt.Station, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var hits []chargehunt.Station
	for _, s := range p.stations {
		if geomath.Distance(q.Latitude, q.Longitude, s.Latitude, s.Longitude) <= q.Radius {
			hits = append(hits, s)
		}
	}

	if q.Offset >= len(hits) {
		return nil, nil
	}
	hits = hits[q.Offset:]
	if q.Limit > 0 && q.Limit < len(hits) {
		hits = hits[:q.Limit]
	}
	return hits, nil
}
