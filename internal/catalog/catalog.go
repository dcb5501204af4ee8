// Package catalog keeps the deduplicated set of known charging stations.
//
// Stations are keyed by the provider-assigned external ID. Every batch
// merge is applied under the write lock, so readers observe either the
// catalog before a batch or after it, never a partial batch.
package catalog

import (
	"maps"
	"sort"
	"sync"

	"github.com/playperu/chargehunt/internal/chargehunt"
	"github.com/playperu/chargehunt/internal/geomath"
)

// MergeResult summarizes one batch merge.
type MergeResult struct {
	Added     int `json:"added"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`

	// Changed holds the stored form of every added or updated station.
	Changed []chargehunt.Station `json:"-"`
}

type Catalog struct {
	mu       sync.RWMutex
	stations map[string]chargehunt.Station
}

func New() *Catalog {
	return &Catalog{stations: make(map[string]chargehunt.Station)}
}

// Merge upserts a batch. Unknown IDs are inserted, known IDs have their
// descriptive fields overwritten. Entries without an ID are skipped. An ID
// repeated within the batch is merged once, from its last entry.
func (c *Catalog) Merge(batch []chargehunt.Station) MergeResult {
	var res MergeResult

	last := make(map[string]int, len(batch))
	for i, s := range batch {
		last[s.ExternalID] = i
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i, s := range batch {
		if s.ExternalID == "" || last[s.ExternalID] != i {
			continue
		}
		s = clone(s)

		prev, ok := c.stations[s.ExternalID]
		switch {
		case !ok:
			res.Added++
		case equal(prev, s):
			res.Unchanged++
			continue
		default:
			res.Updated++
		}
		c.stations[s.ExternalID] = s
		res.Changed = append(res.Changed, clone(s))
	}
	return res
}

func (c *Catalog) Get(id string) (chargehunt.Station, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.stations[id]
	if !ok {
		return chargehunt.Station{}, false
	}
	return clone(s), true
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.stations)
}

// Snapshot returns every station ordered by external ID.
func (c *Catalog) Snapshot() []chargehunt.Station {
	return c.filter(func(chargehunt.Station) bool { return true })
}

// Within returns the stations inside b ordered by external ID.
func (c *Catalog) Within(b geomath.Bound) []chargehunt.Station {
	return c.filter(func(s chargehunt.Station) bool {
		return b.Contains(s.Latitude, s.Longitude)
	})
}

func (c *Catalog) filter(keep func(chargehunt.Station) bool) []chargehunt.Station {
	c.mu.RLock()
	out := make([]chargehunt.Station, 0, len(c.stations))
	for _, s := range c.stations {
		if keep(s) {
			out = append(out, clone(s))
		}
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out
}

func clone(s chargehunt.Station) chargehunt.Station {
	if s.Metadata != nil {
		s.Metadata = maps.Clone(s.Metadata)
	}
	return s
}

func equal(a, b chargehunt.Station) bool {
	return a.ExternalID == b.ExternalID &&
		a.Latitude == b.Latitude &&
		a.Longitude == b.Longitude &&
		a.DisplayName == b.DisplayName &&
		a.Operator == b.Operator &&
		maps.Equal(a.Metadata, b.Metadata)
}
