package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/playperu/chargehunt/internal/catalog"
	"github.com/playperu/chargehunt/internal/chargehunt"
	"github.com/playperu/chargehunt/internal/geomath"
)

type StationsResponse struct {
	Stations []chargehunt.Station `json:"stations"`
	Total    int                  `json:"total"`
}

const maxQueryRadius = 50_000

// handleStations lists catalog stations inside ?bbox=minLat,minLng,maxLat,maxLng
// or within ?lat=&lng=&radius= meters. ?format=geojson returns a
// FeatureCollection for map clients.
func handleStations(cat *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var (
			b   geomath.Bound
			err error
		)
		switch {
		case q.Get("bbox") != "":
			b, err = parseBBox(q.Get("bbox"))
		case q.Get("lat") != "" && q.Get("lng") != "":
			b, err = parseRadius(q.Get("lat"), q.Get("lng"), q.Get("radius"))
		default:
			err = fmt.Errorf("bbox or lat/lng is required")
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		stations := cat.Within(b)
		if q.Get("format") == "geojson" {
			w.Header().Set("Content-Type", "application/geo+json")
			w.WriteHeader(http.StatusOK)
			w.Write(featureCollection(stations))
			return
		}
		writeJSON(w, http.StatusOK, StationsResponse{Stations: stations, Total: cat.Len()})
	}
}

func parseBBox(raw string) (geomath.Bound, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return geomath.Bound{}, fmt.Errorf("bbox must be minLat,minLng,maxLat,maxLng")
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geomath.Bound{}, fmt.Errorf("bbox: invalid number %q", p)
		}
		v[i] = f
	}
	b := geomath.Bound{MinLat: v[0], MinLng: v[1], MaxLat: v[2], MaxLng: v[3]}
	if !b.Valid() {
		return geomath.Bound{}, fmt.Errorf("bbox: min exceeds max")
	}
	return b, nil
}

func parseRadius(latRaw, lngRaw, radiusRaw string) (geomath.Bound, error) {
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil || lat < -90 || lat > 90 {
		return geomath.Bound{}, fmt.Errorf("invalid lat")
	}
	lng, err := strconv.ParseFloat(lngRaw, 64)
	if err != nil || lng < -180 || lng > 180 {
		return geomath.Bound{}, fmt.Errorf("invalid lng")
	}
	radius := 1000.0
	if radiusRaw != "" {
		radius, err = strconv.ParseFloat(radiusRaw, 64)
		if err != nil || radius <= 0 || radius > maxQueryRadius {
			return geomath.Bound{}, fmt.Errorf("radius must be between 0 and %d meters", maxQueryRadius)
		}
	}
	return geomath.BoundAround(lat, lng, radius), nil
}

func featureCollection(stations []chargehunt.Station) []byte {
	fc := geojson.NewFeatureCollection()
	for _, s := range stations {
		f := geojson.NewFeature(geomath.Point(s.Latitude, s.Longitude))
		f.ID = s.ExternalID
		f.Properties["displayName"] = s.DisplayName
		f.Properties["operator"] = s.Operator
		for k, v := range s.Metadata {
			f.Properties[k] = v
		}
		fc.Append(f)
	}
	data, _ := fc.MarshalJSON()
	return data
}
