// Package geomath holds the stateless geometry used by the location
// pipeline. Points are passed as latitude/longitude degrees; conversion to
// orb's lon/lat ordering happens here and nowhere else.
package geomath

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// Point converts latitude/longitude to an orb point.
func Point(lat, lng float64) orb.Point {
	return orb.Point{lng, lat}
}

// Distance returns the great-circle distance in meters.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	return geo.DistanceHaversine(Point(lat1, lng1), Point(lat2, lng2))
}

// Bound is a latitude/longitude rectangle.
type Bound struct {
	MinLat, MinLng float64
	MaxLat, MaxLng float64
}

func (b Bound) orb() orb.Bound {
	return orb.Bound{Min: Point(b.MinLat, b.MinLng), Max: Point(b.MaxLat, b.MaxLng)}
}

// Contains reports whether the point lies inside the bound, edges included.
func (b Bound) Contains(lat, lng float64) bool {
	return b.orb().Contains(Point(lat, lng))
}

// Valid reports whether the bound has non-negative extent.
func (b Bound) Valid() bool {
	return b.MinLat <= b.MaxLat && b.MinLng <= b.MaxLng
}

// BoundAround returns the smallest bound covering a circle of radius meters.
func BoundAround(lat, lng, radius float64) Bound {
	ob := geo.NewBoundAroundPoint(Point(lat, lng), radius)
	return Bound{
		MinLat: ob.Min.Lat(), MinLng: ob.Min.Lon(),
		MaxLat: ob.Max.Lat(), MaxLng: ob.Max.Lon(),
	}
}

// Offset returns the point distance meters away along bearing degrees.
func Offset(lat, lng, bearing, distance float64) (float64, float64) {
	p := geo.PointAtBearingAndDistance(Point(lat, lng), bearing, distance)
	return p.Lat(), p.Lon()
}

// Movement classifies the delta between two consecutive fixes.
type Movement int

const (
	MovementNoise Movement = iota
	MovementSignificant
)

func (m Movement) String() string {
	if m == MovementSignificant {
		return "significant"
	}
	return "noise"
}

// ClassifyMovement labels a delta as noise when it falls below threshold.
func ClassifyMovement(delta, threshold float64) Movement {
	if delta < threshold {
		return MovementNoise
	}
	return MovementSignificant
}

// Center is a search center for a radius query.
type Center struct {
	Lat, Lng float64
}

// SearchCenters tiles b with circle centers so that circles of the given
// radius cover the whole bound. Adjacent circles overlap, so the stations
// they return overlap too.
func SearchCenters(b Bound, radius float64) []Center {
	if !b.Valid() || radius <= 0 {
		return nil
	}
	// Slightly smaller than the square inscribed in each circle so that
	// projection error never opens a gap between tiles.
	step := radius * math.Sqrt2 * 0.95

	var centers []Center
	lat := b.MinLat
	for {
		lng := b.MinLng
		for {
			cLat, cLng := Offset(lat, lng, 45, step/math.Sqrt2)
			centers = append(centers, Center{Lat: cLat, Lng: cLng})
			_, next := Offset(lat, lng, 90, step)
			if next >= b.MaxLng {
				break
			}
			lng = next
		}
		next, _ := Offset(lat, b.MinLng, 0, step)
		if next >= b.MaxLat {
			break
		}
		lat = next
	}
	return centers
}
