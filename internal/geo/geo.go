// Package geo has the great-circle helpers shared by clustering and offer synthesis.
package geo

import "math"

const EarthRadiusKm = 6371.0

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// HaversineKm is the great-circle distance between two points in kilometres.
func HaversineKm(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Centroid is the arithmetic mean of the points. Good enough at city scale.
func Centroid(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}
	var c Point
	for _, p := range points {
		c.Lat += p.Lat
		c.Lng += p.Lng
	}
	c.Lat /= float64(len(points))
	c.Lng /= float64(len(points))
	return c
}

// Offset moves p by north/east kilometres.
func Offset(p Point, northKm, eastKm float64) Point {
	dLat := northKm / EarthRadiusKm * 180 / math.Pi
	dLng := eastKm / (EarthRadiusKm * math.Cos(p.Lat*math.Pi/180)) * 180 / math.Pi
	return Point{Lat: p.Lat + dLat, Lng: p.Lng + dLng}
}

// Bearing names the compass direction from origin to p, or "Central" when they are close.
func Bearing(origin, p Point, centralKm float64) string {
	if HaversineKm(origin, p) <= centralKm {
		return "Central"
	}
	dy := p.Lat - origin.Lat
	dx := (p.Lng - origin.Lng) * math.Cos(origin.Lat*math.Pi/180)
	angle := math.Atan2(dx, dy) * 180 / math.Pi
	if angle < 0 {
		angle += 360
	}
	names := []string{"North", "North-East", "East", "South-East", "South", "South-West", "West", "North-West"}
	return names[int((angle+22.5)/45)%8]
}
