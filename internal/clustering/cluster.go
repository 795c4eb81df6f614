// Package clustering groups hotel offers by geography and by nightly price.
// Clusters reference offers without owning them and are recomputed per call.
package clustering

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/example/tripthesia-aggregator/internal/geo"
	"github.com/example/tripthesia-aggregator/internal/models"
)

// Options bound the clusters a strategy may produce.
type Options struct {
	MaxClusters         int     `json:"maxClusters"`
	MinHotelsPerCluster int     `json:"minHotelsPerCluster"`
	MaxRadiusKm         float64 `json:"maxRadiusKm"`
	// MinPoints is the density threshold for DBSCAN; defaults to MinHotelsPerCluster.
	MinPoints int   `json:"minPoints,omitempty"`
	Seed      int64 `json:"seed,omitempty"`
}

func DefaultOptions() Options {
	return Options{MaxClusters: 5, MinHotelsPerCluster: 2, MaxRadiusKm: 5, Seed: 42}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxClusters <= 0 {
		o.MaxClusters = d.MaxClusters
	}
	if o.MinHotelsPerCluster <= 0 {
		o.MinHotelsPerCluster = d.MinHotelsPerCluster
	}
	if o.MaxRadiusKm <= 0 {
		o.MaxRadiusKm = d.MaxRadiusKm
	}
	if o.MinPoints <= 0 {
		o.MinPoints = o.MinHotelsPerCluster
	}
	return o
}

// Assigner partitions points into groups of indexes. Points left out of every group are noise.
type Assigner interface {
	Assign(points []geo.Point, opts Options) [][]int
}

// StrategyByName resolves "kmeans", "dbscan" or "hierarchical".
func StrategyByName(name string) (Assigner, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "kmeans", "k-means", "kmeans++":
		return KMeans{}, nil
	case "dbscan", "density":
		return DBSCAN{}, nil
	case "hierarchical", "agglomerative":
		return Hierarchical{}, nil
	}
	return nil, fmt.Errorf("unknown clustering strategy %q", name)
}

type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type AmenityCount struct {
	Amenity string  `json:"amenity"`
	Count   int     `json:"count"`
	Share   float64 `json:"share"`
}

type Cluster struct {
	ID                 string               `json:"id"`
	Label              string               `json:"label"`
	Centroid           geo.Point            `json:"centroid"`
	RadiusKm           float64              `json:"radiusKm"`
	Size               int                  `json:"size"`
	OfferIDs           []string             `json:"offerIds"`
	PriceRange         PriceRange           `json:"priceRange"`
	AveragePrice       float64              `json:"averagePrice"`
	AverageRating      float64              `json:"averageRating"`
	RatingDistribution map[string]int       `json:"ratingDistribution"`
	Amenities          []AmenityCount       `json:"amenities"`
	Members            []*models.HotelOffer `json:"-"`
}

// Geographic clusters hotels with the configured strategy and applies the radius and
// minimum size rules common to every strategy.
type Geographic struct {
	Strategy Assigner
	Options  Options
}

func NewGeographic(strategy Assigner, opts Options) *Geographic {
	if strategy == nil {
		strategy = KMeans{}
	}
	return &Geographic{Strategy: strategy, Options: opts.withDefaults()}
}

// Cluster returns accepted clusters, largest first. Hotels without coordinates are skipped.
func (g *Geographic) Cluster(hotels []*models.HotelOffer) []Cluster {
	opts := g.Options.withDefaults()
	var located []*models.HotelOffer
	var points []geo.Point
	for _, h := range hotels {
		if h == nil || h.Coordinates == nil {
			continue
		}
		located = append(located, h)
		points = append(points, geo.Point{Lat: h.Coordinates.Lat, Lng: h.Coordinates.Lng})
	}
	if len(points) < opts.MinHotelsPerCluster {
		return nil
	}
	centre := geo.Centroid(points)

	var out []Cluster
	for _, group := range g.Strategy.Assign(points, opts) {
		if len(group) < opts.MinHotelsPerCluster {
			continue
		}
		members := make([]*models.HotelOffer, 0, len(group))
		pts := make([]geo.Point, 0, len(group))
		for _, idx := range group {
			members = append(members, located[idx])
			pts = append(pts, points[idx])
		}
		c := buildCluster(members, pts)
		// RadiusKm is rounded for display; the limit applies to the exact distance
		if Radius(c.Centroid, pts) > opts.MaxRadiusKm {
			continue
		}
		c.Label = label(members, centre, c.Centroid)
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Size != out[j].Size {
			return out[i].Size > out[j].Size
		}
		return out[i].AveragePrice < out[j].AveragePrice
	})
	for i := range out {
		out[i].ID = "cluster-" + strconv.Itoa(i+1)
	}
	return out
}

// Radius is the largest centroid-to-member distance.
func Radius(centroid geo.Point, pts []geo.Point) float64 {
	r := 0.0
	for _, p := range pts {
		r = math.Max(r, geo.HaversineKm(centroid, p))
	}
	return r
}

func buildCluster(members []*models.HotelOffer, pts []geo.Point) Cluster {
	c := Cluster{
		Centroid:           geo.Centroid(pts),
		Size:               len(members),
		Members:            members,
		RatingDistribution: map[string]int{},
		PriceRange:         PriceRange{Min: math.Inf(1), Max: math.Inf(-1)},
	}
	c.RadiusKm = round2(Radius(c.Centroid, pts))
	sumPrice, sumRating := 0.0, 0.0
	for _, h := range members {
		c.OfferIDs = append(c.OfferIDs, h.ID)
		c.PriceRange.Min = math.Min(c.PriceRange.Min, h.NightlyRate)
		c.PriceRange.Max = math.Max(c.PriceRange.Max, h.NightlyRate)
		sumPrice += h.NightlyRate
		sumRating += h.GuestRating
		c.RatingDistribution[strconv.Itoa(h.StarRating)]++
	}
	n := float64(len(members))
	c.AveragePrice = round2(sumPrice / n)
	c.AverageRating = round2(sumRating / n)
	c.Amenities = amenityFrequency(members)
	return c
}

func amenityFrequency(members []*models.HotelOffer) []AmenityCount {
	counts := map[string]int{}
	for _, h := range members {
		seen := map[string]bool{}
		for _, a := range h.Amenities {
			if !seen[a] {
				seen[a] = true
				counts[a]++
			}
		}
	}
	out := make([]AmenityCount, 0, len(counts))
	for a, n := range counts {
		out = append(out, AmenityCount{Amenity: a, Count: n, Share: round2(float64(n) / float64(len(members)))})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Amenity < out[j].Amenity
	})
	return out
}

// label prefers the district most members share, else the compass direction from the centre.
func label(members []*models.HotelOffer, centre, centroid geo.Point) string {
	districts := map[string]int{}
	for _, h := range members {
		if h.District != "" {
			districts[h.District]++
		}
	}
	best, bestN := "", 0
	for d, n := range districts {
		if n > bestN || (n == bestN && d < best) {
			best, bestN = d, n
		}
	}
	if bestN*2 >= len(members) {
		return best
	}
	dir := geo.Bearing(centre, centroid, 1)
	if dir == "Central" {
		return "City Centre"
	}
	return dir + " area"
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
