package deals

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/example/tripthesia-aggregator/internal/models"
)

const (
	DefaultWindow = 90 * 24 * time.Hour
	week          = 7 * 24 * time.Hour
	// history length at which confidence stops growing
	fullConfidencePoints = 30
	trendThreshold       = 0.05
)

type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendStable  Trend = "stable"
)

// HistoryKey identifies one priced item as seen through one provider.
type HistoryKey struct {
	Service  models.ServiceType `json:"service"`
	Provider string             `json:"provider"`
	Route    string             `json:"route"`
}

// KeyFor derives the history key of an offer.
func KeyFor(o models.Offer) HistoryKey {
	c := o.Core()
	return HistoryKey{Service: c.Service, Provider: c.Provider, Route: o.Route()}
}

type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Available bool      `json:"available"`
	// Demand is a provider hint in [0,1]; zero when unknown.
	Demand float64 `json:"demand,omitempty"`
}

type Stats struct {
	Count      int     `json:"count"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Mean       float64 `json:"mean"`
	Median     float64 `json:"median"`
	StdDev     float64 `json:"stdDev"`
	Volatility float64 `json:"volatility"`
	Trend      Trend   `json:"trend"`
	Confidence float64 `json:"confidence"`
}

// Record is a snapshot of the price history of one key.
type Record struct {
	Key       HistoryKey   `json:"key"`
	Points    []PricePoint `json:"points"`
	Stats     Stats        `json:"stats"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// HistoryStore keeps a rolling window of price points per key for the process lifetime.
type HistoryStore struct {
	mu      sync.RWMutex
	records map[HistoryKey]*Record
	window  time.Duration
	now     func() time.Time
}

func NewHistoryStore(window time.Duration) *HistoryStore {
	if window <= 0 {
		window = DefaultWindow
	}
	return &HistoryStore{
		records: make(map[HistoryKey]*Record),
		window:  window,
		now:     time.Now,
	}
}

// Append inserts points in timestamp order, prunes the window and recomputes the stats.
func (h *HistoryStore) Append(key HistoryKey, points ...PricePoint) Record {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec, ok := h.records[key]
	if !ok {
		rec = &Record{Key: key}
		h.records[key] = rec
	}
	for _, p := range points {
		if p.Price < 0 {
			continue
		}
		p.Timestamp = p.Timestamp.UTC()
		i := sort.Search(len(rec.Points), func(i int) bool { return rec.Points[i].Timestamp.After(p.Timestamp) })
		rec.Points = append(rec.Points, PricePoint{})
		copy(rec.Points[i+1:], rec.Points[i:])
		rec.Points[i] = p
	}
	if n := len(rec.Points); n > 0 {
		cutoff := rec.Points[n-1].Timestamp.Add(-h.window)
		drop := sort.Search(n, func(i int) bool { return !rec.Points[i].Timestamp.Before(cutoff) })
		rec.Points = append(rec.Points[:0], rec.Points[drop:]...)
	}
	rec.UpdatedAt = h.now().UTC()
	rec.Stats = computeStats(rec.Points, rec.UpdatedAt)
	return snapshot(rec)
}

func (h *HistoryStore) Get(key HistoryKey) (Record, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rec, ok := h.records[key]
	if !ok {
		return Record{Key: key}, false
	}
	return snapshot(rec), true
}

// Len reports how many keys are tracked.
func (h *HistoryStore) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

func snapshot(r *Record) Record {
	out := *r
	out.Points = append([]PricePoint(nil), r.Points...)
	return out
}

func computeStats(points []PricePoint, now time.Time) Stats {
	n := len(points)
	if n == 0 {
		return Stats{Trend: TrendStable}
	}
	vals := prices(points)
	mean := average(vals)

	variance := 0.0
	for _, v := range vals {
		d := v - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(n))

	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	// summation error must not push the mean outside the observed range
	mean = math.Min(math.Max(mean, sorted[0]), sorted[n-1])

	s := Stats{
		Count:  n,
		Min:    sorted[0],
		Max:    sorted[n-1],
		Mean:   mean,
		Median: median,
		StdDev: std,
		Trend:  trend(points),
	}
	if mean > 0 {
		s.Volatility = std / mean
	}
	s.Confidence = math.Min(1, float64(n)/fullConfidencePoints) * recency(points[n-1].Timestamp, now)
	return s
}

// trend compares the last 7 days with the 7 days before them. Sparse histories fall
// back to comparing the last 7 points with the 7 before them.
func trend(points []PricePoint) Trend {
	if len(points) < 2 {
		return TrendStable
	}
	last := points[len(points)-1].Timestamp
	var recent, prior []float64
	for _, p := range points {
		switch {
		case !p.Timestamp.Before(last.Add(-week)):
			recent = append(recent, p.Price)
		case !p.Timestamp.Before(last.Add(-2 * week)):
			prior = append(prior, p.Price)
		}
	}
	if len(recent) == 0 || len(prior) == 0 {
		n := len(points)
		k := min(7, n/2)
		recent, prior = prices(points[n-k:]), prices(points[max(0, n-2*k):n-k])
	}
	r, p := average(recent), average(prior)
	if p == 0 {
		return TrendStable
	}
	switch change := (r - p) / p; {
	case change > trendThreshold:
		return TrendRising
	case change < -trendThreshold:
		return TrendFalling
	}
	return TrendStable
}

// recency decays from 1 for a point observed within a day to 0.2 after a month.
func recency(last, now time.Time) float64 {
	age := now.Sub(last)
	if age <= 24*time.Hour {
		return 1
	}
	return math.Max(0.2, 1-age.Hours()/(30*24))
}

func prices(points []PricePoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Price
	}
	return out
}

func average(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// trailingAverage averages the points of the 7 days up to at, or the last 7 points
// when none fall inside that window.
func trailingAverage(points []PricePoint, at time.Time) float64 {
	var vals []float64
	for _, p := range points {
		if !p.Timestamp.After(at) && !p.Timestamp.Before(at.Add(-week)) {
			vals = append(vals, p.Price)
		}
	}
	if len(vals) == 0 {
		for _, p := range points[max(0, len(points)-7):] {
			vals = append(vals, p.Price)
		}
	}
	return average(vals)
}
