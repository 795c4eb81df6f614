package deals

import (
	"math/rand"
	"testing"
	"time"

	"github.com/example/tripthesia-aggregator/internal/models"
)

var (
	t0     = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	jfkLax = HistoryKey{Service: models.ServiceFlight, Provider: "skyhub", Route: "JFK-LAX"}
)

func TestStats_Invariants(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 50; trial++ {
		h := NewHistoryStore(0)
		var rec Record
		n := 1 + rng.Intn(40)
		for i := 0; i < n; i++ {
			rec = h.Append(jfkLax, PricePoint{Timestamp: t0.Add(time.Duration(i) * time.Hour), Price: 50 + rng.Float64()*500})
		}
		s := rec.Stats
		if s.Count != len(rec.Points) {
			t.Fatalf("count %d != %d points", s.Count, len(rec.Points))
		}
		if s.Min > s.Median || s.Median > s.Max || s.Min > s.Mean || s.Mean > s.Max {
			t.Fatalf("ordering violated: %+v", s)
		}
		if s.Volatility < 0 || s.Confidence < 0 || s.Confidence > 1 {
			t.Fatalf("out of range: %+v", s)
		}
	}
}

func TestHistory_PrunesWindowAndOrders(t *testing.T) {
	h := NewHistoryStore(DefaultWindow)
	h.Append(jfkLax,
		PricePoint{Timestamp: t0.Add(-100 * 24 * time.Hour), Price: 300},
		PricePoint{Timestamp: t0, Price: 120},
		PricePoint{Timestamp: t0.Add(-24 * time.Hour), Price: 100},
	)
	rec, ok := h.Get(jfkLax)
	if !ok {
		t.Fatal("expected a record")
	}
	if len(rec.Points) != 2 {
		t.Fatalf("expected the 100-day old point to be pruned, got %d points", len(rec.Points))
	}
	if !rec.Points[0].Timestamp.Before(rec.Points[1].Timestamp) {
		t.Error("points must be time ordered")
	}
	if rec.Stats.Max != 120 || rec.Stats.Median != 110 {
		t.Errorf("unexpected stats %+v", rec.Stats)
	}

	// snapshots are copies
	rec.Points[0].Price = 1
	if again, _ := h.Get(jfkLax); again.Points[0].Price != 100 {
		t.Error("Get must not expose internal state")
	}
}

func TestTrend(t *testing.T) {
	cases := []struct {
		name  string
		early float64
		late  float64
		want  Trend
	}{
		{"rising", 100, 120, TrendRising},
		{"falling", 100, 80, TrendFalling},
		{"stable", 100, 103, TrendStable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var pts []PricePoint
			for d := 13; d >= 0; d-- {
				p := tc.late
				if d >= 7 {
					p = tc.early
				}
				pts = append(pts, PricePoint{Timestamp: t0.Add(-time.Duration(d) * 24 * time.Hour), Price: p})
			}
			if got := trend(pts); got != tc.want {
				t.Errorf("trend = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestConfidence_GrowsWithSamplesAndDecaysWithAge(t *testing.T) {
	few := []PricePoint{{Timestamp: t0, Price: 100}, {Timestamp: t0, Price: 110}}
	if c := computeStats(few, t0).Confidence; c <= 0 || c >= 0.1 {
		t.Errorf("two fresh points: confidence %v", c)
	}
	var many []PricePoint
	for i := 0; i < 30; i++ {
		many = append(many, PricePoint{Timestamp: t0, Price: 100})
	}
	if c := computeStats(many, t0).Confidence; c != 1 {
		t.Errorf("thirty fresh points: confidence %v", c)
	}
	if c := computeStats(many, t0.Add(60*24*time.Hour)).Confidence; c != 0.2 {
		t.Errorf("stale history: confidence %v", c)
	}
}

func TestTrailingAverage_FallsBackToLastPoints(t *testing.T) {
	var pts []PricePoint
	for i := 0; i < 10; i++ {
		pts = append(pts, PricePoint{Timestamp: t0.Add(-30*24*time.Hour + time.Duration(i)*time.Hour), Price: float64(100 + i)})
	}
	// nothing in the last week: average of the final seven points 103..109
	if got := trailingAverage(pts, t0); got != 106 {
		t.Fatalf("trailing average = %v", got)
	}
}
