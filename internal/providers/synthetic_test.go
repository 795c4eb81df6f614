package providers_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/example/tripthesia-aggregator/internal/geo"
	"github.com/example/tripthesia-aggregator/internal/models"
	"github.com/example/tripthesia-aggregator/internal/providers"
)

func fixedClock() time.Time { return time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC) }

func TestSynthetic_DeterministicPerQuery(t *testing.T) {
	s := providers.NewSynthetic(nil).WithClock(fixedClock)
	q := hotelQuery()

	a, err := s.Generate(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Generate(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("expected identical inventory for identical queries")
	}

	q.Dates.End = "2025-12-05"
	c, _ := s.Generate(context.Background(), q)
	if bytes.Equal(a, c) {
		t.Fatal("expected different inventory for a different query")
	}
}

func TestSynthetic_Counts(t *testing.T) {
	s := providers.NewSynthetic(nil).WithClock(fixedClock)
	cases := []struct {
		q    models.SearchQuery
		want int
	}{
		{models.SearchQuery{Service: models.ServiceFlight, Origin: models.Location{Code: "JFK"}, Destination: models.Location{Code: "LAX"}, Dates: models.DateRange{Start: "2025-12-01"}, Party: models.Party{Adults: 1}}, 10},
		{hotelQuery(), 15},
		{models.SearchQuery{Service: models.ServiceTransport, Origin: models.Location{Name: "Paris"}, Destination: models.Location{Name: "Lyon"}, Dates: models.DateRange{Start: "2025-12-01"}, Party: models.Party{Adults: 2}}, 6},
		{models.SearchQuery{Service: models.ServiceCarRental, Origin: models.Location{Name: "Nice"}, Dates: models.DateRange{Start: "2025-12-01", End: "2025-12-04"}, Party: models.Party{Adults: 2}}, 8},
	}
	for _, tc := range cases {
		t.Run(string(tc.q.Service), func(t *testing.T) {
			resp := s.Inventory(tc.q)
			if got := resp.Len(tc.q.Service); got != tc.want {
				t.Fatalf("expected %d items, got %d", tc.want, got)
			}
		})
	}
}

func TestSynthetic_HotelsNearDestination(t *testing.T) {
	s := providers.NewSynthetic(nil).WithClock(fixedClock)
	q := hotelQuery()
	center := geo.Point{Lat: q.Destination.Coordinates.Lat, Lng: q.Destination.Coordinates.Lng}
	for _, h := range s.Inventory(q).Hotels {
		if h.Lat == nil || h.Lng == nil {
			t.Fatalf("hotel %s has no coordinates", h.HotelID)
		}
		if d := geo.HaversineKm(center, geo.Point{Lat: *h.Lat, Lng: *h.Lng}); d > 15 {
			t.Errorf("hotel %s is %.1f km from the destination", h.HotelID, d)
		}
		if h.PricePerNight <= 0 || h.Stars < 1 || h.Stars > 5 {
			t.Errorf("implausible hotel %+v", h)
		}
	}
}

func TestSynthetic_RespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := providers.NewSynthetic(nil).Generate(ctx, hotelQuery()); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
