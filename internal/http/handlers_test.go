package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/example/tripthesia-aggregator/internal/clustering"
	"github.com/example/tripthesia-aggregator/internal/deals"
	ht "github.com/example/tripthesia-aggregator/internal/http"
	mid "github.com/example/tripthesia-aggregator/internal/middleware"
	"github.com/example/tripthesia-aggregator/internal/models"
	"github.com/example/tripthesia-aggregator/internal/obs"
	"github.com/example/tripthesia-aggregator/internal/routes"
	"github.com/example/tripthesia-aggregator/internal/search"
	"github.com/example/tripthesia-aggregator/internal/trip"
)

// ------------------------ MOCKS ------------------------
type mockEngine struct {
	searchFunc func(ctx context.Context, q models.SearchQuery) (search.SearchResult, error)
	last       models.SearchQuery
}

func (m *mockEngine) Search(ctx context.Context, q models.SearchQuery) (search.SearchResult, error) {
	m.last = q
	return m.searchFunc(ctx, q)
}

type mockTrips struct {
	searchFunc func(ctx context.Context, req models.TripRequest) (trip.Result, error)
}

func (m *mockTrips) Search(ctx context.Context, req models.TripRequest) (trip.Result, error) {
	return m.searchFunc(ctx, req)
}

type mockAlerts struct{ called bool }

func (m *mockAlerts) ServeWS(w http.ResponseWriter, r *http.Request, userID string) error {
	m.called = true
	return nil
}

// -------------------------------------------------------

type fixture struct {
	engine *mockEngine
	trips  *mockTrips
	alerts *mockAlerts
	router http.Handler
}

func newFixture(t *testing.T, rl *mid.IPRateLimiter) *fixture {
	t.Helper()
	f := &fixture{
		engine: &mockEngine{searchFunc: func(ctx context.Context, q models.SearchQuery) (search.SearchResult, error) {
			return search.SearchResult{Offers: hotels(), Meta: search.Meta{Service: q.Service}}, nil
		}},
		trips: &mockTrips{searchFunc: func(ctx context.Context, req models.TripRequest) (trip.Result, error) {
			return trip.Result{Results: map[models.ServiceType]*search.SearchResult{}}, nil
		}},
		alerts: &mockAlerts{},
	}
	detector := deals.NewDetector(deals.Options{
		Now: func() time.Time { return time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC) },
	})
	h := ht.NewHandler(ht.Deps{
		Engine:     f.engine,
		Trips:      f.trips,
		Deals:      detector,
		Alerts:     f.alerts,
		Clustering: clustering.DefaultOptions(),
		Strategy:   "kmeans",
		BudgetBand: 100,
		LuxuryBand: 300,
	})
	metrics := obs.NewMetrics(prometheus.NewRegistry())
	f.router = routes.GetRoutes(h, metrics, obs.NewLogger("error", true), routes.Options{
		RequestTimeout: time.Second,
		RateLimiter:    rl,
	})
	return f
}

func hotels() []models.Offer {
	mk := func(id string, rate, lat float64) models.Offer {
		return &models.HotelOffer{
			OfferCore: models.OfferCore{
				ID: id, Service: models.ServiceHotel, Provider: "staybook",
				Price: models.Price{Amount: rate * 2, Currency: "USD"},
			},
			HotelID:     id,
			Coordinates: &models.Coordinates{Lat: lat, Lng: -9.14},
			NightlyRate: rate,
			GuestRating: 8,
		}
	}
	return []models.Offer{
		mk("H1", 80, 38.710), mk("H2", 90, 38.711),
		mk("H3", 200, 38.760), mk("H4", 350, 38.761),
	}
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "1.2.3.4:1234"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON %q: %v", w.Body.String(), err)
	}
	return out
}

func TestHandler_Search_Positive(t *testing.T) {
	f := newFixture(t, nil)
	w := do(t, f.router, http.MethodPost, "/v1/search/hotel", map[string]any{
		"destination": map[string]any{"name": "Lisbon"},
		"dates":       map[string]any{"start": "2025-11-20", "end": "2025-11-22"},
		"party":       map[string]any{"adults": 2},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}
	if f.engine.last.Service != models.ServiceHotel || f.engine.last.Destination.Name != "Lisbon" {
		t.Errorf("unexpected query %+v", f.engine.last)
	}
	if offers := decode(t, w)["offers"].([]any); len(offers) != 4 {
		t.Errorf("expected 4 offers, got %d", len(offers))
	}
}

func TestHandler_Search_Failures(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     any
		err      error
		wantCode int
	}{
		{"UnknownService", "/v1/search/cruise", map[string]any{}, nil, http.StatusNotFound},
		{"MalformedJSON", "/v1/search/hotel", "{", nil, http.StatusBadRequest},
		{"EmptyBody", "/v1/search/hotel", nil, nil, http.StatusBadRequest},
		{"Validation", "/v1/search/hotel", map[string]any{}, &models.ValidationError{Problems: []string{"end date required"}}, http.StatusBadRequest},
		{"NoOffers", "/v1/search/hotel", map[string]any{}, search.ErrNoOffers, http.StatusServiceUnavailable},
		{"Timeout", "/v1/search/hotel", map[string]any{}, context.DeadlineExceeded, http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			if tt.err != nil {
				f.engine.searchFunc = func(ctx context.Context, q models.SearchQuery) (search.SearchResult, error) {
					return search.SearchResult{}, tt.err
				}
			}
			w := do(t, f.router, http.MethodPost, tt.path, tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, w.Code, w.Body)
			}
			out := decode(t, w)
			meta, _ := out["meta"].(map[string]any)
			if out["error"] == "" || meta["request_id"] == "" || meta["request_id"] == nil {
				t.Errorf("error envelope incomplete: %v", out)
			}
		})
	}
}

func TestHandler_Search_ValidationProblemsListed(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.searchFunc = func(ctx context.Context, q models.SearchQuery) (search.SearchResult, error) {
		return search.SearchResult{}, &models.ValidationError{Problems: []string{"a", "b"}}
	}
	w := do(t, f.router, http.MethodPost, "/v1/search/flight", map[string]any{})
	if problems := decode(t, w)["problems"].([]any); len(problems) != 2 {
		t.Fatalf("expected both problems, got %v", problems)
	}
}

func TestHandler_SearchTrip(t *testing.T) {
	f := newFixture(t, nil)
	var got models.TripRequest
	f.trips.searchFunc = func(ctx context.Context, req models.TripRequest) (trip.Result, error) {
		got = req
		return trip.Result{
			Results: map[models.ServiceType]*search.SearchResult{},
			Meta:    trip.Meta{Errors: []trip.ServiceError{{Service: models.ServiceHotel, Code: trip.CodeTimeout}}},
		}, nil
	}
	w := do(t, f.router, http.MethodPost, "/v1/trips/search", map[string]any{
		"userId":   "u1",
		"services": []string{"hotel", "flight"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("branch errors still answer 200, got %d", w.Code)
	}
	if got.UserID != "u1" || len(got.Services) != 2 {
		t.Errorf("request not decoded: %+v", got)
	}
	errs := decode(t, w)["meta"].(map[string]any)["errors"].([]any)
	if len(errs) != 1 || errs[0].(map[string]any)["code"] != "timeout" {
		t.Errorf("unexpected errors %v", errs)
	}
}

func TestHandler_Clusters(t *testing.T) {
	f := newFixture(t, nil)
	w := do(t, f.router, http.MethodPost, "/v1/hotels/clusters", map[string]any{
		"query":    map[string]any{"destination": map[string]any{"name": "Lisbon"}},
		"strategy": "hierarchical",
		"options":  map[string]any{"maxClusters": 2, "minHotelsPerCluster": 2, "maxRadiusKm": 2},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}
	if f.engine.last.Service != models.ServiceHotel {
		t.Errorf("cluster searches are hotel searches, got %s", f.engine.last.Service)
	}
	out := decode(t, w)
	if clusters := out["clusters"].([]any); len(clusters) != 2 {
		t.Errorf("expected two areas, got %d", len(clusters))
	}
	if bands := out["priceBands"].([]any); len(bands) != 3 {
		t.Errorf("expected three price bands, got %d", len(bands))
	}

	for _, body := range []map[string]any{
		{"strategy": "voronoi"},
		{"budgetThreshold": 300, "luxuryThreshold": 100},
	} {
		if w := do(t, f.router, http.MethodPost, "/v1/hotels/clusters", body); w.Code != http.StatusBadRequest {
			t.Errorf("%v: expected 400, got %d", body, w.Code)
		}
	}
}

func TestHandler_AnalyzeDeals(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.searchFunc = func(ctx context.Context, q models.SearchQuery) (search.SearchResult, error) {
		return search.SearchResult{Offers: []models.Offer{&models.HotelOffer{
			OfferCore: models.OfferCore{
				ID: "h1", Service: models.ServiceHotel, Provider: "staybook",
				Price: models.Price{Amount: 120}, OriginalPrice: 200, Flash: true,
			},
			HotelID: "H1",
		}}}, nil
	}
	w := do(t, f.router, http.MethodPost, "/v1/deals/analyze", map[string]any{"userId": "u1", "query": map[string]any{"service": "hotel"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}
	out := decode(t, w)
	found, alerts := out["deals"].([]any), out["alerts"].([]any)
	if len(found) != 1 || found[0].(map[string]any)["type"] != string(deals.FlashSale) {
		t.Fatalf("unexpected deals %v", found)
	}
	if len(alerts) != 1 || alerts[0].(map[string]any)["userId"] != "u1" {
		t.Errorf("unexpected alerts %v", alerts)
	}
}

func TestHandler_History(t *testing.T) {
	f := newFixture(t, nil)
	const query = "/v1/deals/history?service=flight&provider=skyhub&route=JFK-LAX"

	if w := do(t, f.router, http.MethodGet, query, nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown key: expected 404, got %d", w.Code)
	}

	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	w := do(t, f.router, http.MethodPost, "/v1/deals/history", map[string]any{
		"service": "flight", "provider": "skyhub", "route": "JFK-LAX",
		"points": []map[string]any{
			{"timestamp": ts, "price": 100, "available": true},
			{"timestamp": ts.Add(24 * time.Hour), "price": 120, "available": true},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}

	w = do(t, f.router, http.MethodGet, query, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	stats := decode(t, w)["stats"].(map[string]any)
	if stats["count"].(float64) != 2 || stats["mean"].(float64) != 110 {
		t.Errorf("unexpected stats %v", stats)
	}

	bad := []any{
		map[string]any{"service": "flight", "provider": "skyhub", "route": "JFK-LAX"},
		map[string]any{"service": "boat", "provider": "skyhub", "route": "x", "points": []map[string]any{{"timestamp": ts, "price": 1}}},
		map[string]any{"service": "flight", "provider": "skyhub", "route": "x", "points": []map[string]any{{"timestamp": ts, "price": -1}}},
	}
	for _, body := range bad {
		if w := do(t, f.router, http.MethodPost, "/v1/deals/history", body); w.Code != http.StatusBadRequest {
			t.Errorf("%v: expected 400, got %d", body, w.Code)
		}
	}
	if w := do(t, f.router, http.MethodGet, "/v1/deals/history?service=flight", nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing key parts: expected 400, got %d", w.Code)
	}
}

func TestHandler_RateLimit(t *testing.T) {
	f := newFixture(t, mid.NewIPRateLimiter(60, 1))
	body := map[string]any{"userId": "u1"}
	if w := do(t, f.router, http.MethodPost, "/v1/trips/search", body); w.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", w.Code)
	}
	if w := do(t, f.router, http.MethodPost, "/v1/trips/search", body); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w := do(t, f.router, http.MethodGet, "/healthz", nil); w.Code != http.StatusOK {
		t.Fatalf("health checks are not rate limited, got %d", w.Code)
	}
}

func TestHandler_AlertsWS(t *testing.T) {
	f := newFixture(t, nil)
	if w := do(t, f.router, http.MethodGet, "/v1/alerts/ws", nil); w.Code != http.StatusBadRequest || f.alerts.called {
		t.Fatalf("missing user: expected 400, got %d", w.Code)
	}
	do(t, f.router, http.MethodGet, "/v1/alerts/ws?user=u1", nil)
	if !f.alerts.called {
		t.Fatal("expected the subscription to be handed to the alert streamer")
	}
}

func TestHandler_Healthz(t *testing.T) {
	f := newFixture(t, nil)
	w := do(t, f.router, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK || decode(t, w)["status"] != "ok" {
		t.Fatalf("unexpected health answer %d %s", w.Code, w.Body)
	}
}
