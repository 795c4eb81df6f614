package search_test

import (
	"context"
	"errors"
	"testing"

	"github.com/example/tripthesia-aggregator/internal/catalog"
	"github.com/example/tripthesia-aggregator/internal/clustering"
	"github.com/example/tripthesia-aggregator/internal/models"
	"github.com/example/tripthesia-aggregator/internal/providers"
	"github.com/example/tripthesia-aggregator/internal/search"
)

type generatorProvider struct {
	gen *providers.Synthetic
}

func (g generatorProvider) Name() string { return "feed" }

func (g generatorProvider) Search(ctx context.Context, q models.SearchQuery) ([]byte, error) {
	return g.gen.Generate(ctx, q)
}

func flightQuery() models.SearchQuery {
	return models.SearchQuery{
		Service:     models.ServiceFlight,
		Origin:      models.Location{Code: "jfk"},
		Destination: models.Location{Code: "lax"},
		Dates:       models.DateRange{Start: "2025-11-20"},
		Party:       models.Party{Adults: 1},
	}
}

func TestService_Search_MergesDuplicateFlights(t *testing.T) {
	seg := `"segments":[{"flightNumber":"AA1234","carrier":"AA","from":"JFK","to":"LAX","departure":"2025-11-20T08:00:00Z","arrival":"2025-11-20T14:00:00Z"}]`
	p1 := &staticProvider{name: "skyhub", payload: `{"flights":[{"id":"F1","price":320,` + seg + `}]}`}
	p2 := &staticProvider{name: "airfinder", payload: `{"flights":[{"id":"X9","price":300,` + seg + `}]}`}

	svc := search.NewService(models.ServiceFlight, newAdapter([]search.Provider{p1, p2}, search.AdapterOptions{}), search.ServiceOptions{})
	res, err := svc.Search(context.Background(), flightQuery())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Offers) != 1 {
		t.Fatalf("expected a single merged offer, got %d", len(res.Offers))
	}
	if got := res.Offers[0].Core().Provider; got != "skyhub" {
		t.Errorf("expected the first observed offer to win, got %s", got)
	}
	if res.Meta.TotalResults != 1 || res.Meta.ProvidersSucceeded != 2 {
		t.Errorf("unexpected meta %+v", res.Meta)
	}
	f := res.Offers[0].(*models.FlightOffer)
	if f.Stops != 0 || f.DurationMinutes != 360 || f.CabinClass != "economy" {
		t.Errorf("unexpected normalized flight %+v", f)
	}
}

func TestService_Search_HotelSideBranches(t *testing.T) {
	gen := providers.NewSynthetic(catalog.Default())
	opts := clustering.DefaultOptions()
	svc := search.NewService(models.ServiceHotel, newAdapter([]search.Provider{generatorProvider{gen}}, search.AdapterOptions{}), search.ServiceOptions{
		Clusterer:       clustering.NewGeographic(clustering.KMeans{}, opts),
		BudgetThreshold: 100,
		LuxuryThreshold: 300,
	})
	q := hotelQuery()
	q.Destination.Coordinates = &models.Coordinates{Lat: 38.7223, Lng: -9.1393}

	res, err := svc.Search(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Offers) == 0 {
		t.Fatal("expected hotel offers")
	}
	ids := make(map[string]bool, len(res.Offers))
	for _, o := range res.Offers {
		ids[o.Core().ID] = true
	}

	banded := 0
	for _, b := range res.PriceBands {
		banded += b.Count
	}
	if banded != len(res.Offers) {
		t.Errorf("bands hold %d hotels, want %d", banded, len(res.Offers))
	}
	for _, c := range res.Clusters {
		if c.Size < opts.MinHotelsPerCluster {
			t.Errorf("cluster %s below minimum size", c.ID)
		}
		for _, id := range c.OfferIDs {
			if !ids[id] {
				t.Errorf("cluster %s references unknown offer %s", c.ID, id)
			}
		}
	}
}

func TestService_Search_RejectsInvalidQuery(t *testing.T) {
	p := &staticProvider{name: "p1", payload: hotelPayload}
	svc := search.NewService(models.ServiceHotel, newAdapter([]search.Provider{p}, search.AdapterOptions{}), search.ServiceOptions{})

	q := hotelQuery()
	q.Dates.End = q.Dates.Start
	_, err := svc.Search(context.Background(), q)
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if p.calls != 0 {
		t.Error("provider must not be called for an invalid query")
	}

	_, err = svc.Search(context.Background(), flightQuery())
	if !errors.Is(err, search.ErrUnsupportedService) {
		t.Fatalf("expected ErrUnsupportedService, got %v", err)
	}
}

func TestService_Search_ReportsTotalFailure(t *testing.T) {
	p := &staticProvider{name: "down", err: errors.New("503")}
	svc := search.NewService(models.ServiceHotel, newAdapter([]search.Provider{p}, search.AdapterOptions{}), search.ServiceOptions{})

	res, err := svc.Search(context.Background(), hotelQuery())
	if !errors.Is(err, search.ErrNoOffers) {
		t.Fatalf("expected ErrNoOffers, got %v", err)
	}
	if res.Offers == nil || len(res.Offers) != 0 {
		t.Errorf("expected an empty offer list, got %v", res.Offers)
	}
	if len(res.Meta.ProviderErrors) != 1 {
		t.Errorf("expected provider error in meta, got %v", res.Meta.ProviderErrors)
	}
}

func TestApplyPreferences(t *testing.T) {
	direct := 0
	q := flightQuery()
	q.Preferences.MaxPrice = 400
	q.Flight = &models.FlightOptions{MaxStops: &direct}
	offers := []models.Offer{
		&models.FlightOffer{OfferCore: models.OfferCore{ID: "cheap", Price: models.Price{Amount: 200}}},
		&models.FlightOffer{OfferCore: models.OfferCore{ID: "pricey", Price: models.Price{Amount: 500}}},
		&models.FlightOffer{OfferCore: models.OfferCore{ID: "stops", Price: models.Price{Amount: 150}}, Stops: 1},
	}
	got := search.ApplyPreferences(q, offers)
	if len(got) != 1 || got[0].Core().ID != "cheap" {
		t.Fatalf("unexpected filter result %v", got)
	}

	cq := models.SearchQuery{Service: models.ServiceCarRental, CarRental: &models.CarRentalOptions{DriverAge: 20}}
	cars := []models.Offer{
		&models.CarRentalOffer{OfferCore: models.OfferCore{ID: "a"}, MinDriverAge: 21},
		&models.CarRentalOffer{OfferCore: models.OfferCore{ID: "b"}, MinDriverAge: 18},
	}
	if got := search.ApplyPreferences(cq, cars); len(got) != 1 || got[0].Core().ID != "b" {
		t.Fatalf("driver age filter: %v", got)
	}
}

func TestEngine_Dispatch(t *testing.T) {
	p := &staticProvider{name: "p1", payload: hotelPayload}
	e := search.NewEngine().Register(models.ServiceHotel,
		search.NewService(models.ServiceHotel, newAdapter([]search.Provider{p}, search.AdapterOptions{}), search.ServiceOptions{}))

	if !e.Has(models.ServiceHotel) || e.Has(models.ServiceFlight) {
		t.Fatal("unexpected registrations")
	}
	res, err := e.Search(context.Background(), hotelQuery())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Offers) != 2 {
		t.Errorf("expected 2 offers, got %d", len(res.Offers))
	}
	if _, err := e.Search(context.Background(), flightQuery()); !errors.Is(err, search.ErrUnsupportedService) {
		t.Fatalf("expected ErrUnsupportedService, got %v", err)
	}
}
