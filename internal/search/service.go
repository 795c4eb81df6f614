package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/tripthesia-aggregator/internal/clustering"
	"github.com/example/tripthesia-aggregator/internal/models"
	"github.com/example/tripthesia-aggregator/internal/obs"
)

type ServiceManagement interface {
	Search(ctx context.Context, q models.SearchQuery) (SearchResult, error)
}

// ServiceOptions wires the optional stages of a service pipeline.
type ServiceOptions struct {
	Normalizer *Normalizer
	Ranker     *Ranker
	// Clusterer and the band thresholds only apply to hotel searches.
	Clusterer       *clustering.Geographic
	BudgetThreshold float64
	LuxuryThreshold float64
	Metrics         *obs.Metrics
	Logger          *slog.Logger
}

// Service runs adapter, normalizer, preference filters, dedup and ranker for one
// service type, plus the clustering side branch for hotels.
type Service struct {
	service    models.ServiceType
	adapter    AdapterService
	normalizer *Normalizer
	ranker     *Ranker
	clusterer  *clustering.Geographic
	budget     float64
	luxury     float64
	metrics    *obs.Metrics
	logger     *slog.Logger
}

func NewService(service models.ServiceType, adapter AdapterService, opts ServiceOptions) *Service {
	if opts.Normalizer == nil {
		opts.Normalizer = NewNormalizer(nil)
	}
	if opts.Ranker == nil {
		opts.Ranker = NewRanker(nil)
	}
	return &Service{
		service:    service,
		adapter:    adapter,
		normalizer: opts.Normalizer,
		ranker:     opts.Ranker,
		clusterer:  opts.Clusterer,
		budget:     opts.BudgetThreshold,
		luxury:     opts.LuxuryThreshold,
		metrics:    opts.Metrics,
		logger:     obs.OrDefault(opts.Logger),
	}
}

func (s *Service) Search(ctx context.Context, q models.SearchQuery) (SearchResult, error) {
	start := time.Now()
	if q.Service == "" {
		q.Service = s.service
	}
	if q.Service != s.service {
		return SearchResult{}, fmt.Errorf("%w: %s pipeline got %s query", ErrUnsupportedService, s.service, q.Service)
	}
	if err := q.Validate(); err != nil {
		return SearchResult{}, err
	}
	s.metrics.IncRequests(string(s.service))

	ar, err := s.adapter.Search(ctx, q)
	meta := Meta{
		Service:            s.service,
		Providers:          ar.Providers(),
		Currency:           q.Currency(),
		CacheHit:           ar.CacheHit,
		Fallback:           ar.Fallback,
		ProvidersQueried:   ar.ProvidersQueried,
		ProvidersSucceeded: ar.ProvidersSucceeded,
	}
	for _, pe := range ar.Errors {
		meta.ProviderErrors = append(meta.ProviderErrors, pe.Error())
	}
	if err != nil {
		meta.SearchTimeMs = time.Since(start).Milliseconds()
		return SearchResult{Offers: []models.Offer{}, Meta: meta}, err
	}

	offers := s.normalizer.Normalize(q, ar.Results)
	offers = ApplyPreferences(q, offers)
	offers = Dedup(offers)
	offers = s.ranker.Rank(s.service, offers, PreferencesFromQuery(q))

	res := SearchResult{Offers: offers, Filters: Facets(offers)}
	if s.service == models.ServiceHotel {
		hotels := HotelOffers(offers)
		if s.clusterer != nil {
			res.Clusters = s.clusterer.Cluster(hotels)
		}
		if s.luxury > s.budget && s.budget > 0 {
			res.PriceBands = clustering.PriceBands(hotels, s.budget, s.luxury)
		}
	}
	meta.TotalResults = len(offers)
	meta.SearchTimeMs = time.Since(start).Milliseconds()
	res.Meta = meta

	s.logger.Debug("search completed",
		slog.String("service", string(s.service)),
		slog.String("route", q.Route()),
		slog.Int("offers", len(offers)),
		slog.Bool("cache_hit", ar.CacheHit),
		slog.Bool("fallback", ar.Fallback),
	)
	return res, nil
}

// ApplyPreferences drops offers that violate hard constraints of the query.
// Requested features are soft and only influence ranking.
func ApplyPreferences(q models.SearchQuery, offers []models.Offer) []models.Offer {
	out := make([]models.Offer, 0, len(offers))
	for _, o := range offers {
		if q.Preferences.MaxPrice > 0 && o.Core().Price.Amount > q.Preferences.MaxPrice {
			continue
		}
		switch v := o.(type) {
		case *models.FlightOffer:
			if q.Flight != nil && q.Flight.MaxStops != nil && v.Stops > *q.Flight.MaxStops {
				continue
			}
		case *models.HotelOffer:
			if q.Hotel != nil && v.StarRating < q.Hotel.MinStars {
				continue
			}
		case *models.TransportJourney:
			if q.Transport != nil && len(q.Transport.Modes) > 0 && !containsFold(q.Transport.Modes, v.Mode) {
				continue
			}
		case *models.CarRentalOffer:
			if q.CarRental != nil && q.CarRental.DriverAge > 0 && q.CarRental.DriverAge < v.MinDriverAge {
				continue
			}
		}
		out = append(out, o)
	}
	return out
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(strings.TrimSpace(s), v) {
			return true
		}
	}
	return false
}

// HotelOffers picks the hotel variants out of a mixed slice.
func HotelOffers(offers []models.Offer) []*models.HotelOffer {
	var out []*models.HotelOffer
	for _, o := range offers {
		if h, ok := o.(*models.HotelOffer); ok {
			out = append(out, h)
		}
	}
	return out
}

// Engine dispatches queries to the pipeline of their service type.
type Engine struct {
	services map[models.ServiceType]ServiceManagement
}

func NewEngine() *Engine {
	return &Engine{services: make(map[models.ServiceType]ServiceManagement)}
}

// Register installs the pipeline for a service type, replacing any previous one.
func (e *Engine) Register(service models.ServiceType, s ServiceManagement) *Engine {
	e.services[service] = s
	return e
}

func (e *Engine) Has(service models.ServiceType) bool {
	_, ok := e.services[service]
	return ok
}

func (e *Engine) Search(ctx context.Context, q models.SearchQuery) (SearchResult, error) {
	s, ok := e.services[q.Service]
	if !ok {
		return SearchResult{}, fmt.Errorf("%w: %s", ErrUnsupportedService, q.Service)
	}
	return s.Search(ctx, q)
}
