package trip

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/example/tripthesia-aggregator/internal/models"
	"github.com/example/tripthesia-aggregator/internal/search"
)

const (
	BundleBestOverall = "bestOverall"
	BundleBudget      = "budgetFriendly"
	BundlePremium     = "premium"
	BundleEco         = "ecoFriendly"
)

// Bundle pairs one offer per responding service.
type Bundle struct {
	Name          string                              `json:"name"`
	Offers        map[models.ServiceType]models.Offer `json:"offers"`
	TotalPrice    float64                             `json:"totalPrice"`
	Currency      string                              `json:"currency"`
	TotalCarbonKg float64                             `json:"totalCarbonKg"`
	AverageScore  float64                             `json:"averageScore"`
}

type Recommendations struct {
	BestOverall    *Bundle `json:"bestOverall,omitempty"`
	BudgetFriendly *Bundle `json:"budgetFriendly,omitempty"`
	Premium        *Bundle `json:"premium,omitempty"`
	EcoFriendly    *Bundle `json:"ecoFriendly,omitempty"`
}

// recommend builds the four bundles greedily, picking each service's offer on its
// own. Bundles are only produced when at least two services have offers.
func (o *Orchestrator) recommend(results map[models.ServiceType]*search.SearchResult, order []models.ServiceType, prefs models.TripPreferences, currency string) Recommendations {
	var services []models.ServiceType
	for _, st := range order {
		if r := results[st]; r != nil && len(r.Offers) > 0 {
			services = append(services, st)
		}
	}
	if len(services) < 2 {
		return Recommendations{}
	}

	// sustainability-weighted scores stay local; the ranked offers keep the
	// scores the ranker ordered them by
	score := func(of models.Offer) float64 { return of.Core().Score }
	if w := prefs.SustainabilityWeight; w > 0 {
		weighted := make(map[models.Offer]float64)
		for _, st := range services {
			offers := results[st].Offers
			for i, v := range search.Scores(st, offers, search.RankPreferences{Features: prefs.Features, SustainabilityWeight: w}) {
				weighted[offers[i]] = v
			}
		}
		score = func(of models.Offer) float64 { return weighted[of] }
	}
	higherScore := func(a, b models.Offer) bool { return score(a) > score(b) }

	pick := func(name string, choose func(st models.ServiceType, offers []models.Offer) models.Offer) *Bundle {
		chosen := make(map[models.ServiceType]models.Offer, len(services))
		for _, st := range services {
			chosen[st] = choose(st, results[st].Offers)
		}
		return newBundle(name, chosen, currency, score)
	}

	return Recommendations{
		BestOverall: pick(BundleBestOverall, func(_ models.ServiceType, offers []models.Offer) models.Offer {
			if prefs.SustainabilityWeight > 0 {
				return best(offers, higherScore)
			}
			return offers[0]
		}),
		BudgetFriendly: pick(BundleBudget, func(_ models.ServiceType, offers []models.Offer) models.Offer {
			return best(offers, func(a, b models.Offer) bool { return a.Core().Price.Amount < b.Core().Price.Amount })
		}),
		Premium: pick(BundlePremium, func(_ models.ServiceType, offers []models.Offer) models.Offer {
			var tier []models.Offer
			for _, of := range offers {
				if o.isPremium(of) {
					tier = append(tier, of)
				}
			}
			if len(tier) == 0 {
				return best(offers, func(a, b models.Offer) bool { return a.Core().Price.Amount > b.Core().Price.Amount })
			}
			return best(tier, higherScore)
		}),
		EcoFriendly: pick(BundleEco, func(_ models.ServiceType, offers []models.Offer) models.Offer {
			return best(offers, func(a, b models.Offer) bool {
				ac, bc := a.Core(), b.Core()
				if ac.CarbonKg != bc.CarbonKg {
					return ac.CarbonKg < bc.CarbonKg
				}
				return ac.Price.Amount < bc.Price.Amount
			})
		}),
	}
}

// best returns the first offer no other offer beats; ties keep rank order.
func best(offers []models.Offer, better func(a, b models.Offer) bool) models.Offer {
	top := offers[0]
	for _, of := range offers[1:] {
		if better(of, top) {
			top = of
		}
	}
	return top
}

func (o *Orchestrator) isPremium(of models.Offer) bool {
	switch v := of.(type) {
	case *models.FlightOffer:
		return o.cat.IsPremiumCabin(v.CabinClass)
	case *models.HotelOffer:
		return o.cat.Hotel.PremiumMinStars > 0 && v.StarRating >= o.cat.Hotel.PremiumMinStars
	case *models.TransportJourney:
		m, ok := o.cat.Transport.Modes[v.Mode]
		return ok && m.PremiumClass != "" && strings.EqualFold(v.Class, m.PremiumClass)
	case *models.CarRentalOffer:
		return o.cat.CarRental.Categories[v.Category].Premium
	}
	return false
}

func newBundle(name string, chosen map[models.ServiceType]models.Offer, currency string, scoreOf func(models.Offer) float64) *Bundle {
	total, carbon := decimal.Zero, decimal.Zero
	score := 0.0
	for _, of := range chosen {
		c := of.Core()
		total = total.Add(decimal.NewFromFloat(c.Price.Amount))
		carbon = carbon.Add(decimal.NewFromFloat(c.CarbonKg))
		score += scoreOf(of)
	}
	t, _ := total.Round(2).Float64()
	kg, _ := carbon.Round(2).Float64()
	return &Bundle{
		Name:          name,
		Offers:        chosen,
		TotalPrice:    t,
		Currency:      currency,
		TotalCarbonKg: kg,
		AverageScore:  math.Round(score/float64(len(chosen))*100) / 100,
	}
}

type ServiceQuality struct {
	Completeness    float64 `json:"completeness"`
	Reliability     float64 `json:"reliability"`
	PriceConfidence float64 `json:"priceConfidence"`
}

// Quality aggregates per-service signals as plain means over responding services.
type Quality struct {
	Completeness    float64                               `json:"completeness"`
	Reliability     float64                               `json:"reliability"`
	PriceConfidence float64                               `json:"priceConfidence"`
	Services        map[models.ServiceType]ServiceQuality `json:"services"`
}

func assessQuality(results map[models.ServiceType]*search.SearchResult, responded []models.ServiceType) Quality {
	q := Quality{Services: make(map[models.ServiceType]ServiceQuality, len(responded))}
	if len(responded) == 0 {
		return q
	}
	for _, st := range responded {
		r := results[st]
		sq := ServiceQuality{
			Completeness:    completeness(r.Offers),
			Reliability:     reliability(r.Meta),
			PriceConfidence: priceConfidence(r.Meta),
		}
		q.Services[st] = sq
		q.Completeness += sq.Completeness
		q.Reliability += sq.Reliability
		q.PriceConfidence += sq.PriceConfidence
	}
	n := float64(len(responded))
	q.Completeness = round2(q.Completeness / n)
	q.Reliability = round2(q.Reliability / n)
	q.PriceConfidence = round2(q.PriceConfidence / n)
	return q
}

// completeness is the share of offers carrying every field the variant can report.
func completeness(offers []models.Offer) float64 {
	if len(offers) == 0 {
		return 0
	}
	full := 0
	for _, of := range offers {
		c := of.Core()
		ok := c.Price.Amount > 0 && c.CarbonKg > 0 && !c.Validity.Until.IsZero()
		switch v := of.(type) {
		case *models.FlightOffer:
			ok = ok && len(v.Segments) > 0
		case *models.HotelOffer:
			ok = ok && v.Coordinates != nil && v.GuestRating > 0
		case *models.TransportJourney:
			ok = ok && len(v.Segments) > 0
		case *models.CarRentalOffer:
			ok = ok && v.SupplierRating > 0
		}
		if ok {
			full++
		}
	}
	return round2(float64(full) / float64(len(offers)))
}

func reliability(m search.Meta) float64 {
	if m.CacheHit {
		return 1
	}
	if m.Fallback || m.ProvidersQueried == 0 {
		return 0
	}
	return round2(float64(m.ProvidersSucceeded) / float64(m.ProvidersQueried))
}

// priceConfidence is high when independent providers priced the search, lower for a
// single source and lowest for synthesized offers.
func priceConfidence(m search.Meta) float64 {
	switch {
	case m.Fallback:
		return 0.3
	case m.CacheHit || m.ProvidersSucceeded >= 2:
		return 1
	case m.ProvidersSucceeded == 1:
		return 0.7
	}
	return 0
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
