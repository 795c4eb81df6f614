package search

import (
	"math"
	"sort"
	"strings"

	"github.com/example/tripthesia-aggregator/internal/catalog"
	"github.com/example/tripthesia-aggregator/internal/models"
)

// RankPreferences are the query inputs that influence ordering.
type RankPreferences struct {
	Features             []string
	CarCategory          string
	SustainabilityWeight float64
}

func PreferencesFromQuery(q models.SearchQuery) RankPreferences {
	p := RankPreferences{Features: q.Preferences.Features}
	if q.CarRental != nil {
		p.CarCategory = q.CarRental.Category
	}
	return p
}

// Ranker orders offers by bucketed keys: price bucket, then a service specific
// secondary bucket, then a tertiary count, then score and ID. Bucketing keeps the
// comparison transitive while treating small price or duration gaps as noise.
type Ranker struct {
	cat *catalog.Catalog
}

func NewRanker(cat *catalog.Catalog) *Ranker {
	if cat == nil {
		cat = catalog.Default()
	}
	return &Ranker{cat: cat}
}

type factor struct {
	weight       float64
	higherBetter bool
	value        func(models.Offer) float64
}

type rankKey struct {
	price     int64
	secondary int64
	tertiary  int64
	score     float64
	id        string
}

// Rank scores offers in place and returns them in ranked order. The result depends
// only on the set of offers, not on the order they arrived in.
func (r *Ranker) Rank(service models.ServiceType, offers []models.Offer, prefs RankPreferences) []models.Offer {
	out := append([]models.Offer(nil), offers...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Core().ID < out[j].Core().ID })

	Score(service, out, prefs)

	th := r.cat.Thresholds(service)
	keys := make(map[models.Offer]rankKey, len(out))
	for _, o := range out {
		keys[o] = r.key(o, th, prefs)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := keys[out[i]], keys[out[j]]
		switch {
		case a.price != b.price:
			return a.price < b.price
		case a.secondary != b.secondary:
			return a.secondary < b.secondary
		case a.tertiary != b.tertiary:
			return a.tertiary < b.tertiary
		case a.score != b.score:
			return a.score > b.score
		}
		return a.id < b.id
	})
	return out
}

func bucket(v, width float64) int64 {
	if width <= 0 {
		width = 1
	}
	return int64(math.Floor(v / width))
}

// key builds an ascending sort key; descending criteria are negated.
func (r *Ranker) key(o models.Offer, th catalog.RankingThresholds, prefs RankPreferences) rankKey {
	c := o.Core()
	k := rankKey{price: bucket(c.Price.Amount, th.Price), score: c.Score, id: c.ID}
	switch v := o.(type) {
	case *models.FlightOffer:
		k.secondary = bucket(float64(v.DurationMinutes), th.Secondary)
		k.tertiary = int64(v.Stops)
	case *models.TransportJourney:
		k.secondary = bucket(float64(v.DurationMinutes), th.Secondary)
		k.tertiary = int64(v.Changes)
	case *models.HotelOffer:
		k.secondary = -bucket(v.GuestRating, th.Secondary)
		k.tertiary = -int64(featureMatches(v.Amenities, prefs.Features))
	case *models.CarRentalOffer:
		k.secondary = -bucket(v.SupplierRating, th.Secondary)
		if prefs.CarCategory != "" && strings.EqualFold(v.Category, prefs.CarCategory) {
			k.tertiary = -1
		}
	}
	return k
}

func featureMatches(have, want []string) int {
	if len(want) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[strings.ToLower(h)] = struct{}{}
	}
	n := 0
	for _, w := range want {
		if _, ok := set[strings.ToLower(strings.TrimSpace(w))]; ok {
			n++
		}
	}
	return n
}

func factorsFor(service models.ServiceType, prefs RankPreferences) []factor {
	price := factor{value: func(o models.Offer) float64 { return o.Core().Price.Amount }}
	carbon := factor{weight: 0.3 * prefs.SustainabilityWeight, value: func(o models.Offer) float64 { return o.Core().CarbonKg }}
	var fs []factor
	switch service {
	case models.ServiceFlight:
		price.weight = 0.5
		fs = []factor{
			price,
			{weight: 0.3, value: func(o models.Offer) float64 { return float64(o.(*models.FlightOffer).DurationMinutes) }},
			{weight: 0.2, value: func(o models.Offer) float64 { return float64(o.(*models.FlightOffer).Stops) }},
		}
	case models.ServiceTransport:
		price.weight = 0.5
		fs = []factor{
			price,
			{weight: 0.3, value: func(o models.Offer) float64 { return float64(o.(*models.TransportJourney).DurationMinutes) }},
			{weight: 0.2, value: func(o models.Offer) float64 { return float64(o.(*models.TransportJourney).Changes) }},
		}
	case models.ServiceHotel:
		price.weight = 0.35
		fs = []factor{
			price,
			{weight: 0.3, higherBetter: true, value: func(o models.Offer) float64 { return o.(*models.HotelOffer).GuestRating }},
			{weight: 0.15, higherBetter: true, value: func(o models.Offer) float64 { return float64(o.(*models.HotelOffer).StarRating) }},
			{weight: 0.1, higherBetter: true, value: func(o models.Offer) float64 {
				return float64(featureMatches(o.(*models.HotelOffer).Amenities, prefs.Features))
			}},
			{weight: 0.1, higherBetter: true, value: func(o models.Offer) float64 { return boolValue(o.(*models.HotelOffer).FreeCancel) }},
		}
	case models.ServiceCarRental:
		price.weight = 0.45
		fs = []factor{
			price,
			{weight: 0.3, higherBetter: true, value: func(o models.Offer) float64 { return o.(*models.CarRentalOffer).SupplierRating }},
			{weight: 0.15, higherBetter: true, value: func(o models.Offer) float64 {
				return boolValue(prefs.CarCategory != "" && strings.EqualFold(o.(*models.CarRentalOffer).Category, prefs.CarCategory))
			}},
			{weight: 0.1, higherBetter: true, value: func(o models.Offer) float64 {
				return boolValue(o.(*models.CarRentalOffer).Mileage == DefaultMileage)
			}},
		}
	default:
		price.weight = 1
		fs = []factor{price}
	}
	if carbon.weight > 0 {
		fs = append(fs, carbon)
	}
	return fs
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Score sets each offer's 0-100 score from min-max normalized weighted factors.
// Offers of a different variant than service are scored on price alone.
func Score(service models.ServiceType, offers []models.Offer, prefs RankPreferences) {
	for i, v := range Scores(service, offers, prefs) {
		offers[i].Core().Score = v
	}
}

// Scores computes what Score would assign, index aligned with offers, without
// touching the offers.
func Scores(service models.ServiceType, offers []models.Offer, prefs RankPreferences) []float64 {
	if len(offers) == 0 {
		return nil
	}
	for _, o := range offers {
		if o.Core().Service != service {
			service = ""
			break
		}
	}
	fs := factorsFor(service, prefs)
	total := 0.0
	for _, f := range fs {
		total += f.weight
	}
	values := make([][]float64, len(fs))
	lo := make([]float64, len(fs))
	hi := make([]float64, len(fs))
	for fi, f := range fs {
		values[fi] = make([]float64, len(offers))
		lo[fi], hi[fi] = math.Inf(1), math.Inf(-1)
		for oi, o := range offers {
			v := f.value(o)
			values[fi][oi] = v
			lo[fi] = math.Min(lo[fi], v)
			hi[fi] = math.Max(hi[fi], v)
		}
	}
	out := make([]float64, len(offers))
	for oi := range offers {
		s := 0.0
		for fi, f := range fs {
			norm := 1.0
			if hi[fi] > lo[fi] {
				norm = (values[fi][oi] - lo[fi]) / (hi[fi] - lo[fi])
				if !f.higherBetter {
					norm = 1 - norm
				}
			}
			s += f.weight * norm
		}
		score := 100 * s / total
		out[oi] = math.Round(math.Max(0, math.Min(100, score))*100) / 100
	}
	return out
}
