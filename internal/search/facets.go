package search

import (
	"math"
	"sort"
	"strconv"

	"github.com/example/tripthesia-aggregator/internal/models"
)

const histogramBins = 5

// FacetCount is one value of a filterable dimension and how many offers carry it.
type FacetCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

type PriceBin struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// Filters are facet counts computed over exactly the offers returned.
type Filters struct {
	PriceMin       float64      `json:"priceMin"`
	PriceMax       float64      `json:"priceMax"`
	PriceHistogram []PriceBin   `json:"priceHistogram,omitempty"`
	Providers      []FacetCount `json:"providers,omitempty"`
	Airlines       []FacetCount `json:"airlines,omitempty"`
	Stops          []FacetCount `json:"stops,omitempty"`
	Amenities      []FacetCount `json:"amenities,omitempty"`
	StarRatings    []FacetCount `json:"starRatings,omitempty"`
	Modes          []FacetCount `json:"modes,omitempty"`
	Categories     []FacetCount `json:"categories,omitempty"`
}

type counter map[string]int

func (c counter) sorted() []FacetCount {
	if len(c) == 0 {
		return nil
	}
	out := make([]FacetCount, 0, len(c))
	for v, n := range c {
		out = append(out, FacetCount{Value: v, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// Facets derives the filter counts from offers.
func Facets(offers []models.Offer) Filters {
	var f Filters
	if len(offers) == 0 {
		return f
	}
	providers, airlines, stops := counter{}, counter{}, counter{}
	amenities, stars, modes, categories := counter{}, counter{}, counter{}, counter{}

	f.PriceMin, f.PriceMax = math.Inf(1), math.Inf(-1)
	for _, o := range offers {
		c := o.Core()
		f.PriceMin = math.Min(f.PriceMin, c.Price.Amount)
		f.PriceMax = math.Max(f.PriceMax, c.Price.Amount)
		providers[c.Provider]++
		switch v := o.(type) {
		case *models.FlightOffer:
			if v.Airline != "" {
				airlines[v.Airline]++
			}
			stops[strconv.Itoa(v.Stops)]++
		case *models.HotelOffer:
			for _, a := range v.Amenities {
				amenities[a]++
			}
			stars[strconv.Itoa(v.StarRating)]++
		case *models.TransportJourney:
			modes[v.Mode]++
			stops[strconv.Itoa(v.Changes)]++
		case *models.CarRentalOffer:
			categories[v.Category]++
		}
	}
	f.Providers = providers.sorted()
	f.Airlines = airlines.sorted()
	f.Stops = stops.sorted()
	f.Amenities = amenities.sorted()
	f.StarRatings = stars.sorted()
	f.Modes = modes.sorted()
	f.Categories = categories.sorted()
	f.PriceHistogram = histogram(offers, f.PriceMin, f.PriceMax)
	return f
}

func histogram(offers []models.Offer, lo, hi float64) []PriceBin {
	if hi <= lo {
		return []PriceBin{{Min: lo, Max: hi, Count: len(offers)}}
	}
	width := (hi - lo) / histogramBins
	bins := make([]PriceBin, histogramBins)
	for i := range bins {
		bins[i].Min = Money(lo + float64(i)*width)
		bins[i].Max = Money(lo + float64(i+1)*width)
	}
	bins[histogramBins-1].Max = hi
	for _, o := range offers {
		i := int((o.Core().Price.Amount - lo) / width)
		if i >= histogramBins {
			i = histogramBins - 1
		}
		bins[i].Count++
	}
	return bins
}
