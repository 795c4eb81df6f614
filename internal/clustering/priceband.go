package clustering

import (
	"math"

	"github.com/example/tripthesia-aggregator/internal/models"
)

const (
	BandBudget   = "Budget"
	BandMidRange = "Mid-range"
	BandLuxury   = "Luxury"
)

type PriceBand struct {
	Name                  string               `json:"name"`
	Count                 int                  `json:"count"`
	PriceRange            PriceRange           `json:"priceRange"`
	AveragePrice          float64              `json:"averagePrice"`
	AverageRating         float64              `json:"averageRating"`
	AverageCategoryRating float64              `json:"averageCategoryRating"`
	SharedAmenities       []string             `json:"sharedAmenities"`
	OfferIDs              []string             `json:"offerIds"`
	Members               []*models.HotelOffer `json:"-"`
}

// PriceBands splits hotels on nightly rate: below budget is Budget, above luxury is
// Luxury, the rest Mid-range. Empty bands are omitted; order is Budget, Mid-range, Luxury.
func PriceBands(hotels []*models.HotelOffer, budget, luxury float64) []PriceBand {
	buckets := map[string][]*models.HotelOffer{}
	for _, h := range hotels {
		if h == nil {
			continue
		}
		switch {
		case h.NightlyRate < budget:
			buckets[BandBudget] = append(buckets[BandBudget], h)
		case h.NightlyRate > luxury:
			buckets[BandLuxury] = append(buckets[BandLuxury], h)
		default:
			buckets[BandMidRange] = append(buckets[BandMidRange], h)
		}
	}
	var out []PriceBand
	for _, name := range []string{BandBudget, BandMidRange, BandLuxury} {
		members := buckets[name]
		if len(members) == 0 {
			continue
		}
		out = append(out, describeBand(name, members))
	}
	return out
}

func describeBand(name string, members []*models.HotelOffer) PriceBand {
	b := PriceBand{
		Name:       name,
		Count:      len(members),
		Members:    members,
		PriceRange: PriceRange{Min: math.Inf(1), Max: math.Inf(-1)},
	}
	sumPrice, sumRating, sumCat := 0.0, 0.0, 0.0
	rated := 0
	for _, h := range members {
		b.OfferIDs = append(b.OfferIDs, h.ID)
		b.PriceRange.Min = math.Min(b.PriceRange.Min, h.NightlyRate)
		b.PriceRange.Max = math.Max(b.PriceRange.Max, h.NightlyRate)
		sumPrice += h.NightlyRate
		sumRating += h.GuestRating
		if len(h.CategoryRatings) > 0 {
			sumCat += h.AverageCategoryRating()
			rated++
		}
	}
	n := float64(len(members))
	b.AveragePrice = round2(sumPrice / n)
	b.AverageRating = round2(sumRating / n)
	if rated > 0 {
		b.AverageCategoryRating = round2(sumCat / float64(rated))
	}
	for _, a := range amenityFrequency(members) {
		if a.Count*2 >= len(members) {
			b.SharedAmenities = append(b.SharedAmenities, a.Amenity)
		}
	}
	return b
}
