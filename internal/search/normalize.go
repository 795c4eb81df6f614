package search

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/tripthesia-aggregator/internal/catalog"
	"github.com/example/tripthesia-aggregator/internal/models"
	"github.com/example/tripthesia-aggregator/internal/providers"
)

const (
	DefaultFuelPolicy   = "full_to_full"
	DefaultMileage      = "unlimited"
	DefaultMinDriverAge = 21
	DefaultRoomType     = "standard"
	DefaultCurrency     = "USD"
)

var offerNamespace = uuid.MustParse("6f0d8a3e-1c52-4d8e-9a43-2b7f5c1e9d10")

// Normalizer maps provider payloads onto the canonical offer variants. It never fails:
// missing optional data gets a conservative default instead.
type Normalizer struct {
	cat *catalog.Catalog
	now func() time.Time
}

func NewNormalizer(cat *catalog.Catalog) *Normalizer {
	if cat == nil {
		cat = catalog.Default()
	}
	return &Normalizer{cat: cat, now: time.Now}
}

// WithClock replaces the clock used for validity windows.
func (n *Normalizer) WithClock(now func() time.Time) *Normalizer {
	n.now = now
	return n
}

// Normalize converts every item relevant to q.Service, preserving provider order.
func (n *Normalizer) Normalize(q models.SearchQuery, results []ProviderResult) []models.Offer {
	now := n.now().UTC()
	var out []models.Offer
	for _, pr := range results {
		currency := firstNonEmpty(pr.Response.Currency, q.Preferences.Currency, DefaultCurrency)
		switch q.Service {
		case models.ServiceFlight:
			for i, it := range pr.Response.Flights {
				out = append(out, n.flight(q, pr, i, it, currency, now))
			}
		case models.ServiceHotel:
			for i, it := range pr.Response.Hotels {
				out = append(out, n.hotel(q, pr, i, it, currency, now))
			}
		case models.ServiceTransport:
			for i, it := range pr.Response.Journeys {
				out = append(out, n.journey(q, pr, i, it, currency, now))
			}
		case models.ServiceCarRental:
			for i, it := range pr.Response.Cars {
				out = append(out, n.car(q, pr, i, it, currency, now))
			}
		}
	}
	return out
}

// Money clamps negatives to zero and rounds to cents.
func Money(v float64) float64 {
	if v < 0 {
		return 0
	}
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return strings.ToUpper(v)
		}
	}
	return ""
}

func offerID(pr ProviderResult, service models.ServiceType, itemID string, index int) string {
	if itemID != "" {
		return pr.Provider + "-" + itemID
	}
	name := fmt.Sprintf("%s|%s|%d", pr.Provider, service, index)
	return uuid.NewSHA1(offerNamespace, []byte(name)).String()
}

func (n *Normalizer) core(service models.ServiceType, pr ProviderResult, id string, p providers.Pricing, currency string, now time.Time, validFor time.Duration) models.OfferCore {
	amount := Money(p.Price)
	taxes := Money(p.Taxes)
	fees := Money(p.Fees)
	base := Money(amount - taxes - fees)
	if taxes+fees > amount {
		taxes, fees, base = 0, 0, amount
	}
	validity := models.Validity{From: now, Until: now.Add(validFor)}
	if p.ExpiresAt != nil {
		validity.Until = p.ExpiresAt.UTC()
	}
	if validity.Until.Before(validity.From) {
		validity.Until = validity.From
	}
	original := Money(p.OriginalPrice)
	if original <= amount {
		original = 0
	}
	return models.OfferCore{
		ID:            id,
		Service:       service,
		Provider:      pr.Provider,
		Price:         models.Price{Amount: amount, Currency: firstNonEmpty(p.Currency, currency), Base: base, Taxes: taxes, Fees: fees},
		OriginalPrice: original,
		Validity:      validity,
		CarbonKg:      Money(p.CarbonKg),
		Flash:         p.Flash,
		Synthetic:     pr.Fallback,
	}
}

func (n *Normalizer) flight(q models.SearchQuery, pr ProviderResult, i int, it providers.FlightItem, currency string, now time.Time) *models.FlightOffer {
	f := &models.FlightOffer{
		OfferCore:  n.core(models.ServiceFlight, pr, offerID(pr, models.ServiceFlight, it.ID, i), it.Pricing, currency, now, 30*time.Minute),
		Airline:    strings.ToUpper(it.Airline),
		CabinClass: strings.ToLower(it.CabinClass),
		SeatsLeft:  it.SeatsLeft,
	}
	for _, s := range it.Segments {
		f.Segments = append(f.Segments, models.FlightSegment{
			FlightNumber: strings.ToUpper(strings.ReplaceAll(s.FlightNumber, " ", "")),
			Carrier:      strings.ToUpper(s.Carrier),
			From:         strings.ToUpper(s.From),
			To:           strings.ToUpper(s.To),
			Departure:    s.Departure.UTC(),
			Arrival:      s.Arrival.UTC(),
		})
	}
	if len(f.Segments) > 0 {
		f.Stops = len(f.Segments) - 1
		first, last := f.Segments[0], f.Segments[len(f.Segments)-1]
		if d := last.Arrival.Sub(first.Departure); d > 0 {
			f.DurationMinutes = int(d.Minutes())
		}
		if f.Airline == "" {
			f.Airline = first.Carrier
		}
	}
	if f.CabinClass == "" {
		f.CabinClass = "economy"
		if q.Flight != nil && q.Flight.CabinClass != "" {
			f.CabinClass = strings.ToLower(q.Flight.CabinClass)
		}
	}
	if it.Baggage != nil {
		f.BaggageIncluded = *it.Baggage
	}
	if f.CarbonKg == 0 && f.DurationMinutes > 0 {
		km := float64(f.DurationMinutes) / 60 * n.cat.Flight.CruiseSpeedKmh
		f.CarbonKg = Money(km * n.cat.FlightEmissionFactor(f.CabinClass) * float64(max(1, q.Party.Travellers())))
	}
	return f
}

func (n *Normalizer) hotel(q models.SearchQuery, pr ProviderResult, i int, it providers.HotelItem, currency string, now time.Time) *models.HotelOffer {
	hotelID := strings.TrimSpace(it.HotelID)
	if hotelID == "" {
		hotelID = uuid.NewSHA1(offerNamespace, []byte(fmt.Sprintf("%s|hotel|%d", pr.Provider, i))).String()
	}
	roomID := strings.TrimSpace(it.RoomTypeID)
	if roomID == "" {
		roomID = DefaultRoomType
	}
	h := &models.HotelOffer{
		OfferCore:       n.core(models.ServiceHotel, pr, offerID(pr, models.ServiceHotel, hotelID+"-"+roomID, i), it.Pricing, currency, now, time.Hour),
		HotelID:         hotelID,
		Name:            strings.TrimSpace(it.Name),
		RoomTypeID:      roomID,
		RoomType:        it.RoomType,
		StarRating:      min(max(it.Stars, 0), 5),
		GuestRating:     it.GuestRating,
		CategoryRatings: it.CategoryRatings,
		District:        it.District,
		CheckIn:         q.Dates.StartTime(),
		Nights:          it.Nights,
		FreeCancel:      it.FreeCancellation != nil && *it.FreeCancellation,
	}
	if h.RoomType == "" {
		h.RoomType = DefaultRoomType
	}
	if h.Name == "" {
		h.Name = hotelID
	}
	if it.Lat != nil && it.Lng != nil {
		h.Coordinates = &models.Coordinates{Lat: *it.Lat, Lng: *it.Lng}
	}
	for _, a := range it.Amenities {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			h.Amenities = append(h.Amenities, a)
		}
	}
	if h.Nights <= 0 {
		h.Nights = q.Dates.Nights()
	}
	rooms := max(q.Party.Rooms, 1)
	h.NightlyRate = Money(it.PricePerNight)
	if h.NightlyRate == 0 {
		h.NightlyRate = Money(h.Price.Amount / float64(h.Nights*rooms))
	}
	if h.CarbonKg == 0 {
		h.CarbonKg = Money(n.cat.Hotel.EmissionsKgPerNight[max(h.StarRating, 1)] * float64(h.Nights*rooms))
	}
	return h
}

func (n *Normalizer) journey(q models.SearchQuery, pr ProviderResult, i int, it providers.JourneyItem, currency string, now time.Time) *models.TransportJourney {
	j := &models.TransportJourney{
		OfferCore: n.core(models.ServiceTransport, pr, offerID(pr, models.ServiceTransport, it.ID, i), it.Pricing, currency, now, time.Hour),
		Mode:      strings.ToLower(it.Mode),
		Operator:  it.Operator,
		Class:     strings.ToLower(it.Class),
	}
	for _, l := range it.Legs {
		j.Segments = append(j.Segments, models.TransportSegment{
			Mode:      strings.ToLower(l.Mode),
			Operator:  l.Operator,
			ServiceNo: strings.ToUpper(l.ServiceNo),
			From:      strings.ToUpper(l.From),
			To:        strings.ToUpper(l.To),
			Departure: l.Departure.UTC(),
			Arrival:   l.Arrival.UTC(),
		})
	}
	if len(j.Segments) > 0 {
		j.Changes = len(j.Segments) - 1
		first, last := j.Segments[0], j.Segments[len(j.Segments)-1]
		if d := last.Arrival.Sub(first.Departure); d > 0 {
			j.DurationMinutes = int(d.Minutes())
		}
		if j.Mode == "" {
			j.Mode = first.Mode
		}
		if j.Operator == "" {
			j.Operator = first.Operator
		}
	}
	if j.Mode == "" {
		j.Mode = "train"
	}
	if j.Class == "" {
		j.Class = "standard"
	}
	if j.CarbonKg == 0 && j.DurationMinutes > 0 {
		if m, ok := n.cat.Transport.Modes[j.Mode]; ok {
			km := float64(j.DurationMinutes) / 60 * m.SpeedKmh
			j.CarbonKg = Money(km * m.EmissionsKgPerKm * float64(max(1, q.Party.Travellers())))
		}
	}
	return j
}

func (n *Normalizer) car(q models.SearchQuery, pr ProviderResult, i int, it providers.CarItem, currency string, now time.Time) *models.CarRentalOffer {
	vehicleID := strings.TrimSpace(it.VehicleID)
	if vehicleID == "" {
		vehicleID = uuid.NewSHA1(offerNamespace, []byte(fmt.Sprintf("%s|car|%d", pr.Provider, i))).String()
	}
	pickUp := q.Origin.Code
	if pickUp == "" {
		pickUp = q.Origin.Name
	}
	c := &models.CarRentalOffer{
		OfferCore:      n.core(models.ServiceCarRental, pr, offerID(pr, models.ServiceCarRental, vehicleID, i), it.Pricing, currency, now, time.Hour),
		VehicleID:      vehicleID,
		Model:          it.Model,
		Category:       strings.ToLower(it.Category),
		Transmission:   strings.ToLower(it.Transmission),
		Seats:          it.Seats,
		FuelPolicy:     it.FuelPolicy,
		Mileage:        it.Mileage,
		MinDriverAge:   it.MinDriverAge,
		SupplierRating: it.SupplierRating,
		PickUp:         pickUp,
		DropOff:        it.DropOff,
		PickUpAt:       q.Dates.StartTime(),
		Days:           it.Days,
	}
	if c.Category == "" {
		c.Category = "economy"
	}
	if c.Transmission == "" {
		c.Transmission = "automatic"
	}
	if c.FuelPolicy == "" {
		c.FuelPolicy = DefaultFuelPolicy
	}
	if c.Mileage == "" {
		c.Mileage = DefaultMileage
	}
	if c.MinDriverAge <= 0 {
		c.MinDriverAge = DefaultMinDriverAge
	}
	if c.DropOff == "" {
		c.DropOff = pickUp
	}
	if c.Days <= 0 {
		c.Days = q.Dates.Nights()
	}
	if c.CarbonKg == 0 {
		if cat, ok := n.cat.CarRental.Categories[c.Category]; ok {
			c.CarbonKg = Money(cat.EmissionsKgPerDay * float64(c.Days))
		}
	}
	return c
}
