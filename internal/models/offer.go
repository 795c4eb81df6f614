package models

import (
	"fmt"
	"strings"
	"time"
)

type Price struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Base     float64 `json:"base"`
	Taxes    float64 `json:"taxes"`
	Fees     float64 `json:"fees"`
}

type Validity struct {
	From  time.Time `json:"from"`
	Until time.Time `json:"until"`
}

func (v Validity) Duration() time.Duration { return v.Until.Sub(v.From) }

// OfferCore carries the fields shared by every offer variant.
type OfferCore struct {
	ID       string      `json:"id"`
	Service  ServiceType `json:"service"`
	Provider string      `json:"provider"`
	Price    Price       `json:"price"`
	// OriginalPrice is the provider-advertised pre-discount price, zero when none is advertised.
	OriginalPrice float64  `json:"originalPrice,omitempty"`
	Validity      Validity `json:"validity"`
	Score         float64  `json:"score"`
	CarbonKg      float64  `json:"carbonKg"`
	Flash         bool     `json:"flash,omitempty"`
	Synthetic     bool     `json:"synthetic,omitempty"`
}

// AdvertisedDiscount is the provider's own discount claim as a percentage.
func (c *OfferCore) AdvertisedDiscount() float64 {
	if c.OriginalPrice <= 0 || c.OriginalPrice <= c.Price.Amount {
		return 0
	}
	return (c.OriginalPrice - c.Price.Amount) / c.OriginalPrice * 100
}

// Offer is implemented by *FlightOffer, *HotelOffer, *TransportJourney and *CarRentalOffer.
type Offer interface {
	Core() *OfferCore
	// DedupKey identifies the real-world inventory item behind the offer.
	DedupKey() string
	// Route identifies the priced item for price history (route, property or pick-up point).
	Route() string
	// StartsAt is the departure, check-in or pick-up time.
	StartsAt() time.Time
}

type FlightSegment struct {
	FlightNumber string    `json:"flightNumber"`
	Carrier      string    `json:"carrier"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	Departure    time.Time `json:"departure"`
	Arrival      time.Time `json:"arrival"`
}

type FlightOffer struct {
	OfferCore
	Airline         string          `json:"airline"`
	Segments        []FlightSegment `json:"segments"`
	Stops           int             `json:"stops"`
	DurationMinutes int             `json:"durationMinutes"`
	CabinClass      string          `json:"cabinClass"`
	BaggageIncluded bool            `json:"baggageIncluded"`
	SeatsLeft       int             `json:"seatsLeft,omitempty"`
}

func (f *FlightOffer) Core() *OfferCore { return &f.OfferCore }

func (f *FlightOffer) DedupKey() string {
	if len(f.Segments) == 0 {
		return "flight:id:" + f.ID
	}
	parts := make([]string, 0, len(f.Segments))
	for _, s := range f.Segments {
		parts = append(parts, strings.ToUpper(s.FlightNumber)+"@"+s.Departure.UTC().Format(time.RFC3339))
	}
	return "flight:" + strings.Join(parts, "|")
}

func (f *FlightOffer) Route() string {
	if len(f.Segments) == 0 {
		return ""
	}
	return f.Segments[0].From + "-" + f.Segments[len(f.Segments)-1].To
}

func (f *FlightOffer) StartsAt() time.Time {
	if len(f.Segments) == 0 {
		return time.Time{}
	}
	return f.Segments[0].Departure
}

type HotelOffer struct {
	OfferCore
	HotelID         string             `json:"hotelId"`
	Name            string             `json:"name"`
	RoomTypeID      string             `json:"roomTypeId"`
	RoomType        string             `json:"roomType"`
	StarRating      int                `json:"starRating"`
	GuestRating     float64            `json:"guestRating"`
	CategoryRatings map[string]float64 `json:"categoryRatings,omitempty"`
	Coordinates     *Coordinates       `json:"coordinates,omitempty"`
	District        string             `json:"district,omitempty"`
	Amenities       []string           `json:"amenities"`
	CheckIn         time.Time          `json:"checkIn"`
	Nights          int                `json:"nights"`
	NightlyRate     float64            `json:"nightlyRate"`
	FreeCancel      bool               `json:"freeCancellation"`
}

func (h *HotelOffer) Core() *OfferCore { return &h.OfferCore }

func (h *HotelOffer) DedupKey() string {
	return "hotel:" + h.HotelID + "/" + h.RoomTypeID
}

func (h *HotelOffer) Route() string { return h.HotelID }

func (h *HotelOffer) StartsAt() time.Time { return h.CheckIn }

// AverageCategoryRating averages cleanliness, location, service and similar sub-scores.
func (h *HotelOffer) AverageCategoryRating() float64 {
	if len(h.CategoryRatings) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range h.CategoryRatings {
		sum += v
	}
	return sum / float64(len(h.CategoryRatings))
}

type TransportSegment struct {
	Mode      string    `json:"mode"`
	Operator  string    `json:"operator"`
	ServiceNo string    `json:"serviceNo"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Departure time.Time `json:"departure"`
	Arrival   time.Time `json:"arrival"`
}

type TransportJourney struct {
	OfferCore
	Mode            string             `json:"mode"`
	Operator        string             `json:"operator"`
	Segments        []TransportSegment `json:"segments"`
	Changes         int                `json:"changes"`
	DurationMinutes int                `json:"durationMinutes"`
	Class           string             `json:"class"`
}

func (t *TransportJourney) Core() *OfferCore { return &t.OfferCore }

func (t *TransportJourney) DedupKey() string {
	if len(t.Segments) == 0 {
		return "transport:id:" + t.ID
	}
	parts := make([]string, 0, len(t.Segments))
	for _, s := range t.Segments {
		parts = append(parts, fmt.Sprintf("%s@%s", s.ServiceNo, s.Departure.UTC().Format(time.RFC3339)))
	}
	return "transport:" + strings.ToLower(t.Provider) + "/" + strings.ToLower(t.Operator) + "/" + strings.Join(parts, "|")
}

func (t *TransportJourney) Route() string {
	if len(t.Segments) == 0 {
		return t.Mode
	}
	return t.Segments[0].From + "-" + t.Segments[len(t.Segments)-1].To + "/" + t.Mode
}

func (t *TransportJourney) StartsAt() time.Time {
	if len(t.Segments) == 0 {
		return time.Time{}
	}
	return t.Segments[0].Departure
}

type CarRentalOffer struct {
	OfferCore
	VehicleID      string    `json:"vehicleId"`
	Model          string    `json:"model"`
	Category       string    `json:"category"`
	Transmission   string    `json:"transmission"`
	Seats          int       `json:"seats"`
	FuelPolicy     string    `json:"fuelPolicy"`
	Mileage        string    `json:"mileage"`
	MinDriverAge   int       `json:"minDriverAge"`
	SupplierRating float64   `json:"supplierRating"`
	PickUp         string    `json:"pickUp"`
	DropOff        string    `json:"dropOff"`
	PickUpAt       time.Time `json:"pickUpAt"`
	Days           int       `json:"days"`
}

func (c *CarRentalOffer) Core() *OfferCore { return &c.OfferCore }

func (c *CarRentalOffer) DedupKey() string {
	return "car:" + strings.ToLower(c.Provider) + "/" + c.VehicleID
}

func (c *CarRentalOffer) Route() string { return c.PickUp + "/" + c.Category }

func (c *CarRentalOffer) StartsAt() time.Time { return c.PickUpAt }
