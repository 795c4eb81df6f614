package providers

import (
	"time"

	"github.com/example/tripthesia-aggregator/internal/models"
)

// Response is the JSON envelope providers answer with. Only the list matching the
// queried service is read; every field other than price is optional.
type Response struct {
	Provider string        `json:"provider,omitempty"`
	Currency string        `json:"currency,omitempty"`
	Flights  []FlightItem  `json:"flights,omitempty"`
	Hotels   []HotelItem   `json:"hotels,omitempty"`
	Journeys []JourneyItem `json:"journeys,omitempty"`
	Cars     []CarItem     `json:"cars,omitempty"`
}

// Len counts the items relevant to service.
func (r Response) Len(service models.ServiceType) int {
	switch service {
	case models.ServiceFlight:
		return len(r.Flights)
	case models.ServiceHotel:
		return len(r.Hotels)
	case models.ServiceTransport:
		return len(r.Journeys)
	case models.ServiceCarRental:
		return len(r.Cars)
	}
	return 0
}

type Pricing struct {
	Price         float64    `json:"price"`
	Taxes         float64    `json:"taxes,omitempty"`
	Fees          float64    `json:"fees,omitempty"`
	OriginalPrice float64    `json:"originalPrice,omitempty"`
	Currency      string     `json:"currency,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	Flash         bool       `json:"flash,omitempty"`
	CarbonKg      float64    `json:"carbonKg,omitempty"`
}

type SegmentItem struct {
	FlightNumber string    `json:"flightNumber"`
	Carrier      string    `json:"carrier,omitempty"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	Departure    time.Time `json:"departure"`
	Arrival      time.Time `json:"arrival"`
}

type FlightItem struct {
	Pricing
	ID          string        `json:"id,omitempty"`
	Airline     string        `json:"airline,omitempty"`
	AirlineName string        `json:"airlineName,omitempty"`
	CabinClass  string        `json:"cabinClass,omitempty"`
	Segments    []SegmentItem `json:"segments"`
	Baggage     *bool         `json:"baggage,omitempty"`
	SeatsLeft   int           `json:"seatsLeft,omitempty"`
}

type HotelItem struct {
	Pricing
	HotelID          string             `json:"hotelId"`
	Name             string             `json:"name,omitempty"`
	RoomTypeID       string             `json:"roomTypeId,omitempty"`
	RoomType         string             `json:"roomType,omitempty"`
	Stars            int                `json:"stars,omitempty"`
	GuestRating      float64            `json:"guestRating,omitempty"`
	CategoryRatings  map[string]float64 `json:"categoryRatings,omitempty"`
	Lat              *float64           `json:"lat,omitempty"`
	Lng              *float64           `json:"lng,omitempty"`
	District         string             `json:"district,omitempty"`
	Amenities        []string           `json:"amenities,omitempty"`
	PricePerNight    float64            `json:"pricePerNight,omitempty"`
	Nights           int                `json:"nights,omitempty"`
	FreeCancellation *bool              `json:"freeCancellation,omitempty"`
}

type LegItem struct {
	Mode      string    `json:"mode,omitempty"`
	Operator  string    `json:"operator,omitempty"`
	ServiceNo string    `json:"serviceNo"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Departure time.Time `json:"departure"`
	Arrival   time.Time `json:"arrival"`
}

type JourneyItem struct {
	Pricing
	ID       string    `json:"id,omitempty"`
	Mode     string    `json:"mode,omitempty"`
	Operator string    `json:"operator,omitempty"`
	Class    string    `json:"class,omitempty"`
	Legs     []LegItem `json:"legs"`
}

type CarItem struct {
	Pricing
	VehicleID      string  `json:"vehicleId"`
	Model          string  `json:"model,omitempty"`
	Category       string  `json:"category,omitempty"`
	Transmission   string  `json:"transmission,omitempty"`
	Seats          int     `json:"seats,omitempty"`
	FuelPolicy     string  `json:"fuelPolicy,omitempty"`
	Mileage        string  `json:"mileage,omitempty"`
	MinDriverAge   int     `json:"minDriverAge,omitempty"`
	SupplierRating float64 `json:"supplierRating,omitempty"`
	DailyRate      float64 `json:"dailyRate,omitempty"`
	Days           int     `json:"days,omitempty"`
	DropOff        string  `json:"dropOff,omitempty"`
}
