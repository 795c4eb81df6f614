package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/example/tripthesia-aggregator/internal/validator"
)

type ServiceType string

const (
	ServiceFlight    ServiceType = "flight"
	ServiceHotel     ServiceType = "hotel"
	ServiceTransport ServiceType = "transport"
	ServiceCarRental ServiceType = "car_rental"
)

// AllServices is the fixed order used whenever "all" services are requested.
var AllServices = []ServiceType{ServiceFlight, ServiceHotel, ServiceTransport, ServiceCarRental}

func ParseServiceType(s string) (ServiceType, error) {
	switch st := ServiceType(strings.ToLower(strings.TrimSpace(s))); st {
	case ServiceFlight, ServiceHotel, ServiceTransport, ServiceCarRental:
		return st, nil
	case "car", "car-rental", "carrental":
		return ServiceCarRental, nil
	case "ground", "ground_transport", "ground-transport":
		return ServiceTransport, nil
	}
	return "", fmt.Errorf("unknown service type %q", s)
}

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Location struct {
	Name        string       `json:"name"`
	Code        string       `json:"code,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// DateRange holds YYYY-MM-DD dates. End is optional for one-way flights and transport.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

func (d DateRange) StartTime() time.Time {
	t, _ := time.Parse("2006-01-02", d.Start)
	return t
}

func (d DateRange) EndTime() time.Time {
	if d.End == "" {
		return time.Time{}
	}
	t, _ := time.Parse("2006-01-02", d.End)
	return t
}

// Nights is the whole-day span of the range, at least 1.
func (d DateRange) Nights() int {
	end := d.EndTime()
	if end.IsZero() {
		return 1
	}
	n := int(end.Sub(d.StartTime()).Hours() / 24)
	if n < 1 {
		return 1
	}
	return n
}

type Party struct {
	Adults   int `json:"adults"`
	Children int `json:"children,omitempty"`
	Infants  int `json:"infants,omitempty"`
	Rooms    int `json:"rooms,omitempty"`
}

func (p Party) Travellers() int { return p.Adults + p.Children + p.Infants }

type Preferences struct {
	MaxPrice         float64  `json:"maxPrice,omitempty"`
	Currency         string   `json:"currency,omitempty"`
	IncludeProviders []string `json:"includeProviders,omitempty"`
	ExcludeProviders []string `json:"excludeProviders,omitempty"`
	Features         []string `json:"features,omitempty"`
}

// AllowsProvider applies the allow/deny lists. Deny wins over allow.
func (p Preferences) AllowsProvider(name string) bool {
	for _, ex := range p.ExcludeProviders {
		if strings.EqualFold(ex, name) {
			return false
		}
	}
	if len(p.IncludeProviders) == 0 {
		return true
	}
	for _, in := range p.IncludeProviders {
		if strings.EqualFold(in, name) {
			return true
		}
	}
	return false
}

type FlightOptions struct {
	CabinClass string `json:"cabinClass,omitempty"`
	MaxStops   *int   `json:"maxStops,omitempty"`
}

type HotelOptions struct {
	MinStars int `json:"minStars,omitempty"`
}

type TransportOptions struct {
	Modes []string `json:"modes,omitempty"`
}

type CarRentalOptions struct {
	Category  string `json:"category,omitempty"`
	DriverAge int    `json:"driverAge,omitempty"`
}

// SearchQuery is the canonical request for one service type.
// For hotels Destination is the stay location and Dates the check-in/check-out pair;
// for car rentals Origin is the pick-up and Destination the optional drop-off.
type SearchQuery struct {
	Service     ServiceType       `json:"service"`
	Origin      Location          `json:"origin"`
	Destination Location          `json:"destination"`
	Dates       DateRange         `json:"dates"`
	Party       Party             `json:"party"`
	Preferences Preferences       `json:"preferences"`
	Flight      *FlightOptions    `json:"flight,omitempty"`
	Hotel       *HotelOptions     `json:"hotel,omitempty"`
	Transport   *TransportOptions `json:"transport,omitempty"`
	CarRental   *CarRentalOptions `json:"carRental,omitempty"`
}

// Currency returns the requested currency or USD.
func (q SearchQuery) Currency() string {
	if q.Preferences.Currency != "" {
		return strings.ToUpper(q.Preferences.Currency)
	}
	return "USD"
}

// Route is the human readable origin-destination pair used in logs and history keys.
func (q SearchQuery) Route() string {
	switch q.Service {
	case ServiceHotel:
		return locationToken(q.Destination)
	case ServiceCarRental:
		if q.Destination.Name == "" && q.Destination.Code == "" {
			return locationToken(q.Origin)
		}
	}
	return locationToken(q.Origin) + "-" + locationToken(q.Destination)
}

func locationToken(l Location) string {
	if l.Code != "" {
		return strings.ToUpper(l.Code)
	}
	return strings.ToLower(strings.TrimSpace(l.Name))
}

// Validate rejects malformed or inconsistent queries and normalises names and codes in place.
// It must run before the query is issued; afterwards the value is treated as immutable.
func (q *SearchQuery) Validate() error {
	var errs []string

	switch q.Service {
	case ServiceFlight, ServiceHotel, ServiceTransport, ServiceCarRental:
	default:
		errs = append(errs, fmt.Sprintf("unknown service %q", q.Service))
	}

	needsOrigin := q.Service != ServiceHotel
	needsDestination := q.Service == ServiceFlight || q.Service == ServiceTransport || q.Service == ServiceHotel
	if needsOrigin {
		if err := validateLocation(&q.Origin); err != nil {
			errs = append(errs, "origin: "+err.Error())
		}
	}
	if needsDestination {
		if err := validateLocation(&q.Destination); err != nil {
			errs = append(errs, "destination: "+err.Error())
		}
	} else if q.Destination.Name != "" || q.Destination.Code != "" {
		if err := validateLocation(&q.Destination); err != nil {
			errs = append(errs, "destination: "+err.Error())
		}
	}
	if (q.Service == ServiceFlight || q.Service == ServiceTransport) && locationToken(q.Origin) != "" &&
		locationToken(q.Origin) == locationToken(q.Destination) {
		errs = append(errs, "origin and destination must differ")
	}

	start, err := validator.ValidateDate(q.Dates.Start)
	if err != nil {
		errs = append(errs, "start "+err.Error())
	}
	needsEnd := q.Service == ServiceHotel || q.Service == ServiceCarRental
	if q.Dates.End == "" && needsEnd {
		errs = append(errs, "end date required")
	}
	if q.Dates.End != "" {
		end, err := validator.ValidateDate(q.Dates.End)
		switch {
		case err != nil:
			errs = append(errs, "end "+err.Error())
		case !start.IsZero() && needsEnd && !end.After(start):
			errs = append(errs, "end date must be after start date")
		case !start.IsZero():
			if err := validator.ValidateDateOrder(start, end); err != nil {
				errs = append(errs, err.Error())
			}
		}
	}

	if q.Party.Adults <= 0 || q.Party.Adults > 9 {
		errs = append(errs, "invalid or excessive adults")
	}
	if q.Party.Children < 0 || q.Party.Infants < 0 {
		errs = append(errs, "negative party size")
	}
	if q.Party.Infants > q.Party.Adults {
		errs = append(errs, "each infant needs an accompanying adult")
	}
	if q.Service == ServiceHotel {
		if q.Party.Rooms == 0 {
			q.Party.Rooms = 1
		}
		if q.Party.Rooms < 0 || q.Party.Rooms > q.Party.Adults {
			errs = append(errs, "invalid room count")
		}
	}

	if q.Preferences.MaxPrice < 0 {
		errs = append(errs, "maxPrice must not be negative")
	}
	if q.Preferences.Currency != "" {
		c, err := validator.ValidateCurrency(q.Preferences.Currency)
		if err != nil {
			errs = append(errs, err.Error())
		} else {
			q.Preferences.Currency = c
		}
	}

	if q.Flight != nil && q.Flight.MaxStops != nil && *q.Flight.MaxStops < 0 {
		errs = append(errs, "maxStops must not be negative")
	}
	if q.Hotel != nil && (q.Hotel.MinStars < 0 || q.Hotel.MinStars > 5) {
		errs = append(errs, "minStars must be between 0 and 5")
	}
	if q.CarRental != nil && q.CarRental.DriverAge != 0 && (q.CarRental.DriverAge < 18 || q.CarRental.DriverAge > 99) {
		errs = append(errs, "driverAge must be between 18 and 99")
	}

	if len(errs) > 0 {
		return &ValidationError{Problems: errs}
	}
	return nil
}

func validateLocation(l *Location) error {
	if l.Code == "" {
		name, err := validator.ValidateCity(l.Name)
		if err != nil {
			return err
		}
		l.Name = name
	} else {
		l.Code = strings.ToUpper(strings.TrimSpace(l.Code))
	}
	if l.Coordinates != nil {
		return validator.ValidateCoordinates(l.Coordinates.Lat, l.Coordinates.Lng)
	}
	return nil
}

// CacheKey derives a stable key from the canonical serialization of the query plus
// adapter options. Provider and feature lists are order-insensitive.
func (q SearchQuery) CacheKey(options ...string) string {
	c := q
	c.Preferences.IncludeProviders = sortedLower(q.Preferences.IncludeProviders)
	c.Preferences.ExcludeProviders = sortedLower(q.Preferences.ExcludeProviders)
	c.Preferences.Features = sortedLower(q.Preferences.Features)
	if q.Transport != nil {
		c.Transport = &TransportOptions{Modes: sortedLower(q.Transport.Modes)}
	}
	c.Origin.Name = strings.ToLower(c.Origin.Name)
	c.Destination.Name = strings.ToLower(c.Destination.Name)

	b, _ := json.Marshal(c)
	h := sha256.New()
	h.Write(b)
	for _, o := range options {
		h.Write([]byte{0})
		h.Write([]byte(o))
	}
	return string(q.Service) + ":" + hex.EncodeToString(h.Sum(nil))[:32]
}

func sortedLower(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(strings.TrimSpace(s))
	}
	sort.Strings(out)
	return out
}
