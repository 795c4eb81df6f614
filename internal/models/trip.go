package models

import (
	"fmt"
	"strings"

	"github.com/example/tripthesia-aggregator/internal/validator"
)

// DefaultBudgetAllocation splits a total trip budget across services.
var DefaultBudgetAllocation = map[ServiceType]float64{
	ServiceFlight:    0.40,
	ServiceHotel:     0.35,
	ServiceCarRental: 0.15,
	ServiceTransport: 0.10,
}

type TripPreferences struct {
	Currency         string                  `json:"currency,omitempty"`
	TotalBudget      float64                 `json:"totalBudget,omitempty"`
	BudgetAllocation map[ServiceType]float64 `json:"budgetAllocation,omitempty"`
	// SustainabilityWeight in [0,1] shifts bundle quality towards low-carbon offers.
	SustainabilityWeight float64  `json:"sustainabilityWeight,omitempty"`
	IncludeProviders     []string `json:"includeProviders,omitempty"`
	ExcludeProviders     []string `json:"excludeProviders,omitempty"`
	Features             []string `json:"features,omitempty"`
}

// TripRequest bundles the shared journey data for a multi-service search.
type TripRequest struct {
	UserID      string            `json:"userId,omitempty"`
	Services    []string          `json:"services,omitempty"`
	Origin      Location          `json:"origin"`
	Destination Location          `json:"destination"`
	Dates       DateRange         `json:"dates"`
	Party       Party             `json:"party"`
	Preferences TripPreferences   `json:"preferences"`
	Flight      *FlightOptions    `json:"flight,omitempty"`
	Hotel       *HotelOptions     `json:"hotel,omitempty"`
	Transport   *TransportOptions `json:"transport,omitempty"`
	CarRental   *CarRentalOptions `json:"carRental,omitempty"`
}

// RequestedServices resolves the explicit list or "all". An empty list means all.
func (r TripRequest) RequestedServices() ([]ServiceType, error) {
	if len(r.Services) == 0 {
		return append([]ServiceType(nil), AllServices...), nil
	}
	seen := make(map[ServiceType]bool)
	var out []ServiceType
	for _, s := range r.Services {
		if strings.EqualFold(strings.TrimSpace(s), "all") {
			return append([]ServiceType(nil), AllServices...), nil
		}
		st, err := ParseServiceType(s)
		if err != nil {
			return nil, err
		}
		if !seen[st] {
			seen[st] = true
			out = append(out, st)
		}
	}
	return out, nil
}

// Validate checks the shared journey data. Service-specific checks happen per branch.
func (r *TripRequest) Validate() error {
	var errs []string
	if _, err := r.RequestedServices(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLocation(&r.Destination); err != nil {
		errs = append(errs, "destination: "+err.Error())
	}
	if r.Origin.Name != "" || r.Origin.Code != "" {
		if err := validateLocation(&r.Origin); err != nil {
			errs = append(errs, "origin: "+err.Error())
		}
	}
	if _, err := validator.ValidateDate(r.Dates.Start); err != nil {
		errs = append(errs, "start "+err.Error())
	}
	if r.Party.Adults <= 0 {
		errs = append(errs, "at least one adult required")
	}
	if r.Preferences.TotalBudget < 0 {
		errs = append(errs, "totalBudget must not be negative")
	}
	if w := r.Preferences.SustainabilityWeight; w < 0 || w > 1 {
		errs = append(errs, "sustainabilityWeight must be within [0,1]")
	}
	total := 0.0
	for st, share := range r.Preferences.BudgetAllocation {
		if share < 0 {
			errs = append(errs, fmt.Sprintf("negative budget share for %s", st))
		}
		total += share
	}
	if total > 1.0001 {
		errs = append(errs, "budget allocation exceeds 100%")
	}
	if r.Preferences.Currency != "" {
		c, err := validator.ValidateCurrency(r.Preferences.Currency)
		if err != nil {
			errs = append(errs, err.Error())
		} else {
			r.Preferences.Currency = c
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Problems: errs}
	}
	return nil
}

// QueryFor derives the canonical SearchQuery of one service from the shared trip data.
func (r TripRequest) QueryFor(service ServiceType) SearchQuery {
	q := SearchQuery{
		Service:     service,
		Origin:      r.Origin,
		Destination: r.Destination,
		Dates:       r.Dates,
		Party:       r.Party,
		Preferences: Preferences{
			Currency:         r.Preferences.Currency,
			IncludeProviders: r.Preferences.IncludeProviders,
			ExcludeProviders: r.Preferences.ExcludeProviders,
			Features:         r.Preferences.Features,
		},
	}
	if r.Preferences.TotalBudget > 0 {
		share, ok := r.Preferences.BudgetAllocation[service]
		if !ok {
			share = DefaultBudgetAllocation[service]
		}
		q.Preferences.MaxPrice = r.Preferences.TotalBudget * share
	}

	switch service {
	case ServiceFlight:
		q.Flight = r.Flight
		// return leg handled as a separate search; the trip end date is the stay end.
		q.Dates.End = ""
	case ServiceHotel:
		q.Hotel = r.Hotel
		q.Origin = Location{}
	case ServiceTransport:
		q.Transport = r.Transport
		q.Dates.End = ""
	case ServiceCarRental:
		q.CarRental = r.CarRental
		// pick-up and return at the destination
		q.Origin = r.Destination
		q.Destination = Location{}
	}
	return q
}
