// Package catalog holds the per-category lookup tables (pricing, emissions,
// amenities, ranking thresholds, seasonal patterns) that drive synthetic offers,
// carbon estimates and deal detection.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/example/tripthesia-aggregator/internal/models"
)

//go:embed default.yaml
var defaultTables []byte

type Catalog struct {
	Flight    FlightTables                             `yaml:"flight"`
	Hotel     HotelTables                              `yaml:"hotel"`
	Transport TransportTables                          `yaml:"transport"`
	CarRental CarRentalTables                          `yaml:"carRental"`
	Ranking   map[models.ServiceType]RankingThresholds `yaml:"ranking"`
	Seasonal  map[models.ServiceType][]SeasonalPattern `yaml:"seasonal"`
}

type Airline struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

type FlightTables struct {
	BaseFarePerKm     float64            `yaml:"baseFarePerKm"`
	MinimumFare       float64            `yaml:"minimumFare"`
	DefaultDistanceKm float64            `yaml:"defaultDistanceKm"`
	CruiseSpeedKmh    float64            `yaml:"cruiseSpeedKmh"`
	CabinMultipliers  map[string]float64 `yaml:"cabinMultipliers"`
	EmissionsKgPerKm  map[string]float64 `yaml:"emissionsKgPerKm"`
	PremiumCabins     []string           `yaml:"premiumCabins"`
	Airlines          []Airline          `yaml:"airlines"`
}

type PriceRange struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

type RoomType struct {
	ID         string  `yaml:"id"`
	Name       string  `yaml:"name"`
	Multiplier float64 `yaml:"multiplier"`
}

type HotelTables struct {
	StarRates           map[int]PriceRange `yaml:"starRates"`
	EmissionsKgPerNight map[int]float64    `yaml:"emissionsKgPerNight"`
	PremiumMinStars     int                `yaml:"premiumMinStars"`
	Amenities           map[int][]string   `yaml:"amenities"`
	RoomTypes           []RoomType         `yaml:"roomTypes"`
	NamePrefixes        []string           `yaml:"namePrefixes"`
	NameSuffixes        []string           `yaml:"nameSuffixes"`
	Districts           []string           `yaml:"districts"`
	SpreadKm            float64            `yaml:"spreadKm"`
}

type TransportMode struct {
	RatePerKm        float64  `yaml:"ratePerKm"`
	SpeedKmh         float64  `yaml:"speedKmh"`
	EmissionsKgPerKm float64  `yaml:"emissionsKgPerKm"`
	Operators        []string `yaml:"operators"`
	PremiumClass     string   `yaml:"premiumClass"`
}

type TransportTables struct {
	DefaultDistanceKm float64                  `yaml:"defaultDistanceKm"`
	Modes             map[string]TransportMode `yaml:"modes"`
}

type CarCategory struct {
	DailyRate         float64  `yaml:"dailyRate"`
	Seats             int      `yaml:"seats"`
	EmissionsKgPerDay float64  `yaml:"emissionsKgPerDay"`
	Premium           bool     `yaml:"premium"`
	Models            []string `yaml:"models"`
}

type CarRentalTables struct {
	Suppliers  []string               `yaml:"suppliers"`
	Categories map[string]CarCategory `yaml:"categories"`
}

// RankingThresholds are the bucket widths below which the ranker treats two
// values as equal: price in currency units, secondary in minutes or rating points.
type RankingThresholds struct {
	Price     float64 `yaml:"price"`
	Secondary float64 `yaml:"secondary"`
}

type SeasonalPattern struct {
	Name             string  `yaml:"name"`
	Months           []int   `yaml:"months"`
	ExpectedDiscount float64 `yaml:"expectedDiscount"`
}

// Default returns the embedded tables. It panics only if the embedded file is broken.
func Default() *Catalog {
	c, err := parse(defaultTables, nil)
	if err != nil {
		panic("catalog: embedded defaults: " + err.Error())
	}
	return c
}

// Load parses the embedded tables and overlays the optional file at path.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return parse(defaultTables, nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("catalog file %s not found: %w", path, err)
		}
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return parse(defaultTables, data)
}

func parse(base, overlay []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(base, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if overlay != nil {
		if err := yaml.Unmarshal(overlay, &c); err != nil {
			return nil, fmt.Errorf("parse catalog overlay: %w", err)
		}
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	switch {
	case len(c.Flight.CabinMultipliers) == 0:
		return errors.New("catalog: flight cabin multipliers missing")
	case len(c.Flight.Airlines) == 0:
		return errors.New("catalog: no airlines")
	case len(c.Hotel.StarRates) == 0:
		return errors.New("catalog: hotel star rates missing")
	case len(c.Hotel.RoomTypes) == 0:
		return errors.New("catalog: hotel room types missing")
	case len(c.Transport.Modes) == 0:
		return errors.New("catalog: transport modes missing")
	case len(c.CarRental.Categories) == 0 || len(c.CarRental.Suppliers) == 0:
		return errors.New("catalog: car rental tables missing")
	}
	for st, r := range c.StarRatesSorted() {
		if r.Min <= 0 || r.Max < r.Min {
			return fmt.Errorf("catalog: invalid price range for %d stars", st+1)
		}
	}
	return nil
}

// StarRatesSorted returns star price ranges ordered 1..5; missing stars get a zero range.
func (c *Catalog) StarRatesSorted() []PriceRange {
	out := make([]PriceRange, 0, 5)
	for s := 1; s <= 5; s++ {
		if r, ok := c.Hotel.StarRates[s]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Thresholds returns the ranking bucket widths for a service with safe fallbacks.
func (c *Catalog) Thresholds(service models.ServiceType) RankingThresholds {
	t, ok := c.Ranking[service]
	if !ok || t.Price <= 0 {
		t.Price = 1
	}
	if t.Secondary <= 0 {
		t.Secondary = 1
	}
	return t
}

// SeasonalFor returns the pattern active in month for the service, if any.
func (c *Catalog) SeasonalFor(service models.ServiceType, month int) (SeasonalPattern, bool) {
	for _, p := range c.Seasonal[service] {
		for _, m := range p.Months {
			if m == month {
				return p, true
			}
		}
	}
	return SeasonalPattern{}, false
}

func (c *Catalog) IsPremiumCabin(cabin string) bool {
	for _, p := range c.Flight.PremiumCabins {
		if p == cabin {
			return true
		}
	}
	return false
}

// FlightEmissionFactor returns kg CO2 per passenger-km for a cabin, defaulting to economy.
func (c *Catalog) FlightEmissionFactor(cabin string) float64 {
	if f, ok := c.Flight.EmissionsKgPerKm[cabin]; ok {
		return f
	}
	return c.Flight.EmissionsKgPerKm["economy"]
}
