package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/example/tripthesia-aggregator/internal/catalog"
	"github.com/example/tripthesia-aggregator/internal/geo"
	"github.com/example/tripthesia-aggregator/internal/models"
)

// SyntheticName labels offers produced by the fallback generator.
const SyntheticName = "synthetic"

// Synthetic generates plausible inventory from the catalog tables, seeded from the
// query so identical queries yield identical inventory. It is used as the degraded-mode
// fallback strategy and as the inventory source of the mock providers.
type Synthetic struct {
	cat    *catalog.Catalog
	now    func() time.Time
	counts map[models.ServiceType]int
}

func NewSynthetic(cat *catalog.Catalog) *Synthetic {
	if cat == nil {
		cat = catalog.Default()
	}
	return &Synthetic{
		cat: cat,
		now: time.Now,
		counts: map[models.ServiceType]int{
			models.ServiceFlight:    10,
			models.ServiceHotel:     15,
			models.ServiceTransport: 6,
			models.ServiceCarRental: 8,
		},
	}
}

// WithClock replaces the clock used for validity windows.
func (s *Synthetic) WithClock(now func() time.Time) *Synthetic {
	s.now = now
	return s
}

// WithCount overrides how many items are generated for a service.
func (s *Synthetic) WithCount(service models.ServiceType, n int) *Synthetic {
	s.counts[service] = n
	return s
}

func (s *Synthetic) Name() string { return SyntheticName }

// Generate satisfies the fallback strategy: the full inventory, JSON encoded.
func (s *Synthetic) Generate(ctx context.Context, q models.SearchQuery) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp := s.Inventory(q)
	resp.Provider = SyntheticName
	return json.Marshal(resp)
}

// Inventory builds the deterministic item set for q.
func (s *Synthetic) Inventory(q models.SearchQuery) Response {
	rng := rand.New(rand.NewSource(Seed(q)))
	resp := Response{Currency: q.Currency()}
	n := s.counts[q.Service]
	switch q.Service {
	case models.ServiceFlight:
		resp.Flights = s.flights(q, rng, n)
	case models.ServiceHotel:
		resp.Hotels = s.hotels(q, rng, n)
	case models.ServiceTransport:
		resp.Journeys = s.journeys(q, rng, n)
	case models.ServiceCarRental:
		resp.Cars = s.cars(q, rng, n)
	}
	return resp
}

// Seed hashes the query's canonical key.
func Seed(q models.SearchQuery) int64 {
	h := fnv.New64a()
	h.Write([]byte(q.CacheKey()))
	return int64(h.Sum64() & math.MaxInt64)
}

func hashFrac(s string) float64 {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(s)))
	return float64(h.Sum32()%10000) / 10000
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func between(rng *rand.Rand, lo, hi float64) float64 { return lo + rng.Float64()*(hi-lo) }

func (s *Synthetic) distanceKm(q models.SearchQuery, fallback float64) float64 {
	if q.Origin.Coordinates != nil && q.Destination.Coordinates != nil {
		d := geo.HaversineKm(
			geo.Point{Lat: q.Origin.Coordinates.Lat, Lng: q.Origin.Coordinates.Lng},
			geo.Point{Lat: q.Destination.Coordinates.Lat, Lng: q.Destination.Coordinates.Lng},
		)
		if d > 1 {
			return d
		}
	}
	return fallback * (0.5 + hashFrac(q.Route()))
}

func code(l models.Location) string {
	if l.Code != "" {
		return strings.ToUpper(l.Code)
	}
	name := strings.ToUpper(strings.ReplaceAll(l.Name, " ", ""))
	if len(name) >= 3 {
		return name[:3]
	}
	return name + strings.Repeat("X", 3-len(name))
}

func (s *Synthetic) pricing(rng *rand.Rand, total float64, currency string, validFor time.Duration, carbon float64) Pricing {
	total = round2(total)
	taxes := round2(total * 0.12)
	fees := round2(total * 0.03)
	expires := s.now().Add(validFor).UTC().Truncate(time.Second)
	p := Pricing{
		Price:     total,
		Taxes:     taxes,
		Fees:      fees,
		Currency:  currency,
		ExpiresAt: &expires,
		CarbonKg:  round2(carbon),
	}
	if rng.Float64() < 0.25 {
		p.OriginalPrice = round2(total * between(rng, 1.1, 1.6))
	}
	if rng.Float64() < 0.1 {
		p.Flash = true
		short := s.now().Add(time.Duration(2+rng.Intn(10)) * time.Hour).UTC().Truncate(time.Second)
		p.ExpiresAt = &short
	}
	return p
}

func (s *Synthetic) flights(q models.SearchQuery, rng *rand.Rand, n int) []FlightItem {
	dist := s.distanceKm(q, s.cat.Flight.DefaultDistanceKm)
	cabin := "economy"
	if q.Flight != nil && q.Flight.CabinClass != "" {
		cabin = strings.ToLower(q.Flight.CabinClass)
	}
	mult, ok := s.cat.Flight.CabinMultipliers[cabin]
	if !ok {
		mult = 1
	}
	payers := float64(q.Party.Adults) + 0.75*float64(q.Party.Children) + 0.1*float64(q.Party.Infants)
	from, to := code(q.Origin), code(q.Destination)
	day := q.Dates.StartTime()

	out := make([]FlightItem, 0, n)
	for i := 0; i < n; i++ {
		al := s.cat.Flight.Airlines[rng.Intn(len(s.cat.Flight.Airlines))]
		stops := 0
		switch r := rng.Float64(); {
		case r > 0.9:
			stops = 2
		case r > 0.55:
			stops = 1
		}
		depart := day.Add(time.Duration(6*60+rng.Intn(16*60)) * time.Minute)
		flyMinutes := dist/s.cat.Flight.CruiseSpeedKmh*60 + 30
		layover := 0
		for j := 0; j < stops; j++ {
			layover += 60 + rng.Intn(90)
		}

		segs := make([]SegmentItem, 0, stops+1)
		points := []string{from}
		for j := 0; j < stops; j++ {
			points = append(points, fmt.Sprintf("H%s%d", al.Code, j+1))
		}
		points = append(points, to)
		legMinutes := flyMinutes / float64(stops+1)
		cursor := depart
		for j := 0; j+1 < len(points); j++ {
			arrive := cursor.Add(time.Duration(legMinutes) * time.Minute)
			segs = append(segs, SegmentItem{
				FlightNumber: fmt.Sprintf("%s%d", al.Code, 100+rng.Intn(8900)),
				Carrier:      al.Code,
				From:         points[j],
				To:           points[j+1],
				Departure:    cursor.UTC(),
				Arrival:      arrive.UTC(),
			})
			if j < stops {
				cursor = arrive.Add(time.Duration(layover/stops) * time.Minute)
			}
		}

		fare := math.Max(s.cat.Flight.MinimumFare, dist*s.cat.Flight.BaseFarePerKm) * mult * between(rng, 0.8, 1.4)
		fare *= 1 - 0.08*float64(stops)
		carbon := dist * s.cat.FlightEmissionFactor(cabin) * float64(q.Party.Travellers()) * (1 + 0.1*float64(stops))
		baggage := cabin != "economy" || rng.Float64() < 0.5

		item := FlightItem{
			Pricing:     s.pricing(rng, fare*payers, q.Currency(), time.Duration(20+rng.Intn(100))*time.Minute, carbon),
			ID:          fmt.Sprintf("%s-%s%s-%d", al.Code, from, to, i),
			Airline:     al.Code,
			AirlineName: al.Name,
			CabinClass:  cabin,
			Segments:    segs,
			Baggage:     &baggage,
			SeatsLeft:   1 + rng.Intn(9),
		}
		out = append(out, item)
	}
	return out
}

func (s *Synthetic) hotelCenter(q models.SearchQuery) geo.Point {
	if c := q.Destination.Coordinates; c != nil {
		return geo.Point{Lat: c.Lat, Lng: c.Lng}
	}
	key := q.Destination.Code + q.Destination.Name
	return geo.Point{Lat: -50 + 100*hashFrac(key+"lat"), Lng: -170 + 340*hashFrac(key+"lng")}
}

func (s *Synthetic) hotels(q models.SearchQuery, rng *rand.Rand, n int) []HotelItem {
	center := s.hotelCenter(q)
	nights := q.Dates.Nights()
	rooms := q.Party.Rooms
	if rooms < 1 {
		rooms = 1
	}
	districts := s.cat.Hotel.Districts
	// a handful of neighbourhood centres so inventory clusters realistically
	type hub struct {
		name string
		at   geo.Point
	}
	hubs := make([]hub, 0, 3)
	for i := 0; i < 3 && i < len(districts); i++ {
		angle := float64(i) * 2 * math.Pi / 3
		dist := s.cat.Hotel.SpreadKm * 0.5
		hubs = append(hubs, hub{
			name: districts[(int(hashFrac(q.Destination.Name)*100)+i)%len(districts)],
			at:   geo.Offset(center, dist*math.Cos(angle), dist*math.Sin(angle)),
		})
	}
	if len(hubs) == 0 {
		hubs = append(hubs, hub{name: "Centre", at: center})
	}

	out := make([]HotelItem, 0, n)
	for i := 0; i < n; i++ {
		stars := 1 + rng.Intn(5)
		if q.Hotel != nil && q.Hotel.MinStars > stars && rng.Float64() < 0.5 {
			stars = q.Hotel.MinStars
		}
		band := s.cat.Hotel.StarRates[stars]
		room := s.cat.Hotel.RoomTypes[rng.Intn(len(s.cat.Hotel.RoomTypes))]
		nightly := round2(between(rng, band.Min, band.Max) * room.Multiplier)

		h := hubs[i%len(hubs)]
		at := geo.Offset(h.at, rng.NormFloat64()*0.6, rng.NormFloat64()*0.6)
		lat, lng := at.Lat, at.Lng

		amenities := append([]string(nil), s.cat.Hotel.Amenities[stars]...)
		if up := s.cat.Hotel.Amenities[stars+1]; len(up) > len(amenities) && rng.Float64() < 0.3 {
			amenities = append(amenities, up[len(amenities)])
		}
		sort.Strings(amenities)

		guest := math.Min(10, 5.8+0.7*float64(stars)+rng.Float64()*1.2)
		cats := map[string]float64{
			"cleanliness": round1(math.Min(10, guest+between(rng, -0.6, 0.6))),
			"location":    round1(math.Min(10, guest+between(rng, -0.8, 0.8))),
			"service":     round1(math.Min(10, guest+between(rng, -0.6, 0.6))),
			"value":       round1(math.Min(10, guest+between(rng, -1.0, 0.5))),
		}
		total := nightly * float64(nights) * float64(rooms)
		carbon := s.cat.Hotel.EmissionsKgPerNight[stars] * float64(nights) * float64(rooms)
		free := rng.Float64() < 0.6
		hotelID := fmt.Sprintf("H%04d", int(hashFrac(q.Destination.Name+fmt.Sprint(i))*9000)+1000+i)

		out = append(out, HotelItem{
			Pricing:          s.pricing(rng, total, q.Currency(), time.Duration(30+rng.Intn(90))*time.Minute, carbon),
			HotelID:          hotelID,
			Name:             s.hotelName(rng, h.name),
			RoomTypeID:       room.ID,
			RoomType:         room.Name,
			Stars:            stars,
			GuestRating:      round1(guest),
			CategoryRatings:  cats,
			Lat:              &lat,
			Lng:              &lng,
			District:         h.name,
			Amenities:        amenities,
			PricePerNight:    nightly,
			Nights:           nights,
			FreeCancellation: &free,
		})
	}
	return out
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func (s *Synthetic) hotelName(rng *rand.Rand, district string) string {
	pre, suf := "City", "Hotel"
	if len(s.cat.Hotel.NamePrefixes) > 0 {
		pre = s.cat.Hotel.NamePrefixes[rng.Intn(len(s.cat.Hotel.NamePrefixes))]
	}
	if len(s.cat.Hotel.NameSuffixes) > 0 {
		suf = s.cat.Hotel.NameSuffixes[rng.Intn(len(s.cat.Hotel.NameSuffixes))]
	}
	return fmt.Sprintf("%s %s %s", pre, district, suf)
}

func (s *Synthetic) journeys(q models.SearchQuery, rng *rand.Rand, n int) []JourneyItem {
	dist := s.distanceKm(q, s.cat.Transport.DefaultDistanceKm)
	modes := s.modeNames()
	if q.Transport != nil && len(q.Transport.Modes) > 0 {
		var wanted []string
		for _, m := range q.Transport.Modes {
			if _, ok := s.cat.Transport.Modes[strings.ToLower(m)]; ok {
				wanted = append(wanted, strings.ToLower(m))
			}
		}
		if len(wanted) > 0 {
			modes = wanted
		}
	}
	from, to := code(q.Origin), code(q.Destination)
	day := q.Dates.StartTime()
	travellers := float64(q.Party.Adults) + 0.5*float64(q.Party.Children)

	out := make([]JourneyItem, 0, n)
	for i := 0; i < n; i++ {
		mode := modes[i%len(modes)]
		table := s.cat.Transport.Modes[mode]
		operator := table.Operators[rng.Intn(len(table.Operators))]
		changes := 0
		if rng.Float64() < 0.35 {
			changes = 1
		}
		depart := day.Add(time.Duration(5*60+rng.Intn(17*60)) * time.Minute)
		minutes := dist/table.SpeedKmh*60 + float64(changes*25)
		legs := make([]LegItem, 0, changes+1)
		points := []string{from}
		if changes > 0 {
			points = append(points, fmt.Sprintf("%s-X", from))
		}
		points = append(points, to)
		cursor := depart
		per := time.Duration(minutes/float64(len(points)-1)) * time.Minute
		for j := 0; j+1 < len(points); j++ {
			legs = append(legs, LegItem{
				Mode:      mode,
				Operator:  operator,
				ServiceNo: fmt.Sprintf("%s%d", strings.ToUpper(mode[:1]), 100+rng.Intn(900)),
				From:      points[j],
				To:        points[j+1],
				Departure: cursor.UTC(),
				Arrival:   cursor.Add(per).UTC(),
			})
			cursor = cursor.Add(per + 10*time.Minute)
		}
		class := "standard"
		premium := 1.0
		if rng.Float64() < 0.25 && table.PremiumClass != "" {
			class = table.PremiumClass
			premium = 1.6
		}
		fare := dist * table.RatePerKm * between(rng, 0.8, 1.3) * premium * math.Max(1, travellers)
		carbon := dist * table.EmissionsKgPerKm * float64(q.Party.Travellers())
		out = append(out, JourneyItem{
			Pricing:  s.pricing(rng, fare, q.Currency(), time.Duration(45+rng.Intn(120))*time.Minute, carbon),
			ID:       fmt.Sprintf("%s-%s%s-%d", mode, from, to, i),
			Mode:     mode,
			Operator: operator,
			Class:    class,
			Legs:     legs,
		})
	}
	return out
}

func (s *Synthetic) modeNames() []string {
	out := make([]string, 0, len(s.cat.Transport.Modes))
	for m := range s.cat.Transport.Modes {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func (s *Synthetic) categoryNames() []string {
	out := make([]string, 0, len(s.cat.CarRental.Categories))
	for c := range s.cat.CarRental.Categories {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func (s *Synthetic) cars(q models.SearchQuery, rng *rand.Rand, n int) []CarItem {
	days := q.Dates.Nights()
	categories := s.categoryNames()
	pickup := code(q.Origin)

	out := make([]CarItem, 0, n)
	for i := 0; i < n; i++ {
		catName := categories[rng.Intn(len(categories))]
		if q.CarRental != nil && q.CarRental.Category != "" && rng.Float64() < 0.4 {
			if _, ok := s.cat.CarRental.Categories[strings.ToLower(q.CarRental.Category)]; ok {
				catName = strings.ToLower(q.CarRental.Category)
			}
		}
		cat := s.cat.CarRental.Categories[catName]
		supplier := s.cat.CarRental.Suppliers[rng.Intn(len(s.cat.CarRental.Suppliers))]
		daily := round2(cat.DailyRate * between(rng, 0.85, 1.25))
		transmission := "automatic"
		if rng.Float64() < 0.4 {
			transmission = "manual"
		}
		item := CarItem{
			Pricing:        s.pricing(rng, daily*float64(days), q.Currency(), time.Duration(60+rng.Intn(120))*time.Minute, cat.EmissionsKgPerDay*float64(days)),
			VehicleID:      fmt.Sprintf("%s-%s-%s-%d", strings.ToUpper(supplier[:2]), pickup, strings.ToUpper(catName[:3]), i),
			Model:          cat.Models[rng.Intn(len(cat.Models))],
			Category:       catName,
			Transmission:   transmission,
			Seats:          cat.Seats,
			SupplierRating: round1(between(rng, 3.2, 5.0)),
			DailyRate:      daily,
			Days:           days,
		}
		// some suppliers omit policy data; the normalizer fills defaults
		if rng.Float64() < 0.7 {
			item.FuelPolicy = []string{"full_to_full", "same_to_same", "pre_purchase"}[rng.Intn(3)]
			item.Mileage = "unlimited"
			item.MinDriverAge = []int{21, 23, 25}[rng.Intn(3)]
		}
		out = append(out, item)
	}
	return out
}
