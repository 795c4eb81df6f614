package providers

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/example/tripthesia-aggregator/internal/models"
)

// MockProvider simulates a supplier of one service type. It lists a stable share of
// the shared synthetic inventory with a small price spread, so several mocks for the
// same service overlap the way real aggregators' inventory does.
type MockProvider struct {
	name       string
	service    models.ServiceType
	inventory  *Synthetic
	avgLatency float64
	failRate   float64
	spread     float64

	mu  sync.Mutex
	rng *rand.Rand
}

func NewMockProvider(name string, service models.ServiceType, inventory *Synthetic, avgLatency, failRate float64, seedOffset int64) *MockProvider {
	seed := time.Now().UnixNano() + seedOffset
	if inventory == nil {
		inventory = NewSynthetic(nil)
	}
	return &MockProvider{
		name:       name,
		service:    service,
		inventory:  inventory,
		avgLatency: avgLatency,
		failRate:   failRate,
		spread:     0.05,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

func (m *MockProvider) Name() string { return m.name }

func (m *MockProvider) Service() models.ServiceType { return m.service }

func (m *MockProvider) Search(ctx context.Context, q models.SearchQuery) ([]byte, error) {
	m.mu.Lock()
	latency := SampleLatencyFromRng(m.rng, m.avgLatency)
	fail := ShouldFailFromRng(m.rng, m.failRate)
	m.mu.Unlock()

	// variable latency and context cancelable
	select {
	case <-time.After(latency):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if fail {
		return nil, ErrSimulated
	}

	full := m.inventory.Inventory(q)
	out := Response{Provider: m.name, Currency: full.Currency}

	m.mu.Lock()
	defer m.mu.Unlock()
	factor := func() float64 { return 1 + (m.rng.Float64()*2-1)*m.spread }
	for _, f := range full.Flights {
		if carries(m.name, f.ID) {
			jitter(&f.Pricing, factor())
			out.Flights = append(out.Flights, f)
		}
	}
	for _, h := range full.Hotels {
		if carries(m.name, h.HotelID+h.RoomTypeID) {
			jitter(&h.Pricing, factor())
			out.Hotels = append(out.Hotels, h)
		}
	}
	for _, j := range full.Journeys {
		if carries(m.name, j.ID) {
			jitter(&j.Pricing, factor())
			out.Journeys = append(out.Journeys, j)
		}
	}
	for _, c := range full.Cars {
		if carries(m.name, c.VehicleID) {
			jitter(&c.Pricing, factor())
			out.Cars = append(out.Cars, c)
		}
	}
	return json.Marshal(out)
}
