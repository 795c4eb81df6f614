package providers

import (
	"encoding/json"
	"errors"
	"hash/fnv"
	"math/rand"
	"time"
)

// ErrSimulated is returned by mock providers when their failure rate triggers.
var ErrSimulated = errors.New("provider error (simulated)")

func SampleLatencyFromRng(rng *rand.Rand, avg float64) time.Duration {
	ms := float64(50) + rng.ExpFloat64()*avg*200.0
	return time.Duration(ms) * time.Millisecond
}

func ShouldFailFromRng(rng *rand.Rand, rate float64) bool {
	return rng.Float64() < rate
}

// Decode parses a provider payload.
func Decode(raw []byte) (Response, error) {
	var r Response
	if err := json.Unmarshal(raw, &r); err != nil {
		return Response{}, err
	}
	return r, nil
}

// carries reports whether provider name lists the inventory item identified by key.
// Each provider sees a stable three-quarter share so overlaps between providers exist.
func carries(name, key string) bool {
	h := fnv.New32a()
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write([]byte(key))
	return h.Sum32()%4 != 0
}

func jitter(p *Pricing, f float64) {
	p.Price = round2(p.Price * f)
	p.Taxes = round2(p.Taxes * f)
	p.Fees = round2(p.Fees * f)
	if p.OriginalPrice > 0 && p.OriginalPrice <= p.Price {
		p.OriginalPrice = 0
	}
}
