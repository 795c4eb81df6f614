package search

import "github.com/example/tripthesia-aggregator/internal/models"

// Dedup keeps the first offer observed per inventory key. Applying it twice is a no-op.
func Dedup(offers []models.Offer) []models.Offer {
	seen := make(map[string]struct{}, len(offers))
	out := make([]models.Offer, 0, len(offers))
	for _, o := range offers {
		k := o.DedupKey()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, o)
	}
	return out
}
