package clustering

import (
	"math/rand"

	"github.com/example/tripthesia-aggregator/internal/geo"
)

const kmeansMaxIterations = 100

// KMeans is Lloyd's algorithm with k-means++ seeding. k is
// min(MaxClusters, n / MinHotelsPerCluster) and the seed makes runs repeatable.
type KMeans struct{}

func (KMeans) Assign(points []geo.Point, opts Options) [][]int {
	opts = opts.withDefaults()
	n := len(points)
	k := min(opts.MaxClusters, n/opts.MinHotelsPerCluster)
	if k <= 0 {
		return nil
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	centroids := seedPlusPlus(points, k, rng)

	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}
	for iter := 0; iter < kmeansMaxIterations; iter++ {
		changed := false
		for i, p := range points {
			best := nearest(p, centroids)
			if best != assign[i] {
				assign[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}
		for c := range centroids {
			var members []geo.Point
			for i, a := range assign {
				if a == c {
					members = append(members, points[i])
				}
			}
			if len(members) > 0 {
				centroids[c] = geo.Centroid(members)
			}
		}
	}

	groups := make([][]int, len(centroids))
	for i, a := range assign {
		groups[a] = append(groups[a], i)
	}
	out := groups[:0]
	for _, g := range groups {
		if len(g) > 0 {
			out = append(out, g)
		}
	}
	return out
}

// seedPlusPlus picks the first centroid uniformly and each next one with probability
// proportional to its squared distance from the nearest centroid chosen so far.
func seedPlusPlus(points []geo.Point, k int, rng *rand.Rand) []geo.Point {
	centroids := []geo.Point{points[rng.Intn(len(points))]}
	d2 := make([]float64, len(points))
	for len(centroids) < k {
		total := 0.0
		for i, p := range points {
			d := geo.HaversineKm(p, centroids[nearest(p, centroids)])
			d2[i] = d * d
			total += d2[i]
		}
		if total == 0 {
			// every remaining point coincides with a centroid
			break
		}
		r := rng.Float64() * total
		pick := len(points) - 1
		for i, w := range d2 {
			r -= w
			if r <= 0 && w > 0 {
				pick = i
				break
			}
		}
		centroids = append(centroids, points[pick])
	}
	return centroids
}

func nearest(p geo.Point, centroids []geo.Point) int {
	best, bestD := 0, -1.0
	for c, cp := range centroids {
		d := geo.HaversineKm(p, cp)
		if bestD < 0 || d < bestD {
			best, bestD = c, d
		}
	}
	return best
}
