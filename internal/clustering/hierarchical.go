package clustering

import (
	"sort"

	"github.com/example/tripthesia-aggregator/internal/geo"
)

// Hierarchical is agglomerative clustering with centroid linkage. It merges the two
// closest clusters until MaxClusters remain or the closest pair lies further apart
// than MaxRadiusKm.
type Hierarchical struct{}

type agglomerate struct {
	members  []int
	centroid geo.Point
}

func (Hierarchical) Assign(points []geo.Point, opts Options) [][]int {
	opts = opts.withDefaults()
	clusters := make([]agglomerate, len(points))
	for i, p := range points {
		clusters[i] = agglomerate{members: []int{i}, centroid: p}
	}

	for len(clusters) > opts.MaxClusters {
		a, b, d := closestPair(clusters)
		if d > opts.MaxRadiusKm {
			break
		}
		merged := append(append([]int(nil), clusters[a].members...), clusters[b].members...)
		sort.Ints(merged)
		pts := make([]geo.Point, len(merged))
		for i, m := range merged {
			pts[i] = points[m]
		}
		clusters[a] = agglomerate{members: merged, centroid: geo.Centroid(pts)}
		clusters = append(clusters[:b], clusters[b+1:]...)
	}

	out := make([][]int, 0, len(clusters))
	for _, c := range clusters {
		out = append(out, c.members)
	}
	return out
}

// closestPair returns indexes a < b of the nearest centroids; ties keep the first pair found.
func closestPair(clusters []agglomerate) (int, int, float64) {
	ba, bb, bd := 0, 1, -1.0
	for i := 0; i < len(clusters); i++ {
		for j := i + 1; j < len(clusters); j++ {
			d := geo.HaversineKm(clusters[i].centroid, clusters[j].centroid)
			if bd < 0 || d < bd {
				ba, bb, bd = i, j, d
			}
		}
	}
	return ba, bb, bd
}
