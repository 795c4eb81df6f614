package clustering

import "github.com/example/tripthesia-aggregator/internal/geo"

// DBSCAN grows clusters from core points whose neighbourhood (haversine distance at
// most half the max radius) holds at least MinPoints hotels. Points never reached from
// a core point are noise.
type DBSCAN struct{}

const (
	unvisited = 0
	noise     = -1
)

func (DBSCAN) Assign(points []geo.Point, opts Options) [][]int {
	opts = opts.withDefaults()
	eps := opts.MaxRadiusKm / 2
	labels := make([]int, len(points))
	cluster := 0

	for i := range points {
		if labels[i] != unvisited {
			continue
		}
		neighbours := regionQuery(points, i, eps)
		if len(neighbours) < opts.MinPoints {
			labels[i] = noise
			continue
		}
		cluster++
		labels[i] = cluster
		queue := append([]int(nil), neighbours...)
		for len(queue) > 0 {
			q := queue[0]
			queue = queue[1:]
			if labels[q] == noise {
				labels[q] = cluster
			}
			if labels[q] != unvisited {
				continue
			}
			labels[q] = cluster
			if next := regionQuery(points, q, eps); len(next) >= opts.MinPoints {
				queue = append(queue, next...)
			}
		}
	}

	groups := make([][]int, cluster)
	for i, l := range labels {
		if l > 0 {
			groups[l-1] = append(groups[l-1], i)
		}
	}
	return groups
}

func regionQuery(points []geo.Point, i int, eps float64) []int {
	var out []int
	for j, p := range points {
		if geo.HaversineKm(points[i], p) <= eps {
			out = append(out, j)
		}
	}
	return out
}
