package clustering

import (
	"fmt"
	"testing"

	"github.com/example/tripthesia-aggregator/internal/geo"
	"github.com/example/tripthesia-aggregator/internal/models"
)

var paris = geo.Point{Lat: 48.8566, Lng: 2.3522}

// hotelsAround places n hotels on a small ring around each centre.
func hotelsAround(centres []geo.Point, n int, ringKm float64) []*models.HotelOffer {
	var out []*models.HotelOffer
	for ci, c := range centres {
		for i := 0; i < n; i++ {
			north := ringKm * float64((i%3)-1)
			east := ringKm * float64((i/3)%3-1)
			p := geo.Offset(c, north, east)
			out = append(out, &models.HotelOffer{
				OfferCore:   models.OfferCore{ID: fmt.Sprintf("h%d-%d", ci, i)},
				HotelID:     fmt.Sprintf("H%d%d", ci, i),
				Coordinates: &models.Coordinates{Lat: p.Lat, Lng: p.Lng},
				NightlyRate: 100 + float64(i*10),
				GuestRating: 8,
				StarRating:  3,
				District:    fmt.Sprintf("District %d", ci),
				Amenities:   []string{"wifi"},
			})
		}
	}
	return out
}

func threeAreas() []geo.Point {
	return []geo.Point{
		paris,
		geo.Offset(paris, 12, 0),
		geo.Offset(paris, 0, 15),
	}
}

func TestStrategies_RespectRadiusAndMinSize(t *testing.T) {
	hotels := hotelsAround(threeAreas(), 5, 0.4)
	// a lone outlier that can never form a valid cluster
	far := geo.Offset(paris, -30, -30)
	hotels = append(hotels, &models.HotelOffer{
		OfferCore:   models.OfferCore{ID: "outlier"},
		Coordinates: &models.Coordinates{Lat: far.Lat, Lng: far.Lng},
		NightlyRate: 90,
	})
	opts := Options{MaxClusters: 5, MinHotelsPerCluster: 3, MaxRadiusKm: 2, Seed: 7}

	for name, strategy := range map[string]Assigner{"kmeans": KMeans{}, "dbscan": DBSCAN{}, "hierarchical": Hierarchical{}} {
		t.Run(name, func(t *testing.T) {
			clusters := NewGeographic(strategy, opts).Cluster(hotels)
			if len(clusters) == 0 {
				t.Fatal("expected at least one cluster")
			}
			for _, c := range clusters {
				if c.Size < opts.MinHotelsPerCluster {
					t.Errorf("cluster %s has %d members", c.ID, c.Size)
				}
				for _, h := range c.Members {
					d := geo.HaversineKm(c.Centroid, geo.Point{Lat: h.Coordinates.Lat, Lng: h.Coordinates.Lng})
					if d > opts.MaxRadiusKm {
						t.Errorf("member %s is %.2f km from centroid", h.ID, d)
					}
					if h.ID == "outlier" {
						t.Errorf("outlier must not be clustered")
					}
				}
			}
		})
	}
}

func TestDBSCAN_FindsDenseAreas(t *testing.T) {
	hotels := hotelsAround(threeAreas(), 5, 0.4)
	clusters := NewGeographic(DBSCAN{}, Options{MaxClusters: 5, MinHotelsPerCluster: 3, MaxRadiusKm: 2}).Cluster(hotels)
	if len(clusters) != 3 {
		t.Fatalf("expected 3 clusters, got %d", len(clusters))
	}
	for _, c := range clusters {
		if c.Size != 5 {
			t.Errorf("expected 5 members, got %d", c.Size)
		}
	}
}

func TestHierarchical_StopsAtMaxClusters(t *testing.T) {
	points := []geo.Point{paris, geo.Offset(paris, 0.2, 0), geo.Offset(paris, 0.4, 0), geo.Offset(paris, 0.6, 0)}
	groups := Hierarchical{}.Assign(points, Options{MaxClusters: 2, MinHotelsPerCluster: 1, MaxRadiusKm: 5})
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
}

func TestHierarchical_StopsAtRadius(t *testing.T) {
	points := []geo.Point{paris, geo.Offset(paris, 20, 0), geo.Offset(paris, 0, 20)}
	groups := Hierarchical{}.Assign(points, Options{MaxClusters: 1, MinHotelsPerCluster: 1, MaxRadiusKm: 5})
	if len(groups) != 3 {
		t.Fatalf("expected no merges, got %d groups", len(groups))
	}
}

func TestKMeans_Deterministic(t *testing.T) {
	hotels := hotelsAround(threeAreas(), 4, 0.3)
	var points []geo.Point
	for _, h := range hotels {
		points = append(points, geo.Point{Lat: h.Coordinates.Lat, Lng: h.Coordinates.Lng})
	}
	opts := Options{MaxClusters: 3, MinHotelsPerCluster: 2, MaxRadiusKm: 3, Seed: 11}
	a := KMeans{}.Assign(points, opts)
	b := KMeans{}.Assign(points, opts)
	if fmt.Sprint(a) != fmt.Sprint(b) {
		t.Fatalf("expected identical assignments, got %v and %v", a, b)
	}
}

func TestKMeans_TooFewPoints(t *testing.T) {
	if got := (KMeans{}).Assign([]geo.Point{paris}, Options{MinHotelsPerCluster: 2}); got != nil {
		t.Fatalf("expected no groups, got %v", got)
	}
}

func TestCluster_SkipsHotelsWithoutCoordinates(t *testing.T) {
	hotels := hotelsAround([]geo.Point{paris}, 4, 0.2)
	hotels = append(hotels, &models.HotelOffer{OfferCore: models.OfferCore{ID: "nowhere"}})
	clusters := NewGeographic(KMeans{}, Options{MaxClusters: 1, MinHotelsPerCluster: 2, MaxRadiusKm: 3}).Cluster(hotels)
	if len(clusters) != 1 || clusters[0].Size != 4 {
		t.Fatalf("unexpected clusters %+v", clusters)
	}
	if clusters[0].Label != "District 0" {
		t.Errorf("label = %q", clusters[0].Label)
	}
	if clusters[0].RatingDistribution["3"] != 4 {
		t.Errorf("rating distribution = %v", clusters[0].RatingDistribution)
	}
}

func TestStrategyByName(t *testing.T) {
	for _, name := range []string{"kmeans", "dbscan", "hierarchical"} {
		if _, err := StrategyByName(name); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
	if _, err := StrategyByName("voronoi"); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestCluster_RadiusLimitUsesExactDistance(t *testing.T) {
	pair := func(km float64) []*models.HotelOffer {
		var out []*models.HotelOffer
		for i, north := range []float64{km, -km} {
			p := geo.Offset(paris, north, 0)
			out = append(out, &models.HotelOffer{
				OfferCore:   models.OfferCore{ID: fmt.Sprintf("edge-%d", i)},
				Coordinates: &models.Coordinates{Lat: p.Lat, Lng: p.Lng},
				NightlyRate: 100,
			})
		}
		return out
	}
	opts := Options{MaxClusters: 1, MinHotelsPerCluster: 2, MaxRadiusKm: 5, Seed: 1}
	g := NewGeographic(KMeans{}, opts)

	if got := g.Cluster(pair(5.004)); len(got) != 0 {
		t.Fatalf("members 5.004 km out must exceed a 5 km limit, got radius %v", got[0].RadiusKm)
	}
	got := g.Cluster(pair(4.996))
	if len(got) != 1 {
		t.Fatalf("members 4.996 km out fit a 5 km limit, got %d clusters", len(got))
	}
	for _, h := range got[0].Members {
		c := geo.Point{Lat: h.Coordinates.Lat, Lng: h.Coordinates.Lng}
		if d := geo.HaversineKm(got[0].Centroid, c); d > opts.MaxRadiusKm {
			t.Errorf("member %s at %.4f km exceeds the limit", h.ID, d)
		}
	}
}
