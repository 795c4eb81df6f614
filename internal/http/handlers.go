package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/tripthesia-aggregator/internal/clustering"
	"github.com/example/tripthesia-aggregator/internal/deals"
	"github.com/example/tripthesia-aggregator/internal/models"
	"github.com/example/tripthesia-aggregator/internal/search"
	"github.com/example/tripthesia-aggregator/internal/trip"
)

// SearchEngine runs the single-service pipeline. *search.Engine implements it.
type SearchEngine interface {
	Search(ctx context.Context, q models.SearchQuery) (search.SearchResult, error)
}

// TripSearcher runs multi-service trip searches. *trip.Orchestrator implements it.
type TripSearcher interface {
	Search(ctx context.Context, req models.TripRequest) (trip.Result, error)
}

// DealService detects deals and keeps price history. *deals.Detector implements it.
type DealService interface {
	Process(ctx context.Context, userID string, offers []models.Offer) ([]deals.Deal, []deals.Alert)
	Record(key deals.HistoryKey, points ...deals.PricePoint) deals.Record
	History(key deals.HistoryKey) (deals.Record, bool)
}

// AlertStreamer upgrades a request into an alert subscription. *notify.Hub implements it.
type AlertStreamer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, userID string) error
}

type Deps struct {
	Engine     SearchEngine
	Trips      TripSearcher
	Deals      DealService
	Alerts     AlertStreamer
	Clustering clustering.Options
	Strategy   string
	BudgetBand float64
	LuxuryBand float64
}

type Handler struct {
	engine     SearchEngine
	trips      TripSearcher
	deals      DealService
	alerts     AlertStreamer
	clustering clustering.Options
	strategy   string
	budget     float64
	luxury     float64
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		engine:     d.Engine,
		trips:      d.Trips,
		deals:      d.Deals,
		alerts:     d.Alerts,
		clustering: d.Clustering,
		strategy:   d.Strategy,
		budget:     d.BudgetBand,
		luxury:     d.LuxuryBand,
	}
}

// Search handles POST /v1/search/{service}. The path decides the service type.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	st, err := models.ParseServiceType(chi.URLParam(r, "service"))
	if err != nil {
		NotFound(w, err.Error(), RequestMeta(r))
		return
	}
	var q models.SearchQuery
	if err := decodeJSON(w, r, &q); err != nil {
		BadRequest(w, err.Error(), RequestMeta(r))
		return
	}
	q.Service = st

	res, err := h.engine.Search(r.Context(), q)
	if err != nil {
		writeSearchError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// SearchTrip handles POST /v1/trips/search. Branch failures are part of a 200 answer.
func (h *Handler) SearchTrip(w http.ResponseWriter, r *http.Request) {
	var req models.TripRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequest(w, err.Error(), RequestMeta(r))
		return
	}
	res, err := h.trips.Search(r.Context(), req)
	if err != nil {
		writeSearchError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

type clusterRequest struct {
	Query           models.SearchQuery  `json:"query"`
	Strategy        string              `json:"strategy,omitempty"`
	Options         *clustering.Options `json:"options,omitempty"`
	BudgetThreshold float64             `json:"budgetThreshold,omitempty"`
	LuxuryThreshold float64             `json:"luxuryThreshold,omitempty"`
}

type clusterResponse struct {
	Clusters   []clustering.Cluster   `json:"clusters"`
	PriceBands []clustering.PriceBand `json:"priceBands"`
	Meta       search.Meta            `json:"meta"`
}

// Clusters handles POST /v1/hotels/clusters: a hotel search regrouped with caller
// supplied clustering options and price band thresholds.
func (h *Handler) Clusters(w http.ResponseWriter, r *http.Request) {
	var req clusterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequest(w, err.Error(), RequestMeta(r))
		return
	}
	strategyName := req.Strategy
	if strategyName == "" {
		strategyName = h.strategy
	}
	strategy, err := clustering.StrategyByName(strategyName)
	if err != nil {
		BadRequest(w, err.Error(), RequestMeta(r))
		return
	}
	opts := h.clustering
	if req.Options != nil {
		opts = *req.Options
	}
	budget, luxury := h.budget, h.luxury
	if req.BudgetThreshold > 0 || req.LuxuryThreshold > 0 {
		budget, luxury = req.BudgetThreshold, req.LuxuryThreshold
	}
	if budget <= 0 || luxury <= budget {
		BadRequest(w, "price bands require 0 < budgetThreshold < luxuryThreshold", RequestMeta(r))
		return
	}

	req.Query.Service = models.ServiceHotel
	res, err := h.engine.Search(r.Context(), req.Query)
	if err != nil {
		writeSearchError(w, r, err)
		return
	}
	hotels := search.HotelOffers(res.Offers)
	out := clusterResponse{
		Clusters:   clustering.NewGeographic(strategy, opts).Cluster(hotels),
		PriceBands: clustering.PriceBands(hotels, budget, luxury),
		Meta:       res.Meta,
	}
	if out.Clusters == nil {
		out.Clusters = []clustering.Cluster{}
	}
	if out.PriceBands == nil {
		out.PriceBands = []clustering.PriceBand{}
	}
	WriteJSON(w, http.StatusOK, out)
}

type analyzeRequest struct {
	UserID string             `json:"userId"`
	Query  models.SearchQuery `json:"query"`
}

type analyzeResponse struct {
	Deals  []deals.Deal  `json:"deals"`
	Alerts []deals.Alert `json:"alerts"`
}

// AnalyzeDeals handles POST /v1/deals/analyze: search, then detect deals on the offers.
func (h *Handler) AnalyzeDeals(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequest(w, err.Error(), RequestMeta(r))
		return
	}
	res, err := h.engine.Search(r.Context(), req.Query)
	if err != nil {
		writeSearchError(w, r, err)
		return
	}
	found, alerts := h.deals.Process(r.Context(), req.UserID, res.Offers)
	if found == nil {
		found = []deals.Deal{}
	}
	WriteJSON(w, http.StatusOK, analyzeResponse{Deals: found, Alerts: alerts})
}

type historyRequest struct {
	deals.HistoryKey
	Points []deals.PricePoint `json:"points"`
}

func parseKey(service, provider, route string) (deals.HistoryKey, []string) {
	var problems []string
	st, err := models.ParseServiceType(service)
	if err != nil {
		problems = append(problems, err.Error())
	}
	if strings.TrimSpace(provider) == "" {
		problems = append(problems, "provider required")
	}
	if strings.TrimSpace(route) == "" {
		problems = append(problems, "route required")
	}
	return deals.HistoryKey{Service: st, Provider: provider, Route: route}, problems
}

// RecordHistory handles POST /v1/deals/history.
func (h *Handler) RecordHistory(w http.ResponseWriter, r *http.Request) {
	var req historyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequest(w, err.Error(), RequestMeta(r))
		return
	}
	key, problems := parseKey(string(req.Service), req.Provider, req.Route)
	if len(req.Points) == 0 {
		problems = append(problems, "at least one point required")
	}
	for _, p := range req.Points {
		if p.Price <= 0 || p.Timestamp.IsZero() {
			problems = append(problems, "points need a timestamp and a positive price")
			break
		}
	}
	if len(problems) > 0 {
		writeSearchError(w, r, &models.ValidationError{Problems: problems})
		return
	}
	WriteJSON(w, http.StatusOK, h.deals.Record(key, req.Points...))
}

// GetHistory handles GET /v1/deals/history?service=&provider=&route=.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key, problems := parseKey(q.Get("service"), q.Get("provider"), q.Get("route"))
	if len(problems) > 0 {
		writeSearchError(w, r, &models.ValidationError{Problems: problems})
		return
	}
	rec, ok := h.deals.History(key)
	if !ok {
		NotFound(w, "no price history for key", RequestMeta(r))
		return
	}
	WriteJSON(w, http.StatusOK, rec)
}

// AlertsWS handles GET /v1/alerts/ws?user=.
func (h *Handler) AlertsWS(w http.ResponseWriter, r *http.Request) {
	user := strings.TrimSpace(r.URL.Query().Get("user"))
	if user == "" {
		BadRequest(w, "user required", RequestMeta(r))
		return
	}
	// on failure the upgrader has already answered the client
	_ = h.alerts.ServeWS(w, r, user)
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
