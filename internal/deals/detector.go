// Package deals keeps rolling price history per (service, provider, route) and
// flags favourable price anomalies as deals and per-user alerts.
package deals

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/example/tripthesia-aggregator/internal/catalog"
	"github.com/example/tripthesia-aggregator/internal/models"
	"github.com/example/tripthesia-aggregator/internal/obs"
)

type DealType string

const (
	PriceDrop       DealType = "price_drop"
	FlashSale       DealType = "flash_sale"
	LastMinute      DealType = "last_minute"
	SeasonalSpecial DealType = "seasonal_special"
	ErrorFare       DealType = "error_fare"
	CompetitorBeat  DealType = "competitor_beat"
)

type Severity string

const (
	SeverityMinor       Severity = "minor"
	SeverityModerate    Severity = "moderate"
	SeveritySignificant Severity = "significant"
	SeverityExceptional Severity = "exceptional"
)

type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityUltraRare Rarity = "ultra_rare"
)

type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

const (
	DefaultMaxAlerts = 5

	priceDropMinPoints   = 7
	priceDropMinPct      = 15
	errorFareMinPoints   = 14
	errorFareMinPct      = 70
	flashMinDiscount     = 25
	flashAdvertisedPct   = 30
	lastMinuteMinPct     = 10
	competitorMinPct     = 5
	seasonalMatchShare   = 0.7
	errorFareConfidence  = 0.5
	defaultDealLifetime  = 6 * time.Hour
	lastMinuteFlightDays = 7
	lastMinuteStayDays   = 3
)

type Savings struct {
	Amount     float64 `json:"amount"`
	Percentage float64 `json:"percentage"`
	Baseline   float64 `json:"baseline"`
}

// Deal is a flagged price anomaly for one offer. It lives for one analysis pass.
type Deal struct {
	ID         string             `json:"id"`
	Type       DealType           `json:"type"`
	Service    models.ServiceType `json:"service"`
	Provider   string             `json:"provider"`
	OfferID    string             `json:"offerId"`
	Route      string             `json:"route"`
	Price      float64            `json:"price"`
	Currency   string             `json:"currency"`
	Savings    Savings            `json:"savings"`
	Severity   Severity           `json:"severity"`
	Rarity     Rarity             `json:"rarity"`
	Confidence float64            `json:"confidence"`
	Reason     string             `json:"reason"`
	DetectedAt time.Time          `json:"detectedAt"`
	ExpiresAt  time.Time          `json:"expiresAt"`
}

type Alert struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	DealID    string    `json:"dealId"`
	DealType  DealType  `json:"dealType"`
	Urgency   Urgency   `json:"urgency"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
	Deal      Deal      `json:"deal"`
}

// Notifier delivers alerts to a user. Delivery failures never fail detection.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

type Options struct {
	MaxAlerts int
	Window    time.Duration
	Catalog   *catalog.Catalog
	Notifier  Notifier
	Metrics   *obs.Metrics
	Logger    *slog.Logger
	Now       func() time.Time
}

type Detector struct {
	history   *HistoryStore
	cat       *catalog.Catalog
	maxAlerts int
	notifier  Notifier
	metrics   *obs.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

func NewDetector(opts Options) *Detector {
	if opts.MaxAlerts <= 0 {
		opts.MaxAlerts = DefaultMaxAlerts
	}
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	h := NewHistoryStore(opts.Window)
	h.now = opts.Now
	return &Detector{
		history:   h,
		cat:       opts.Catalog,
		maxAlerts: opts.MaxAlerts,
		notifier:  opts.Notifier,
		metrics:   opts.Metrics,
		logger:    obs.OrDefault(opts.Logger),
		now:       opts.Now,
	}
}

// Record appends externally observed points to a key's history.
func (d *Detector) Record(key HistoryKey, points ...PricePoint) Record {
	return d.history.Append(key, points...)
}

func (d *Detector) History(key HistoryKey) (Record, bool) {
	return d.history.Get(key)
}

// Analyze runs every rule over offers observed at the given time. Rules see each
// key's history as it was before this batch; the batch is recorded afterwards.
// The result is deduplicated and sorted by savings percentage, highest first.
// Synthesized fallback offers carry invented prices and are ignored.
func (d *Detector) Analyze(offers []models.Offer, at time.Time) []Deal {
	at = at.UTC()
	offers = quoted(offers)
	before := make(map[HistoryKey]Record)
	for _, o := range offers {
		k := KeyFor(o)
		if _, ok := before[k]; !ok {
			before[k], _ = d.history.Get(k)
		}
	}

	cheapest := cheapestByProvider(offers)
	var found []Deal
	for _, o := range offers {
		rec := before[KeyFor(o)]
		found = append(found, d.evaluate(o, rec, cheapest, at)...)
	}

	for _, o := range offers {
		c := o.Core()
		d.history.Append(KeyFor(o), PricePoint{Timestamp: at, Price: c.Price.Amount, Available: true})
	}

	out := dedupDeals(found)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Savings.Percentage != out[j].Savings.Percentage {
			return out[i].Savings.Percentage > out[j].Savings.Percentage
		}
		return out[i].ID < out[j].ID
	})
	for _, deal := range out {
		d.metrics.IncDeal(string(deal.Type))
	}
	return out
}

func quoted(offers []models.Offer) []models.Offer {
	out := make([]models.Offer, 0, len(offers))
	for _, o := range offers {
		if !o.Core().Synthetic {
			out = append(out, o)
		}
	}
	return out
}

// Process analyzes offers now and turns the top deals into alerts for userID.
func (d *Detector) Process(ctx context.Context, userID string, offers []models.Offer) ([]Deal, []Alert) {
	now := d.now().UTC()
	found := d.Analyze(offers, now)
	top := found[:min(len(found), d.maxAlerts)]

	alerts := make([]Alert, 0, len(top))
	for _, deal := range top {
		a := newAlert(userID, deal, now)
		alerts = append(alerts, a)
		d.metrics.IncAlert(string(a.Urgency))
		if d.notifier == nil || userID == "" {
			continue
		}
		if err := d.notifier.Notify(ctx, a); err != nil {
			d.logger.Warn("alert delivery failed",
				slog.String("user", userID),
				slog.String("deal", deal.ID),
				slog.Any("error", err),
			)
		}
	}
	if len(found) > 0 {
		d.logger.Info("deals detected",
			slog.String("user", userID),
			slog.Int("deals", len(found)),
			slog.Int("alerts", len(alerts)),
		)
	}
	return found, alerts
}

// Observe feeds offers from a completed search into the detector.
func (d *Detector) Observe(ctx context.Context, userID string, offers []models.Offer) {
	d.Process(ctx, userID, offers)
}

func (d *Detector) evaluate(o models.Offer, rec Record, cheapest map[models.ServiceType][]providerPrice, at time.Time) []Deal {
	c := o.Core()
	var out []Deal
	add := func(t DealType, baseline float64, sev Severity, rarity Rarity, confidence float64, reason string) {
		saved := baseline - c.Price.Amount
		deal := Deal{
			Type:     t,
			Service:  c.Service,
			Provider: c.Provider,
			OfferID:  c.ID,
			Route:    o.Route(),
			Price:    c.Price.Amount,
			Currency: c.Price.Currency,
			Savings: Savings{
				Amount:     round2(saved),
				Percentage: round2(pct(baseline, c.Price.Amount)),
				Baseline:   round2(baseline),
			},
			Severity:   sev,
			Rarity:     rarity,
			Confidence: round2(math.Max(0, math.Min(1, confidence))),
			Reason:     reason,
			DetectedAt: at,
			ExpiresAt:  at.Add(defaultDealLifetime),
		}
		if c.Validity.Until.After(at) {
			deal.ExpiresAt = c.Validity.Until
		}
		deal.ID = dealID(deal)
		out = append(out, deal)
	}

	stats := rec.Stats
	price := c.Price.Amount
	discount := d.discount(c, stats)

	if stats.Count >= priceDropMinPoints {
		avg := trailingAverage(rec.Points, at)
		if drop := pct(avg, price); drop >= priceDropMinPct {
			add(PriceDrop, avg, severityFor(drop), rarityFor(drop), stats.Confidence,
				fmt.Sprintf("%.0f%% below the 7-day average", drop))
		}
	}

	signals := 0
	if c.Flash {
		signals++
	}
	if v := c.Validity.Duration(); v > 0 && v < 24*time.Hour {
		signals++
	}
	if c.AdvertisedDiscount() > flashAdvertisedPct {
		signals++
	}
	if signals >= 2 && discount.pct > flashMinDiscount {
		add(FlashSale, discount.baseline, severityFor(discount.pct), rarityFor(discount.pct), 0.8,
			fmt.Sprintf("flash sale, %.0f%% off", discount.pct))
	}

	if start := o.StartsAt(); !start.IsZero() && !start.Before(at) && discount.pct >= lastMinuteMinPct {
		horizon := lastMinuteFlightDays
		if c.Service == models.ServiceHotel || c.Service == models.ServiceCarRental {
			horizon = lastMinuteStayDays
		}
		until := start.Sub(at)
		if until <= time.Duration(horizon)*24*time.Hour {
			rarity := rarityFor(discount.pct)
			if until <= 24*time.Hour {
				rarity = RarityUltraRare
			}
			add(LastMinute, discount.baseline, severityFor(discount.pct), rarity, 0.7,
				fmt.Sprintf("starts in %.0f hours, %.0f%% off", until.Hours(), discount.pct))
		}
	}

	if p, ok := d.cat.SeasonalFor(c.Service, int(at.Month())); ok && p.ExpectedDiscount > 0 &&
		discount.pct >= seasonalMatchShare*p.ExpectedDiscount {
		add(SeasonalSpecial, discount.baseline, severityFor(discount.pct), rarityFor(discount.pct), 0.6,
			fmt.Sprintf("%s pricing, %.0f%% off", p.Name, discount.pct))
	}

	if c.Service == models.ServiceFlight && stats.Count >= errorFareMinPoints {
		if drop := pct(stats.Mean, price); drop >= errorFareMinPct {
			add(ErrorFare, stats.Mean, SeverityExceptional, RarityUltraRare, stats.Confidence*errorFareConfidence,
				fmt.Sprintf("%.0f%% below the historical average, may be corrected", drop))
		}
	}

	if other, ok := cheapestOther(cheapest[c.Service], c.Provider); ok {
		if beat := pct(other.price, price); beat >= competitorMinPct {
			add(CompetitorBeat, other.price, severityFor(beat), rarityFor(beat), 0.9,
				fmt.Sprintf("%.0f%% cheaper than %s", beat, other.provider))
		}
	}
	return out
}

type discountInfo struct {
	pct      float64
	baseline float64
}

// discount prefers the provider's advertised original price and falls back to the
// historical mean.
func (d *Detector) discount(c *models.OfferCore, stats Stats) discountInfo {
	if adv := c.AdvertisedDiscount(); adv > 0 {
		return discountInfo{pct: adv, baseline: c.OriginalPrice}
	}
	if stats.Count > 0 && stats.Mean > c.Price.Amount {
		return discountInfo{pct: pct(stats.Mean, c.Price.Amount), baseline: stats.Mean}
	}
	return discountInfo{baseline: c.Price.Amount}
}

type providerPrice struct {
	provider string
	price    float64
}

// cheapestByProvider keeps, per service, the lowest price each provider offered,
// sorted ascending.
func cheapestByProvider(offers []models.Offer) map[models.ServiceType][]providerPrice {
	lowest := make(map[models.ServiceType]map[string]float64)
	for _, o := range offers {
		c := o.Core()
		m, ok := lowest[c.Service]
		if !ok {
			m = make(map[string]float64)
			lowest[c.Service] = m
		}
		if p, seen := m[c.Provider]; !seen || c.Price.Amount < p {
			m[c.Provider] = c.Price.Amount
		}
	}
	out := make(map[models.ServiceType][]providerPrice, len(lowest))
	for st, m := range lowest {
		list := make([]providerPrice, 0, len(m))
		for p, v := range m {
			list = append(list, providerPrice{provider: p, price: v})
		}
		sort.Slice(list, func(i, j int) bool {
			if list[i].price != list[j].price {
				return list[i].price < list[j].price
			}
			return list[i].provider < list[j].provider
		})
		out[st] = list
	}
	return out
}

func cheapestOther(list []providerPrice, provider string) (providerPrice, bool) {
	for _, pp := range list {
		if pp.provider != provider && pp.price > 0 {
			return pp, true
		}
	}
	return providerPrice{}, false
}

func dedupDeals(in []Deal) []Deal {
	type key struct {
		service  models.ServiceType
		provider string
		offerID  string
		kind     DealType
	}
	seen := make(map[key]int, len(in))
	out := make([]Deal, 0, len(in))
	for _, d := range in {
		k := key{d.Service, d.Provider, d.OfferID, d.Type}
		if i, ok := seen[k]; ok {
			if d.Savings.Percentage > out[i].Savings.Percentage {
				out[i] = d
			}
			continue
		}
		seen[k] = len(out)
		out = append(out, d)
	}
	return out
}

func severityFor(p float64) Severity {
	switch {
	case p >= 60:
		return SeverityExceptional
	case p >= 40:
		return SeveritySignificant
	case p >= 15:
		return SeverityModerate
	}
	return SeverityMinor
}

func rarityFor(p float64) Rarity {
	switch {
	case p >= 60:
		return RarityUltraRare
	case p >= 25:
		return RarityRare
	}
	return RarityCommon
}

// UrgencyFor maps a deal onto alert urgency.
func UrgencyFor(d Deal) Urgency {
	switch {
	case d.Severity == SeverityExceptional || d.Type == ErrorFare:
		return UrgencyCritical
	case d.Severity == SeveritySignificant || d.Rarity == RarityUltraRare:
		return UrgencyHigh
	case d.Severity == SeverityModerate || d.Rarity == RarityRare:
		return UrgencyMedium
	}
	return UrgencyLow
}

var dealNamespace = uuid.MustParse("0b7c9e52-4f1a-4c3e-8d2b-71a5e6f0c9d4")

func dealID(d Deal) string {
	name := fmt.Sprintf("%s|%s|%s|%s|%d", d.Service, d.Provider, d.OfferID, d.Type, d.DetectedAt.UnixNano())
	return uuid.NewSHA1(dealNamespace, []byte(name)).String()
}

func newAlert(userID string, d Deal, now time.Time) Alert {
	return Alert{
		ID:        uuid.NewString(),
		UserID:    userID,
		DealID:    d.ID,
		DealType:  d.Type,
		Urgency:   UrgencyFor(d),
		Message:   fmt.Sprintf("%s %s deal from %s: %.2f %s (%s)", d.Service, d.Type, d.Provider, d.Price, d.Currency, d.Reason),
		CreatedAt: now,
		Deal:      d,
	}
}

func pct(baseline, price float64) float64 {
	if baseline <= 0 || price >= baseline {
		return 0
	}
	return (baseline - price) / baseline * 100
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
