package ranking

import (
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/marketrank/internal/geo"
	"github.com/onnwee/marketrank/internal/listing"
)

// parallelThreshold is the smallest batch scored concurrently. Smaller
// batches are cheaper to score on the calling goroutine.
const parallelThreshold = 256

// RankedProduct is a listing decorated with its ranking outcome.
type RankedProduct struct {
	listing.Product

	// DistanceFromUser is the great-circle distance in km, rounded to one
	// decimal. Nil when either side lacks valid coordinates.
	DistanceFromUser *float64 `json:"distanceFromUser,omitempty"`
	RankingScore     float64  `json:"rankingScore"`
	RankingFactors   Factors  `json:"rankingFactors"`
}

// RankOptions carries the per-request ranking context.
type RankOptions struct {
	// Viewer is the viewer's location. Nil or invalid disables distance scoring.
	Viewer *geo.Coordinates
	// Query is the free-text search query.
	Query string
	// CategoryAverages is a precomputed category price map. When nil it is
	// computed from the batch being ranked.
	CategoryAverages CategoryAverages
}

// Ranker scores and orders listings using a fixed weight set.
// A Ranker is safe for concurrent use.
type Ranker struct {
	weights     Weights
	now         func() time.Time
	parallelism int
	metrics     *Metrics
	logger      *slog.Logger

	// score computes the factors for one product; tests replace it.
	score func(p *listing.Product, viewer *geo.Coordinates, query string, averages CategoryAverages, now time.Time) Factors
}

// Option configures a Ranker.
type Option func(*Ranker)

// WithClock overrides the clock used for freshness scoring.
func WithClock(now func() time.Time) Option {
	return func(r *Ranker) {
		if now != nil {
			r.now = now
		}
	}
}

// WithParallelism sets how many goroutines may score a large batch.
// Values below 2 keep scoring on the calling goroutine.
func WithParallelism(n int) Option {
	return func(r *Ranker) {
		r.parallelism = n
	}
}

// WithMetrics records ranking metrics on m.
func WithMetrics(m *Metrics) Option {
	return func(r *Ranker) {
		r.metrics = m
	}
}

// WithLogger sets the logger used for degraded products.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Ranker) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRanker creates a Ranker for the given weights.
// It returns ErrInvalidWeights when the weights fail Validate.
func NewRanker(weights Weights, opts ...Option) (*Ranker, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}

	r := newRanker(weights)
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func newRanker(weights Weights) *Ranker {
	return &Ranker{
		weights:     weights,
		now:         time.Now,
		parallelism: 1,
		logger:      slog.Default(),
		score:       scoreFactors,
	}
}

// Weights returns the weights the ranker applies.
func (r *Ranker) Weights() Weights {
	return r.weights
}

// RankProducts ranks products with the default weights.
// See Ranker.Rank.
func RankProducts(products []listing.Product, viewer *geo.Coordinates, query string, averages CategoryAverages) []RankedProduct {
	return newRanker(*DefaultWeights()).Rank(products, RankOptions{
		Viewer:           viewer,
		Query:            query,
		CategoryAverages: averages,
	})
}

// Rank scores every product and returns them sorted by composite score,
// highest first, ties broken by ascending id. The output always has the same
// length as the input; use FilterByRadius to drop listings.
func (r *Ranker) Rank(products []listing.Product, opts RankOptions) []RankedProduct {
	start := time.Now()

	averages := opts.CategoryAverages
	if averages == nil {
		averages = CategoryAveragePrices(products)
	}

	viewer := opts.Viewer
	if viewer != nil && !viewer.Valid() {
		viewer = nil
	}

	now := r.now()
	ranked := make([]RankedProduct, len(products))
	var degraded atomic.Int64

	scoreAt := func(i int) {
		rp, ok := r.rankOne(&products[i], viewer, opts.Query, averages, now)
		if !ok {
			degraded.Add(1)
		}
		ranked[i] = rp
	}

	if r.parallelism > 1 && len(products) >= parallelThreshold {
		var g errgroup.Group
		g.SetLimit(r.parallelism)
		for i := range products {
			g.Go(func() error {
				scoreAt(i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range products {
			scoreAt(i)
		}
	}

	sortRanked(ranked)

	if r.metrics != nil {
		r.metrics.ObserveBatch(len(products), time.Since(start).Seconds())
		if n := degraded.Load(); n > 0 {
			r.metrics.AddDegradedProducts(int(n))
		}
	}

	return ranked
}

// rankOne scores a single product. A panic while scoring degrades only this
// product: it is returned with zero factors and ok=false.
func (r *Ranker) rankOne(p *listing.Product, viewer *geo.Coordinates, query string, averages CategoryAverages, now time.Time) (rp RankedProduct, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("product scoring failed, ranking with zero factors",
				"product_id", p.ID,
				"panic", rec)
			rp = RankedProduct{Product: *p}
			ok = false
		}
	}()

	factors := r.score(p, viewer, query, averages, now)

	rp = RankedProduct{
		Product:        *p,
		RankingScore:   r.weights.Composite(factors),
		RankingFactors: factors,
	}
	if km, found := distanceFromViewer(viewer, p); found {
		rp.DistanceFromUser = &km
	}
	return rp, true
}

// FilterByRadius applies the package FilterByRadius and records how many
// products were excluded.
func (r *Ranker) FilterByRadius(products []listing.Product, viewer geo.Coordinates, radiusKm float64) []listing.Product {
	kept := FilterByRadius(products, viewer, radiusKm)
	if r.metrics != nil {
		r.metrics.AddRadiusExcluded(len(products) - len(kept))
	}
	return kept
}

func sortRanked(ranked []RankedProduct) {
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].RankingScore != ranked[j].RankingScore {
			return ranked[i].RankingScore > ranked[j].RankingScore
		}
		return ranked[i].ID < ranked[j].ID
	})
}
