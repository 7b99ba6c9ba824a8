package ranking

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/onnwee/marketrank/internal/geo"
	"github.com/onnwee/marketrank/internal/listing"
)

// Factor identifies one of the ranking factors.
type Factor int

// Ranking factors. Adding a factor means adding a constant here, a field on
// Factors and Weights, and its scorer in scoreFactors.
const (
	FactorDistance Factor = iota
	FactorRelevance
	FactorSellerRating
	FactorFreshness
	FactorPrice
)

var allFactors = [...]Factor{
	FactorDistance,
	FactorRelevance,
	FactorSellerRating,
	FactorFreshness,
	FactorPrice,
}

// AllFactors returns every ranking factor in a stable order.
func AllFactors() []Factor {
	return allFactors[:]
}

// String returns the factor name used in JSON output and logs.
func (f Factor) String() string {
	switch f {
	case FactorDistance:
		return "distance"
	case FactorRelevance:
		return "relevance"
	case FactorSellerRating:
		return "sellerRating"
	case FactorFreshness:
		return "freshness"
	case FactorPrice:
		return "price"
	}
	return "unknown"
}

// Score bounds and the neutral value used when a factor has nothing to go on.
const (
	MinScore     = 0.0
	MaxScore     = 100.0
	NeutralScore = 50.0
)

// Factors holds the per-factor scores for one listing, each in [0, 100].
type Factors struct {
	Distance     float64 `json:"distance"`
	Relevance    float64 `json:"relevance"`
	SellerRating float64 `json:"sellerRating"`
	Freshness    float64 `json:"freshness"`
	Price        float64 `json:"price"`
}

// Get returns the score for the given factor kind.
func (f Factors) Get(kind Factor) float64 {
	switch kind {
	case FactorDistance:
		return f.Distance
	case FactorRelevance:
		return f.Relevance
	case FactorSellerRating:
		return f.SellerRating
	case FactorFreshness:
		return f.Freshness
	case FactorPrice:
		return f.Price
	}
	return 0
}

// DistanceBucket maps a distance in kilometers to a proximity score.
func DistanceBucket(km float64) float64 {
	switch {
	case km <= 5:
		return 100
	case km <= 10:
		return 90
	case km <= 20:
		return 70
	case km <= 50:
		return 40
	default:
		return 10
	}
}

// ScoreDistance scores how close a listing is to the viewer. A missing or
// invalid location on either side scores 0: listings without a location are
// pushed down rather than given a neutral score.
func ScoreDistance(viewer *geo.Coordinates, p *listing.Product) float64 {
	km, ok := distanceFromViewer(viewer, p)
	if !ok {
		return MinScore
	}
	return DistanceBucket(km)
}

// distanceFromViewer returns the rounded great-circle distance between the
// viewer and the listing when both have valid coordinates.
func distanceFromViewer(viewer *geo.Coordinates, p *listing.Product) (float64, bool) {
	if viewer == nil || !viewer.Valid() {
		return 0, false
	}
	pc, ok := p.Coordinates()
	if !ok {
		return 0, false
	}
	return viewer.DistanceTo(pc), true
}

// minQueryLength is the shortest query that affects relevance.
const minQueryLength = 3

// Relevance points awarded per matching field.
const (
	titleMatchPoints       = 100
	tagMatchPoints         = 70
	descriptionMatchPoints = 40
	categoryMatchPoints    = 60
)

// ScoreRelevance scores how well a listing matches the search query using
// case-insensitive substring containment. Matching is deliberately literal:
// "cat" matches "category". Queries shorter than three characters score
// NeutralScore. Points from title, each matching tag, description and category
// are summed and capped at 100.
func ScoreRelevance(p *listing.Product, query string) float64 {
	if utf8.RuneCountInString(query) < minQueryLength {
		return NeutralScore
	}

	q := strings.ToLower(query)
	var score float64

	if strings.Contains(strings.ToLower(p.Title), q) {
		score += titleMatchPoints
	}
	for _, tag := range p.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			score += tagMatchPoints
		}
	}
	if strings.Contains(strings.ToLower(p.Description), q) {
		score += descriptionMatchPoints
	}
	if p.CategoryID != nil && strings.Contains(strings.ToLower(*p.CategoryID), q) {
		score += categoryMatchPoints
	}

	return clampScore(score)
}

// unverifiedSellerScore is the flat trust score for unverified sellers.
const unverifiedSellerScore = 30

// ScoreSellerTrust scores seller trustworthiness. Unverified sellers get a
// flat 30 regardless of rating. Verified sellers score their rating as a
// percentage plus a review-volume bonus of 10 (100+ reviews), 5 (50+) or
// 2 (10+), capped at 100.
func ScoreSellerTrust(p *listing.Product) float64 {
	if !p.SellerVerified {
		return unverifiedSellerScore
	}

	score := (p.AverageRating / 5) * 100

	switch {
	case p.ReviewCount >= 100:
		score += 10
	case p.ReviewCount >= 50:
		score += 5
	case p.ReviewCount >= 10:
		score += 2
	}

	return clampScore(score)
}

// createdAtLayouts are the timestamp layouts accepted for created_at.
var createdAtLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseCreatedAt parses a catalog timestamp. It reports false when none of the
// accepted layouts match.
func ParseCreatedAt(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ScoreFreshness scores listing age relative to now. Unparseable timestamps
// score NeutralScore.
func ScoreFreshness(createdAt string, now time.Time) float64 {
	created, ok := ParseCreatedAt(createdAt)
	if !ok {
		return NeutralScore
	}

	ageDays := now.Sub(created).Hours() / 24

	switch {
	case ageDays <= 1:
		return 100
	case ageDays <= 7:
		return 80
	case ageDays <= 30:
		return 50
	case ageDays <= 90:
		return 20
	default:
		return 5
	}
}

// Flat price scores.
const (
	freePriceScore   = 100
	barterPriceScore = 70
)

// ScorePrice scores price competitiveness. Freebies and zero-priced listings
// always score 100 and barter listings a flat 70. Sale listings are compared
// to their category's average sale price; without a usable average they
// score NeutralScore.
func ScorePrice(p *listing.Product, averages CategoryAverages) float64 {
	if p.ListingType == listing.TypeFreebie || p.Price == 0 {
		return freePriceScore
	}
	if p.ListingType == listing.TypeBarter {
		return barterPriceScore
	}

	avg, ok := averages.Lookup(p.Category())
	if !ok || avg == 0 {
		return NeutralScore
	}

	ratio := p.Price / avg

	switch {
	case ratio <= 0.7:
		return 100
	case ratio <= 0.9:
		return 80
	case ratio <= 1.1:
		return 50
	case ratio <= 1.3:
		return 30
	default:
		return 10
	}
}

// scoreFactors runs every factor scorer for one listing.
func scoreFactors(p *listing.Product, viewer *geo.Coordinates, query string, averages CategoryAverages, now time.Time) Factors {
	return Factors{
		Distance:     ScoreDistance(viewer, p),
		Relevance:    ScoreRelevance(p, query),
		SellerRating: ScoreSellerTrust(p),
		Freshness:    ScoreFreshness(string(p.CreatedAt), now),
		Price:        ScorePrice(p, averages),
	}
}

// clampScore limits v to [MinScore, MaxScore]. NaN collapses to MinScore.
func clampScore(v float64) float64 {
	if !(v > MinScore) {
		return MinScore
	}
	return math.Min(v, MaxScore)
}

func roundTenth(v float64) float64 {
	return geo.RoundTenth(v)
}
