package ranking

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
)

// ErrInvalidWeights is returned when a weight set cannot keep composite
// scores inside [0, 100].
var ErrInvalidWeights = errors.New("invalid ranking weights")

// weightSumTolerance absorbs floating error when checking that weights sum to 1.
const weightSumTolerance = 1e-9

// Weights defines how much each factor contributes to the composite score.
type Weights struct {
	Distance     float64 `json:"distance"`      // Weight for proximity to the viewer (default: 0.40)
	Relevance    float64 `json:"relevance"`     // Weight for query relevance (default: 0.30)
	SellerRating float64 `json:"seller_rating"` // Weight for seller trust (default: 0.15)
	Freshness    float64 `json:"freshness"`     // Weight for listing age (default: 0.10)
	Price        float64 `json:"price"`         // Weight for price competitiveness (default: 0.05)
}

// CalibrationConfig represents the JSON structure of the calibration file.
type CalibrationConfig struct {
	Version string  `json:"version"` // Config version for future compatibility
	Weights Weights `json:"weights"` // Weight overrides
}

// DefaultWeights returns the default ranking weights.
//
// Formula: composite = distance*0.40 + relevance*0.30 + seller_rating*0.15 + freshness*0.10 + price*0.05
// - Proximity dominates for local pickup marketplaces
// - Relevance keeps targeted searches on topic
// - Seller trust, freshness and price act as secondary signals
func DefaultWeights() *Weights {
	return &Weights{
		Distance:     0.40,
		Relevance:    0.30,
		SellerRating: 0.15,
		Freshness:    0.10,
		Price:        0.05,
	}
}

// Of returns the weight assigned to factor f.
func (w Weights) Of(f Factor) float64 {
	switch f {
	case FactorDistance:
		return w.Distance
	case FactorRelevance:
		return w.Relevance
	case FactorSellerRating:
		return w.SellerRating
	case FactorFreshness:
		return w.Freshness
	case FactorPrice:
		return w.Price
	}
	return 0
}

// Sum returns the total of all factor weights.
func (w Weights) Sum() float64 {
	var sum float64
	for _, f := range AllFactors() {
		sum += w.Of(f)
	}
	return sum
}

// Validate checks that every weight is non-negative and that they sum to 1.0.
func (w Weights) Validate() error {
	for _, f := range AllFactors() {
		v := w.Of(f)
		if math.IsNaN(v) || v < 0 {
			return fmt.Errorf("%w: %s weight must be non-negative, got %v", ErrInvalidWeights, f, v)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > weightSumTolerance {
		return fmt.Errorf("%w: weights must sum to 1.0, got %.6f", ErrInvalidWeights, sum)
	}
	return nil
}

// Composite combines factor scores into the weighted composite score,
// rounded to one decimal place.
func (w Weights) Composite(f Factors) float64 {
	var score float64
	for _, kind := range AllFactors() {
		score += f.Get(kind) * w.Of(kind)
	}
	return roundTenth(score)
}

// LoadCalibration loads ranking weights from a JSON calibration file.
// If the file doesn't exist, can't be parsed or yields weights that fail
// Validate, it returns default weights together with the error so callers can
// log and carry on. An empty path returns defaults without error.
// Partial configurations are merged with defaults.
func LoadCalibration(filePath string) (*Weights, error) {
	if filePath == "" {
		return DefaultWeights(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to read calibration file: %w", err)
	}

	var config CalibrationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Warn("failed to parse calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to parse calibration file: %w", err)
	}

	defaults := DefaultWeights()
	merged := MergeCalibration(defaults, &config.Weights)
	if err := merged.Validate(); err != nil {
		slog.Warn("calibrated weights rejected, using defaults",
			"path", filePath,
			"version", config.Version,
			"error", err)
		return DefaultWeights(), fmt.Errorf("calibration file %s: %w", filePath, err)
	}

	logCalibrationOverrides(defaults, merged)

	return merged, nil
}

// MergeCalibration merges override weights onto base weights.
// Only non-zero override values are applied, so a calibration file may list
// just the factors it changes.
func MergeCalibration(base *Weights, override *Weights) *Weights {
	if base == nil {
		return DefaultWeights()
	}

	result := *base
	if override == nil {
		return &result
	}

	if override.Distance != 0 {
		result.Distance = override.Distance
	}
	if override.Relevance != 0 {
		result.Relevance = override.Relevance
	}
	if override.SellerRating != 0 {
		result.SellerRating = override.SellerRating
	}
	if override.Freshness != 0 {
		result.Freshness = override.Freshness
	}
	if override.Price != 0 {
		result.Price = override.Price
	}

	return &result
}

// logCalibrationOverrides logs which weights were overridden from defaults.
func logCalibrationOverrides(defaults *Weights, loaded *Weights) {
	var overrides []string

	for _, f := range AllFactors() {
		if before, after := defaults.Of(f), loaded.Of(f); before != after {
			overrides = append(overrides, fmt.Sprintf("%s: %.2f -> %.2f", f, before, after))
		}
	}

	if len(overrides) > 0 {
		slog.Info("loaded ranking calibration with overrides",
			"overrides", overrides)
	} else {
		slog.Info("loaded ranking calibration (using all defaults)")
	}
}
