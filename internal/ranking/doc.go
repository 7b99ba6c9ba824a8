// Package ranking orders marketplace listings for a viewer by combining five
// independent factor scores into one weighted composite score.
//
// Basic Usage:
//
//	// Load calibration (typically at startup)
//	weights, err := ranking.LoadCalibration("configs/ranking.calibration.json")
//	if err != nil {
//		log.Warn("using default weights", "error", err)
//	}
//
//	ranker, err := ranking.NewRanker(*weights, ranking.WithParallelism(4))
//	if err != nil {
//		return err
//	}
//
//	// Optional geofence before ranking
//	nearby := ranking.FilterByRadius(products, viewer, 25)
//
//	ranked := ranker.Rank(nearby, ranking.RankOptions{
//		Viewer: &viewer,
//		Query:  "leather bag",
//	})
//
// Factors:
//
// Every factor scorer is a pure function returning a value in [0, 100]:
// distance (bucketed proximity), relevance (case-insensitive substring match),
// seller rating (verification-gated trust), freshness (listing age) and price
// (competitiveness against the category's average sale price). Missing
// location, malformed timestamps and unknown category averages degrade to a
// fixed score instead of failing the batch.
//
// Composite:
//
// The composite score is the weighted sum of the factors, rounded to one
// decimal. Weights must sum to 1.0 so the composite stays in [0, 100].
// Results are sorted by composite score descending, ties broken by ascending
// product id.
package ranking
