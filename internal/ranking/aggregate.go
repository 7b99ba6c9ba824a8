package ranking

import "github.com/onnwee/marketrank/internal/listing"

// CategoryAverages maps a category id to the mean price of its sale listings.
// Categories without qualifying listings are absent rather than zero.
type CategoryAverages map[string]float64

// Lookup returns the average price for category. Empty category ids never match.
func (a CategoryAverages) Lookup(category string) (float64, bool) {
	if category == "" {
		return 0, false
	}
	avg, ok := a[category]
	return avg, ok
}

// CategoryAveragePrices computes the mean price per category across sale
// listings with a positive price and a non-empty category id. Barter and freebie
// listings never contribute.
func CategoryAveragePrices(products []listing.Product) CategoryAverages {
	type accumulator struct {
		sum   float64
		count int
	}

	acc := make(map[string]*accumulator)
	for i := range products {
		p := &products[i]
		category := p.Category()
		if p.ListingType != listing.TypeSale || !(p.Price > 0) || category == "" {
			continue
		}
		a, ok := acc[category]
		if !ok {
			a = &accumulator{}
			acc[category] = a
		}
		a.sum += p.Price
		a.count++
	}

	averages := make(CategoryAverages, len(acc))
	for category, a := range acc {
		averages[category] = a.sum / float64(a.count)
	}
	return averages
}
