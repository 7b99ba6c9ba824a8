// Package catalog provides access to marketplace listings for the ranking
// service. Listings are read-only from the engine's point of view; writes exist
// for seeding and tests.
package catalog

import (
	"context"
	"errors"

	"github.com/onnwee/marketrank/internal/geo"
	"github.com/onnwee/marketrank/internal/listing"
	"github.com/onnwee/marketrank/internal/ranking"
)

var (
	// ErrProductNotFound is returned when a listing id does not exist.
	ErrProductNotFound = errors.New("product not found")

	// ErrInvalidProduct is returned when a listing fails validation on write.
	ErrInvalidProduct = errors.New("invalid product")
)

// Query selects candidate listings.
type Query struct {
	// Window restricts results to listings located inside the box. Listings
	// without coordinates are excluded when a window is set. Nil means no
	// geographic restriction.
	Window *geo.Box

	// Limit caps the number of listings returned. Zero or negative means no cap.
	Limit int
}

// Repository is the catalog source consumed by the ranking service.
type Repository interface {
	// List returns candidate listings ordered by id.
	List(ctx context.Context, q Query) ([]listing.Product, error)

	// GetByID returns a single listing or ErrProductNotFound.
	GetByID(ctx context.Context, id string) (*listing.Product, error)

	// CategoryAverages returns catalog-wide mean sale prices per category,
	// using the same qualification rules as ranking.CategoryAveragePrices.
	CategoryAverages(ctx context.Context) (ranking.CategoryAverages, error)

	// Put inserts or replaces a listing.
	Put(ctx context.Context, p *listing.Product) error
}

// Validate checks the fields a listing must carry before it is stored.
func Validate(p *listing.Product) error {
	switch {
	case p == nil:
		return ErrInvalidProduct
	case p.ID == "":
		return errors.Join(ErrInvalidProduct, errors.New("id is required"))
	case p.Title == "":
		return errors.Join(ErrInvalidProduct, errors.New("title is required"))
	case !p.ListingType.Valid():
		return errors.Join(ErrInvalidProduct, errors.New("unknown listing type"))
	case p.Price < 0:
		return errors.Join(ErrInvalidProduct, errors.New("price must not be negative"))
	case p.ReviewCount < 0:
		return errors.Join(ErrInvalidProduct, errors.New("review count must not be negative"))
	}
	if c := p.Location.Coordinates; c != nil && !c.Valid() {
		return errors.Join(ErrInvalidProduct, errors.New("coordinates out of range"))
	}
	return nil
}

// cloneProduct returns a deep copy so stored listings cannot be mutated by callers.
func cloneProduct(p *listing.Product) listing.Product {
	c := *p
	if p.Tags != nil {
		c.Tags = append([]string(nil), p.Tags...)
	}
	if p.CategoryID != nil {
		category := *p.CategoryID
		c.CategoryID = &category
	}
	if p.Location.Coordinates != nil {
		coords := *p.Location.Coordinates
		c.Location.Coordinates = &coords
	}
	return c
}
