// Package listing defines the marketplace listing read-model consumed by the
// ranking engine. Listings are owned by the catalog; this package only
// describes their shape.
package listing

import (
	"bytes"
	"encoding/json"

	"github.com/onnwee/marketrank/internal/geo"
)

// ListingType distinguishes how a listing is exchanged.
type ListingType string

// Supported listing types.
const (
	TypeSale    ListingType = "sale"
	TypeBarter  ListingType = "barter"
	TypeFreebie ListingType = "freebie"
)

// Valid reports whether t is one of the known listing types.
func (t ListingType) Valid() bool {
	switch t {
	case TypeSale, TypeBarter, TypeFreebie:
		return true
	}
	return false
}

// Location holds the listing's geographic position. Coordinates is nil when
// the seller never supplied one.
type Location struct {
	Coordinates *geo.Coordinates `json:"coordinates,omitempty"`
}

// Timestamp is a catalog timestamp kept as the raw text the catalog sent.
// Any JSON value decodes: strings as their contents, other values such as
// numeric epochs as their JSON text, which freshness scoring treats as
// unparseable.
type Timestamp string

// UnmarshalJSON implements json.Unmarshaler. null leaves t unchanged.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = Timestamp(s)
		return nil
	}
	*t = Timestamp(data)
	return nil
}

// Product is an immutable listing as served by the catalog.
//
// CreatedAt is kept as the raw string supplied by the catalog because real
// catalogs contain malformed timestamps; freshness scoring degrades on those
// instead of rejecting the whole batch at decode time.
type Product struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	Tags           []string    `json:"tags,omitempty"`
	CategoryID     *string     `json:"category_id,omitempty"`
	Price          float64     `json:"price"`
	ListingType    ListingType `json:"listing_type"`
	Location       Location    `json:"location"`
	SellerVerified bool        `json:"seller_verified"`
	AverageRating  float64     `json:"average_rating"`
	ReviewCount    int         `json:"review_count"`
	CreatedAt      Timestamp   `json:"created_at"`
}

// Coordinates returns the listing's coordinates when present and valid.
func (p *Product) Coordinates() (geo.Coordinates, bool) {
	c := p.Location.Coordinates
	if c == nil || !c.Valid() {
		return geo.Coordinates{}, false
	}
	return *c, true
}

// Category returns the category id, or "" when the listing has none.
func (p *Product) Category() string {
	if p.CategoryID == nil {
		return ""
	}
	return *p.CategoryID
}
