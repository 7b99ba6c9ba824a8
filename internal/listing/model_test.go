package listing

import (
	"encoding/json"
	"testing"

	"github.com/onnwee/marketrank/internal/geo"
)

func TestListingType_Valid(t *testing.T) {
	for _, lt := range []ListingType{TypeSale, TypeBarter, TypeFreebie} {
		if !lt.Valid() {
			t.Errorf("%q should be valid", lt)
		}
	}
	if ListingType("auction").Valid() {
		t.Error("unknown listing type should be invalid")
	}
}

func TestProduct_Coordinates(t *testing.T) {
	tests := []struct {
		name   string
		coords *geo.Coordinates
		wantOK bool
	}{
		{"missing", nil, false},
		{"out of range", &geo.Coordinates{Lat: 91, Lng: 0}, false},
		{"valid", &geo.Coordinates{Lat: 51.5, Lng: -0.12}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Product{Location: Location{Coordinates: tt.coords}}
			c, ok := p.Coordinates()
			if ok != tt.wantOK {
				t.Fatalf("Coordinates() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && c != *tt.coords {
				t.Errorf("Coordinates() = %+v, want %+v", c, *tt.coords)
			}
		})
	}
}

func TestProduct_DecodeKeepsMalformedCreatedAt(t *testing.T) {
	raw := `{
		"id": "p1",
		"title": "Lamp",
		"price": 12.5,
		"listing_type": "sale",
		"category_id": "home",
		"location": {"coordinates": {"lat": 48.85, "lng": 2.35}},
		"created_at": "yesterday-ish"
	}`

	var p Product
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if p.CreatedAt != "yesterday-ish" {
		t.Errorf("CreatedAt = %q", p.CreatedAt)
	}
	if p.Category() != "home" {
		t.Errorf("Category() = %q", p.Category())
	}
	if _, ok := p.Coordinates(); !ok {
		t.Error("expected coordinates to be decoded")
	}
}

func TestProduct_DecodeNonStringCreatedAt(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Timestamp
	}{
		{"numeric epoch", `1700000000`, "1700000000"},
		{"null", `null`, ""},
		{"object", `{"seconds": 1}`, `{"seconds": 1}`},
		{"string", `"2026-10-19T12:00:00Z"`, "2026-10-19T12:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := `{"id": "p1", "title": "Lamp", "price": 3, "listing_type": "sale", "created_at": ` + tt.raw + `}`

			var p Product
			if err := json.Unmarshal([]byte(raw), &p); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if p.CreatedAt != tt.want {
				t.Errorf("CreatedAt = %q, want %q", p.CreatedAt, tt.want)
			}
			if p.ID != "p1" || p.Price != 3 || p.ListingType != TypeSale {
				t.Errorf("other fields not decoded: %+v", p)
			}
		})
	}
}

func TestProduct_DecodeMissingCreatedAt(t *testing.T) {
	var p Product
	if err := json.Unmarshal([]byte(`{"id": "p2"}`), &p); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if p.ID != "p2" || p.CreatedAt != "" {
		t.Errorf("got %+v", p)
	}
}
