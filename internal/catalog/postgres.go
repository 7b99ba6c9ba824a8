package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lib/pq"

	"github.com/onnwee/marketrank/internal/geo"
	"github.com/onnwee/marketrank/internal/listing"
	"github.com/onnwee/marketrank/internal/ranking"
	"github.com/onnwee/marketrank/internal/tracing"
)

const listingColumns = `id, title, description, tags, category_id, price, listing_type,
	latitude, longitude, seller_verified, average_rating, review_count, created_at`

// PostgresRepository implements Repository using the listings table.
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{
		db:     db,
		logger: logger,
	}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (listing.Product, error) {
	var (
		p           listing.Product
		tags        []string
		category    sql.NullString
		listingType string
		lat, lng    sql.NullFloat64
		createdAt   sql.NullString
	)

	err := row.Scan(
		&p.ID,
		&p.Title,
		&p.Description,
		pq.Array(&tags),
		&category,
		&p.Price,
		&listingType,
		&lat,
		&lng,
		&p.SellerVerified,
		&p.AverageRating,
		&p.ReviewCount,
		&createdAt,
	)
	if err != nil {
		return listing.Product{}, err
	}

	p.Tags = tags
	p.ListingType = listing.ListingType(listingType)
	if category.Valid {
		p.CategoryID = &category.String
	}
	if lat.Valid && lng.Valid {
		p.Location.Coordinates = &geo.Coordinates{Lat: lat.Float64, Lng: lng.Float64}
	}
	p.CreatedAt = listing.Timestamp(createdAt.String)
	return p, nil
}

// windowClause renders the SQL predicate for a lat/lng window starting at
// placeholder $next, returning the clause and its arguments.
func windowClause(box *geo.Box, next int) (string, []any) {
	lat := fmt.Sprintf("latitude BETWEEN $%d AND $%d", next, next+1)
	args := []any{box.MinLat, box.MaxLat, box.MinLng, box.MaxLng}

	var lng string
	if box.MinLng <= box.MaxLng {
		lng = fmt.Sprintf("longitude BETWEEN $%d AND $%d", next+2, next+3)
	} else {
		lng = fmt.Sprintf("(longitude >= $%d OR longitude <= $%d)", next+2, next+3)
	}
	return lat + " AND " + lng, args
}

// List returns candidate listings ordered by id.
func (r *PostgresRepository) List(ctx context.Context, q Query) (products []listing.Product, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "listings", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	var (
		where []string
		args  []any
	)
	if q.Window != nil {
		clause, windowArgs := windowClause(q.Window, len(args)+1)
		where = append(where, clause)
		args = append(args, windowArgs...)
	}

	query := "SELECT " + listingColumns + " FROM listings"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer rows.Close()

	products = []listing.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		products = append(products, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating listings: %w", err)
	}

	r.logger.DebugContext(ctx, "loaded catalog candidates",
		slog.Int("count", len(products)),
		slog.Bool("windowed", q.Window != nil))
	return products, nil
}

// GetByID retrieves a listing by its id.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (p *listing.Product, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "listings", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := "SELECT " + listingColumns + " FROM listings WHERE id = $1"
	product, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return &product, nil
}

// CategoryAverages aggregates mean sale prices per category in the database.
func (r *PostgresRepository) CategoryAverages(ctx context.Context) (averages ranking.CategoryAverages, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "listings", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `
		SELECT category_id, AVG(price)
		FROM listings
		WHERE listing_type = 'sale'
		  AND price > 0
		  AND category_id IS NOT NULL
		  AND category_id <> ''
		GROUP BY category_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate category averages: %w", err)
	}
	defer rows.Close()

	averages = make(ranking.CategoryAverages)
	for rows.Next() {
		var (
			category string
			avg      float64
		)
		if err := rows.Scan(&category, &avg); err != nil {
			return nil, fmt.Errorf("failed to scan category average: %w", err)
		}
		averages[category] = avg
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating category averages: %w", err)
	}
	return averages, nil
}

// Put inserts or replaces a listing.
func (r *PostgresRepository) Put(ctx context.Context, p *listing.Product) (err error) {
	if err := Validate(p); err != nil {
		return err
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "listings", tracing.DBOperationUpsert)
	defer func() { endSpan(err) }()

	var lat, lng sql.NullFloat64
	if c := p.Location.Coordinates; c != nil {
		lat = sql.NullFloat64{Float64: c.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: c.Lng, Valid: true}
	}
	var category sql.NullString
	if p.CategoryID != nil {
		category = sql.NullString{String: *p.CategoryID, Valid: true}
	}
	// Unparseable timestamps are stored as NULL and read back as "", which
	// freshness scoring treats the same way.
	var createdAt sql.NullTime
	if t, ok := ranking.ParseCreatedAt(string(p.CreatedAt)); ok {
		createdAt = sql.NullTime{Time: t, Valid: true}
	}

	query := `
		INSERT INTO listings (` + listingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			tags = EXCLUDED.tags,
			category_id = EXCLUDED.category_id,
			price = EXCLUDED.price,
			listing_type = EXCLUDED.listing_type,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			seller_verified = EXCLUDED.seller_verified,
			average_rating = EXCLUDED.average_rating,
			review_count = EXCLUDED.review_count,
			created_at = EXCLUDED.created_at
	`

	_, err = r.db.ExecContext(ctx, query,
		p.ID,
		p.Title,
		p.Description,
		pq.Array(p.Tags),
		category,
		p.Price,
		string(p.ListingType),
		lat,
		lng,
		p.SellerVerified,
		p.AverageRating,
		p.ReviewCount,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert listing: %w", err)
	}
	return nil
}
