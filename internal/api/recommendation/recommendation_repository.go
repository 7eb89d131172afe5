package recommendation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/itinero-app/itinero/internal/types"
)

var _ Repository = (*PostgresRecommendationRepository)(nil)

// Repository stores recommended places per city and answers the
// duplicate-avoidance questions the pipeline asks before a new search.
type Repository interface {
	GetExclusionSet(ctx context.Context, cityID uuid.UUID) ([]string, error)
	CountByCity(ctx context.Context, cityID uuid.UUID) (int64, error)
	PersistPlaces(ctx context.Context, cityID uuid.UUID, category types.Category, places []types.PlaceResult) (int, error)
}

// DB is the subset of pgxpool.Pool the repository needs.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PostgresRecommendationRepository struct {
	logger *slog.Logger
	pgpool DB
}

func NewPostgresRecommendationRepository(pgxPool DB, logger *slog.Logger) *PostgresRecommendationRepository {
	return &PostgresRecommendationRepository{
		logger: logger,
		pgpool: pgxPool,
	}
}

// GetExclusionSet returns the names of every place already recommended for
// the city, in insertion order.
func (r *PostgresRecommendationRepository) GetExclusionSet(ctx context.Context, cityID uuid.UUID) ([]string, error) {
	ctx, span := otel.Tracer("RecommendationRepository").Start(ctx, "GetExclusionSet", trace.WithAttributes(
		attribute.String("city.id", cityID.String()),
	))
	defer span.End()

	rows, err := r.pgpool.Query(ctx, `
        SELECT name
        FROM cached_places
        WHERE city_id = $1
        ORDER BY created_at ASC`, cityID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Query failed")
		return nil, fmt.Errorf("failed to query cached place names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan cached place name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating cached place names: %w", err)
	}

	span.SetAttributes(attribute.Int("exclusions.count", len(names)))
	span.SetStatus(codes.Ok, "Exclusion set loaded")
	return names, nil
}

func (r *PostgresRecommendationRepository) CountByCity(ctx context.Context, cityID uuid.UUID) (int64, error) {
	ctx, span := otel.Tracer("RecommendationRepository").Start(ctx, "CountByCity")
	defer span.End()

	var count int64
	err := r.pgpool.QueryRow(ctx, `SELECT COUNT(*) FROM cached_places WHERE city_id = $1`, cityID).Scan(&count)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Query failed")
		return 0, fmt.Errorf("failed to count cached places: %w", err)
	}

	span.SetStatus(codes.Ok, "Counted")
	return count, nil
}

// PersistPlaces upserts search results for one category. Re-seeing a place is
// expected across runs, so conflicts refresh the volatile columns instead of
// failing. Returns the number of rows written.
func (r *PostgresRecommendationRepository) PersistPlaces(ctx context.Context, cityID uuid.UUID, category types.Category, places []types.PlaceResult) (int, error) {
	ctx, span := otel.Tracer("RecommendationRepository").Start(ctx, "PersistPlaces", trace.WithAttributes(
		attribute.String("city.id", cityID.String()),
		attribute.String("category", string(category)),
		attribute.Int("places.count", len(places)),
	))
	defer span.End()

	if len(places) == 0 {
		span.SetStatus(codes.Ok, "Nothing to persist")
		return 0, nil
	}

	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Begin failed")
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	persisted := 0
	for _, place := range places {
		tag, err := tx.Exec(ctx, `
            INSERT INTO cached_places (
                city_id, category, external_place_id, name, address,
                latitude, longitude, rating, review_count, raw_payload
            )
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
            ON CONFLICT (city_id, external_place_id) DO UPDATE SET
                rating = EXCLUDED.rating,
                review_count = EXCLUDED.review_count,
                raw_payload = EXCLUDED.raw_payload,
                updated_at = NOW()`,
			cityID, string(category), place.ExternalID, place.Name, place.Address,
			place.Latitude, place.Longitude, place.Rating, place.ReviewCount, place.RawPayload)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Upsert failed")
			return 0, fmt.Errorf("failed to upsert cached place %q: %w", place.Name, err)
		}
		persisted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Commit failed")
		return 0, fmt.Errorf("failed to commit cached places: %w", err)
	}

	span.SetStatus(codes.Ok, "Places persisted")
	return persisted, nil
}
