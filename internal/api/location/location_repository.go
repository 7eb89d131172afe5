package location

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/itinero-app/itinero/internal/types"
)

var _ Repository = (*PostgresLocationRepository)(nil)

// Repository provides get-or-create access to the administrative hierarchy.
// All three operations are atomic upserts keyed on the natural-key unique
// constraint, so concurrent first-sight requests for the same location never
// create duplicate rows.
type Repository interface {
	GetOrCreateCountry(ctx context.Context, name string) (uuid.UUID, error)
	GetOrCreateRegion(ctx context.Context, name string, countryID uuid.UUID) (uuid.UUID, error)
	GetOrCreateCity(ctx context.Context, name string, countryID uuid.UUID, regionID *uuid.UUID) (uuid.UUID, error)
	GetCity(ctx context.Context, cityID uuid.UUID) (*types.City, error)
}

// DB is the subset of pgxpool.Pool the repository needs.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresLocationRepository struct {
	logger *slog.Logger
	pgpool DB
}

func NewPostgresLocationRepository(pgpool DB, logger *slog.Logger) *PostgresLocationRepository {
	return &PostgresLocationRepository{
		logger: logger,
		pgpool: pgpool,
	}
}

func (r *PostgresLocationRepository) GetOrCreateCountry(ctx context.Context, name string) (uuid.UUID, error) {
	// The no-op DO UPDATE makes RETURNING yield the existing row's id on
	// conflict instead of returning no rows.
	query := `
        INSERT INTO countries (name) VALUES ($1)
        ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
        RETURNING id
    `
	var id uuid.UUID
	if err := r.pgpool.QueryRow(ctx, query, name).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("failed to get or create country: %w", err)
	}
	return id, nil
}

func (r *PostgresLocationRepository) GetOrCreateRegion(ctx context.Context, name string, countryID uuid.UUID) (uuid.UUID, error) {
	query := `
        INSERT INTO regions (name, country_id) VALUES ($1, $2)
        ON CONFLICT (name, country_id) DO UPDATE SET name = EXCLUDED.name
        RETURNING id
    `
	var id uuid.UUID
	if err := r.pgpool.QueryRow(ctx, query, name, countryID).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("failed to get or create region: %w", err)
	}
	return id, nil
}

func (r *PostgresLocationRepository) GetOrCreateCity(ctx context.Context, name string, countryID uuid.UUID, regionID *uuid.UUID) (uuid.UUID, error) {
	query := `
        INSERT INTO cities (name, country_id, region_id) VALUES ($1, $2, $3)
        ON CONFLICT (name, region_id) DO UPDATE SET name = EXCLUDED.name
        RETURNING id
    `
	var id uuid.UUID
	if err := r.pgpool.QueryRow(ctx, query, name, countryID, regionID).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("failed to get or create city: %w", err)
	}
	return id, nil
}

func (r *PostgresLocationRepository) GetCity(ctx context.Context, cityID uuid.UUID) (*types.City, error) {
	query := `
        SELECT id, name, country_id, region_id
        FROM cities
        WHERE id = $1
    `
	var city types.City
	if err := r.pgpool.QueryRow(ctx, query, cityID).Scan(
		&city.ID, &city.Name, &city.CountryID, &city.RegionID,
	); err != nil {
		return nil, fmt.Errorf("failed to find city: %w", err)
	}
	return &city, nil
}
