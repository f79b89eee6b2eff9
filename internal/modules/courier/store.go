// README: Courier store backed by PostgreSQL.
package courier

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dispatch/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const courierColumns = `
	id, vehicle_type, vehicle_plate, lat, lng, position_updated_at, status,
	action_radius_km, active, average_rating, rating_count, delivery_count, total_earnings,
	created_at, updated_at`

func (s *Store) Get(ctx context.Context, id types.ID) (*Courier, error) {
	row := s.db.QueryRow(ctx, `SELECT `+courierColumns+` FROM couriers WHERE id = $1`, string(id))
	c, err := scanCourier(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func (s *Store) Ensure(ctx context.Context, c *Courier) (*Courier, error) {
	_, err := s.db.Exec(ctx, `
		INSERT INTO couriers (id, status, action_radius_km, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		string(c.ID), string(c.Status), c.ActionRadiusKm, c.Active, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, c.ID)
}

func (s *Store) UpdatePosition(ctx context.Context, id types.ID, p types.Point, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE couriers
		SET lat = $2, lng = $3, position_updated_at = $4, updated_at = $4
		WHERE id = $1`,
		string(id), p.Lat, p.Lng, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetStatus(ctx context.Context, id types.ID, from, to Availability, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE couriers
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2`,
		string(id), string(from), string(to), at,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) FilterIdle(ctx context.Context, ids []types.ID) ([]Courier, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+courierColumns+`
		FROM couriers
		WHERE id = ANY($1) AND status = 'idle' AND active AND lat IS NOT NULL`,
		raw,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Courier
	for rows.Next() {
		c, err := scanCourier(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func scanCourier(row pgx.Row) (*Courier, error) {
	var c Courier
	var id, status string
	var lat, lng *float64
	err := row.Scan(
		&id, &c.VehicleType, &c.VehiclePlate, &lat, &lng, &c.PositionUpdatedAt, &status,
		&c.ActionRadiusKm, &c.Active, &c.AverageRating, &c.RatingCount, &c.DeliveryCount, &c.TotalEarnings,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.ID = types.ID(id)
	c.Status = Availability(status)
	if lat != nil && lng != nil {
		c.Position = &types.Point{Lat: *lat, Lng: *lng}
	}
	return &c, nil
}
