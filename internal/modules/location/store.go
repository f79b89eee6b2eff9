// README: Location store backed by Redis GEO (courier index) and Postgres (snapshots, merchants).
package location

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"dispatch/internal/geo"
	"dispatch/internal/types"
)

const courierGeoKey = "geo:couriers"

type RedisIndex struct {
	redis *redis.Client
}

func NewRedisIndex(redis *redis.Client) *RedisIndex {
	return &RedisIndex{redis: redis}
}

func (r *RedisIndex) SetCourier(ctx context.Context, id types.ID, p types.Point) error {
	return r.redis.GeoAdd(ctx, courierGeoKey, &redis.GeoLocation{
		Name:      string(id),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err()
}

func (r *RedisIndex) RemoveCourier(ctx context.Context, id types.ID) error {
	return r.redis.ZRem(ctx, courierGeoKey, string(id)).Err()
}

func (r *RedisIndex) NearbyCouriers(ctx context.Context, p types.Point, radiusKm float64, count int) ([]types.ID, error) {
	results, err := r.redis.GeoSearch(ctx, courierGeoKey, &redis.GeoSearchQuery{
		Longitude:  p.Lng,
		Latitude:   p.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
		Count:      count,
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r)
	}
	return ids, nil
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) AppendSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO location_snapshots (courier_id, lat, lng, recorded_at)
		VALUES ($1, $2, $3, $4)`,
		string(snap.CourierID), snap.Position.Lat, snap.Position.Lng, snap.RecordedAt,
	)
	return err
}

func (s *Store) MerchantsWithin(ctx context.Context, box geo.Box, kind string) ([]Merchant, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, kind, name, address, lat, lng, is_open
		FROM merchants
		WHERE active
		  AND ($5 = '' OR kind = $5)
		  AND lat BETWEEN $1 AND $2
		  AND lng BETWEEN $3 AND $4`,
		box.MinLat, box.MaxLat, box.MinLng, box.MaxLng, kind,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Merchant
	for rows.Next() {
		var m Merchant
		var id string
		if err := rows.Scan(&id, &m.Kind, &m.Name, &m.Address, &m.Position.Lat, &m.Position.Lng, &m.Open); err != nil {
			return nil, err
		}
		m.ID = types.ID(id)
		out = append(out, m)
	}
	return out, rows.Err()
}
