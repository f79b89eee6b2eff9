// README: Pricing store backed by PostgreSQL (merchants and products).
package pricing

import (
	"context"
	"errors"

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

func (s *Store) Merchant(ctx context.Context, id types.ID) (*Merchant, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, kind, name, address, lat, lng,
		       base_delivery_fee, commission_pct, is_open, active
		FROM merchants
		WHERE id = $1`, string(id),
	)
	var m Merchant
	var mid, kind string
	err := row.Scan(
		&mid, &kind, &m.Name, &m.Address, &m.Position.Lat, &m.Position.Lng,
		&m.BaseDeliveryFee, &m.CommissionPct, &m.Open, &m.Active,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMerchantNotFound
	}
	if err != nil {
		return nil, err
	}
	m.ID = types.ID(mid)
	m.Kind = kind
	return &m, nil
}

func (s *Store) Products(ctx context.Context, merchantID types.ID, ids []types.ID) (map[types.ID]Product, error) {
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, merchant_id, name, price, available
		FROM products
		WHERE merchant_id = $1 AND id = ANY($2)`,
		string(merchantID), raw,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[types.ID]Product, len(ids))
	for rows.Next() {
		var p Product
		var id, mid string
		if err := rows.Scan(&id, &mid, &p.Name, &p.Price, &p.Available); err != nil {
			return nil, err
		}
		p.ID = types.ID(id)
		p.MerchantID = types.ID(mid)
		out[p.ID] = p
	}
	return out, rows.Err()
}
