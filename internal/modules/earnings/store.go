// README: Earnings store reads delivered orders from PostgreSQL.
package earnings

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"dispatch/internal/types"
)

type PGStore struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Deliveries(ctx context.Context, courierID types.ID, since time.Time) ([]Delivery, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, delivered_at, courier_earnings
		FROM orders
		WHERE courier_id = $1 AND status = 'delivered' AND delivered_at >= $2
		ORDER BY delivered_at DESC`,
		string(courierID), since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var d Delivery
		var id string
		if err := rows.Scan(&id, &d.DeliveredAt, &d.Earnings); err != nil {
			return nil, err
		}
		d.OrderID = types.ID(id)
		out = append(out, d)
	}
	return out, rows.Err()
}
