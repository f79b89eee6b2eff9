// README: Order store backed by PostgreSQL; claim and delivery run as conditional updates in one transaction.
package order

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"dispatch/internal/geo"
	"dispatch/internal/types"
)

const uniqueViolation = "23505"

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const orderColumns = `
	id, number, client_id, merchant_id, merchant_kind, courier_id, status, status_version,
	pickup_lat, pickup_lng, delivery_lat, delivery_lng, delivery_address,
	distance_km, estimated_minutes, currency,
	subtotal, delivery_fee, commission, total, courier_earnings,
	payment_mode, payment_status, otp_code, cancel_reason,
	created_at, updated_at, accepted_at, preparing_at, ready_at, assigned_at,
	en_route_at, collected_at, in_delivery_at, delivered_at, cancelled_at`

func (s *Store) Create(ctx context.Context, o *Order) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO orders (
				id, number, client_id, merchant_id, merchant_kind, status, status_version,
				pickup_lat, pickup_lng, delivery_lat, delivery_lng, delivery_address,
				distance_km, estimated_minutes, currency,
				subtotal, delivery_fee, commission, total, courier_earnings,
				payment_mode, payment_status, otp_code, created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7,
				$8, $9, $10, $11, $12,
				$13, $14, $15,
				$16, $17, $18, $19, $20,
				$21, $22, $23, $24, $25
			)`,
			string(o.ID), o.Number, string(o.ClientID), string(o.MerchantID), string(o.MerchantKind),
			string(o.Status), o.StatusVersion,
			o.Pickup.Lat, o.Pickup.Lng, o.Delivery.Lat, o.Delivery.Lng, o.DeliveryAddress,
			o.DistanceKm, o.EstimatedMinutes, o.Total.Currency,
			o.Subtotal.Amount, o.DeliveryFee.Amount, o.Commission.Amount, o.Total.Amount, o.CourierEarnings.Amount,
			string(o.PaymentMode), o.PaymentStatus, o.OTPCode, o.CreatedAt, o.UpdatedAt,
		)
		if err != nil {
			return err
		}
		for _, it := range o.Items {
			_, err := tx.Exec(ctx, `
				INSERT INTO order_items (
					order_id, product_id, name, quantity, unit_price, line_total, instructions
				) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				string(o.ID), string(it.ProductID), it.Name, it.Quantity,
				it.UnitPrice.Amount, it.LineTotal.Amount, it.Instructions,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, string(id))
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	items, err := s.items(ctx, o.ID, o.Total.Currency)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func (s *Store) items(ctx context.Context, orderID types.ID, currency string) ([]Item, error) {
	rows, err := s.db.Query(ctx, `
		SELECT product_id, name, quantity, unit_price, line_total, instructions
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`, string(orderID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		var productID string
		if err := rows.Scan(&productID, &it.Name, &it.Quantity, &it.UnitPrice.Amount, &it.LineTotal.Amount, &it.Instructions); err != nil {
			return nil, err
		}
		it.ProductID = types.ID(productID)
		it.UnitPrice.Currency = currency
		it.LineTotal.Currency = currency
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *Store) ListByClient(ctx context.Context, clientID types.ID, status Status, limit int) ([]Order, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE client_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3`,
		string(clientID), string(status), limit,
	)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (s *Store) ListByCourier(ctx context.Context, courierID types.ID, statuses []Status, limit int) ([]Order, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE courier_id = $1 AND status = ANY($2)
		ORDER BY updated_at DESC
		LIMIT $3`,
		string(courierID), statusStrings(statuses), limit,
	)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (s *Store) UpdateStatus(ctx context.Context, u StatusUpdate) (bool, error) {
	updated := false
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var courierID *string
		err := tx.QueryRow(ctx, `
			UPDATE orders
			SET status = $1,
				status_version = status_version + 1,
				updated_at = $2,
				accepted_at = CASE WHEN $1 = 'accepted' THEN $2 ELSE accepted_at END,
				preparing_at = CASE WHEN $1 = 'preparing' THEN $2 ELSE preparing_at END,
				ready_at = CASE WHEN $1 = 'ready' THEN $2 ELSE ready_at END,
				en_route_at = CASE WHEN $1 = 'en_route_to_pickup' THEN $2 ELSE en_route_at END,
				collected_at = CASE WHEN $1 = 'collected' THEN $2 ELSE collected_at END,
				in_delivery_at = CASE WHEN $1 = 'in_delivery' THEN $2 ELSE in_delivery_at END,
				cancelled_at = CASE WHEN $1 IN ('cancelled', 'refused') THEN $2 ELSE cancelled_at END,
				cancel_reason = COALESCE($3, cancel_reason)
			WHERE id = $4 AND status = $5 AND status_version = $6
			RETURNING courier_id`,
			string(u.To), u.At, u.Reason, string(u.OrderID), string(u.From), u.Version,
		).Scan(&courierID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		updated = true
		if !u.ReleaseCourier || courierID == nil {
			return nil
		}
		_, err = tx.Exec(ctx, `
			UPDATE couriers
			SET status = 'idle', updated_at = $2
			WHERE id = $1 AND status = 'busy'`,
			*courierID, u.At,
		)
		return err
	})
	if err != nil {
		return false, err
	}
	return updated, nil
}

func (s *Store) Claim(ctx context.Context, orderID, courierID types.ID, at time.Time) error {
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE couriers
			SET status = 'busy', updated_at = $2
			WHERE id = $1
			  AND status = 'idle'
			  AND active
			  AND NOT EXISTS (
				SELECT 1 FROM orders
				WHERE courier_id = $1 AND status = ANY($3)
			  )`,
			string(courierID), at, statusStrings(ActiveStatuses),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return ErrCourierUnavailable
		}

		tag, err = tx.Exec(ctx, `
			UPDATE orders
			SET status = 'courier_assigned',
				status_version = status_version + 1,
				courier_id = $1,
				assigned_at = $2,
				updated_at = $2
			WHERE id = $3 AND status = 'ready' AND courier_id IS NULL`,
			string(courierID), at, string(orderID),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return ErrNoLongerAvailable
		}
		return nil
	})
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrCourierUnavailable
	}
	return err
}

func (s *Store) Deliver(ctx context.Context, d Delivery) (bool, error) {
	delivered := false
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE orders
			SET status = 'delivered',
				status_version = status_version + 1,
				courier_earnings = $1,
				delivered_at = $2,
				updated_at = $2
			WHERE id = $3 AND status = 'in_delivery' AND status_version = $4 AND courier_id = $5`,
			d.Earnings.Amount, d.At, string(d.OrderID), d.Version, string(d.CourierID),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return nil
		}
		_, err = tx.Exec(ctx, `
			UPDATE couriers
			SET delivery_count = delivery_count + 1,
				total_earnings = total_earnings + $1,
				status = 'idle',
				updated_at = $2
			WHERE id = $3`,
			d.Earnings.Amount, d.At, string(d.CourierID),
		)
		if err != nil {
			return err
		}
		delivered = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return delivered, nil
}

func (s *Store) ReadyWithin(ctx context.Context, box geo.Box) ([]Order, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = 'ready'
		  AND courier_id IS NULL
		  AND pickup_lat BETWEEN $1 AND $2
		  AND pickup_lng BETWEEN $3 AND $4`,
		box.MinLat, box.MaxLat, box.MinLng, box.MaxLng,
	)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (s *Store) ListReadyUnassigned(ctx context.Context, limit int) ([]Order, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = 'ready' AND courier_id IS NULL
		ORDER BY ready_at
		LIMIT $1`, limit,
	)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO order_state_events (
			order_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.OrderID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		toStringPtr(e.ActorID),
		e.CreatedAt,
	)
	return err
}

func (s *Store) Rate(ctx context.Context, r *Rating) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO order_ratings (order_id, courier_id, client_id, rating, comment, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (order_id) DO NOTHING`,
			string(r.OrderID), string(r.CourierID), string(r.ClientID), r.Rating, r.Comment, r.CreatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return ErrAlreadyRated
		}
		// Right-hand sides read the pre-update row.
		_, err = tx.Exec(ctx, `
			UPDATE couriers
			SET average_rating = (average_rating * rating_count + $1) / (rating_count + 1),
				rating_count = rating_count + 1,
				updated_at = $2
			WHERE id = $3`,
			float64(r.Rating), r.CreatedAt, string(r.CourierID),
		)
		return err
	})
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var id, clientID, merchantID, merchantKind, status, currency, paymentMode string
	var courierID *string
	err := row.Scan(
		&id, &o.Number, &clientID, &merchantID, &merchantKind, &courierID, &status, &o.StatusVersion,
		&o.Pickup.Lat, &o.Pickup.Lng, &o.Delivery.Lat, &o.Delivery.Lng, &o.DeliveryAddress,
		&o.DistanceKm, &o.EstimatedMinutes, &currency,
		&o.Subtotal.Amount, &o.DeliveryFee.Amount, &o.Commission.Amount, &o.Total.Amount, &o.CourierEarnings.Amount,
		&paymentMode, &o.PaymentStatus, &o.OTPCode, &o.CancelReason,
		&o.CreatedAt, &o.UpdatedAt, &o.AcceptedAt, &o.PreparingAt, &o.ReadyAt, &o.AssignedAt,
		&o.EnRouteAt, &o.CollectedAt, &o.InDeliveryAt, &o.DeliveredAt, &o.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	o.ID = types.ID(id)
	o.ClientID = types.ID(clientID)
	o.MerchantID = types.ID(merchantID)
	o.MerchantKind = MerchantKind(merchantKind)
	o.Status = Status(status)
	o.PaymentMode = PaymentMode(paymentMode)
	if courierID != nil {
		c := types.ID(*courierID)
		o.CourierID = &c
	}
	for _, m := range []*types.Money{&o.Subtotal, &o.DeliveryFee, &o.Commission, &o.Total, &o.CourierEarnings} {
		m.Currency = currency
	}
	return &o, nil
}

func collectOrders(rows pgx.Rows) ([]Order, error) {
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
