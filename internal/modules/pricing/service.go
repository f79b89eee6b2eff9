// README: Pricing service computes order quotes from merchant terms and catalog prices.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"

	"dispatch/internal/config"
	"dispatch/internal/types"
)

var ErrMerchantNotFound = errors.New("merchant not found")

// MaxQuantity bounds the quantity of a single line.
const MaxQuantity = 999

// maxAmount bounds every line, subtotal and total in minor units, keeping
// commission arithmetic exact in float64.
const maxAmount int64 = 1 << 50

type Catalog interface {
	Merchant(ctx context.Context, id types.ID) (*Merchant, error)
	Products(ctx context.Context, merchantID types.ID, ids []types.ID) (map[types.ID]Product, error)
}

type Service struct {
	catalog Catalog
	cfg     config.PricingConfig
}

func NewService(catalog Catalog, cfg config.PricingConfig) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "XOF"
	}
	return &Service{catalog: catalog, cfg: cfg}
}

// Quote prices an order: subtotal from catalog prices, the merchant's base
// delivery fee, and commission rounded on the subtotal.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if req.MerchantID == "" {
		return nil, types.NewFieldError("merchant_id", "is required")
	}
	if len(req.Items) == 0 {
		return nil, types.NewFieldError("items", "at least one item is required")
	}

	m, err := s.catalog.Merchant(ctx, req.MerchantID)
	if errors.Is(err, ErrMerchantNotFound) {
		return nil, types.NewFieldError("merchant_id", "unknown merchant")
	}
	if err != nil {
		return nil, fmt.Errorf("load merchant: %w", err)
	}
	if req.MerchantKind != "" && m.Kind != req.MerchantKind {
		return nil, types.NewFieldError("merchant_id", "unknown merchant")
	}
	if !m.Active || !m.Open {
		return nil, types.NewFieldError("merchant_id", "merchant is not accepting orders")
	}

	ids := make([]types.ID, 0, len(req.Items))
	for i, it := range req.Items {
		if it.Quantity < 1 {
			return nil, types.NewFieldError(fmt.Sprintf("items[%d].quantity", i), "must be at least 1")
		}
		if it.Quantity > MaxQuantity {
			return nil, types.NewFieldError(fmt.Sprintf("items[%d].quantity", i), fmt.Sprintf("must be at most %d", MaxQuantity))
		}
		ids = append(ids, it.ProductID)
	}
	products, err := s.catalog.Products(ctx, m.ID, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}

	q := &Quote{
		Merchant: *m,
		Lines:    make([]Line, 0, len(req.Items)),
		Subtotal: types.NewMoney(0, s.cfg.Currency),
	}
	for i, it := range req.Items {
		p, ok := products[it.ProductID]
		if !ok || p.MerchantID != m.ID || !p.Available {
			return nil, types.NewFieldError(fmt.Sprintf("items[%d].product_id", i), "product is not available")
		}
		if p.Price > maxAmount/int64(it.Quantity) {
			return nil, types.NewFieldError(fmt.Sprintf("items[%d].quantity", i), "line amount is too large")
		}
		unit := types.NewMoney(p.Price, s.cfg.Currency)
		line := types.NewMoney(p.Price*int64(it.Quantity), s.cfg.Currency)
		if q.Subtotal.Amount > maxAmount-line.Amount {
			return nil, types.NewFieldError("items", "order amount is too large")
		}
		q.Lines = append(q.Lines, Line{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  it.Quantity,
			UnitPrice: unit,
			LineTotal: line,
		})
		q.Subtotal = q.Subtotal.Add(line)
	}

	q.DeliveryFee = types.NewMoney(m.BaseDeliveryFee, s.cfg.Currency)
	q.Commission = s.Commission(q.Subtotal, m.CommissionPct)
	if q.Commission.Amount < 0 || q.Commission.Amount > maxAmount || q.DeliveryFee.Amount > maxAmount ||
		q.Subtotal.Amount+q.DeliveryFee.Amount > maxAmount-q.Commission.Amount {
		return nil, types.NewFieldError("items", "order amount is too large")
	}
	q.Total = q.Subtotal.Add(q.DeliveryFee).Add(q.Commission)
	return q, nil
}

// Commission is round(subtotal × pct / 100), using the default rate when the
// merchant has none.
func (s *Service) Commission(subtotal types.Money, pct *float64) types.Money {
	rate := s.cfg.DefaultCommissionPct
	if pct != nil {
		rate = *pct
	}
	amount := int64(math.Round(float64(subtotal.Amount) * rate / 100))
	return types.NewMoney(amount, subtotal.Currency)
}
