package pricing

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatch/internal/config"
	"dispatch/internal/types"
)

type fakeCatalog struct {
	merchants map[types.ID]Merchant
	products  map[types.ID]Product
}

func (f *fakeCatalog) Merchant(_ context.Context, id types.ID) (*Merchant, error) {
	m, ok := f.merchants[id]
	if !ok {
		return nil, ErrMerchantNotFound
	}
	return &m, nil
}

func (f *fakeCatalog) Products(_ context.Context, merchantID types.ID, ids []types.ID) (map[types.ID]Product, error) {
	out := map[types.ID]Product{}
	for _, id := range ids {
		if p, ok := f.products[id]; ok && p.MerchantID == merchantID {
			out[id] = p
		}
	}
	return out, nil
}

func newCatalog() *fakeCatalog {
	pct := 15.0
	return &fakeCatalog{
		merchants: map[types.ID]Merchant{
			"r1": {ID: "r1", Kind: "restaurant", Name: "Chez Mama", BaseDeliveryFee: 500, Open: true, Active: true},
			"r2": {ID: "r2", Kind: "restaurant", Name: "Le Negotiated", BaseDeliveryFee: 700, CommissionPct: &pct, Open: true, Active: true},
			"s1": {ID: "s1", Kind: "supermarket", Name: "Closed Mart", BaseDeliveryFee: 400, Open: false, Active: true},
		},
		products: map[types.ID]Product{
			"p1": {ID: "p1", MerchantID: "r1", Name: "Ndole", Price: 1500, Available: true},
			"p2": {ID: "p2", MerchantID: "r1", Name: "Plantain", Price: 333, Available: true},
			"p3": {ID: "p3", MerchantID: "r1", Name: "Sold out", Price: 900, Available: false},
			"p4": {ID: "p4", MerchantID: "r2", Name: "Poulet DG", Price: 1000, Available: true},
			"p5": {ID: "p5", MerchantID: "r1", Name: "Gold plated", Price: math.MaxInt64 / 2, Available: true},
			"p6": {ID: "p6", MerchantID: "r1", Name: "Banquet", Price: 1 << 49, Available: true},
		},
	}
}

func newTestService() *Service {
	return NewService(newCatalog(), config.PricingConfig{Currency: "XOF", DefaultCommissionPct: 10, })
}

func TestQuote_TotalIsSumOfParts(t *testing.T) {
	q, err := newTestService().Quote(context.Background(), QuoteRequest{
		MerchantID:   "r1",
		MerchantKind: "restaurant",
		Items:        []LineRequest{{ProductID: "p1", Quantity: 2}},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(3000), q.Subtotal.Amount)
	assert.Equal(t, int64(500), q.DeliveryFee.Amount)
	assert.Equal(t, int64(300), q.Commission.Amount)
	assert.Equal(t, int64(3800), q.Total.Amount)
	assert.Equal(t, q.Subtotal.Amount+q.DeliveryFee.Amount+q.Commission.Amount, q.Total.Amount)
	assert.Equal(t, "XOF", q.Total.Currency)
	require.Len(t, q.Lines, 1)
	assert.Equal(t, int64(1500), q.Lines[0].UnitPrice.Amount)
	assert.Equal(t, int64(3000), q.Lines[0].LineTotal.Amount)
}

func TestQuote_CommissionRounding(t *testing.T) {
	// 333 * 3 = 999; 10% = 99.9 -> 100
	q, err := newTestService().Quote(context.Background(), QuoteRequest{
		MerchantID: "r1",
		Items:      []LineRequest{{ProductID: "p2", Quantity: 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(999), q.Subtotal.Amount)
	assert.Equal(t, int64(100), q.Commission.Amount)
	assert.Equal(t, int64(999+500+100), q.Total.Amount)
}

func TestQuote_MerchantCommissionOverridesDefault(t *testing.T) {
	q, err := newTestService().Quote(context.Background(), QuoteRequest{
		MerchantID: "r2",
		Items:      []LineRequest{{ProductID: "p4", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(150), q.Commission.Amount)
	assert.Equal(t, int64(1850), q.Total.Amount)
}

func TestQuote_Validation(t *testing.T) {
	tests := []struct {
		name  string
		req   QuoteRequest
		field string
	}{
		{"missing merchant", QuoteRequest{Items: []LineRequest{{ProductID: "p1", Quantity: 1}}}, "merchant_id"},
		{"no items", QuoteRequest{MerchantID: "r1"}, "items"},
		{"unknown merchant", QuoteRequest{MerchantID: "zz", Items: []LineRequest{{ProductID: "p1", Quantity: 1}}}, "merchant_id"},
		{"kind mismatch", QuoteRequest{MerchantID: "r1", MerchantKind: "supermarket", Items: []LineRequest{{ProductID: "p1", Quantity: 1}}}, "merchant_id"},
		{"closed merchant", QuoteRequest{MerchantID: "s1", Items: []LineRequest{{ProductID: "p1", Quantity: 1}}}, "merchant_id"},
		{"zero quantity", QuoteRequest{MerchantID: "r1", Items: []LineRequest{{ProductID: "p1", Quantity: 0}}}, "items[0].quantity"},
		{"unavailable product", QuoteRequest{MerchantID: "r1", Items: []LineRequest{{ProductID: "p1", Quantity: 1}, {ProductID: "p3", Quantity: 1}}}, "items[1].product_id"},
		{"product of other merchant", QuoteRequest{MerchantID: "r1", Items: []LineRequest{{ProductID: "p4", Quantity: 1}}}, "items[0].product_id"},
	}
	svc := newTestService()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Quote(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrValidation))
			var fe *types.FieldError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestQuote_RejectsAmountsThatWouldOverflow(t *testing.T) {
	tests := []struct {
		name  string
		items []LineRequest
		field string
	}{
		{"quantity near int64 range", []LineRequest{{ProductID: "p1", Quantity: math.MaxInt64 / 1000}}, "items[0].quantity"},
		{"quantity above cap", []LineRequest{{ProductID: "p1", Quantity: MaxQuantity + 1}}, "items[0].quantity"},
		{"huge unit price", []LineRequest{{ProductID: "p5", Quantity: 3}}, "items[0].quantity"},
		{"subtotal too large", []LineRequest{{ProductID: "p6", Quantity: 1}, {ProductID: "p6", Quantity: 1}, {ProductID: "p6", Quantity: 1}}, "items"},
	}
	svc := newTestService()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := svc.Quote(context.Background(), QuoteRequest{MerchantID: "r1", Items: tt.items})
			require.Error(t, err, "quote %+v", q)
			assert.True(t, errors.Is(err, types.ErrValidation))
			var fe *types.FieldError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestQuote_MaxQuantityKeepsTotalConsistent(t *testing.T) {
	q, err := newTestService().Quote(context.Background(), QuoteRequest{
		MerchantID: "r1",
		Items:      []LineRequest{{ProductID: "p1", Quantity: MaxQuantity}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1500*MaxQuantity), q.Subtotal.Amount)
	assert.Equal(t, q.Subtotal.Amount+q.DeliveryFee.Amount+q.Commission.Amount, q.Total.Amount)
	assert.Positive(t, q.Total.Amount)
}
