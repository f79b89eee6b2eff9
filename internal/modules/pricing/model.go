// README: Merchant terms, catalog products and order quotes.
package pricing

import "dispatch/internal/types"

type Merchant struct {
	ID              types.ID
	Kind            string
	Name            string
	Address         string
	Position        types.Point
	BaseDeliveryFee int64
	// CommissionPct is nil when the merchant has no negotiated rate.
	CommissionPct *float64
	Open          bool
	Active        bool
}

type Product struct {
	ID         types.ID
	MerchantID types.ID
	Name       string
	Price      int64
	Available  bool
}

type LineRequest struct {
	ProductID types.ID
	Quantity  int
}

type QuoteRequest struct {
	MerchantID   types.ID
	MerchantKind string
	Items        []LineRequest
}

type Line struct {
	ProductID types.ID
	Name      string
	Quantity  int
	UnitPrice types.Money
	LineTotal types.Money
}

type Quote struct {
	Merchant    Merchant
	Lines       []Line
	Subtotal    types.Money
	DeliveryFee types.Money
	Commission  types.Money
	Total       types.Money
}
