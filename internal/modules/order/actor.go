package order

import "dispatch/internal/types"

type Role string

const (
	RoleClient      Role = "client"
	RoleRestaurant  Role = "restaurant"
	RoleSupermarket Role = "supermarket"
	RoleCourier     Role = "courier"
	RoleAdmin       Role = "admin"
	RoleSystem      Role = "system"
)

// Actor is the caller of an operation. For merchant roles ID is the
// merchant's ID, not the user's.
type Actor struct {
	ID   types.ID
	Role Role
}

func (a Actor) privileged() bool {
	return a.Role == RoleAdmin || a.Role == RoleSystem
}

func (a Actor) ownsMerchant(o *Order) bool {
	switch a.Role {
	case RoleRestaurant:
		return o.MerchantKind == MerchantRestaurant && a.ID == o.MerchantID
	case RoleSupermarket:
		return o.MerchantKind == MerchantSupermarket && a.ID == o.MerchantID
	}
	return false
}

func (a Actor) isAssignedCourier(o *Order) bool {
	return a.Role == RoleCourier && o.CourierID != nil && *o.CourierID == a.ID
}

func (a Actor) isClient(o *Order) bool {
	return a.Role == RoleClient && a.ID == o.ClientID
}

// authorize decides whether actor may move o to target. Assignment is never
// allowed here; it only happens through a courier claim.
func authorize(o *Order, a Actor, target Status) error {
	allowed := false
	switch target {
	case StatusAccepted, StatusPreparing, StatusReady, StatusRefused:
		allowed = a.ownsMerchant(o) || a.privileged()
	case StatusEnRouteToPickup, StatusCollected, StatusInDelivery, StatusDelivered:
		allowed = a.isAssignedCourier(o)
	case StatusCancelled:
		allowed = a.isClient(o) || a.ownsMerchant(o) || a.privileged()
	}
	if !allowed {
		return ErrForbidden
	}
	return nil
}

// CanView reports whether actor is a party to o.
func CanView(o *Order, a Actor) bool {
	return a.privileged() || a.isClient(o) || a.ownsMerchant(o) || a.isAssignedCourier(o)
}
