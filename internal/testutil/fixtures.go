package testutil

import (
	"time"

	"dispatch/internal/modules/courier"
	"dispatch/internal/modules/pricing"
	"dispatch/internal/types"
)

// A small marketplace around Yaounde used across package tests.
const (
	ClientID      types.ID = "client-1"
	RestaurantID  types.ID = "resto-1"
	SupermarketID types.ID = "market-1"
	ProductNdole  types.ID = "prod-ndole"
	ProductJuice  types.ID = "prod-juice"
	CourierNear   types.ID = "courier-1"
	CourierSecond types.ID = "courier-2"
)

var (
	RestaurantPos = types.Point{Lat: 3.8480, Lng: 11.5021}
	DeliveryPos   = types.Point{Lat: 3.8600, Lng: 11.5150}
	NearPos       = types.Point{Lat: 3.8500, Lng: 11.5040}
	SecondPos     = types.Point{Lat: 3.8550, Lng: 11.5100}
)

// SeedMarketplace adds one open restaurant (delivery fee 500, default
// commission), one supermarket, their products and two idle couriers.
func SeedMarketplace(s *Store) {
	s.SeedMerchant(pricing.Merchant{
		ID:              RestaurantID,
		Kind:            "restaurant",
		Name:            "Chez Mama",
		Address:         "Rue Nachtigal",
		Position:        RestaurantPos,
		BaseDeliveryFee: 500,
		Open:            true,
		Active:          true,
	})
	s.SeedMerchant(pricing.Merchant{
		ID:              SupermarketID,
		Kind:            "supermarket",
		Name:            "Mahima",
		Address:         "Avenue Kennedy",
		Position:        types.Point{Lat: 3.8660, Lng: 11.5170},
		BaseDeliveryFee: 400,
		Open:            true,
		Active:          true,
	})
	s.SeedProduct(pricing.Product{ID: ProductNdole, MerchantID: RestaurantID, Name: "Ndole", Price: 1500, Available: true})
	s.SeedProduct(pricing.Product{ID: ProductJuice, MerchantID: SupermarketID, Name: "Juice", Price: 800, Available: true})

	now := time.Now()
	for _, c := range []struct {
		id  types.ID
		pos types.Point
	}{{CourierNear, NearPos}, {CourierSecond, SecondPos}} {
		cr := courier.New(c.id, now)
		p := c.pos
		cr.Position = &p
		cr.PositionUpdatedAt = &now
		cr.Status = courier.StatusIdle
		s.SeedCourier(*cr)
	}
}
