package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DISPATCH_AUTH_MODE", "jwt")
	t.Setenv("DISPATCH_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 0.75, cfg.Order.CourierShare)
	assert.Equal(t, 5, cfg.Order.OTPMaxAttempts)
	assert.Equal(t, 15*time.Minute, cfg.Order.OTPLockout)
	assert.Equal(t, 10.0, cfg.Pricing.DefaultCommissionPct)
	assert.Equal(t, 25, cfg.Earnings.WeeklyGoal)
	assert.Equal(t, 3, cfg.Matching.TickSeconds)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DISPATCH_AUTH_MODE", "firebase")
	t.Setenv("DISPATCH_COURIER_SHARE", "0.8")
	t.Setenv("DISPATCH_OTP_LOCKOUT", "2m")
	t.Setenv("DISPATCH_KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("DISPATCH_MATCH_RADIUS_KM", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, AuthFirebase, cfg.Auth.Mode)
	assert.Equal(t, 0.8, cfg.Order.CourierShare)
	assert.Equal(t, 2*time.Minute, cfg.Order.OTPLockout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 3.0, cfg.Matching.RadiusKm, "invalid values fall back to the default")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"jwt without secret", map[string]string{"DISPATCH_AUTH_MODE": "jwt", "DISPATCH_JWT_SECRET": ""}},
		{"unknown auth mode", map[string]string{"DISPATCH_AUTH_MODE": "basic"}},
		{"share above one", map[string]string{"DISPATCH_AUTH_MODE": "firebase", "DISPATCH_COURIER_SHARE": "1.5"}},
		{"zero otp attempts", map[string]string{"DISPATCH_AUTH_MODE": "firebase", "DISPATCH_OTP_MAX_ATTEMPTS": "0"}},
		{"negative otp attempts", map[string]string{"DISPATCH_AUTH_MODE": "firebase", "DISPATCH_OTP_MAX_ATTEMPTS": "-2"}},
		{"zero otp lockout", map[string]string{"DISPATCH_AUTH_MODE": "firebase", "DISPATCH_OTP_LOCKOUT": "0s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
