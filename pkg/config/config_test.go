package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 5*time.Minute, cfg.Availability.CacheTTL)
	assert.Equal(t, 15, cfg.Bookings.MinDurationMinutes)
	assert.Equal(t, 480, cfg.Bookings.MaxDurationMinutes)
	assert.Equal(t, float64(5), cfg.RateLimit.RPS)
	assert.Nil(t, cfg.CORS.AllowedOrigins)
}

func TestFromViperEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("AVAILABILITY_CACHE_TTL", "not-a-duration")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("BOOKING_MAX_DURATION", "-5")

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := fromViper(v)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.Availability.CacheTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 480, cfg.Bookings.MaxDurationMinutes)
}
