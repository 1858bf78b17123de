package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("KAFKA_ENABLED", "")
	t.Setenv("TYPING_TTL_SECONDS", "")

	cfg := Load()
	assert.Equal(t, StoreDriverPostgres, cfg.Database.Driver)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Business.TypingTTL)
	assert.Equal(t, 30*time.Second, cfg.Auth.Leeway)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("KAFKA_ENABLED", "false")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("TYPING_TTL_SECONDS", "9")
	t.Setenv("RESERVE_LOCK_TTL_SECONDS", "bogus")

	cfg := Load()
	assert.Equal(t, StoreDriverMemory, cfg.Database.Driver)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 9*time.Second, cfg.Business.TypingTTL)
	assert.Equal(t, 5*time.Second, cfg.Business.ReserveLockTTL)
}
