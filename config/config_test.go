package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, EventTransportRedis, cfg.EventTransport)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 500*time.Millisecond, cfg.OutboxInterval)
	assert.Equal(t, 3, cfg.PokeLimit)
	assert.Equal(t, 10*time.Minute, cfg.PokeWindow)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("EVENT_TRANSPORT", "Kafka")
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("OUTBOX_BATCH_SIZE", "7")
	t.Setenv("PUSH_TIMEOUT", "3s")

	cfg := LoadConfig()

	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, EventTransportKafka, cfg.EventTransport)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 7, cfg.OutboxBatchSize)
	assert.Equal(t, 3*time.Second, cfg.PushTimeout)
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a"}, splitList("a,"))
}
