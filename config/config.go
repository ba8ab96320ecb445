package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	EventTransportKafka = "kafka"
	EventTransportRedis = "redis"
	EventTransportLocal = "local"
)

type Config struct {
	AppPort     string
	AppMode     string
	LogMode     string
	StoreDriver string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBMaxConns int

	JWTSecret    string
	JWTExpiryMin int

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	EventTransport string
	KafkaBrokers   []string
	KafkaTopic     string
	KafkaGroupID   string

	OutboxBatchSize  int
	OutboxInterval   time.Duration
	OutboxMaxRetries int

	ExpoPushURL          string
	ExpoAccessToken      string
	PushTimeout          time.Duration
	BreakerMaxFailures   int
	BreakerOpenTimeout   time.Duration
	EventDedupeTTL       time.Duration
	PokeLimit            int
	PokeWindow           time.Duration
	ChatCacheTTL         time.Duration
	AggregatorRowWorkers int

	S3Region     string
	S3Bucket     string
	S3AccessKey  string
	S3SecretKey  string
	S3Endpoint   string
	S3PublicBase string
	S3PresignTTL time.Duration
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	return &Config{
		AppPort:     v.GetString("APP_PORT"),
		AppMode:     v.GetString("APP_MODE"),
		LogMode:     v.GetString("LOG_MODE"),
		StoreDriver: strings.ToLower(v.GetString("STORE_DRIVER")),

		DBHost:     v.GetString("DB_HOST"),
		DBUser:     v.GetString("DB_USER"),
		DBPassword: v.GetString("DB_PASSWORD"),
		DBName:     v.GetString("DB_NAME"),
		DBPort:     v.GetString("DB_PORT"),
		DBMaxConns: v.GetInt("DB_MAX_CONNS"),

		JWTSecret:    v.GetString("JWT_SECRET"),
		JWTExpiryMin: v.GetInt("JWT_EXPIRY_MIN"),

		RedisHost:     v.GetString("REDIS_HOST"),
		RedisPort:     v.GetString("REDIS_PORT"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),

		EventTransport: strings.ToLower(v.GetString("EVENT_TRANSPORT")),
		KafkaBrokers:   splitList(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:     v.GetString("KAFKA_TOPIC"),
		KafkaGroupID:   v.GetString("KAFKA_GROUP_ID"),

		OutboxBatchSize:  v.GetInt("OUTBOX_BATCH_SIZE"),
		OutboxInterval:   v.GetDuration("OUTBOX_INTERVAL"),
		OutboxMaxRetries: v.GetInt("OUTBOX_MAX_RETRIES"),

		ExpoPushURL:          v.GetString("EXPO_PUSH_URL"),
		ExpoAccessToken:      v.GetString("EXPO_ACCESS_TOKEN"),
		PushTimeout:          v.GetDuration("PUSH_TIMEOUT"),
		BreakerMaxFailures:   v.GetInt("PUSH_BREAKER_MAX_FAILURES"),
		BreakerOpenTimeout:   v.GetDuration("PUSH_BREAKER_OPEN_TIMEOUT"),
		EventDedupeTTL:       v.GetDuration("EVENT_DEDUPE_TTL"),
		PokeLimit:            v.GetInt("POKE_LIMIT"),
		PokeWindow:           v.GetDuration("POKE_WINDOW"),
		ChatCacheTTL:         v.GetDuration("CHAT_CACHE_TTL"),
		AggregatorRowWorkers: v.GetInt("AGGREGATOR_ROW_WORKERS"),

		S3Region:     v.GetString("S3_REGION"),
		S3Bucket:     v.GetString("S3_BUCKET"),
		S3AccessKey:  v.GetString("S3_ACCESS_KEY"),
		S3SecretKey:  v.GetString("S3_SECRET_KEY"),
		S3Endpoint:   v.GetString("S3_ENDPOINT"),
		S3PublicBase: v.GetString("S3_PUBLIC_BASE"),
		S3PresignTTL: v.GetDuration("S3_PRESIGN_TTL"),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("APP_MODE", "debug")
	v.SetDefault("LOG_MODE", "development")
	v.SetDefault("STORE_DRIVER", StoreDriverPostgres)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "upforit")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_MAX_CONNS", 20)

	v.SetDefault("JWT_SECRET", "change-me")
	v.SetDefault("JWT_EXPIRY_MIN", 60)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("EVENT_TRANSPORT", EventTransportRedis)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_TOPIC", "upforit.changes")
	v.SetDefault("KAFKA_GROUP_ID", "upforit-fanout")

	v.SetDefault("OUTBOX_BATCH_SIZE", 100)
	v.SetDefault("OUTBOX_INTERVAL", "500ms")
	v.SetDefault("OUTBOX_MAX_RETRIES", 5)

	v.SetDefault("EXPO_PUSH_URL", "https://exp.host/--/api/v2/push/send")
	v.SetDefault("EXPO_ACCESS_TOKEN", "")
	v.SetDefault("PUSH_TIMEOUT", "10s")
	v.SetDefault("PUSH_BREAKER_MAX_FAILURES", 5)
	v.SetDefault("PUSH_BREAKER_OPEN_TIMEOUT", "30s")
	v.SetDefault("EVENT_DEDUPE_TTL", "24h")
	v.SetDefault("POKE_LIMIT", 3)
	v.SetDefault("POKE_WINDOW", "10m")
	v.SetDefault("CHAT_CACHE_TTL", "168h")
	v.SetDefault("AGGREGATOR_ROW_WORKERS", 8)

	v.SetDefault("S3_REGION", "")
	v.SetDefault("S3_BUCKET", "")
	v.SetDefault("S3_ACCESS_KEY", "")
	v.SetDefault("S3_SECRET_KEY", "")
	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_PUBLIC_BASE", "")
	v.SetDefault("S3_PRESIGN_TTL", "15m")
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// RedisAddr returns host:port for the redis client.
func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}
