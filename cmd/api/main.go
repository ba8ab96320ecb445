package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"upforit/config"
	"upforit/internal/events"
	"upforit/internal/handler"
	"upforit/internal/outbox"
	"upforit/internal/push"
	"upforit/internal/redis"
	"upforit/internal/repository"
	"upforit/internal/repository/memory"
	"upforit/internal/server"
	"upforit/internal/services"
	"upforit/internal/storage"
	"upforit/internal/websocket"
	"upforit/pkg/database"
	"upforit/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()

	l := logger.New(cfg.LogMode)
	logger.SetGlobalLogger(l)
	defer l.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, l); err != nil {
		l.Logger.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, l *logger.Logger) error {
	store, health, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// Redis is optional unless it carries the change stream.
	rdb, err := redis.NewClient(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		if cfg.EventTransport == config.EventTransportRedis {
			return err
		}
		l.Logger.Warn("redis unavailable, using in-process cache and notices", zap.Error(err))
		rdb = nil
	}
	if rdb != nil {
		defer rdb.Close()
	}

	hub := websocket.NewHub()

	var (
		notices services.NoticePublisher = hub
		guard   events.Guard             = memory.NewGuard()
		cache   services.ChatCache       = memory.NewCache()
		pokes   services.PokeLimiter
		msgs    services.MessageLimiter
	)
	if rdb != nil {
		notices = redis.NewPublisher(rdb)
		guard = redis.NewEventGuard(rdb, cfg.EventDedupeTTL)
		cacheCfg := redis.DefaultCacheConfig()
		cacheCfg.ChatListTTL = cfg.ChatCacheTTL
		cacheCfg.LastMessageTTL = cfg.ChatCacheTTL
		cache = redis.NewCacheStore(rdb, cacheCfg)
		limitCfg := redis.DefaultRateLimitConfig()
		limitCfg.PokeLimit = cfg.PokeLimit
		limitCfg.PokeWindow = cfg.PokeWindow
		limiter := redis.NewRateLimiter(rdb, limitCfg)
		pokes, msgs = limiter, limiter
	}

	publisher, source, closeStream := openStream(cfg, rdb, l)
	defer closeStream()

	var sender push.Sender = push.NewExpoClient(push.Config{
		URL:         cfg.ExpoPushURL,
		AccessToken: cfg.ExpoAccessToken,
		Timeout:     cfg.PushTimeout,
		MaxFailures: cfg.BreakerMaxFailures,
		OpenTimeout: cfg.BreakerOpenTimeout,
	}, l)

	var presigner services.ObjectPresigner
	if cfg.S3Bucket != "" {
		s3c, err := storage.NewClient(ctx, storage.S3Config{
			Region:     cfg.S3Region,
			Bucket:     cfg.S3Bucket,
			AccessKey:  cfg.S3AccessKey,
			SecretKey:  cfg.S3SecretKey,
			Endpoint:   cfg.S3Endpoint,
			PublicBase: cfg.S3PublicBase,
			PresignTTL: cfg.S3PresignTTL,
		})
		if err != nil {
			return err
		}
		presigner = s3c
	}

	auth := services.NewAuthService(cfg)
	badges := services.NewBadgeService(store, notices, l)
	notifications := services.NewNotificationService(store, badges, sender, pokes, l)
	aggregator := services.NewConversationAggregator(store, cache, cfg.AggregatorRowWorkers, l)
	defer aggregator.Wait()

	router := events.NewRouter(guard, l)
	notifications.RegisterHandlers(router)

	runner := outbox.NewRunner(outbox.NewProcessor(store.Outbox(), publisher, l,
		cfg.OutboxBatchSize, cfg.OutboxInterval, cfg.OutboxMaxRetries))
	runner.Start(ctx)
	defer runner.Wait()

	go hub.Run(ctx)
	if rdb != nil {
		bridge := websocket.NewRedisBridge(redis.NewSubscriber(rdb), hub)
		go func() {
			if err := bridge.Run(ctx); err != nil && ctx.Err() == nil {
				l.Logger.Error("notice bridge stopped", zap.Error(err))
			}
		}()
	}
	go func() {
		if err := source.Run(ctx, router.Handle); err != nil && ctx.Err() == nil {
			l.Logger.Error("change stream stopped", zap.Error(err))
		}
	}()

	srv := server.New(cfg, l)
	srv.SetupRoutes(&server.Handlers{
		Auth:          handler.NewAuthHandler(auth),
		Users:         handler.NewUserHandler(services.NewUserService(store.Users()), badges, services.NewAvatarService(store.Users(), presigner)),
		Conversations: handler.NewConversationHandler(services.NewConversationService(store), aggregator, badges),
		Messages:      handler.NewMessageHandler(services.NewMessageService(store, msgs, l)),
		Crews:         handler.NewCrewHandler(services.NewCrewService(store, l), notifications),
		Socket:        websocket.NewHandler(auth, hub, badges, l),
	}, auth, health)

	return srv.Start(ctx)
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, server.HealthFunc, func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		return memory.NewStore(), nil, func() {}, nil
	}
	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	health := func(ctx context.Context) error { return database.HealthCheck(ctx, pool) }
	return repository.NewPostgresStore(pool), health, func() { database.Close(pool) }, nil
}

func openStream(cfg *config.Config, rdb *goredis.Client, l *logger.Logger) (events.Publisher, events.Source, func()) {
	switch {
	case cfg.EventTransport == config.EventTransportKafka:
		pub := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		src := events.NewKafkaSource(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, l)
		return pub, src, func() {
			_ = pub.Close()
			_ = src.Close()
		}
	case cfg.EventTransport == config.EventTransportRedis && rdb != nil:
		return events.NewRedisPublisher(redis.NewPublisher(rdb)), events.NewRedisSource(redis.NewSubscriber(rdb), l), func() {}
	default:
		bus := events.NewLocalBus(256, l)
		return bus, bus, func() {}
	}
}

