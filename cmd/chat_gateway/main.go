package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"marketplace_chat_service/internal/chat/app"
	"marketplace_chat_service/internal/chat/repository"
	"marketplace_chat_service/internal/chat/router"
	"marketplace_chat_service/pkg/config"
	"marketplace_chat_service/pkg/database"
	"marketplace_chat_service/pkg/logger"
	testtool "marketplace_chat_service/pkg/test_tool"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.ChatGateway, config.EnvConfig.ChatGatewayLogPath)
	cfg := config.LoadConfig[config.Gateway](config.EnvConfig.ChatGateway, config.EnvConfig.ChatGatewayYAMLPath)
	testtool.StartPprof()

	// 1. postgreSQL (query side, schema owner)
	pgURI := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Host, cfg.PostgreSQL.Port, cfg.PostgreSQL.Database)
	gormDB, err := database.NewGormConnection(database.Connection{
		ConnectStr:    pgURI,
		RetryCount:    cfg.PostgreSQL.RetryCount,
		RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to postgreSQL database after retries",
			zap.String("address", fmt.Sprintf("[%s]", pgURI)),
			zap.Error(err),
		)
	}

	historyRepo := repository.NewHistoryRepository(gormDB)
	if err := historyRepo.AutoMigrate(); err != nil {
		logger.Log.Fatal("auto migrate failed", zap.Error(err))
	}

	// 2. redis (presence markers, unseen counters)
	masterName, sentinel := config.GetRedisSetting()
	redisClient, err := database.NewRedisClient(masterName, sentinel, cfg.Redis.RedisDB)
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect redis err : %v", err))
	}
	presenceRepo := repository.NewPresenceRepository(redisClient)

	// 3. kafka writer (durable log)
	kafkaWriter, err := database.NewKafkaWriterWithRetry(database.KafkaConnection{
		Brokers:       cfg.Kafka.Brokers,
		Topic:         cfg.Kafka.Topic,
		RetryCount:    cfg.Kafka.RetryCount,
		RetryInterval: time.Duration(cfg.Kafka.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal("unable to create kafka writer", zap.Error(err))
	}
	publisher := app.NewKafkaEventPublisher(kafkaWriter)
	defer publisher.Close()

	// 4. rabbitMQ (offline notification boundary), optional
	var notifier app.OfflineNotifier
	if cfg.Rabbit.URL != "" {
		rabbitConn, err := database.ConnectRabbitMQWithRetry(database.Connection{
			ConnectStr:    cfg.Rabbit.URL,
			RetryCount:    cfg.Rabbit.RetryCount,
			RetryInterval: time.Duration(cfg.Rabbit.RetryInterval),
		})
		if err != nil {
			logger.Log.Fatal("unable to connect rabbitMQ", zap.Error(err))
		}
		defer rabbitConn.Close()

		rabbitCh, err := database.GetRabbitMQChannelWithRetry(rabbitConn, cfg.Rabbit.RetryCount, time.Duration(cfg.Rabbit.RetryInterval))
		if err != nil {
			logger.Log.Fatal("unable to open rabbitMQ channel", zap.Error(err))
		}
		if err := rabbitCh.ExchangeDeclare(cfg.Rabbit.Exchange, "topic", true, false, false, false, nil); err != nil {
			logger.Log.Fatal("unable to declare notification exchange", zap.Error(err))
		}
		notifier = app.NewRabbitOfflineNotifier(database.NewRabbitRepository(rabbitCh), cfg.Rabbit.Exchange)
	}

	// 5. gateway use case + handlers
	registry := app.NewRegistry()
	gatewayUC := app.NewGatewayUseCase(registry, presenceRepo, publisher, notifier, time.Duration(cfg.PresenceTTL)*time.Second)
	wsHandler := app.NewChatWebsocketHandler(gatewayUC)
	queryHandler := app.NewQueryHandler(presenceRepo, historyRepo)

	// 6. fiber
	r := fiber.New()
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.ChatGatewayLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))

	router.RegisterRoutes(r, wsHandler, queryHandler)

	port := ":" + cfg.Port
	log.Printf("Chat Gateway listening on %s", port)
	if err := r.Listen(port); err != nil {
		log.Fatalf("Failed to start Fiber: %v", err)
	}
}
