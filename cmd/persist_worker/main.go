package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace_chat_service/internal/chat/repository"
	"marketplace_chat_service/internal/persist/app"
	"marketplace_chat_service/pkg/config"
	"marketplace_chat_service/pkg/database"
	"marketplace_chat_service/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.PersistWorker, config.EnvConfig.PersistWorkerLogPath)
	cfg := config.LoadConfig[config.Worker](config.EnvConfig.PersistWorker, config.EnvConfig.PersistWorkerYAMLPath)

	// 1. postgreSQL pool (bulk write side)
	pgURI := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Host, cfg.PostgreSQL.Port, cfg.PostgreSQL.Database)
	pool, err := database.NewDatabaseConnection(database.Connection{
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
	defer pool.Close()
	store := repository.NewMessageStore(pool)

	// 2. redis (unseen counters)
	masterName, sentinel := config.GetRedisSetting()
	redisClient, err := database.NewRedisClient(masterName, sentinel, cfg.Redis.RedisDB)
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect redis err : %v", err))
	}
	presenceRepo := repository.NewPresenceRepository(redisClient)

	// 3. kafka consumer group
	reader, err := database.NewKafkaReaderWithRetry(database.KafkaConnection{
		Brokers:       cfg.Kafka.Brokers,
		Topic:         cfg.Kafka.Topic,
		GroupID:       cfg.Kafka.GroupID,
		RetryCount:    cfg.Kafka.RetryCount,
		RetryInterval: time.Duration(cfg.Kafka.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal("unable to create kafka reader", zap.Error(err))
	}
	defer reader.Close()

	worker := app.NewBatchPersistWorker(reader, store, presenceRepo, time.Duration(cfg.FlushInterval)*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Log.Info("shutdown signal received")
		cancel()
	}()

	logger.Log.Info("Persist Worker consuming",
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("group", cfg.Kafka.GroupID),
	)
	if err := worker.Run(ctx); err != nil {
		logger.Log.Fatal("worker stopped", zap.Error(err))
	}
	if n := worker.BufferLen(); n > 0 {
		logger.Log.Warn("shutdown with unflushed events", zap.Int("buffered", n))
	}
}
