package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/noeljp/GMAO-sub000/internal/config"
	"github.com/noeljp/GMAO-sub000/internal/consumer"
	"github.com/noeljp/GMAO-sub000/internal/evaluator"
	"github.com/noeljp/GMAO-sub000/internal/notifier"
	"github.com/noeljp/GMAO-sub000/internal/repository"
	"github.com/noeljp/GMAO-sub000/pkg/database"
	"github.com/noeljp/GMAO-sub000/pkg/redisclient"
)

// IngestService is the composition root of the ingestion pipeline: it owns
// the database and Redis handles, the repositories, the threshold
// evaluator and the MQTT connection manager.
type IngestService struct {
	config *config.Config
	logger *zap.Logger
	db     *sql.DB
	redis  *redis.Client
	mqtt   *consumer.MQTTService
}

// NewIngestService connects the infrastructure and wires the pipeline.
func NewIngestService(cfg *config.Config, logger *zap.Logger) (*IngestService, error) {
	db, err := database.New(cfg.Database.DSN(), cfg.Database.MaxConns, cfg.Database.MaxIdle)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	redisClient := redisclient.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err := redisclient.Ping(context.Background(), redisClient); err != nil {
		database.Close(db)
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	brokersRepo := repository.NewBrokersRepository(db, logger)
	subsRepo := repository.NewSubscriptionsRepository(db, logger)
	fieldValuesRepo := repository.NewFieldValuesRepository(db, logger)
	thresholdsRepo := repository.NewThresholdsRepository(db, logger)
	devicesRepo := repository.NewDevicesRepository(db, logger)
	messageLogRepo := repository.NewMessageLogRepository(db, logger)
	workOrdersRepo := repository.NewWorkOrdersRepository(db, logger)

	alertNotifier := notifier.NewAlertNotifier(redisClient, cfg.Alerts.Stream, logger)
	thresholdEvaluator := evaluator.NewEvaluator(thresholdsRepo, workOrdersRepo, alertNotifier, logger)

	processor := consumer.NewProcessor(
		subsRepo,
		fieldValuesRepo,
		devicesRepo,
		messageLogRepo,
		thresholdEvaluator,
		logger,
	)

	mqttService := consumer.NewMQTTService(brokersRepo, subsRepo, processor, logger)
	mqttService.SetPublishTimeout(time.Duration(cfg.MQTT.PublishTimeoutSeconds) * time.Second)

	return &IngestService{
		config: cfg,
		logger: logger,
		db:     db,
		redis:  redisClient,
		mqtt:   mqttService,
	}, nil
}

// MQTT exposes the connection manager for the configuration layer
// (connect/disconnect/reload/publish commands).
func (s *IngestService) MQTT() *consumer.MQTTService {
	return s.mqtt
}

// Start connects every active broker.
func (s *IngestService) Start(ctx context.Context) error {
	s.logger.Info("Starting ingestion service")
	if err := s.mqtt.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start MQTT service: %w", err)
	}
	s.logger.Info("Ingestion service started")
	return nil
}

// Stop disconnects every broker and closes the infrastructure handles.
func (s *IngestService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping ingestion service")

	if err := s.mqtt.StopAll(ctx); err != nil {
		s.logger.Error("Error stopping MQTT service", zap.Error(err))
	}
	if err := redisclient.Close(s.redis); err != nil {
		s.logger.Error("Error closing redis client", zap.Error(err))
	}
	if err := database.Close(s.db); err != nil {
		s.logger.Error("Error closing database", zap.Error(err))
	}

	s.logger.Info("Ingestion service stopped")
	return nil
}
