// Package bootstrap provides dependency initialization for the reels API
// and the compression worker.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/reelhub/reels-api/internal/actionlog"
	"github.com/reelhub/reels-api/internal/config"
	"github.com/reelhub/reels-api/internal/media"
	"github.com/reelhub/reels-api/internal/pipeline"
	"github.com/reelhub/reels-api/internal/queue"
	"github.com/reelhub/reels-api/internal/reel"
	"github.com/reelhub/reels-api/internal/storage"
)

// connectTimeout bounds the initial MongoDB handshake.
const connectTimeout = 10 * time.Second

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Orchestrator *pipeline.Orchestrator
	Reels        reel.Repository
	Recorder     *actionlog.Recorder

	mongoClient *mongo.Client
}

// Close releases held connections.
func (d *Dependencies) Close(ctx context.Context) error {
	if d.mongoClient != nil {
		if err := d.mongoClient.Disconnect(ctx); err != nil {
			return fmt.Errorf("disconnect mongo: %w", err)
		}
	}
	return nil
}

// NewDependencies creates and initializes all dependencies for the API server.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	client, db, err := connectMongo(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	store, err := initStorage(ctx, cfg, logger)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	transcoder := newTranscoder(cfg)
	reels := reel.NewMongoRepository(db)
	music := reel.NewMongoMusicRepository(db)
	recorder := actionlog.NewRecorder(actionlog.NewMongoSink(db), logger)

	orchestrator := pipeline.NewOrchestrator(
		transcoder, store, reels, music, recorder, logger,
		pipeline.WithTempDir(cfg.TempDir),
		pipeline.WithPlaceholderThumbnail(cfg.PlaceholderThumbnailURL),
		pipeline.WithQueue(newQueue(cfg)),
	)

	return &Dependencies{
		Orchestrator: orchestrator,
		Reels:        reels,
		Recorder:     recorder,
		mongoClient:  client,
	}, nil
}

// WorkerDependencies holds the collaborators of the compression worker.
type WorkerDependencies struct {
	Consumer *queue.Consumer
}

// NewWorkerDependencies initializes the compression worker.
func NewWorkerDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*WorkerDependencies, error) {
	store, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	q := newQueue(cfg)
	if rq, ok := q.(*queue.RedisQueue); ok {
		if err := rq.Ping(ctx); err != nil {
			return nil, err
		}
	}

	consumer := queue.NewConsumer(q, store, newTranscoder(cfg), cfg.TempDir, logger)
	return &WorkerDependencies{Consumer: consumer}, nil
}

func connectMongo(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}

	logger.Info("mongodb connected", slog.String("database", cfg.MongoDB))
	return client, client.Database(cfg.MongoDB), nil
}

func newTranscoder(cfg *config.Config) media.Transcoder {
	return media.NewFFmpeg(media.FFmpegConfig{
		BinPath:   cfg.FFmpegPath,
		ProbePath: cfg.FFprobePath,
		Timeout:   cfg.TranscodeTimeout,
	})
}

func newQueue(cfg *config.Config) queue.Queue {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	return queue.NewRedisQueue(client, cfg.QueueName)
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.ObjectStore, error) {
	if cfg.S3Enabled() {
		s3Store, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	fsStore, err := storage.NewFSStore(cfg.StorageDir, cfg.PublicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("create filesystem storage: %w", err)
	}
	logger.Info("filesystem storage configured",
		slog.String("dir", cfg.StorageDir),
		slog.String("base_url", cfg.PublicBaseURL),
	)
	return fsStore, nil
}
