package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/rtcpulse/internal/adapters/http"
	"github.com/dkeye/rtcpulse/internal/adapters/ingest"
	"github.com/dkeye/rtcpulse/internal/adapters/publish"
	"github.com/dkeye/rtcpulse/internal/adapters/store"
	"github.com/dkeye/rtcpulse/internal/app"
	"github.com/dkeye/rtcpulse/internal/app/extract"
	"github.com/dkeye/rtcpulse/internal/app/pool"
	"github.com/dkeye/rtcpulse/internal/config"
	"github.com/dkeye/rtcpulse/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	if err := os.MkdirAll(cfg.DumpFolder, 0o755); err != nil {
		log.Fatal().Err(err).Str("folder", cfg.DumpFolder).Msg("cannot create dump folder")
	}

	objects, metadata := setupStores(ctx, cfg)
	publisher := setupPublisher(cfg)

	workers := cfg.WorkerCount
	if workers <= 0 {
		workers = pool.DefaultWorkerCount()
	}
	workerPool := pool.New(workers, extract.ProcessRecord)

	service := app.NewService(app.ServiceOptions{
		Pool:      workerPool,
		Objects:   objects,
		Metadata:  metadata,
		Publisher: publisher,
		Folder:    cfg.DumpFolder,
	})
	if err := service.Sweep(); err != nil {
		log.Warn().Err(err).Msg("work folder sweep failed")
	}
	go service.Run(ctx)

	handler := ingest.NewHandler(ingest.Options{
		DumpFolder:     cfg.DumpFolder,
		ReadLimit:      cfg.ReadLimit,
		IdleTimeout:    cfg.IdleTimeout,
		PingPeriod:     cfg.PingPeriod,
		OnRecordClosed: service.OnRecordClosed,
	})

	r := router.SetupRouter(ctx, cfg, handler)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("rtcpulse server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Drain queued extraction work before exit.
	workerPool.Stop()
	if p, ok := publisher.(*publish.AMQPPublisher); ok && p != nil {
		_ = p.Close()
	}
	log.Info().Msg("Server exited gracefully")
}

// setupStores builds the AWS-backed persistence adapters. Either store
// left unconfigured disables persistence, which keeps local runs
// self-contained.
func setupStores(ctx context.Context, cfg *config.Config) (core.ObjectStore, core.MetadataStore) {
	if cfg.S3.Bucket == "" || cfg.Dynamo.Table == "" {
		log.Warn().Msg("S3 bucket or DynamoDB table not configured, dumps stay on local disk")
		return nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3.Region))
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load AWS config")
	}

	objects := store.NewS3Store(s3.NewFromConfig(awsCfg), store.S3Options{
		Bucket:        cfg.S3.Bucket,
		SignedLinkTTL: cfg.S3.SignedLinkTTL,
	})
	metadata := store.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.Dynamo.Table)
	return objects, metadata
}

func setupPublisher(cfg *config.Config) core.FeaturesPublisher {
	if cfg.AMQP.URL == "" {
		log.Warn().Msg("AMQP not configured, feature publishing disabled")
		return nil
	}
	publisher, err := publish.NewAMQPPublisher(publish.AMQPOptions{
		URL:   cfg.AMQP.URL,
		Queue: cfg.AMQP.Queue,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("cannot connect AMQP publisher")
	}
	return publisher
}
