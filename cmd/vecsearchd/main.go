package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/fiber/v3"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kinotek/vecsearch/config"
	"github.com/kinotek/vecsearch/embed"
	"github.com/kinotek/vecsearch/engine"
	"github.com/kinotek/vecsearch/fetch"
	"github.com/kinotek/vecsearch/search"
	"github.com/kinotek/vecsearch/worker"
)

func main() {
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	logger.Info("starting vecsearch",
		"port", cfg.Port,
		"database_image", cfg.DatabaseImageURL,
		"embeddings_image", cfg.EmbeddingsImageURL,
		"encoder_variant", cfg.EncoderVariant,
	)

	imageFetcher, err := newFetcher(cfg, cfg.ImageBaseURL)
	if err != nil {
		logger.Error("configuring image fetcher", "error", err)
		os.Exit(1)
	}
	assetFetcher, err := newFetcher(cfg, cfg.AssetBaseURL)
	if err != nil {
		logger.Error("configuring asset fetcher", "error", err)
		os.Exit(1)
	}

	eng := engine.New(imageFetcher, logger)
	enc := embed.NewEncoder(assetFetcher, logger,
		embed.WithDefaultVariant(cfg.EncoderVariant),
		embed.WithMaxSequenceLength(cfg.MaxSequenceLength),
		embed.WithProgress(func(variant string, fraction float64) {
			logger.Info("encoder loading", "variant", variant, "progress", fraction)
		}),
	)

	coord := search.NewCoordinator(
		worker.NewDB(eng, cfg.QueueDepth, logger),
		worker.NewEmbed(enc, cfg.QueueDepth, logger),
		logger,
	)
	defer coord.Close()

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	h := &apiHandler{coord: coord, cfg: cfg, logger: logger}
	h.Register(app.Group("/api/v1"))

	logger.Info("listening", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// newFetcher builds a resolver rooted at base, with s3:// support when
// object storage is configured.
func newFetcher(cfg *config.Config, base string) (fetch.Fetcher, error) {
	var opts []fetch.Option
	if cfg.S3Endpoint != "" {
		client, err := minio.New(cfg.S3Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
			Secure: cfg.S3UseSSL,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, fetch.WithObjectFetcher(fetch.NewObjectFetcher(client)))
	}
	return fetch.New(base, opts...), nil
}
