package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/deepfake-detector/api/internal/application"
	appanalysis "github.com/deepfake-detector/api/internal/application/analysis"
	appevidence "github.com/deepfake-detector/api/internal/application/evidence"
	appfeedback "github.com/deepfake-detector/api/internal/application/feedback"
	"github.com/deepfake-detector/api/internal/config"
	"github.com/deepfake-detector/api/internal/domain/analysis"
	"github.com/deepfake-detector/api/internal/domain/evidence"
	"github.com/deepfake-detector/api/internal/domain/feedback"
	"github.com/deepfake-detector/api/internal/infra/classifier/onnx"
	mysqlp "github.com/deepfake-detector/api/internal/infra/db/mysql"
	postgresp "github.com/deepfake-detector/api/internal/infra/db/postgres"
	sqlitep "github.com/deepfake-detector/api/internal/infra/db/sqlite"
	"github.com/deepfake-detector/api/internal/infra/decoder/ffmpeg"
	"github.com/deepfake-detector/api/internal/infra/logger"
	"github.com/deepfake-detector/api/internal/infra/messaging/rabbitmq"
	"github.com/deepfake-detector/api/internal/infra/preprocess"
	"github.com/deepfake-detector/api/internal/infra/storage"
	"github.com/deepfake-detector/api/internal/middleware"
)

// imageStore is an ImageStore that can also report health.
type imageStore interface {
	evidence.ImageStore
	middleware.HealthChecker
}

// components holds everything built from config; close releases it in
// reverse order.
type components struct {
	cfg     *config.Config
	log     *zap.Logger
	db      *sql.DB
	closers []func() error

	evidenceRepo evidence.Repository
	feedbackRepo feedback.Repository
	images       imageStore
	retraining   feedback.RetrainingPublisher
	classifier   *onnx.Classifier
}

func (c *components) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.log.Warn("close failed", zap.Error(err))
		}
	}
	_ = c.log.Sync()
}

func loadBase() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

// openDatabase connects the configured SQL driver, migrates it and binds
// the evidence and feedback repositories.
func (c *components) openDatabase(ctx context.Context) error {
	var (
		db  *sql.DB
		err error
	)
	switch c.cfg.Database.Driver {
	case "postgres":
		if db, err = postgresp.Connect(ctx, c.cfg.PostgresDSN()); err == nil {
			err = postgresp.Migrate(ctx, db)
		}
		if err == nil {
			c.evidenceRepo = postgresp.NewEvidenceRepository(db)
			c.feedbackRepo = postgresp.NewFeedbackRepository(db)
		}
	case "mysql":
		if db, err = mysqlp.Connect(ctx, c.cfg.MySQLDSN()); err == nil {
			err = mysqlp.Migrate(ctx, db)
		}
		if err == nil {
			c.evidenceRepo = mysqlp.NewEvidenceRepository(db)
			c.feedbackRepo = mysqlp.NewFeedbackRepository(db)
		}
	case "sqlite":
		if db, err = sqlitep.Open(ctx, c.cfg.Database.SQLitePath); err == nil {
			c.evidenceRepo = sqlitep.NewEvidenceRepository(db)
			c.feedbackRepo = sqlitep.NewFeedbackRepository(db)
		}
	default:
		err = fmt.Errorf("unknown database driver %q", c.cfg.Database.Driver)
	}
	if db != nil {
		c.closers = append(c.closers, db.Close)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", c.cfg.Database.Driver, err)
	}
	c.db = db
	c.log.Info("database ready", zap.String("driver", c.cfg.Database.Driver))
	return nil
}

func (c *components) openImages(ctx context.Context) error {
	switch c.cfg.Storage.Driver {
	case "minio":
		m := c.cfg.Minio
		store, err := storage.New(ctx, m.Endpoint, m.Region, m.BucketName, m.AccessKey, m.SecretKey, m.UseSSL)
		if err != nil {
			return fmt.Errorf("minio init: %w", err)
		}
		c.images = store
	default:
		store, err := storage.NewLocalStorage(c.cfg.Storage.LocalPath)
		if err != nil {
			return fmt.Errorf("local storage init: %w", err)
		}
		c.images = store
	}
	c.log.Info("image store ready", zap.String("driver", c.cfg.Storage.Driver))
	return nil
}

// openRetraining is optional: an empty URL, or a broker that is down at
// startup, leaves corrections logged but unpublished.
func (c *components) openRetraining() {
	r := c.cfg.RabbitMQ
	if r.URL == "" {
		c.log.Info("retraining queue disabled")
		return
	}
	conn, err := amqp.Dial(r.URL)
	if err != nil {
		c.log.Warn("rabbitmq unavailable, retraining queue disabled", zap.Error(err))
		return
	}
	pub, err := rabbitmq.NewPublisher(conn, r.Exchange)
	if err == nil {
		err = pub.BindQueue(r.Queue, rabbitmq.RetrainingRoutingKey)
	}
	if err != nil {
		conn.Close()
		c.log.Warn("rabbitmq setup failed, retraining queue disabled", zap.Error(err))
		return
	}
	c.closers = append(c.closers, conn.Close, pub.Close)
	c.retraining = rabbitmq.NewRetrainingPublisher(pub)
}

func (c *components) openClassifier() error {
	m := c.cfg.Model
	cl, err := onnx.New(onnx.Config{
		ModelPath:   m.Path,
		LibraryPath: m.LibraryPath,
		InputName:   m.InputName,
		OutputName:  m.OutputName,
	}, c.log)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	c.closers = append(c.closers, cl.Close)
	c.classifier = cl
	return nil
}

func (c *components) evidenceService() *appevidence.Service {
	return &appevidence.Service{
		Images:       c.images,
		Repo:         c.evidenceRepo,
		Clock:        application.SystemClock{},
		Logger:       c.log,
		ModelVersion: modelVersion(c.cfg),
		JPEGQuality:  c.cfg.Analysis.JPEGQuality,
	}
}

func (c *components) feedbackService() *appfeedback.Service {
	return &appfeedback.Service{
		Repo:       c.feedbackRepo,
		Retraining: c.retraining,
		Clock:      application.SystemClock{},
		Logger:     c.log,
	}
}

// analysisService builds the frame pipeline. A nil evidence writer
// disables retention.
func (c *components) analysisService(ev analysis.EvidenceWriter) (*appanalysis.Service, error) {
	if c.classifier == nil {
		return nil, errors.New("classifier not loaded")
	}
	pre, err := preprocess.New(c.cfg.Model.InputSize, c.cfg.Model.ChannelOrder)
	if err != nil {
		return nil, err
	}
	a := c.cfg.Analysis
	// Every=0 with MinRetained=0 retains nothing.
	if c.cfg.SamplingPolicy() == (analysis.SamplingPolicy{}) {
		ev = nil
	}
	return &appanalysis.Service{
		Preprocessor: pre,
		Classifier:   c.classifier,
		Decoder:      ffmpeg.NewDecoder(c.cfg.FFmpeg.FFmpegPath, c.cfg.FFmpeg.FFprobePath, c.log),
		Evidence:     ev,
		Aggregator:   analysis.NewAggregator(c.cfg.Thresholds()),
		Sampling:     c.cfg.SamplingPolicy(),
		Logger:       c.log,
		Options: appanalysis.Options{
			Workers:          a.Workers,
			Window:           a.Window,
			Timeout:          a.Timeout.Duration,
			StoreConcurrency: a.StoreConcurrency,
			StoreTimeout:     a.StoreTimeout.Duration,
			StoreQueue:       a.StoreQueue,
			StoreGrace:       a.StoreGrace.Duration,
			TempDir:          a.TempDir,
		},
	}, nil
}
