package bootstrap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	appsvc "ai-image-detector/internal/app"
	"ai-image-detector/internal/cache"
	"ai-image-detector/internal/config"
	"ai-image-detector/internal/logging"
	"ai-image-detector/internal/model"
	"ai-image-detector/internal/platform/database"
	rabbitmqClient "ai-image-detector/internal/platform/rabbitmq"
	redisClient "ai-image-detector/internal/platform/redis"
	"ai-image-detector/internal/repository"
	"ai-image-detector/internal/vision"
	"ai-image-detector/internal/worker"
)

type App struct {
	Config   *config.Config
	Log      *logrus.Logger
	DB       *gorm.DB
	DBDriver string
	Redis    *redis.Client
	MQConn   *amqp.Connection

	Holder        *vision.Holder
	Detections    *repository.DetectionRepository
	DetectService *appsvc.DetectService
	Controller    *appsvc.Controller
	PersistWorker *worker.DetectionPersistWorker

	StartedAt time.Time
	logCloser io.Closer
}

// New loads the configuration, connects the enabled dependencies and wires
// the services. The model is not loaded here; call LoadModel.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	log, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:    cfg,
		Log:       log,
		Holder:    vision.NewHolder(),
		StartedAt: time.Now(),
		logCloser: logCloser,
	}
	if err := app.connect(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Assemble()

	if app.MQConn != nil {
		app.PersistWorker = worker.NewDetectionPersistWorker(app.MQConn, app.Detections, cfg.RabbitMQ.DetectionQueue, log)
		if err := app.PersistWorker.Start(ctx); err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("start detection worker failed: %w", err)
		}
	}
	return app, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config

	if cfg.Database.Enabled {
		db, driver, err := database.Open(ctx, cfg.Database.DSN)
		if err != nil {
			return err
		}
		a.DB = db
		a.DBDriver = driver
		if err := db.AutoMigrate(&model.Detection{}); err != nil {
			return fmt.Errorf("auto migrate tables failed: %w", err)
		}
		a.Log.WithField("driver", driver).Info("database connected")
	}

	if cfg.Redis.Enabled {
		client, err := redisClient.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		a.Redis = client
		a.Log.WithField("addr", cfg.Redis.Addr).Info("redis connected")
	}

	if cfg.RabbitMQ.Enabled {
		conn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.DetectionQueue)
		if err != nil {
			return err
		}
		a.MQConn = conn
		a.Log.WithField("queue", cfg.RabbitMQ.DetectionQueue).Info("rabbitmq connected")
	}
	return nil
}

// Assemble builds the services on top of the dependencies already set on a.
// Detections go through the queue when one is connected, straight to the
// database otherwise.
func (a *App) Assemble() {
	if a.Log == nil {
		a.Log = logrus.StandardLogger()
	}
	if a.Holder == nil {
		a.Holder = vision.NewHolder()
	}
	if a.StartedAt.IsZero() {
		a.StartedAt = time.Now()
	}

	var resultCache appsvc.ResultCache
	if a.Redis != nil {
		ttl := time.Duration(a.Config.Redis.ResultTTLSeconds) * time.Second
		resultCache = cache.NewResultCache(a.Redis, ttl)
	}

	var recorder appsvc.DetectionRecorder
	if a.DB != nil {
		a.Detections = repository.NewDetectionRepository(a.DB)
		recorder = a.Detections
	}
	if a.MQConn != nil {
		recorder = rabbitmqClient.NewDetectionPublisher(a.MQConn, a.Config.RabbitMQ.DetectionQueue)
	}

	a.DetectService = appsvc.NewDetectService(a.Holder, resultCache, recorder, a.Config.ModelTag(), a.Log)
	ttl := time.Duration(a.Config.App.SessionTTLMinutes) * time.Minute
	a.Controller = appsvc.NewController(a.Holder, a.DetectService, ttl, a.Log)
}

// LoadModel fetches the model file if needed and opens it. A failure is kept
// by the holder and reported to every session.
func (a *App) LoadModel(ctx context.Context) error {
	cfg := a.Config.Vision
	client := &http.Client{Timeout: time.Duration(cfg.FetchTimeoutSeconds) * time.Second}

	a.Holder.MarkLoading()
	started := time.Now()
	entry := a.Log.WithFields(logrus.Fields{"model_path": cfg.ModelPath, "model_tag": a.Config.ModelTag()})
	entry.Info("loading model")

	if err := a.Holder.Load(ctx, vision.ONNXLoader(client, cfg.ModelURL, cfg.ModelPath, cfg.ONNXSharedLibPath)); err != nil {
		entry.WithError(err).Error("model load failed")
		return err
	}
	entry.WithField("elapsed_ms", time.Since(started).Milliseconds()).Info("model loaded")
	return nil
}

func (a *App) Close() error {
	var closeErr error
	if a.PersistWorker != nil {
		a.PersistWorker.Close()
	}
	if a.Holder != nil {
		if err := a.Holder.Close(); err != nil {
			closeErr = err
		}
		if err := vision.ShutdownRuntime(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	if a.logCloser != nil {
		if err := a.logCloser.Close(); err != nil {
			closeErr = err
		}
	}
	return closeErr
}
