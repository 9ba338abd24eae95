package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/thereayou/esim-portal/internal/config"
	"github.com/thereayou/esim-portal/internal/database"
	"github.com/thereayou/esim-portal/internal/handlers"
	"github.com/thereayou/esim-portal/internal/services"
	"github.com/thereayou/esim-portal/internal/storage"
	"github.com/thereayou/esim-portal/internal/websocket"
	"github.com/thereayou/esim-portal/pkg/auth"
)

type Server struct {
	Router     *gin.Engine
	DB         *database.Database
	Redis      *redis.Client
	Hub        *websocket.Hub
	JWTManager *auth.JWTManager

	cfg    config.Config
	logger *zap.Logger
}

func NewServer(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is not set")
	}

	dbConn := &database.Database{}
	if err := dbConn.Connect(cfg.DatabaseURL, logger); err != nil {
		return nil, fmt.Errorf("postgres connect failed: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connect failed: %w", err)
	}
	logger.Info("Connected to Redis")

	if err := SeedAdmin(dbConn, cfg, logger); err != nil {
		return nil, fmt.Errorf("admin seed failed: %w", err)
	}

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)
	blacklist := services.NewRedisBlacklist(rdb)
	authn := services.NewAuthenticator(jwtMgr, dbConn, blacklist)

	hubOpts := []websocket.Option{
		websocket.WithEventLimit(cfg.WSEventsPerSecond, cfg.WSEventBurst),
		// последнее соединение закрыто: фиксируем lastSeen
		websocket.WithDisconnectHook(func(c *websocket.Client) {
			if err := dbConn.UpdateLastSeen(c.UserID); err != nil {
				logger.Warn("Failed to update last seen", zap.String("user_id", c.UserID.String()), zap.Error(err))
			}
		}),
	}
	if cfg.RedisRelay {
		hubOpts = append(hubOpts, websocket.WithRelay(websocket.NewRedisRelay(rdb, logger)))
		logger.Info("Redis fan-out relay enabled")
	}
	hub := websocket.NewHub(logger, hubOpts...)
	// подписка до приёма соединений, иначе ранние публикации теряются
	if err := hub.Subscribe(); err != nil {
		logger.Error("Relay subscribe failed, falling back to local delivery", zap.Error(err))
	}

	var files storage.FileStore
	minioStore, err := storage.NewMinioStore(ctx, cfg, logger)
	if err != nil {
		// без хранилища чат работает, отключается только загрузка вложений
		logger.Warn("MinIO unavailable, attachments disabled", zap.Error(err))
	} else {
		files = minioStore
	}

	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	APIEndpoints(router, Deps{
		Config:    cfg,
		Logger:    logger,
		Authn:     authn,
		AuthH:     handlers.NewAuthHandler(dbConn, authn, logger),
		UserH:     handlers.NewUserHandler(dbConn, hub, logger),
		MessagesH: handlers.NewHTTPMessageHandler(dbConn, hub, files, logger),
		WSH:       handlers.NewWebSocketHandler(hub, handlers.NewMessageHandler(dbConn, hub, logger), cfg.FrontendURL, logger),
		Health:    healthCheck(dbConn, rdb),
	})

	return &Server{
		Router:     router,
		DB:         dbConn,
		Redis:      rdb,
		Hub:        hub,
		JWTManager: jwtMgr,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// Run блокируется до отмены ctx, затем корректно останавливает сервер
func (s *Server) Run(ctx context.Context) error {
	go s.Hub.Run()

	srv := &http.Server{
		Addr:    ":" + s.cfg.Port,
		Handler: s.Router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server starting", zap.String("port", s.cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.Hub.Stop()
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// апгрейднутые соединения http.Server не закрывает, это делает хаб
	s.Hub.Stop()
	err := srv.Shutdown(shutdownCtx)

	if err := s.Redis.Close(); err != nil {
		s.logger.Warn("Redis close failed", zap.Error(err))
	}
	if sqlDB, dbErr := s.DB.DB().DB(); dbErr == nil {
		sqlDB.Close()
	}

	return err
}

func healthCheck(db *database.Database, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := gin.H{"database": "ok", "redis": "ok"}
		code := http.StatusOK

		if sqlDB, err := db.DB().DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status["database"] = "down"
			code = http.StatusServiceUnavailable
		}
		if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
			status["redis"] = "down"
			code = http.StatusServiceUnavailable
		}

		status["success"] = code == http.StatusOK
		c.JSON(code, status)
	}
}
