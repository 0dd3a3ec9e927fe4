package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/tuition-api/api/swagger"
	"github.com/noah-isme/tuition-api/internal/handler"
	"github.com/noah-isme/tuition-api/internal/repository"
	"github.com/noah-isme/tuition-api/internal/service"
	"github.com/noah-isme/tuition-api/pkg/cache"
	"github.com/noah-isme/tuition-api/pkg/config"
	"github.com/noah-isme/tuition-api/pkg/database"
	"github.com/noah-isme/tuition-api/pkg/jobs"
	"github.com/noah-isme/tuition-api/pkg/logger"
	"github.com/noah-isme/tuition-api/pkg/sms"
	"github.com/noah-isme/tuition-api/pkg/storage"
)

// @title Tuition API
// @version 1.0.0
// @description Student records, monthly fee ledger and guardian notifications for a tuition centre
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.NewMigrator(db, logr).Up(ctx); err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect redis", zap.Error(err))
	}
	defer redisClient.Close()

	app, err := buildApp(cfg, db, redisClient, logr)
	if err != nil {
		logr.Fatal("failed to build application", zap.Error(err))
	}
	app.smsQueue.Start(ctx)
	defer app.smsQueue.Stop()

	router := newRouter(cfg, app, logr)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

type application struct {
	metrics       *service.MetricsService
	auth          *service.AuthService
	audit         *repository.AuditRepository
	smsQueue      *jobs.Queue
	authHandler   *handler.AuthHandler
	gateway       *handler.GatewayHandler
	students      *handler.StudentHandler
	fees          *handler.FeeHandler
	notifications *handler.NotificationHandler
	profiles      *handler.ProfileHandler
	observability *handler.MetricsHandler
}

func buildApp(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, logr *zap.Logger) (*application, error) {
	validate := validator.New()
	metrics := service.NewMetricsService()

	identityRepo := repository.NewIdentityRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	feeRepo := repository.NewFeeRepository(db)
	smsRepo := repository.NewSMSRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	otpRepo := repository.NewOTPRepository(redisClient)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	files, err := storage.NewLocalStorage(cfg.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)
	sender := sms.NewSender(cfg.SMS, logr)
	if !cfg.SMS.Configured() && cfg.SMS.Provider == config.SMSProviderTwilio {
		logr.Warn("twilio credentials missing; SMS sends will fail")
	}

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.StatsTTL, logr, cfg.Cache.Enabled)

	authSvc := service.NewAuthService(identityRepo, roleRepo, otpRepo, auditRepo, sender, metrics, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		OTPLength:          cfg.OTP.Length,
		OTPTTL:             cfg.OTP.TTL,
		OTPCooldown:        cfg.OTP.ResendCooldown,
		OTPMaxAttempts:     cfg.OTP.MaxAttempts,
	})
	accountSvc := service.NewAccountService(service.AccountDeps{
		Accounts:   accountRepo,
		Identities: identityRepo,
		Roles:      roleRepo,
		Students:   studentRepo,
		Profiles:   profileRepo,
		Files:      files,
		Sessions:   authSvc,
		Audit:      auditRepo,
		Cache:      cacheSvc,
		Validator:  validate,
		Logger:     logr,
	})
	studentSvc := service.NewStudentService(studentRepo, identityRepo, auditRepo, cacheSvc, cfg.Cache.StatsTTL, validate, logr)
	feeSvc := service.NewFeeService(feeRepo, studentRepo, auditRepo, cacheSvc, metrics, validate, logr, cfg.Billing.Location())
	smsSvc := service.NewSMSService(smsRepo, studentRepo, sender, auditRepo, metrics, validate, logr)
	profileSvc := service.NewProfileService(profileRepo, files, signer, validate, logr, service.ProfileConfig{
		DownloadBase: cfg.Storage.PublicURL,
		MaxPhotoSize: cfg.Storage.MaxPhotoBytes,
		AllowedMIMEs: cfg.Storage.AllowedMIMEs,
	})

	queue := jobs.NewQueue("sms-dispatch", smsSvc.HandleDispatch, jobs.QueueConfig{
		Workers:    cfg.SMS.DispatchWorkers,
		BufferSize: cfg.SMS.DispatchBuffer,
		MaxRetries: cfg.SMS.DispatchMaxRetry,
		Logger:     logr,
	})
	smsSvc.AttachQueue(queue)

	checks := map[string]handler.Pinger{
		"postgres": db.PingContext,
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	}

	return &application{
		metrics:       metrics,
		auth:          authSvc,
		audit:         auditRepo,
		smsQueue:      queue,
		authHandler:   handler.NewAuthHandler(authSvc, accountSvc),
		gateway:       handler.NewGatewayHandler(accountSvc, smsSvc),
		students:      handler.NewStudentHandler(studentSvc),
		fees:          handler.NewFeeHandler(feeSvc),
		notifications: handler.NewNotificationHandler(smsSvc),
		profiles:      handler.NewProfileHandler(profileSvc, cfg.Storage.MaxPhotoBytes),
		observability: handler.NewMetricsHandler(metrics, checks),
	}, nil
}
