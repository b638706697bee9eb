package cmd

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-billing/app/collaborator"
	"github.com/vibast-solutions/ms-go-billing/app/gateway"
	"github.com/vibast-solutions/ms-go-billing/app/lock"
	"github.com/vibast-solutions/ms-go-billing/app/repository"
	"github.com/vibast-solutions/ms-go-billing/app/service"
	"github.com/vibast-solutions/ms-go-billing/config"

	_ "github.com/go-sql-driver/mysql"
)

type jobLocker interface {
	TryAcquire(ctx context.Context, name string) (func(context.Context) error, bool, error)
}

// components holds the wiring shared by the server and the job commands.
type components struct {
	cfg        *config.Config
	db         *sql.DB
	redis      *redis.Client
	store      *repository.Store
	registry   *gateway.Registry
	catalog    *service.PlanCatalog
	reconciler *service.Reconciler
}

func mustBootstrap() (*components, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := openDB(cfg.MySQL)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			_ = db.Close()
			logrus.WithError(err).Fatal("Failed to ping redis")
		}
	}

	store := repository.NewStore(db).WithAttempts(cfg.MySQL.TxAttempts)
	registry := buildRegistry(cfg)
	catalog := service.NewPlanCatalog(store.Stores().Plans, cfg.Billing.PlanCacheSize, cfg.Billing.PlanCacheTTL)

	c := &components{
		cfg:        cfg,
		db:         db,
		redis:      redisClient,
		store:      store,
		registry:   registry,
		catalog:    catalog,
		reconciler: service.NewReconciler(store, registry),
	}

	cleanup := func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logrus.WithError(err).Warn("Failed to close redis")
			}
		}
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}
	return c, cleanup
}

func openDB(cfg config.MySQLConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func buildRegistry(cfg *config.Config) *gateway.Registry {
	gws := make([]gateway.Gateway, 0, 3)
	if cfg.Gateways.Stripe.Enabled {
		gws = append(gws, gateway.NewStripe(cfg.Gateways.Stripe, cfg.Gateways.Retry))
	}
	if cfg.Gateways.MyFatoorah.Enabled {
		gws = append(gws, gateway.NewMyFatoorah(cfg.Gateways.MyFatoorah, cfg.Gateways.Retry))
	}
	if cfg.Gateways.PayTabs.Enabled {
		gws = append(gws, gateway.NewPayTabs(cfg.Gateways.PayTabs, cfg.Gateways.Retry))
	}

	registry := gateway.NewRegistry(gws...)
	if len(registry.Enabled()) == 0 {
		logrus.Warn("No payment gateway enabled; checkout requests will be rejected")
	}
	return registry
}

// locker returns nil when Redis is not configured, which runs jobs unguarded.
func (c *components) locker() jobLocker {
	if c.redis == nil {
		return nil
	}
	return lock.NewRedisLocker(c.redis, c.cfg.Redis.LockTTL)
}

func (c *components) notifications() *collaborator.NotificationClient {
	return collaborator.NewNotificationClient(c.cfg.Collaborators.NotificationsURL, c.cfg.App.APIKey, c.cfg.Collaborators.Timeout)
}

func (c *components) users() *collaborator.UsersClient {
	return collaborator.NewUsersClient(c.cfg.Collaborators.UsersURL, c.cfg.App.APIKey, c.cfg.Collaborators.Timeout)
}
