package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"survey-platform/internal/audit"
	"survey-platform/internal/config"
	"survey-platform/internal/locking"
	"survey-platform/internal/notify"
	"survey-platform/internal/survey"
	"survey-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	surveyCollection = "surveys"
	auditCollection  = "audit_events"
)

// deps holds the long-lived clients behind the survey service.
type deps struct {
	db    *sql.DB
	mongo *mongo.Client
	rdb   *redis.Client

	repo    survey.Repository
	surveys *survey.Service
}

func buildDeps(ctx context.Context, cfg config.Config, log *slog.Logger) (*deps, error) {
	d := &deps{}
	auditRepo, err := d.openStore(ctx, cfg)
	if err != nil {
		d.Close()
		return nil, err
	}

	var (
		locker   survey.Locker   = locking.NewKeyedMutex(cfg.Lock.Wait)
		notifier survey.Notifier = notify.Log{}
	)
	if cfg.RedisEnabled() {
		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("redis init: %w", err)
		}
		d.rdb = rdb
		locker = locking.NewRedisLocker(rdb, cfg.Lock.TTL, cfg.Lock.Wait)
		notifier = notify.NewRedisPublisher(rdb, cfg.Notify.Channel)
	} else {
		log.Warn("redis not configured; using in-process locks and log notifications")
	}

	d.surveys = survey.NewService(d.repo, notifier,
		survey.WithLocker(locker),
		survey.WithAuditSink(survey.AuditAdapter{Audit: audit.NewService(auditRepo)}),
	)
	return d, nil
}

// openStore connects the configured survey backend and returns the audit
// repository that lives next to it.
func (d *deps) openStore(ctx context.Context, cfg config.Config) (audit.Repository, error) {
	switch cfg.Store.Backend {
	case config.StorePostgres:
		db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			return nil, fmt.Errorf("postgres init: %w", err)
		}
		d.db = db
		repo := survey.NewPostgresRepo(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("survey schema: %w", err)
		}
		auditRepo := audit.NewPostgresRepo(db)
		if err := auditRepo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("audit schema: %w", err)
		}
		d.repo = repo
		return auditRepo, nil

	case config.StoreMongo:
		client, err := utils.OpenMongo(ctx, utils.MongoConfig{URI: cfg.Mongo.URI})
		if err != nil {
			return nil, fmt.Errorf("mongo init: %w", err)
		}
		d.mongo = client
		repo := survey.NewMongoRepo(client.Database(cfg.Mongo.Database), surveyCollection)
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		d.repo = repo
		auditRepo := audit.NewMongoRepo(client.Database(cfg.Mongo.Database), auditCollection)
		if err := auditRepo.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("mongo audit indexes: %w", err)
		}
		return auditRepo, nil

	default:
		d.repo = survey.NewMemoryRepo()
		return audit.NewMemoryRepo(), nil
	}
}

func (d *deps) Close() {
	if d.rdb != nil {
		_ = d.rdb.Close()
	}
	if d.mongo != nil {
		_ = d.mongo.Disconnect(context.Background())
	}
	if d.db != nil {
		_ = d.db.Close()
	}
}
