package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"civicgpt/tax-advisor/config"
	"civicgpt/tax-advisor/feed"
	"civicgpt/tax-advisor/memstore"
	"civicgpt/tax-advisor/objectstore"
	"civicgpt/tax-advisor/postgres"
	"civicgpt/tax-advisor/store"
	"civicgpt/tax-advisor/supabase"

	supa "github.com/supabase-community/supabase-go"
)

// deps are the driver-selected adapters behind the store ports.
type deps struct {
	sessions  store.SessionStore
	documents store.DocumentStore
	blobs     store.BlobStore
	notifier  feed.Notifier

	// blobServer serves memory-driver objects; nil for real blob stores.
	blobServer http.Handler

	closers []func() error
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			config.Logger.Warn("Close failed: ", err)
		}
	}
}

func openDeps(ctx context.Context, cfg config.Config) (*deps, error) {
	d := &deps{}
	var (
		client *supa.Client
		db     *sql.DB
		err    error
	)

	if cfg.StoreDriver == config.DriverSupabase || cfg.BlobDriver == config.DriverSupabase {
		if client, err = supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseKey); err != nil {
			return nil, err
		}
	}

	if cfg.StoreDriver == config.DriverPostgres || cfg.RunMigrations {
		if db, err = postgres.Open(ctx, cfg.DatabaseURL); err != nil {
			return nil, err
		}
		d.closers = append(d.closers, db.Close)

		if cfg.RunMigrations {
			if err := postgres.RunMigrations(ctx, db); err != nil {
				d.Close()
				return nil, err
			}
			config.Logger.Info("Database migrations applied")
		}
	}

	switch cfg.StoreDriver {
	case config.DriverSupabase:
		d.sessions = supabase.NewSessionRepository(client, cfg.AppendMaxAttempts, config.Component("store"))
		d.documents = supabase.NewDocumentRepository(client)
	case config.DriverPostgres:
		d.sessions = postgres.NewSessionRepository(db)
		d.documents = postgres.NewDocumentRepository(db)
	case config.DriverMemory:
		config.Logger.Warn("Using the in-memory session store, data is lost on restart")
		d.sessions = memstore.NewSessionStore()
		d.documents = memstore.NewDocumentStore()
	default:
		d.Close()
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	switch cfg.BlobDriver {
	case config.DriverSupabase:
		d.blobs = supabase.NewBlobStore(cfg.SupabaseURL, cfg.SupabaseKey, cfg.StorageBucket)
	case config.DriverS3:
		s3, err := objectstore.New(ctx, objectstore.Config{
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.StorageBucket,
		})
		if err != nil {
			d.Close()
			return nil, err
		}
		d.blobs = s3
	case config.DriverMemory:
		blobs := memstore.NewBlobStore("http://localhost:" + cfg.Port + "/blobs")
		d.blobs = blobs
		d.blobServer = blobs
	default:
		d.Close()
		return nil, errors.New("unknown blob driver " + cfg.BlobDriver)
	}

	if cfg.RedisAddr != "" {
		n, err := feed.NewRedisNotifier(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, config.Component("feed"))
		if err != nil {
			d.Close()
			return nil, err
		}
		d.closers = append(d.closers, n.Close)
		d.notifier = n
	} else {
		d.notifier = feed.NewLocalNotifier()
	}

	return d, nil
}
