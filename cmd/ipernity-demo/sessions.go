package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	gsessions "github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bluescreen10/ipernity"
	"github.com/bluescreen10/ipernity/gorillasession"
	"github.com/bluescreen10/ipernity/session"
	"github.com/bluescreen10/ipernity/session/gormstore"
	"github.com/bluescreen10/ipernity/session/memstore"
	"github.com/bluescreen10/ipernity/session/mysqlstore"
	"github.com/bluescreen10/ipernity/session/redisstore"
)

const cleanUpInterval = 5 * time.Minute

// sessions bundles the host session layer the demo runs on.
type sessions struct {
	source     ipernity.SessionFunc
	middleware ipernity.Middleware
	close      func()
}

func openSessions(ctx context.Context, kind, dsn, secret string, log *zap.SugaredLogger) (*sessions, error) {
	if kind == "cookie" {
		if secret == "" {
			return nil, errors.New("the cookie store needs --session-secret")
		}
		gs := gorillasession.New(gsessions.NewCookieStore([]byte(secret)), "ipernity_demo", gorillasession.WithLogger(log))
		return &sessions{source: gs.Sessions(), middleware: gs, close: func() {}}, nil
	}

	store, closeStore, err := openStore(ctx, kind, dsn, log)
	if err != nil {
		return nil, err
	}
	mgr := session.NewManager(store,
		session.WithName("ipernity_demo"),
		session.WithIdleTimeout(2*time.Hour),
		session.WithLogger(log),
	)
	return &sessions{source: ipernity.FromManager(mgr), middleware: mgr, close: closeStore}, nil
}

func openStore(ctx context.Context, kind, dsn string, log *zap.SugaredLogger) (session.Store, func(), error) {
	switch kind {
	case "memory":
		store := memstore.New()
		go store.PeriodicCleanUp(ctx, cleanUpInterval)
		return store, func() {}, nil

	case "redis":
		if dsn == "" {
			dsn = "redis://localhost:6379/0"
		}
		opts, err := redis.ParseURL(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}
		return redisstore.New(rdb, redisstore.WithPrefix("ipernity_demo:")), func() { rdb.Close() }, nil

	case "sqlite":
		if dsn == "" {
			dsn = "sessions.db"
		}
		db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
		if err != nil {
			return nil, nil, fmt.Errorf("opening %s: %w", dsn, err)
		}
		store, err := gormstore.New(db, gormstore.WithLogger(log))
		if err != nil {
			return nil, nil, err
		}
		go store.PeriodicCleanUp(ctx, cleanUpInterval)
		return store, func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}, nil

	case "mysql":
		if dsn == "" {
			return nil, nil, errors.New("the mysql store needs --store-dsn")
		}
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, nil, err
		}
		store, err := mysqlstore.New(ctx, db, mysqlstore.WithLogger(log))
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		go store.PeriodicCleanUp(ctx, cleanUpInterval)
		return store, func() { db.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown session store %q", kind)
}
