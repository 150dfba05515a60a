// Package pool manages the write pool, sandbox pool(s), and replica pool(s)
// spec.md §4.C calls for, each backed by a *gorm.DB the way models/core.go
// opens gorm.Open(postgres.Open(config.DSN)) for the teacher's single store.
package pool

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/GrainArc/geofeatured/internal/apperr"
	"github.com/GrainArc/geofeatured/internal/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultAcquireTimeout = 5 * time.Second

// Pool holds the write pool, the sandbox pool(s), and the replica pool(s).
// Round-robin selection across a pool's instances uses an atomic counter —
// no affinity, no retry against a different instance on failure, per spec.
type Pool struct {
	Write     *gorm.DB
	sandboxes []*gorm.DB
	replicas  []*gorm.DB

	sandboxNext uint64
	replicaNext uint64

	acquireTimeout time.Duration
}

// Open opens the write pool and every configured sandbox/replica pool from
// cfg, migrating the schema on the write pool.
func Open(cfg *config.Config, schemaSQL string) (*Pool, error) {
	acquireTimeout := cfg.AcquireTimeout
	if acquireTimeout <= 0 {
		acquireTimeout = defaultAcquireTimeout
	}

	write, err := openOne(cfg.WriteDSN, false, acquireTimeout)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to open write pool", err)
	}
	if err := applySchema(write, schemaSQL); err != nil {
		return nil, err
	}

	p := &Pool{Write: write, acquireTimeout: acquireTimeout}

	for _, dsn := range cfg.SandboxDSNs {
		db, err := openOne(dsn, true, acquireTimeout)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to open sandbox pool", err)
		}
		p.sandboxes = append(p.sandboxes, db)
	}

	for _, dsn := range cfg.ReplicaDSNs {
		db, err := openOne(dsn, false, acquireTimeout)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to open replica pool", err)
		}
		p.replicas = append(p.replicas, db)
	}

	return p, nil
}

// openOne opens a *gorm.DB and confirms a connection can actually be
// acquired from the underlying pool within acquireTimeout, the way a
// misconfigured or exhausted pool would otherwise hang callers forever
// waiting on the first query instead of failing fast at startup.
func openOne(dsn string, readOnly bool, acquireTimeout time.Duration) (*gorm.DB, error) {
	parsed, err := config.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(postgres.Open(parsed.PostgresDSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Printf("failed to connect to %s@%s: %v", parsed.User, parsed.Host, err)
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), acquireTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		log.Printf("failed to acquire a connection to %s@%s within %s: %v", parsed.User, parsed.Host, acquireTimeout, err)
		return nil, err
	}

	if readOnly {
		// The sandbox role is enforced at the database-user level (a
		// strictly read-only grant) — this just sets a session default
		// as defense in depth against a misconfigured role.
		db.Exec("SET default_transaction_read_only = on")
	}

	return db, nil
}

func applySchema(db *gorm.DB, schemaSQL string) error {
	for _, stmt := range splitStatements(schemaSQL) {
		if stmt == "" {
			continue
		}
		if err := db.Exec(stmt).Error; err != nil {
			return apperr.Wrap(apperr.KindInternal, "schema migration failed", err)
		}
	}
	return nil
}

func splitStatements(sql string) []string {
	var stmts []string
	var cur []byte
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		cur = append(cur, c)
		if c == ';' {
			stmts = append(stmts, string(cur))
			cur = nil
		}
	}
	if len(cur) > 0 {
		stmts = append(stmts, string(cur))
	}
	return stmts
}

// Sandbox returns the next sandbox pool in round-robin order. Sandbox pools
// are mandatory for the query endpoint; a nil return means none configured.
func (p *Pool) Sandbox() *gorm.DB {
	if len(p.sandboxes) == 0 {
		return nil
	}
	n := atomic.AddUint64(&p.sandboxNext, 1)
	return p.sandboxes[n%uint64(len(p.sandboxes))]
}

// Replica returns the next replica pool in round-robin order, falling back
// to the write pool when no replica is configured.
func (p *Pool) Replica() *gorm.DB {
	if len(p.replicas) == 0 {
		return p.Write
	}
	n := atomic.AddUint64(&p.replicaNext, 1)
	return p.replicas[n%uint64(len(p.replicas))]
}

// Close releases the underlying *sql.DB handles of every pool.
func (p *Pool) Close() {
	closeDB(p.Write)
	for _, db := range p.sandboxes {
		closeDB(db)
	}
	for _, db := range p.replicas {
		closeDB(db)
	}
}

func closeDB(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}
