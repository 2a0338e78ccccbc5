package database

import (
	"context"
	"database/sql"
	"sync"
)

// StmtCache caches prepared statements keyed by their query string.
// Safe for concurrent use.
type StmtCache struct {
	db *sql.DB
	m  sync.Map
	mu sync.Mutex // serializes the prepare path so a query is prepared once
}

func NewStmtCache(db *sql.DB) *StmtCache {
	return &StmtCache{db: db}
}

func (sc *StmtCache) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	if cached, ok := sc.m.Load(query); ok {
		return cached.(*sql.Stmt), nil
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if cached, ok := sc.m.Load(query); ok {
		return cached.(*sql.Stmt), nil
	}
	stmt, err := sc.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	sc.m.Store(query, stmt)
	return stmt, nil
}

// Clear closes and forgets every cached statement.
func (sc *StmtCache) Clear() {
	sc.m.Range(func(k, v interface{}) bool {
		_ = v.(*sql.Stmt).Close()
		sc.m.Delete(k)
		return true
	})
}
