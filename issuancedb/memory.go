package issuancedb

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/TEENet-io/splminter-go/agreement"
	solcommon "github.com/blocto/solana-go-sdk/common"
)

// MemoryIssuanceDB keeps everything in process memory.
type MemoryIssuanceDB struct {
	mu        sync.RWMutex
	issuances map[solcommon.PublicKey]*Issuance
	txs       map[string]*MonitoredTx

	now func() time.Time
}

var _ IssuanceDB = (*MemoryIssuanceDB)(nil)

func NewMemoryIssuanceDB() *MemoryIssuanceDB {
	return &MemoryIssuanceDB{
		issuances: make(map[solcommon.PublicKey]*Issuance),
		txs:       make(map[string]*MonitoredTx),
		now:       time.Now,
	}
}

func (db *MemoryIssuanceDB) Close() error {
	return nil
}

func (db *MemoryIssuanceDB) InsertIssuance(_ context.Context, is *Issuance) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.issuances[is.Mint]; ok {
		return ErrDuplicate
	}
	c := is.clone()
	now := db.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	db.issuances[is.Mint] = c
	return nil
}

func (db *MemoryIssuanceDB) GetIssuance(_ context.Context, mint solcommon.PublicKey) (*Issuance, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	is, ok := db.issuances[mint]
	if !ok {
		return nil, nil
	}
	return is.clone(), nil
}

func (db *MemoryIssuanceDB) GetIssuancesByOwner(_ context.Context, owner solcommon.PublicKey) ([]*Issuance, error) {
	return db.filterIssuances(func(is *Issuance) bool { return is.Owner == owner }), nil
}

func (db *MemoryIssuanceDB) GetIssuancesByStage(_ context.Context, stage Stage) ([]*Issuance, error) {
	return db.filterIssuances(func(is *Issuance) bool { return is.Stage == stage }), nil
}

func (db *MemoryIssuanceDB) filterIssuances(keep func(*Issuance) bool) []*Issuance {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := []*Issuance{}
	for _, is := range db.issuances {
		if keep(is) {
			out = append(out, is.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (db *MemoryIssuanceDB) UpdateIssuanceStage(_ context.Context, mint solcommon.PublicKey, stage Stage, supplyTxSig string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	is, ok := db.issuances[mint]
	if !ok {
		return ErrNotFound
	}
	is.Stage = stage
	if supplyTxSig != "" {
		is.SupplyTxSig = supplyTxSig
	}
	is.UpdatedAt = db.now()
	return nil
}

func (db *MemoryIssuanceDB) InsertMonitoredTx(_ context.Context, tx *MonitoredTx) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.txs[tx.Signature]; ok {
		return ErrDuplicate
	}
	c := tx.clone()
	now := db.now()
	if c.SentAt.IsZero() {
		c.SentAt = now
	}
	c.UpdatedAt = now
	db.txs[tx.Signature] = c
	return nil
}

func (db *MemoryIssuanceDB) GetMonitoredTx(_ context.Context, signature string) (*MonitoredTx, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	tx, ok := db.txs[signature]
	if !ok {
		return nil, nil
	}
	return tx.clone(), nil
}

func (db *MemoryIssuanceDB) GetMonitoredTxsByMint(_ context.Context, mint solcommon.PublicKey) ([]*MonitoredTx, error) {
	return db.filterTxs(func(tx *MonitoredTx) bool { return tx.RefMint == mint }), nil
}

func (db *MemoryIssuanceDB) GetMonitoredTxsByStatus(_ context.Context, status ...agreement.TxStatus) ([]*MonitoredTx, error) {
	want := make(map[agreement.TxStatus]bool, len(status))
	for _, s := range status {
		want[s] = true
	}
	return db.filterTxs(func(tx *MonitoredTx) bool { return want[tx.Status] }), nil
}

func (db *MemoryIssuanceDB) filterTxs(keep func(*MonitoredTx) bool) []*MonitoredTx {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := []*MonitoredTx{}
	for _, tx := range db.txs {
		if keep(tx) {
			out = append(out, tx.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out
}

func (db *MemoryIssuanceDB) UpdateMonitoredTxStatus(_ context.Context, signature string, status agreement.TxStatus, slot uint64, errMsg string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, ok := db.txs[signature]
	if !ok {
		return ErrNotFound
	}
	tx.Status = status
	tx.Slot = slot
	tx.Err = errMsg
	tx.UpdatedAt = db.now()
	return nil
}
