/*
SQLiteIssuanceDB implements IssuanceDB on top of database/sql + go-sqlite3.

Tables are issuance and monitoredTx (see schema.go). Public keys are stored
as base58 text so the file stays readable with the sqlite3 shell.
*/
package issuancedb

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/TEENet-io/splminter-go/agreement"
	"github.com/TEENet-io/splminter-go/database"
	solcommon "github.com/blocto/solana-go-sdk/common"
	sqlite3 "github.com/mattn/go-sqlite3"
)

type SQLiteIssuanceDB struct {
	db        *sql.DB
	ownsDB    bool
	stmtCache *database.StmtCache
}

var _ IssuanceDB = (*SQLiteIssuanceDB)(nil)

// NewSQLiteIssuanceDB creates the tables on an already opened db.
// The caller keeps ownership of db.
func NewSQLiteIssuanceDB(db *sql.DB) (*SQLiteIssuanceDB, error) {
	if _, err := db.Exec(issuanceTable + monitoredTxTable); err != nil {
		return nil, err
	}
	return &SQLiteIssuanceDB{
		db:        db,
		stmtCache: database.NewStmtCache(db),
	}, nil
}

// OpenSQLiteIssuanceDB opens (or creates) the db file at dbPath.
func OpenSQLiteIssuanceDB(dbPath string) (*SQLiteIssuanceDB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if dbPath == ":memory:" {
		// every new connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	s, err := NewSQLiteIssuanceDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

func (s *SQLiteIssuanceDB) Close() error {
	s.stmtCache.Clear()
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

const issuanceColumns = `mint, owner, name, symbol, decimals, initialSupply, stage, initTxSig, supplyTxSig, createdAt, updatedAt`

func (s *SQLiteIssuanceDB) InsertIssuance(ctx context.Context, is *Issuance) error {
	query := `INSERT INTO issuance (` + issuanceColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := s.stmtCache.PrepareContext(ctx, query)
	if err != nil {
		return err
	}

	now := time.Now()
	createdAt := is.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err = stmt.ExecContext(ctx,
		is.Mint.ToBase58(),
		is.Owner.ToBase58(),
		is.Name,
		is.Symbol,
		is.Decimals,
		strconv.FormatUint(is.InitialSupply, 10),
		string(is.Stage),
		is.InitTxSig,
		is.SupplyTxSig,
		createdAt.UnixMilli(),
		now.UnixMilli(),
	)
	return translateErr(err)
}

func (s *SQLiteIssuanceDB) GetIssuance(ctx context.Context, mint solcommon.PublicKey) (*Issuance, error) {
	rows, err := s.queryIssuances(ctx, `SELECT `+issuanceColumns+` FROM issuance WHERE mint = ?`, mint.ToBase58())
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (s *SQLiteIssuanceDB) GetIssuancesByOwner(ctx context.Context, owner solcommon.PublicKey) ([]*Issuance, error) {
	return s.queryIssuances(ctx, `SELECT `+issuanceColumns+` FROM issuance WHERE owner = ? ORDER BY createdAt`, owner.ToBase58())
}

func (s *SQLiteIssuanceDB) GetIssuancesByStage(ctx context.Context, stage Stage) ([]*Issuance, error) {
	return s.queryIssuances(ctx, `SELECT `+issuanceColumns+` FROM issuance WHERE stage = ? ORDER BY createdAt`, string(stage))
}

func (s *SQLiteIssuanceDB) queryIssuances(ctx context.Context, query string, args ...interface{}) ([]*Issuance, error) {
	stmt, err := s.stmtCache.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*Issuance{}
	for rows.Next() {
		var (
			mint, owner, supply, stage string
			createdAt, updatedAt       int64
			is                         Issuance
		)
		if err := rows.Scan(
			&mint,
			&owner,
			&is.Name,
			&is.Symbol,
			&is.Decimals,
			&supply,
			&stage,
			&is.InitTxSig,
			&is.SupplyTxSig,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, err
		}
		is.Mint = solcommon.PublicKeyFromString(mint)
		is.Owner = solcommon.PublicKeyFromString(owner)
		is.InitialSupply, err = strconv.ParseUint(supply, 10, 64)
		if err != nil {
			return nil, err
		}
		is.Stage = Stage(stage)
		is.CreatedAt = time.UnixMilli(createdAt)
		is.UpdatedAt = time.UnixMilli(updatedAt)
		out = append(out, &is)
	}
	return out, rows.Err()
}

func (s *SQLiteIssuanceDB) UpdateIssuanceStage(ctx context.Context, mint solcommon.PublicKey, stage Stage, supplyTxSig string) error {
	query := `UPDATE issuance SET stage = ?, supplyTxSig = CASE WHEN ? = '' THEN supplyTxSig ELSE ? END, updatedAt = ? WHERE mint = ?`
	stmt, err := s.stmtCache.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	res, err := stmt.ExecContext(ctx, string(stage), supplyTxSig, supplyTxSig, time.Now().UnixMilli(), mint.ToBase58())
	if err != nil {
		return err
	}
	return mustAffect(res)
}

const monitoredTxColumns = `signature, refMint, kind, status, blockhash, slot, err, sentAt, updatedAt`

func (s *SQLiteIssuanceDB) InsertMonitoredTx(ctx context.Context, tx *MonitoredTx) error {
	query := `INSERT INTO monitoredTx (` + monitoredTxColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := s.stmtCache.PrepareContext(ctx, query)
	if err != nil {
		return err
	}

	now := time.Now()
	sentAt := tx.SentAt
	if sentAt.IsZero() {
		sentAt = now
	}

	_, err = stmt.ExecContext(ctx,
		tx.Signature,
		tx.RefMint.ToBase58(),
		string(tx.Kind),
		string(tx.Status),
		tx.Blockhash,
		int64(tx.Slot),
		tx.Err,
		sentAt.UnixMilli(),
		now.UnixMilli(),
	)
	return translateErr(err)
}

func (s *SQLiteIssuanceDB) GetMonitoredTx(ctx context.Context, signature string) (*MonitoredTx, error) {
	rows, err := s.queryMonitoredTxs(ctx, `SELECT `+monitoredTxColumns+` FROM monitoredTx WHERE signature = ?`, signature)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (s *SQLiteIssuanceDB) GetMonitoredTxsByMint(ctx context.Context, mint solcommon.PublicKey) ([]*MonitoredTx, error) {
	return s.queryMonitoredTxs(ctx, `SELECT `+monitoredTxColumns+` FROM monitoredTx WHERE refMint = ? ORDER BY sentAt`, mint.ToBase58())
}

func (s *SQLiteIssuanceDB) GetMonitoredTxsByStatus(ctx context.Context, status ...agreement.TxStatus) ([]*MonitoredTx, error) {
	if len(status) == 0 {
		return []*MonitoredTx{}, nil
	}
	query := `SELECT ` + monitoredTxColumns + ` FROM monitoredTx WHERE status IN (?` + strings.Repeat(", ?", len(status)-1) + `) ORDER BY sentAt`
	args := make([]interface{}, len(status))
	for i, st := range status {
		args[i] = string(st)
	}
	return s.queryMonitoredTxs(ctx, query, args...)
}

func (s *SQLiteIssuanceDB) queryMonitoredTxs(ctx context.Context, query string, args ...interface{}) ([]*MonitoredTx, error) {
	stmt, err := s.stmtCache.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*MonitoredTx{}
	for rows.Next() {
		var (
			refMint, kind, status string
			slot, sentAt, updated int64
			tx                    MonitoredTx
		)
		if err := rows.Scan(&tx.Signature, &refMint, &kind, &status, &tx.Blockhash, &slot, &tx.Err, &sentAt, &updated); err != nil {
			return nil, err
		}
		tx.RefMint = solcommon.PublicKeyFromString(refMint)
		tx.Kind = TxKind(kind)
		tx.Status = agreement.TxStatus(status)
		tx.Slot = uint64(slot)
		tx.SentAt = time.UnixMilli(sentAt)
		tx.UpdatedAt = time.UnixMilli(updated)
		out = append(out, &tx)
	}
	return out, rows.Err()
}

func (s *SQLiteIssuanceDB) UpdateMonitoredTxStatus(ctx context.Context, signature string, status agreement.TxStatus, slot uint64, errMsg string) error {
	query := `UPDATE monitoredTx SET status = ?, slot = ?, err = ?, updatedAt = ? WHERE signature = ?`
	stmt, err := s.stmtCache.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	res, err := stmt.ExecContext(ctx, string(status), int64(slot), errMsg, time.Now().UnixMilli(), signature)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func translateErr(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
		return ErrDuplicate
	}
	return err
}
