package issuancedb

import (
	"context"
	"errors"
	"time"

	"github.com/TEENet-io/splminter-go/agreement"
	solcommon "github.com/blocto/solana-go-sdk/common"
)

var (
	ErrDuplicate = errors.New("record already exists")
	ErrNotFound  = errors.New("record not found")
)

// Stage of an issuance workflow. A record is only created once T1 was
// sent, so there is no "nothing happened yet" stage.
type Stage string

const (
	StageMintPending     Stage = "mint_pending"     // T1 sent, confirmation not observed
	StageMintInitialized Stage = "mint_initialized" // T1 confirmed, initial supply not minted yet
	StageSupplyMinted    Stage = "supply_minted"    // T2 confirmed, issuance complete
)

// Issuance tracks one mint created through the issuer.
type Issuance struct {
	Mint          solcommon.PublicKey
	Owner         solcommon.PublicKey
	Name          string // display only
	Symbol        string // display only
	Decimals      uint8
	InitialSupply uint64 // base units
	Stage         Stage
	InitTxSig     string
	SupplyTxSig   string // empty until StageSupplyMinted
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (is *Issuance) clone() *Issuance {
	c := *is
	return &c
}

// TxKind says which step produced a monitored tx.
type TxKind string

const (
	TxKindInitMint      TxKind = "init_mint"
	TxKindInitialSupply TxKind = "initial_supply"
	TxKindMintMore      TxKind = "mint_more"
)

// MonitoredTx is a submitted transaction and the last status we observed.
type MonitoredTx struct {
	Signature string // primary key
	RefMint   solcommon.PublicKey
	Kind      TxKind
	Status    agreement.TxStatus
	Blockhash string // recent blockhash the tx was built with
	Slot      uint64
	Err       string
	SentAt    time.Time
	UpdatedAt time.Time
}

func (mt *MonitoredTx) clone() *MonitoredTx {
	c := *mt
	return &c
}

// IssuanceDB persists issuance workflows and the txs they submitted,
// regardless of the underlying implementation.
// Getters return (nil, nil) when nothing matches.
type IssuanceDB interface {
	Close() error

	// ErrDuplicate when the mint is already recorded.
	InsertIssuance(ctx context.Context, is *Issuance) error
	GetIssuance(ctx context.Context, mint solcommon.PublicKey) (*Issuance, error)
	GetIssuancesByOwner(ctx context.Context, owner solcommon.PublicKey) ([]*Issuance, error)
	GetIssuancesByStage(ctx context.Context, stage Stage) ([]*Issuance, error)
	// ErrNotFound when the mint is unknown.
	UpdateIssuanceStage(ctx context.Context, mint solcommon.PublicKey, stage Stage, supplyTxSig string) error

	// ErrDuplicate when the signature is already recorded.
	InsertMonitoredTx(ctx context.Context, tx *MonitoredTx) error
	GetMonitoredTx(ctx context.Context, signature string) (*MonitoredTx, error)
	GetMonitoredTxsByMint(ctx context.Context, mint solcommon.PublicKey) ([]*MonitoredTx, error)
	GetMonitoredTxsByStatus(ctx context.Context, status ...agreement.TxStatus) ([]*MonitoredTx, error)
	// ErrNotFound when the signature is unknown.
	UpdateMonitoredTxStatus(ctx context.Context, signature string, status agreement.TxStatus, slot uint64, errMsg string) error
}
