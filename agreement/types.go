// Global agreement on types

package agreement

import (
	"fmt"

	"github.com/TEENet-io/splminter-go/common"
	solcommon "github.com/blocto/solana-go-sdk/common"
)

// Commitment is the confirmation strength a status is measured against.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

func (c Commitment) rank() int {
	switch c {
	case CommitmentProcessed:
		return 1
	case CommitmentConfirmed:
		return 2
	case CommitmentFinalized:
		return 3
	default:
		return 0
	}
}

// Reaches tells whether a status observed at c satisfies the wanted commitment.
func (c Commitment) Reaches(wanted Commitment) bool {
	return c.rank() > 0 && c.rank() >= wanted.rank()
}

func ParseCommitment(s string) (Commitment, error) {
	c := Commitment(s)
	if c.rank() == 0 {
		return "", fmt.Errorf("unknown commitment level: %q", s)
	}
	return c, nil
}

// TxStatus of a submitted transaction.
type TxStatus string

const (
	TxLimbo     TxStatus = "limbo"     // sent, but not found anywhere (yet).
	TxPending   TxStatus = "pending"   // seen, commitment not reached.
	TxConfirmed TxStatus = "confirmed" // commitment reached, executed successfully.
	TxFailed    TxStatus = "failed"    // executed with an error.
	TxTimeout   TxStatus = "timeout"   // not confirmed within the allotted window.
)

type SignatureStatus struct {
	Status TxStatus
	Slot   uint64
	Err    string // program error when Status == TxFailed
}

// IssuanceRequest asks for a new mint. Name and Symbol are display only,
// nothing about them goes on chain.
type IssuanceRequest struct {
	Name          string
	Symbol        string
	Decimals      uint8
	InitialSupply uint64 // base units
}

func (r *IssuanceRequest) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}
	if r.Decimals > common.MaxDecimals {
		return fmt.Errorf("%w: decimals=%d", ErrInvalidDecimals, r.Decimals)
	}
	return nil
}

// MintRequest asks for more supply of an existing mint.
type MintRequest struct {
	Mint   solcommon.PublicKey
	Amount uint64 // base units
}

func (r *MintRequest) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}
	if common.IsZeroPublicKey(r.Mint) {
		return fmt.Errorf("%w: mint not set", ErrInvalidRequest)
	}
	if r.Amount == 0 {
		return fmt.Errorf("%w: amount must be at least one base unit", ErrInvalidAmount)
	}
	return nil
}

type TxReceipt struct {
	Signature string
	Confirmed bool
	Slot      uint64
}

func (r *TxReceipt) String() string {
	return fmt.Sprintf("%+v", *r)
}
