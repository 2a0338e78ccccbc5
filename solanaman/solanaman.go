package solanaman

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/TEENet-io/splminter-go/agreement"
	"github.com/blocto/solana-go-sdk/client"
	solcommon "github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/rpc"
	"github.com/blocto/solana-go-sdk/types"
	logger "github.com/sirupsen/logrus"
)

var ErrNilConfig = errors.New("nil solanaman config")

// Solanaman is the NetworkClient backed by a JSON-RPC endpoint.
type Solanaman struct {
	rpcClient *client.Client
	cfg       *SolanamanConfig
}

var _ agreement.NetworkClient = (*Solanaman)(nil)

func NewSolanaman(cfg *SolanamanConfig) (*Solanaman, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if cfg.Commitment == "" {
		cfg.Commitment = agreement.CommitmentConfirmed
	}

	url := cfg.endpoint()
	logger.WithFields(logger.Fields{
		"cluster": cfg.Cluster,
		"url":     url,
	}).Debug("solana rpc client")

	return &Solanaman{
		rpcClient: client.NewClient(url),
		cfg:       cfg,
	}, nil
}

func (s *Solanaman) Cluster() string {
	return s.cfg.Cluster
}

func (s *Solanaman) GetLatestBlockhash(ctx context.Context) (string, error) {
	res, err := s.rpcClient.GetLatestBlockhashWithConfig(ctx, client.GetLatestBlockhashConfig{
		Commitment: toRPCCommitment(s.cfg.Commitment),
	})
	if err != nil {
		return "", fmt.Errorf("getLatestBlockhash: %w", err)
	}
	return res.Blockhash, nil
}

func (s *Solanaman) GetMinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error) {
	lamports, err := s.rpcClient.GetMinimumBalanceForRentExemption(ctx, size)
	if err != nil {
		return 0, fmt.Errorf("getMinimumBalanceForRentExemption: %w", err)
	}
	return lamports, nil
}

// IsBlockhashValid asks at processed commitment: a blockhash any fork still
// accepts can still carry a tx.
func (s *Solanaman) IsBlockhashValid(ctx context.Context, blockhash string) (bool, error) {
	valid, err := s.rpcClient.IsBlockhashValidWithConfig(ctx, blockhash, client.IsBlockhashValidConfig{
		Commitment: rpc.CommitmentProcessed,
	})
	if err != nil {
		return false, fmt.Errorf("isBlockhashValid: %w", err)
	}
	return valid, nil
}

func (s *Solanaman) SendTransaction(ctx context.Context, tx types.Transaction) (string, error) {
	sig, err := s.rpcClient.SendTransaction(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("sendTransaction: %w", err)
	}
	return sig, nil
}

// GetSignatureStatus measures the status of sig against commitment.
// A signature the node does not know is TxLimbo.
func (s *Solanaman) GetSignatureStatus(ctx context.Context, sig string, commitment agreement.Commitment) (*agreement.SignatureStatus, error) {
	st, err := s.rpcClient.GetSignatureStatus(ctx, sig)
	if err != nil {
		return nil, fmt.Errorf("getSignatureStatuses: %w", err)
	}
	return convertSignatureStatus(st, commitment), nil
}

func convertSignatureStatus(st *rpc.SignatureStatus, commitment agreement.Commitment) *agreement.SignatureStatus {
	if st == nil {
		return &agreement.SignatureStatus{Status: agreement.TxLimbo}
	}

	out := &agreement.SignatureStatus{Slot: st.Slot}
	if st.Err != nil {
		out.Status = agreement.TxFailed
		out.Err = fmt.Sprintf("%v", st.Err)
		return out
	}

	// a nil confirmation status from older nodes means the block is rooted
	reached := agreement.CommitmentFinalized
	if st.ConfirmationStatus != nil {
		reached = fromRPCCommitment(*st.ConfirmationStatus)
	}
	if reached.Reaches(commitment) {
		out.Status = agreement.TxConfirmed
	} else {
		out.Status = agreement.TxPending
	}
	return out
}

func (s *Solanaman) AccountExists(ctx context.Context, address solcommon.PublicKey) (bool, error) {
	info, err := s.rpcClient.GetAccountInfoWithConfig(ctx, address.ToBase58(), client.GetAccountInfoConfig{
		Commitment: toRPCCommitment(s.cfg.Commitment),
	})
	if err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "not found") || strings.Contains(msg, "could not find account") {
			return false, nil
		}
		return false, fmt.Errorf("getAccountInfo: %w", err)
	}
	return info.Lamports > 0 || info.Owner != (solcommon.PublicKey{}), nil
}

func (s *Solanaman) GetTokenBalance(ctx context.Context, tokenAccount solcommon.PublicKey) (uint64, error) {
	res, err := s.rpcClient.GetTokenAccountBalance(ctx, tokenAccount.ToBase58())
	if err != nil {
		return 0, fmt.Errorf("getTokenAccountBalance: %w", err)
	}
	return res.Amount, nil
}
