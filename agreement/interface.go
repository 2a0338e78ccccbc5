// Implement the following interfaces to plug a network or a wallet into the issuer.

package agreement

import (
	"context"

	solcommon "github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/types"
)

// NetworkClient is what the issuer needs from a ledger RPC endpoint.
type NetworkClient interface {
	// Recent blockhash, fetched fresh for every transaction.
	GetLatestBlockhash(ctx context.Context) (string, error)

	// Lamports an account of size bytes needs to be rent exempt.
	GetMinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error)

	// Whether txs built with blockhash can still land. Once false, a tx
	// built with it that the network never saw will never execute.
	IsBlockhashValid(ctx context.Context, blockhash string) (bool, error)

	// Submit a fully signed transaction, return its signature (tx id).
	SendTransaction(ctx context.Context, tx types.Transaction) (string, error)

	// Status of a submitted transaction measured against the given commitment.
	// A signature the network has never seen is reported as TxLimbo, not an error.
	GetSignatureStatus(ctx context.Context, signature string, commitment Commitment) (*SignatureStatus, error)

	// Whether an account exists on chain (used to classify rejected mints).
	AccountExists(ctx context.Context, address solcommon.PublicKey) (bool, error)

	// Base-unit balance held by a token account.
	GetTokenBalance(ctx context.Context, tokenAccount solcommon.PublicKey) (uint64, error)
}

// WalletSigner is the owner's wallet. It holds the owner key; the issuer never does.
type WalletSigner interface {
	// PublicKey returns the owner identity.
	// ErrWalletNotConnected when there is no connected wallet.
	PublicKey(ctx context.Context) (solcommon.PublicKey, error)

	// SignAndSend adds the owner signature to tx and relays it to the network.
	// Other required signatures must already be present.
	// ErrWalletRejected when the wallet refuses to sign.
	SignAndSend(ctx context.Context, tx *types.Transaction) (string, error)
}
