package solanaman

import (
	"context"
	"fmt"

	"github.com/TEENet-io/splminter-go/agreement"
	"github.com/TEENet-io/splminter-go/common"
	solcommon "github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/types"
	logger "github.com/sirupsen/logrus"
)

// signFunc produces the owner signature over a serialized message.
type signFunc func(ctx context.Context, message []byte) ([]byte, error)

// signAndRelay adds the owner signature to tx and hands it to the network.
func signAndRelay(ctx context.Context, tx *types.Transaction, sign signFunc, net agreement.NetworkClient) (string, error) {
	if tx == nil {
		return "", fmt.Errorf("%w: nil transaction", agreement.ErrInvalidRequest)
	}

	msg, err := tx.Message.Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize message: %w", err)
	}

	sig, err := sign(ctx, msg)
	if err != nil {
		return "", err
	}

	if err := tx.AddSignature(sig); err != nil {
		// the owner is not among the required signers of this message
		return "", fmt.Errorf("%w: %v", agreement.ErrWalletRejected, err)
	}

	txSig, err := net.SendTransaction(ctx, *tx)
	if err != nil {
		return "", err
	}

	logger.WithField("sig", common.Shorten(txSig, 8)).Debug("wallet relayed transaction")
	return txSig, nil
}

// LocalWallet holds the owner key in process, loaded from a
// solana-keygen keypair file.
type LocalWallet struct {
	account types.Account
	net     agreement.NetworkClient
}

var _ agreement.WalletSigner = (*LocalWallet)(nil)

func NewLocalWallet(account types.Account, net agreement.NetworkClient) *LocalWallet {
	return &LocalWallet{account: account, net: net}
}

func NewLocalWalletFromFile(path string, net agreement.NetworkClient) (*LocalWallet, error) {
	acc, err := common.LoadKeypairFile(path)
	if err != nil {
		return nil, err
	}
	return NewLocalWallet(acc, net), nil
}

func (w *LocalWallet) PublicKey(_ context.Context) (solcommon.PublicKey, error) {
	return w.account.PublicKey, nil
}

func (w *LocalWallet) SignAndSend(ctx context.Context, tx *types.Transaction) (string, error) {
	return signAndRelay(ctx, tx, w.signMessage, w.net)
}

func (w *LocalWallet) signMessage(_ context.Context, message []byte) ([]byte, error) {
	return w.account.Sign(message), nil
}
