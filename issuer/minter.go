package issuer

import (
	"context"
	"errors"
	"fmt"

	"github.com/TEENet-io/splminter-go/agreement"
	"github.com/TEENet-io/splminter-go/issuancedb"
	solcommon "github.com/blocto/solana-go-sdk/common"
	logger "github.com/sirupsen/logrus"
)

// MintMore mints amount base units of an existing mint to the owner's
// holding account. The holding account is not checked beforehand; a
// rejection caused by its absence is reported as ErrDestinationMissing.
func (is *Issuer) MintMore(ctx context.Context, req *agreement.MintRequest) (*agreement.TxReceipt, error) {
	if err := req.Validate(); err != nil {
		return nil, newError(KindBuild, ErrInvalidRequest, err)
	}

	// mints this issuer created are only usable once fully issued
	rec, err := is.db.GetIssuance(ctx, req.Mint)
	if err != nil {
		logger.WithField("mint", req.Mint.ToBase58()).Warnf("failed to look up issuance: err=%v", err)
	} else if rec != nil && rec.Stage != issuancedb.StageSupplyMinted {
		e := newError(KindBuild, ErrIssuanceIncomplete, fmt.Errorf("stage=%s", rec.Stage))
		e.Mint = req.Mint.ToBase58()
		return nil, e
	}

	owner, err := is.Owner(ctx)
	if err != nil {
		return nil, err
	}

	newLogger := logger.WithFields(logger.Fields{
		"mint":  req.Mint.ToBase58(),
		"owner": owner.ToBase58(),
	})

	ata, err := deriveHoldingAccount(owner, req.Mint)
	if err != nil {
		return nil, newError(KindBuild, ErrInvalidRequest, err)
	}

	fail := func(err error, sig string) error {
		reason := ErrRejected
		switch {
		case errors.Is(err, ErrConfirmationTimeout):
			reason = ErrConfirmationTimeout
		case ctx.Err() == nil && is.rejectedForMissingDestination(ctx, err, ata):
			reason = ErrDestinationMissing
		}
		e := classify(ctx, reason, err)
		e.Mint = req.Mint.ToBase58()
		e.Signature = sig
		newLogger.Errorf("failed to mint: err=%v", err)
		return e
	}

	blockhash, err := is.net.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fail(err, "")
	}
	tx, err := buildMintMoreTx(owner, req.Mint, ata, req.Amount, blockhash)
	if err != nil {
		return nil, newError(KindBuild, ErrInvalidRequest, err)
	}

	sig, err := is.submit(ctx, tx, req.Mint, issuancedb.TxKindMintMore)
	if err != nil {
		return nil, fail(err, "")
	}
	st, err := is.waitForConfirmation(ctx, sig, issuancedb.TxKindMintMore)
	if err != nil {
		return nil, fail(err, sig)
	}

	newLogger.WithFields(logger.Fields{"sig": sig, "amount": req.Amount}).Info("minted")
	return &agreement.TxReceipt{Signature: sig, Confirmed: true, Slot: st.Slot}, nil
}

// Only network rejections are worth a lookup; wallet refusals and
// connection problems never reached the token program.
func (is *Issuer) rejectedForMissingDestination(ctx context.Context, err error, ata solcommon.PublicKey) bool {
	if errors.Is(err, agreement.ErrWalletRejected) || errors.Is(err, agreement.ErrWalletNotConnected) {
		return false
	}
	exists, lookupErr := is.net.AccountExists(ctx, ata)
	if lookupErr != nil {
		logger.WithField("ata", ata.ToBase58()).Debugf("failed to look up holding account: err=%v", lookupErr)
		return false
	}
	return !exists
}
