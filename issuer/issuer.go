package issuer

import (
	"context"
	"errors"
	"fmt"

	"github.com/TEENet-io/splminter-go/agreement"
	"github.com/TEENet-io/splminter-go/common"
	"github.com/TEENet-io/splminter-go/issuancedb"
	solcommon "github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/program/token"
	"github.com/blocto/solana-go-sdk/types"
	logger "github.com/sirupsen/logrus"
)

var ErrNilCollaborator = errors.New("network client and wallet are required")

// Issuer creates mints and mints supply through an owner's wallet.
// Safe for concurrent use; calls share nothing but the ledger and db.
type Issuer struct {
	cfg      *Config
	net      agreement.NetworkClient // interface
	wallet   agreement.WalletSigner  // interface
	db       issuancedb.IssuanceDB   // interface
	recorder Recorder
}

// New builds an Issuer. A nil db keeps the workflow state in memory.
func New(cfg *Config, net agreement.NetworkClient, wallet agreement.WalletSigner, db issuancedb.IssuanceDB) (*Issuer, error) {
	if net == nil || wallet == nil {
		return nil, ErrNilCollaborator
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if db == nil {
		db = issuancedb.NewMemoryIssuanceDB()
	}
	return &Issuer{
		cfg:      cfg.withDefaults(),
		net:      net,
		wallet:   wallet,
		db:       db,
		recorder: nopRecorder{},
	}, nil
}

func (is *Issuer) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	is.recorder = r
}

func (is *Issuer) Config() Config {
	return *is.cfg
}

// Owner returns the identity of the connected wallet.
func (is *Issuer) Owner(ctx context.Context) (solcommon.PublicKey, error) {
	owner, err := is.wallet.PublicKey(ctx)
	if err != nil {
		return solcommon.PublicKey{}, newError(KindConnection, ErrWalletUnavailable, err)
	}
	if common.IsZeroPublicKey(owner) {
		return solcommon.PublicKey{}, newError(KindConnection, ErrWalletUnavailable, agreement.ErrWalletNotConnected)
	}
	return owner, nil
}

// Issue creates a new mint owned by the wallet and mints the initial
// supply to the owner's holding account. It returns the mint address
// only when both transactions are confirmed.
//
// A failed T2 leaves a valid mint with zero supply; the returned Error
// then carries the mint so the caller can Resume it.
func (is *Issuer) Issue(ctx context.Context, req *agreement.IssuanceRequest) (solcommon.PublicKey, error) {
	if err := req.Validate(); err != nil {
		return solcommon.PublicKey{}, newError(KindBuild, ErrInvalidRequest, err)
	}

	owner, err := is.Owner(ctx)
	if err != nil {
		return solcommon.PublicKey{}, err
	}

	im, err := is.initializeMint(ctx, owner, req)
	if err != nil {
		return solcommon.PublicKey{}, err
	}

	if _, err := is.mintInitialSupply(ctx, im, req.InitialSupply); err != nil {
		return solcommon.PublicKey{}, err
	}
	return im.mint, nil
}

// Steps 1-3: fresh keypair, T1, confirmation. Never retried.
func (is *Issuer) initializeMint(ctx context.Context, owner solcommon.PublicKey, req *agreement.IssuanceRequest) (*initializedMint, error) {
	// the private half lives only inside this call
	mintAccount := types.NewAccount()
	mint := mintAccount.PublicKey

	newLogger := logger.WithFields(logger.Fields{
		"mint":  mint.ToBase58(),
		"owner": owner.ToBase58(),
	})
	fail := func(err error, sig string) *Error {
		e := classify(ctx, ErrMintInitFailed, err)
		e.Signature = sig
		newLogger.Errorf("failed to initialize mint: err=%v", err)
		return e
	}

	rent, err := is.net.GetMinimumBalanceForRentExemption(ctx, token.MintAccountSize)
	if err != nil {
		return nil, fail(err, "")
	}
	blockhash, err := is.net.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fail(err, "")
	}

	tx, err := buildInitMintTx(owner, mintAccount, req.Decimals, rent, blockhash)
	if err != nil {
		return nil, newError(KindBuild, ErrMintInitFailed, err)
	}

	sig, err := is.submit(ctx, tx, mint, issuancedb.TxKindInitMint)
	if err != nil {
		return nil, fail(err, "")
	}
	record := func(stage issuancedb.Stage) {
		err := is.db.InsertIssuance(context.WithoutCancel(ctx), &issuancedb.Issuance{
			Mint:          mint,
			Owner:         owner,
			Name:          req.Name,
			Symbol:        req.Symbol,
			Decimals:      req.Decimals,
			InitialSupply: req.InitialSupply,
			Stage:         stage,
			InitTxSig:     sig,
		})
		if err != nil {
			// the workflow can still finish from memory, it just cannot be resumed
			newLogger.Errorf("failed to record issuance: err=%v", err)
		}
	}

	if _, err := is.waitForConfirmation(ctx, sig, issuancedb.TxKindInitMint); err != nil {
		e := fail(err, sig)
		if !errors.Is(err, errTxFailed) {
			// T1 may still land, keep the mint so Resume can find it
			e.Mint = mint.ToBase58()
			record(issuancedb.StageMintPending)
		}
		return nil, e
	}

	im := &initializedMint{
		mint:     mint,
		owner:    owner,
		decimals: req.Decimals,
		initSig:  sig,
	}
	record(issuancedb.StageMintInitialized)

	newLogger.WithField("sig", sig).Info("mint initialized")
	return im, nil
}

// Steps 4-6: holding account and initial supply.
func (is *Issuer) mintInitialSupply(ctx context.Context, im *initializedMint, amount uint64) (*agreement.TxReceipt, error) {
	newLogger := logger.WithFields(logger.Fields{
		"mint":  im.mint.ToBase58(),
		"owner": im.owner.ToBase58(),
	})
	fail := func(err error, sig string) error {
		e := classify(ctx, ErrInitialMintFailed, err)
		e.Mint = im.mint.ToBase58()
		e.Signature = sig
		newLogger.Errorf("failed to mint initial supply: err=%v", err)
		return e
	}

	ata, err := deriveHoldingAccount(im.owner, im.mint)
	if err != nil {
		return nil, fail(err, "")
	}
	blockhash, err := is.net.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fail(err, "")
	}
	tx, err := buildInitialSupplyTx(im, ata, amount, blockhash)
	if err != nil {
		return nil, fail(err, "")
	}

	sig, err := is.submit(ctx, tx, im.mint, issuancedb.TxKindInitialSupply)
	if err != nil {
		return nil, fail(err, "")
	}
	st, err := is.waitForConfirmation(ctx, sig, issuancedb.TxKindInitialSupply)
	if err != nil {
		return nil, fail(err, sig)
	}

	if err := is.db.UpdateIssuanceStage(context.WithoutCancel(ctx), im.mint, issuancedb.StageSupplyMinted, sig); err != nil {
		newLogger.Errorf("failed to update issuance stage: err=%v", err)
	}

	newLogger.WithFields(logger.Fields{
		"sig":    sig,
		"amount": common.FormatBaseUnits(amount, im.decimals),
	}).Info("initial supply minted")
	return &agreement.TxReceipt{Signature: sig, Confirmed: true, Slot: st.Slot}, nil
}

// Resume finishes an issuance stuck before its initial supply by
// redoing steps 4-6. An issuance whose T1 was never confirmed is first
// checked on chain. It is a no-op for a finished issuance.
func (is *Issuer) Resume(ctx context.Context, mint solcommon.PublicKey) (*agreement.TxReceipt, error) {
	if common.IsZeroPublicKey(mint) {
		return nil, newError(KindBuild, ErrInvalidRequest, agreement.ErrInvalidRequest)
	}

	rec, err := is.db.GetIssuance(ctx, mint)
	if err != nil {
		return nil, classify(ctx, ErrIssuanceNotFound, err)
	}
	if rec == nil {
		return nil, newError(KindBuild, ErrIssuanceNotFound, fmt.Errorf("mint %s", mint.ToBase58()))
	}
	if rec.Stage == issuancedb.StageSupplyMinted {
		return &agreement.TxReceipt{Signature: rec.SupplyTxSig, Confirmed: true}, nil
	}

	owner, err := is.Owner(ctx)
	if err != nil {
		return nil, err
	}
	if owner != rec.Owner {
		return nil, newError(KindBuild, ErrInvalidRequest,
			fmt.Errorf("%w: mint %s is owned by %s", agreement.ErrInvalidRequest, mint.ToBase58(), rec.Owner.ToBase58()))
	}

	if rec.Stage == issuancedb.StageMintPending {
		if err := is.checkInitTx(ctx, rec); err != nil {
			return nil, err
		}
	}

	// a previous T2 may have landed after its caller stopped waiting
	receipt, done, err := is.checkPreviousSupplyTx(ctx, rec)
	if err != nil || done {
		return receipt, err
	}

	im := &initializedMint{
		mint:     rec.Mint,
		owner:    rec.Owner,
		decimals: rec.Decimals,
		initSig:  rec.InitTxSig,
	}
	return is.mintInitialSupply(ctx, im, rec.InitialSupply)
}

// checkInitTx moves a mint_pending issuance to mint_initialized once its
// T1 is confirmed. T1 is never resent: the mint key is gone.
func (is *Issuer) checkInitTx(ctx context.Context, rec *issuancedb.Issuance) error {
	newLogger := logger.WithFields(logger.Fields{
		"mint": rec.Mint.ToBase58(),
		"sig":  rec.InitTxSig,
	})

	mt, err := is.db.GetMonitoredTx(ctx, rec.InitTxSig)
	if err != nil {
		return classify(ctx, ErrMintInitFailed, err)
	}
	if mt == nil {
		// never expires, the tx is only trusted once seen
		mt = &issuancedb.MonitoredTx{
			Signature: rec.InitTxSig,
			RefMint:   rec.Mint,
			Kind:      issuancedb.TxKindInitMint,
			Status:    agreement.TxPending,
		}
	}

	st, err := is.recheck(ctx, mt)
	if err != nil {
		e := classify(ctx, ErrMintInitFailed, err)
		e.Mint = rec.Mint.ToBase58()
		e.Signature = rec.InitTxSig
		return e
	}

	switch st.Status {
	case agreement.TxConfirmed:
		if err := is.db.UpdateIssuanceStage(ctx, rec.Mint, issuancedb.StageMintInitialized, ""); err != nil {
			newLogger.Errorf("failed to update issuance stage: err=%v", err)
		}
		rec.Stage = issuancedb.StageMintInitialized
		newLogger.Info("mint initialized")
		return nil
	case agreement.TxFailed:
		e := newError(KindSubmission, ErrMintInitFailed, fmt.Errorf("%w: %s", errTxFailed, st.Err))
		e.Mint = rec.Mint.ToBase58()
		e.Signature = rec.InitTxSig
		newLogger.WithField("err", st.Err).Warn("mint was never initialized")
		return e
	default:
		e := newError(KindConfirmationTimeout, ErrIssuanceIncomplete,
			fmt.Errorf("%w: mint init tx %s still pending", ErrConfirmationTimeout, rec.InitTxSig))
		e.Mint = rec.Mint.ToBase58()
		e.Signature = rec.InitTxSig
		return e
	}
}

// checkPreviousSupplyTx looks at earlier initial supply txs of rec.
// done is true when one of them is confirmed (and the stage was moved).
// A new T2 is only sent once every earlier one failed or expired.
func (is *Issuer) checkPreviousSupplyTx(ctx context.Context, rec *issuancedb.Issuance) (*agreement.TxReceipt, bool, error) {
	txs, err := is.db.GetMonitoredTxsByMint(ctx, rec.Mint)
	if err != nil {
		return nil, false, classify(ctx, ErrInitialMintFailed, err)
	}

	for _, mt := range txs {
		if mt.Kind != issuancedb.TxKindInitialSupply || mt.Status == agreement.TxFailed {
			continue
		}
		st, err := is.recheck(ctx, mt)
		if err != nil {
			return nil, false, classify(ctx, ErrInitialMintFailed, err)
		}

		switch st.Status {
		case agreement.TxConfirmed:
			if err := is.db.UpdateIssuanceStage(ctx, rec.Mint, issuancedb.StageSupplyMinted, mt.Signature); err != nil {
				logger.WithField("mint", rec.Mint.ToBase58()).Errorf("failed to update issuance stage: err=%v", err)
			}
			return &agreement.TxReceipt{Signature: mt.Signature, Confirmed: true, Slot: st.Slot}, true, nil
		case agreement.TxPending:
			e := newError(KindConfirmationTimeout, ErrIssuanceIncomplete,
				fmt.Errorf("%w: initial supply tx %s still pending", ErrConfirmationTimeout, mt.Signature))
			e.Mint = rec.Mint.ToBase58()
			e.Signature = mt.Signature
			return nil, false, e
		}
	}
	return nil, false, nil
}

// Holding is an owner's balance of one mint.
type Holding struct {
	Mint    solcommon.PublicKey
	Owner   solcommon.PublicKey
	Account solcommon.PublicKey // associated token account
	Exists  bool
	Amount  uint64 // base units
}

// Balance reports the connected owner's holding of mint.
func (is *Issuer) Balance(ctx context.Context, mint solcommon.PublicKey) (*Holding, error) {
	if common.IsZeroPublicKey(mint) {
		return nil, newError(KindBuild, ErrInvalidRequest, agreement.ErrInvalidRequest)
	}
	owner, err := is.Owner(ctx)
	if err != nil {
		return nil, err
	}
	ata, err := deriveHoldingAccount(owner, mint)
	if err != nil {
		return nil, newError(KindBuild, ErrInvalidRequest, err)
	}

	h := &Holding{Mint: mint, Owner: owner, Account: ata}
	h.Exists, err = is.net.AccountExists(ctx, ata)
	if err != nil {
		return nil, classify(ctx, ErrRejected, err)
	}
	if !h.Exists {
		return h, nil
	}
	h.Amount, err = is.net.GetTokenBalance(ctx, ata)
	if err != nil {
		return nil, classify(ctx, ErrRejected, err)
	}
	return h, nil
}

// Issuance returns the workflow record of mint, nil if unknown.
func (is *Issuer) Issuance(ctx context.Context, mint solcommon.PublicKey) (*issuancedb.Issuance, error) {
	return is.db.GetIssuance(ctx, mint)
}

// Issuances lists the mints created through this issuer for owner.
func (is *Issuer) Issuances(ctx context.Context, owner solcommon.PublicKey) ([]*issuancedb.Issuance, error) {
	return is.db.GetIssuancesByOwner(ctx, owner)
}

// Transactions returns every tx submitted for mint, oldest first.
func (is *Issuer) Transactions(ctx context.Context, mint solcommon.PublicKey) ([]*issuancedb.MonitoredTx, error) {
	return is.db.GetMonitoredTxsByMint(ctx, mint)
}

// Incomplete lists issuances waiting for their initial supply, including
// those whose mint init tx was never confirmed.
func (is *Issuer) Incomplete(ctx context.Context) ([]*issuancedb.Issuance, error) {
	pending, err := is.db.GetIssuancesByStage(ctx, issuancedb.StageMintPending)
	if err != nil {
		return nil, err
	}
	initialized, err := is.db.GetIssuancesByStage(ctx, issuancedb.StageMintInitialized)
	if err != nil {
		return nil, err
	}
	return append(pending, initialized...), nil
}

// Unsettled lists submitted txs whose outcome was never observed.
func (is *Issuer) Unsettled(ctx context.Context) ([]*issuancedb.MonitoredTx, error) {
	return is.db.GetMonitoredTxsByStatus(ctx, agreement.TxPending, agreement.TxLimbo, agreement.TxTimeout)
}
