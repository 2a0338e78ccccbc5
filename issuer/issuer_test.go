package issuer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/TEENet-io/splminter-go/agreement"
	"github.com/TEENet-io/splminter-go/issuancedb"
	"github.com/TEENet-io/splminter-go/solanaman"
	solcommon "github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		Commitment:     agreement.CommitmentConfirmed,
		PollInterval:   2 * time.Millisecond,
		ConfirmTimeout: 100 * time.Millisecond,
		Cluster:        "devnet",
	}
}

// scriptedWallet runs a hook before the n-th signature request (1-based).
// A hook error is returned instead of signing.
type scriptedWallet struct {
	*solanaman.SimWallet

	mu    sync.Mutex
	calls int
	hooks map[int]func() error
}

func (w *scriptedWallet) SignAndSend(ctx context.Context, tx *types.Transaction) (string, error) {
	w.mu.Lock()
	w.calls++
	hook := w.hooks[w.calls]
	w.mu.Unlock()

	if hook != nil {
		if err := hook(); err != nil {
			return "", err
		}
	}
	return w.SimWallet.SignAndSend(ctx, tx)
}

type testEnv struct {
	ledger *solanaman.SimLedger
	wallet *scriptedWallet
	db     issuancedb.IssuanceDB
	issuer *Issuer
}

func newTestEnv(t *testing.T) *testEnv {
	ledger := solanaman.NewSimLedger()
	wallet := &scriptedWallet{SimWallet: solanaman.NewSimWallet(ledger), hooks: map[int]func() error{}}
	db := issuancedb.NewMemoryIssuanceDB()
	is, err := New(testConfig(), ledger, wallet, db)
	require.NoError(t, err)
	return &testEnv{ledger: ledger, wallet: wallet, db: db, issuer: is}
}

func (env *testEnv) owner() solcommon.PublicKey {
	return env.wallet.Account().PublicKey
}

func programsOf(tx types.Transaction) []solcommon.PublicKey {
	out := []solcommon.PublicKey{}
	for _, ix := range tx.Message.Instructions {
		out = append(out, tx.Message.Accounts[ix.ProgramIDIndex])
	}
	return out
}

func assertIssuerError(t *testing.T, err error, kind Kind, reason error) *Error {
	t.Helper()
	require.Error(t, err)
	var e *Error
	require.True(t, errors.As(err, &e), "not an issuer error: %v", err)
	assert.Equal(t, kind, e.Kind)
	assert.ErrorIs(t, err, reason)
	return e
}

func TestNew(t *testing.T) {
	ledger := solanaman.NewSimLedger()
	_, err := New(nil, nil, solanaman.NewSimWallet(ledger), nil)
	assert.ErrorIs(t, err, ErrNilCollaborator)

	is, err := New(&Config{}, ledger, solanaman.NewSimWallet(ledger), nil)
	require.NoError(t, err)
	assert.Equal(t, *DefaultConfig(), is.Config())
}

func TestIssueAndMintMore(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	mint, err := env.issuer.Issue(ctx, &agreement.IssuanceRequest{
		Name:          "Test Token",
		Symbol:        "TST",
		Decimals:      9,
		InitialSupply: 1_000_000_000,
	})
	require.NoError(t, err)
	assert.False(t, mint == solcommon.PublicKey{})

	state, ok := env.ledger.MintState(mint)
	require.True(t, ok)
	assert.Equal(t, uint8(9), state.Decimals)
	assert.Equal(t, env.owner(), state.MintAuthority)
	assert.Equal(t, env.owner(), *state.FreezeAuthority)

	receipt, err := env.issuer.MintMore(ctx, &agreement.MintRequest{Mint: mint, Amount: 5_000_000_000})
	require.NoError(t, err)
	assert.True(t, receipt.Confirmed)
	assert.NotEmpty(t, receipt.Signature)

	h, err := env.issuer.Balance(ctx, mint)
	require.NoError(t, err)
	assert.True(t, h.Exists)
	assert.Equal(t, uint64(6_000_000_000), h.Amount)
	assert.Equal(t, env.owner(), h.Owner)

	ata, _, err := solcommon.FindAssociatedTokenAddress(env.owner(), mint)
	require.NoError(t, err)
	assert.Equal(t, ata, h.Account)

	rec, err := env.issuer.Issuance(ctx, mint)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, issuancedb.StageSupplyMinted, rec.Stage)
	assert.Equal(t, "TST", rec.Symbol)
	assert.NotEmpty(t, rec.InitTxSig)
	assert.NotEmpty(t, rec.SupplyTxSig)

	txs, err := env.issuer.Transactions(ctx, mint)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	kinds := []issuancedb.TxKind{}
	for _, tx := range txs {
		assert.Equal(t, agreement.TxConfirmed, tx.Status)
		kinds = append(kinds, tx.Kind)
	}
	assert.ElementsMatch(t, []issuancedb.TxKind{
		issuancedb.TxKindInitMint,
		issuancedb.TxKindInitialSupply,
		issuancedb.TxKindMintMore,
	}, kinds)

	list, err := env.issuer.Issuances(ctx, env.owner())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestIssueEveryDecimals(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	seen := map[solcommon.PublicKey]bool{}

	for d := uint8(0); d <= 9; d++ {
		mint, err := env.issuer.Issue(ctx, &agreement.IssuanceRequest{Decimals: d, InitialSupply: uint64(d)})
		require.NoError(t, err)
		assert.False(t, seen[mint], "mint reused")
		seen[mint] = true

		state, ok := env.ledger.MintState(mint)
		require.True(t, ok)
		assert.Equal(t, d, state.Decimals)
		assert.Equal(t, uint64(d), state.Supply)
	}
}

func TestIssueZeroSupply(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	mint, err := env.issuer.Issue(ctx, &agreement.IssuanceRequest{Decimals: 6})
	require.NoError(t, err)

	h, err := env.issuer.Balance(ctx, mint)
	require.NoError(t, err)
	assert.True(t, h.Exists)
	assert.Equal(t, uint64(0), h.Amount)
}

func TestIssueDecimalsOutOfRange(t *testing.T) {
	env := newTestEnv(t)

	mint, err := env.issuer.Issue(context.Background(), &agreement.IssuanceRequest{Decimals: 10, InitialSupply: 1})
	assertIssuerError(t, err, KindBuild, ErrInvalidRequest)
	assert.ErrorIs(t, err, agreement.ErrInvalidDecimals)
	assert.True(t, mint == solcommon.PublicKey{})

	assert.Equal(t, 0, env.ledger.TotalCalls())
	assert.Equal(t, 0, env.wallet.Requests())
}

func TestIssueWalletDisconnected(t *testing.T) {
	env := newTestEnv(t)
	env.wallet.Disconnect()

	_, err := env.issuer.Issue(context.Background(), &agreement.IssuanceRequest{Decimals: 9, InitialSupply: 1})
	assertIssuerError(t, err, KindConnection, ErrWalletUnavailable)
	assert.ErrorIs(t, err, agreement.ErrWalletNotConnected)
	assert.Equal(t, 0, env.ledger.TotalCalls())

	_, err = env.issuer.MintMore(context.Background(), &agreement.MintRequest{Mint: types.NewAccount().PublicKey, Amount: 1})
	assertIssuerError(t, err, KindConnection, ErrWalletUnavailable)
	assert.Equal(t, 0, env.ledger.TotalCalls())
}

func TestIssueWalletRejects(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.wallet.RejectNext()

	_, err := env.issuer.Issue(ctx, &agreement.IssuanceRequest{Decimals: 9, InitialSupply: 1})
	e := assertIssuerError(t, err, KindSubmission, ErrMintInitFailed)
	assert.ErrorIs(t, err, agreement.ErrWalletRejected)
	assert.Empty(t, e.Mint)

	assert.Len(t, env.ledger.Transactions(), 0)
	incomplete, err := env.issuer.Incomplete(ctx)
	require.NoError(t, err)
	assert.Len(t, incomplete, 0)
}

func TestIssueMintInitFailsOnChain(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.ledger.FailNextOnChain("custom program error: 0x0")

	_, err := env.issuer.Issue(ctx, &agreement.IssuanceRequest{Decimals: 9, InitialSupply: 1})
	e := assertIssuerError(t, err, KindSubmission, ErrMintInitFailed)
	assert.NotEmpty(t, e.Signature)
	assert.Contains(t, err.Error(), "custom program error: 0x0")

	// no T2 after a failed T1
	assert.Len(t, env.ledger.Transactions(), 1)
	assert.Equal(t, 1, env.wallet.Requests())

	mt, err := env.db.GetMonitoredTx(ctx, e.Signature)
	require.NoError(t, err)
	require.NotNil(t, mt)
	assert.Equal(t, agreement.TxFailed, mt.Status)
	assert.Equal(t, issuancedb.TxKindInitMint, mt.Kind)
}

// orderingNet records, for every call, how many txs were confirmed so far.
type orderingNet struct {
	*solanaman.SimLedger

	mu        sync.Mutex
	confirmed map[string]bool
	blockhash []int // confirmed count at each blockhash fetch
}

func (n *orderingNet) GetSignatureStatus(ctx context.Context, sig string, c agreement.Commitment) (*agreement.SignatureStatus, error) {
	st, err := n.SimLedger.GetSignatureStatus(ctx, sig, c)
	if err == nil && st.Status == agreement.TxConfirmed {
		n.mu.Lock()
		n.confirmed[sig] = true
		n.mu.Unlock()
	}
	return st, err
}

func (n *orderingNet) GetLatestBlockhash(ctx context.Context) (string, error) {
	n.mu.Lock()
	n.blockhash = append(n.blockhash, len(n.confirmed))
	n.mu.Unlock()
	return n.SimLedger.GetLatestBlockhash(ctx)
}

func TestIssueOrdering(t *testing.T) {
	ctx := context.Background()
	ledger := solanaman.NewSimLedger()
	ledger.SetConfirmAfterPolls(3)
	net := &orderingNet{SimLedger: ledger, confirmed: map[string]bool{}}
	wallet := solanaman.NewSimWallet(ledger)

	is, err := New(testConfig(), net, wallet, nil)
	require.NoError(t, err)

	_, err = is.Issue(ctx, &agreement.IssuanceRequest{Decimals: 2, InitialSupply: 100})
	require.NoError(t, err)

	// T1 is built on nothing confirmed, T2 only once T1 is
	assert.Equal(t, []int{0, 1}, net.blockhash)

	txs := ledger.Transactions()
	require.Len(t, txs, 2)
	assert.Equal(t, []solcommon.PublicKey{solcommon.SystemProgramID, solcommon.TokenProgramID}, programsOf(txs[0]))
	assert.Equal(t, []solcommon.PublicKey{solcommon.SPLAssociatedTokenAccountProgramID, solcommon.TokenProgramID}, programsOf(txs[1]))

	// T1 carries two signatures (owner and mint), T2 only the owner's
	assert.Len(t, txs[0].Signatures, 2)
	assert.Len(t, txs[1].Signatures, 1)
}

func TestIssueConfirmationTimeout(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.ledger.SetNeverConfirm(true)

	start := time.Now()
	_, err := env.issuer.Issue(ctx, &agreement.IssuanceRequest{Decimals: 9, InitialSupply: 1})
	e := assertIssuerError(t, err, KindConfirmationTimeout, ErrMintInitFailed)
	assert.ErrorIs(t, err, ErrConfirmationTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)

	mt, err := env.db.GetMonitoredTx(ctx, e.Signature)
	require.NoError(t, err)
	require.NotNil(t, mt)
	assert.Equal(t, agreement.TxTimeout, mt.Status)
	assert.NotEmpty(t, mt.Blockhash)

	// never moved on to T2
	assert.Len(t, env.ledger.Transactions(), 1)

	// T1 may still land, the mint is kept for Resume
	require.NotEmpty(t, e.Mint)
	created := solcommon.PublicKeyFromString(e.Mint)
	rec, err := env.issuer.Issuance(ctx, created)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, issuancedb.StageMintPending, rec.Stage)
	assert.Equal(t, e.Signature, rec.InitTxSig)

	incomplete, err := env.issuer.Incomplete(ctx)
	require.NoError(t, err)
	require.Len(t, incomplete, 1)
	assert.Equal(t, created, incomplete[0].Mint)

	_, err = env.issuer.Resume(ctx, created)
	re := assertIssuerError(t, err, KindConfirmationTimeout, ErrIssuanceIncomplete)
	assert.Equal(t, e.Signature, re.Signature)
	assert.Len(t, env.ledger.Transactions(), 1)

	env.ledger.SetNeverConfirm(false)
	_, err = env.issuer.Resume(ctx, created)
	require.NoError(t, err)

	state, ok := env.ledger.MintState(created)
	require.True(t, ok)
	assert.Equal(t, uint64(1), state.Supply)
	assert.Equal(t, 2, env.wallet.Requests())

	rec, err = env.issuer.Issuance(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, issuancedb.StageSupplyMinted, rec.Stage)
}

func TestResumeMintInitNeverLanded(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.wallet.hooks[1] = func() error {
		env.ledger.DropNextSend()
		return nil
	}

	_, err := env.issuer.Issue(ctx, &agreement.IssuanceRequest{Decimals: 9, InitialSupply: 5})
	e := assertIssuerError(t, err, KindConfirmationTimeout, ErrMintInitFailed)
	require.NotEmpty(t, e.Mint)
	created := solcommon.PublicKeyFromString(e.Mint)

	// blockhash still valid, T1 may land any moment
	_, err = env.issuer.Resume(ctx, created)
	assertIssuerError(t, err, KindConfirmationTimeout, ErrIssuanceIncomplete)

	env.ledger.ExpireBlockhashes()
	_, err = env.issuer.Resume(ctx, created)
	re := assertIssuerError(t, err, KindSubmission, ErrMintInitFailed)
	assert.Equal(t, created.ToBase58(), re.Mint)
	assert.Contains(t, err.Error(), errBlockhashExpired.Error())

	// T1 is never resent
	assert.Equal(t, 1, env.wallet.Requests())
	assert.Len(t, env.ledger.Transactions(), 0)

	mt, err := env.db.GetMonitoredTx(ctx, e.Signature)
	require.NoError(t, err)
	require.NotNil(t, mt)
	assert.Equal(t, agreement.TxFailed, mt.Status)
}

func TestIssueCanceledWhileWaiting(t *testing.T) {
	env := newTestEnv(t)
	env.issuer.cfg.ConfirmTimeout = 10 * time.Second
	env.ledger.SetNeverConfirm(true)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := env.issuer.Issue(ctx, &agreement.IssuanceRequest{Decimals: 9, InitialSupply: 1})
	assertIssuerError(t, err, KindCanceled, ErrMintInitFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIssueInitialMintFailsThenResume(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.wallet.hooks[2] = func() error { return agreement.ErrWalletRejected }

	mint, err := env.issuer.Issue(ctx, &agreement.IssuanceRequest{Decimals: 6, InitialSupply: 42_000_000})
	e := assertIssuerError(t, err, KindSubmission, ErrInitialMintFailed)
	assert.True(t, mint == solcommon.PublicKey{})
	require.NotEmpty(t, e.Mint)

	created := solcommon.PublicKeyFromString(e.Mint)
	state, ok := env.ledger.MintState(created)
	require.True(t, ok)
	assert.Equal(t, uint64(0), state.Supply)

	incomplete, err := env.issuer.Incomplete(ctx)
	require.NoError(t, err)
	require.Len(t, incomplete, 1)
	assert.Equal(t, created, incomplete[0].Mint)

	// not usable before the initial supply is in
	_, err = env.issuer.MintMore(ctx, &agreement.MintRequest{Mint: created, Amount: 1})
	assertIssuerError(t, err, KindBuild, ErrIssuanceIncomplete)

	receipt, err := env.issuer.Resume(ctx, created)
	require.NoError(t, err)
	assert.True(t, receipt.Confirmed)

	h, err := env.issuer.Balance(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, uint64(42_000_000), h.Amount)

	// finished, a second resume changes nothing
	again, err := env.issuer.Resume(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, receipt.Signature, again.Signature)
	h, err = env.issuer.Balance(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, uint64(42_000_000), h.Amount)

	_, err = env.issuer.MintMore(ctx, &agreement.MintRequest{Mint: created, Amount: 8_000_000})
	require.NoError(t, err)
	h, err = env.issuer.Balance(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, uint64(50_000_000), h.Amount)
}

func TestResumeAfterFailedSupplyTx(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.wallet.hooks[2] = func() error {
		env.ledger.FailNextOnChain("custom program error: 0x5")
		return nil
	}

	_, err := env.issuer.Issue(ctx, &agreement.IssuanceRequest{Decimals: 0, InitialSupply: 7})
	e := assertIssuerError(t, err, KindSubmission, ErrInitialMintFailed)
	created := solcommon.PublicKeyFromString(e.Mint)

	_, err = env.issuer.Resume(ctx, created)
	require.NoError(t, err)

	h, err := env.issuer.Balance(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), h.Amount)
	assert.Len(t, env.ledger.Transactions(), 3)
}

func TestResumeAfterTimedOutSupplyTxLanded(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.wallet.hooks[2] = func() error {
		env.ledger.SetNeverConfirm(true)
		return nil
	}

	_, err := env.issuer.Issue(ctx, &agreement.IssuanceRequest{Decimals: 9, InitialSupply: 1_000})
	e := assertIssuerError(t, err, KindConfirmationTimeout, ErrInitialMintFailed)
	created := solcommon.PublicKeyFromString(e.Mint)

	// still pending, resume refuses to send a second supply tx
	_, err = env.issuer.Resume(ctx, created)
	assertIssuerError(t, err, KindConfirmationTimeout, ErrIssuanceIncomplete)

	env.ledger.SetNeverConfirm(false)
	receipt, err := env.issuer.Resume(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, e.Signature, receipt.Signature)

	// the supply was minted exactly once
	assert.Len(t, env.ledger.Transactions(), 2)
	h, err := env.issuer.Balance(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), h.Amount)

	rec, err := env.issuer.Issuance(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, issuancedb.StageSupplyMinted, rec.Stage)
}

// hidingNet reports every signature it has not seen before as unknown
// while hiding, like an RPC node lagging behind the cluster.
type hidingNet struct {
	*solanaman.SimLedger

	mu      sync.Mutex
	hiding  bool
	visible map[string]bool
}

func (n *hidingNet) setHiding(hiding bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.hiding = hiding
}

func (n *hidingNet) GetSignatureStatus(ctx context.Context, sig string, c agreement.Commitment) (*agreement.SignatureStatus, error) {
	n.mu.Lock()
	if !n.hiding {
		n.visible[sig] = true
	} else if !n.visible[sig] {
		n.mu.Unlock()
		return &agreement.SignatureStatus{Status: agreement.TxLimbo}, nil
	}
	n.mu.Unlock()
	return n.SimLedger.GetSignatureStatus(ctx, sig, c)
}

func TestResumeAfterUnseenSupplyTxLanded(t *testing.T) {
	ctx := context.Background()
	ledger := solanaman.NewSimLedger()
	net := &hidingNet{SimLedger: ledger, visible: map[string]bool{}}
	wallet := &scriptedWallet{SimWallet: solanaman.NewSimWallet(ledger), hooks: map[int]func() error{}}
	wallet.hooks[2] = func() error {
		net.setHiding(true)
		return nil
	}
	is, err := New(testConfig(), net, wallet, nil)
	require.NoError(t, err)

	_, err = is.Issue(ctx, &agreement.IssuanceRequest{Decimals: 2, InitialSupply: 100})
	e := assertIssuerError(t, err, KindConfirmationTimeout, ErrInitialMintFailed)
	created := solcommon.PublicKeyFromString(e.Mint)

	// T2 landed but the node does not know it yet, its blockhash is
	// still valid so no second T2 goes out
	_, err = is.Resume(ctx, created)
	re := assertIssuerError(t, err, KindConfirmationTimeout, ErrIssuanceIncomplete)
	assert.Equal(t, e.Signature, re.Signature)
	assert.Len(t, ledger.Transactions(), 2)
	assert.Equal(t, 2, wallet.Requests())

	net.setHiding(false)
	receipt, err := is.Resume(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, e.Signature, receipt.Signature)

	assert.Len(t, ledger.Transactions(), 2)
	state, ok := ledger.MintState(created)
	require.True(t, ok)
	assert.Equal(t, uint64(100), state.Supply)

	rec, err := is.Issuance(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, issuancedb.StageSupplyMinted, rec.Stage)
	assert.Equal(t, e.Signature, rec.SupplyTxSig)
}

func TestResumeAfterDroppedSupplyTx(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.wallet.hooks[2] = func() error {
		env.ledger.DropNextSend()
		return nil
	}

	_, err := env.issuer.Issue(ctx, &agreement.IssuanceRequest{Decimals: 3, InitialSupply: 100})
	e := assertIssuerError(t, err, KindConfirmationTimeout, ErrInitialMintFailed)
	created := solcommon.PublicKeyFromString(e.Mint)

	unsettled, err := env.issuer.Unsettled(ctx)
	require.NoError(t, err)
	require.Len(t, unsettled, 1)
	assert.Equal(t, e.Signature, unsettled[0].Signature)
	assert.Equal(t, agreement.TxTimeout, unsettled[0].Status)

	_, err = env.issuer.Resume(ctx, created)
	assertIssuerError(t, err, KindConfirmationTimeout, ErrIssuanceIncomplete)
	assert.Equal(t, 2, env.wallet.Requests())

	// once its blockhash expired the dropped T2 can never land
	env.ledger.ExpireBlockhashes()
	receipt, err := env.issuer.Resume(ctx, created)
	require.NoError(t, err)
	assert.NotEqual(t, e.Signature, receipt.Signature)
	assert.Equal(t, 3, env.wallet.Requests())

	assert.Len(t, env.ledger.Transactions(), 2)
	state, ok := env.ledger.MintState(created)
	require.True(t, ok)
	assert.Equal(t, uint64(100), state.Supply)

	dropped, err := env.db.GetMonitoredTx(ctx, e.Signature)
	require.NoError(t, err)
	assert.Equal(t, agreement.TxFailed, dropped.Status)
	assert.Equal(t, errBlockhashExpired.Error(), dropped.Err)

	unsettled, err = env.issuer.Unsettled(ctx)
	require.NoError(t, err)
	assert.Len(t, unsettled, 0)
}

func TestResumeErrors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.issuer.Resume(ctx, solcommon.PublicKey{})
	assertIssuerError(t, err, KindBuild, ErrInvalidRequest)

	_, err = env.issuer.Resume(ctx, types.NewAccount().PublicKey)
	assertIssuerError(t, err, KindBuild, ErrIssuanceNotFound)

	// an issuance of somebody else
	env.wallet.hooks[2] = func() error { return agreement.ErrWalletRejected }
	_, err = env.issuer.Issue(ctx, &agreement.IssuanceRequest{Decimals: 9, InitialSupply: 1})
	e := assertIssuerError(t, err, KindSubmission, ErrInitialMintFailed)

	other, err := New(testConfig(), env.ledger, solanaman.NewSimWallet(env.ledger), env.db)
	require.NoError(t, err)
	_, err = other.Resume(ctx, solcommon.PublicKeyFromString(e.Mint))
	assertIssuerError(t, err, KindBuild, ErrInvalidRequest)
}

func TestMintMoreDestinationMissing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.wallet.hooks[2] = func() error { return agreement.ErrWalletRejected }

	_, err := env.issuer.Issue(ctx, &agreement.IssuanceRequest{Decimals: 9, InitialSupply: 1})
	e := assertIssuerError(t, err, KindSubmission, ErrInitialMintFailed)
	created := solcommon.PublicKeyFromString(e.Mint)

	// an issuer that did not create the mint does not gate on the workflow
	fresh, err := New(testConfig(), env.ledger, env.wallet, nil)
	require.NoError(t, err)

	_, err = fresh.MintMore(ctx, &agreement.MintRequest{Mint: created, Amount: 1})
	me := assertIssuerError(t, err, KindSubmission, ErrDestinationMissing)
	assert.Equal(t, created.ToBase58(), me.Mint)

	h, err := fresh.Balance(ctx, created)
	require.NoError(t, err)
	assert.False(t, h.Exists)
}

func TestMintMoreRejected(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	mint, err := env.issuer.Issue(ctx, &agreement.IssuanceRequest{Decimals: 9, InitialSupply: 1})
	require.NoError(t, err)

	env.ledger.FailNextOnChain("custom program error: 0x4")
	_, err = env.issuer.MintMore(ctx, &agreement.MintRequest{Mint: mint, Amount: 1})
	me := assertIssuerError(t, err, KindSubmission, ErrRejected)
	assert.NotEmpty(t, me.Signature)

	env.wallet.RejectNext()
	_, err = env.issuer.MintMore(ctx, &agreement.MintRequest{Mint: mint, Amount: 1})
	assertIssuerError(t, err, KindSubmission, ErrRejected)
	assert.ErrorIs(t, err, agreement.ErrWalletRejected)

	h, err := env.issuer.Balance(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), h.Amount)
}

func TestMintMoreTimeout(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	mint, err := env.issuer.Issue(ctx, &agreement.IssuanceRequest{Decimals: 9, InitialSupply: 1})
	require.NoError(t, err)

	env.ledger.SetNeverConfirm(true)
	_, err = env.issuer.MintMore(ctx, &agreement.MintRequest{Mint: mint, Amount: 1})
	assertIssuerError(t, err, KindConfirmationTimeout, ErrConfirmationTimeout)
}

func TestMintMoreInvalid(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.issuer.MintMore(context.Background(), &agreement.MintRequest{Mint: types.NewAccount().PublicKey})
	assertIssuerError(t, err, KindBuild, ErrInvalidRequest)
	assert.ErrorIs(t, err, agreement.ErrInvalidAmount)

	_, err = env.issuer.MintMore(context.Background(), nil)
	assertIssuerError(t, err, KindBuild, ErrInvalidRequest)

	assert.Equal(t, 0, env.ledger.TotalCalls())
}

type countingRecorder struct {
	mu        sync.Mutex
	submitted map[issuancedb.TxKind]int
	finished  map[agreement.TxStatus]int
}

func (r *countingRecorder) TxSubmitted(kind issuancedb.TxKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitted[kind]++
}

func (r *countingRecorder) TxFinished(_ issuancedb.TxKind, status agreement.TxStatus, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished[status]++
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	rec := &countingRecorder{submitted: map[issuancedb.TxKind]int{}, finished: map[agreement.TxStatus]int{}}
	env.issuer.SetRecorder(rec)

	mint, err := env.issuer.Issue(ctx, &agreement.IssuanceRequest{Decimals: 9, InitialSupply: 1})
	require.NoError(t, err)
	env.ledger.FailNextOnChain("boom")
	_, err = env.issuer.MintMore(ctx, &agreement.MintRequest{Mint: mint, Amount: 1})
	require.Error(t, err)

	assert.Equal(t, 1, rec.submitted[issuancedb.TxKindInitMint])
	assert.Equal(t, 1, rec.submitted[issuancedb.TxKindInitialSupply])
	assert.Equal(t, 1, rec.submitted[issuancedb.TxKindMintMore])
	assert.Equal(t, 2, rec.finished[agreement.TxConfirmed])
	assert.Equal(t, 1, rec.finished[agreement.TxFailed])
}
