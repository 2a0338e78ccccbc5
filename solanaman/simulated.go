package solanaman

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/TEENet-io/splminter-go/agreement"
	"github.com/TEENet-io/splminter-go/common"
	solcommon "github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/program/token"
	"github.com/blocto/solana-go-sdk/types"
	"github.com/mr-tron/base58"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ed25519"
)

const (
	SimLamportsPerSignature = 5000
	SimTokenAccountSize     = 165

	// lamports per byte-year times the two year exemption threshold
	simRentPerByte       = 3480 * 2
	simAccountOverhead   = 128
	simDefaultAirdropSOL = 10
	lamportsPerSOL       = 1_000_000_000
)

// Errors the simulated node reports when a transaction fails preflight.
var (
	ErrSimBlockhashNotFound     = errors.New("blockhash not found")
	ErrSimSignatureVerification = errors.New("transaction signature verification failure")
	ErrSimAlreadyProcessed      = errors.New("this transaction has already been processed")
	ErrSimInsufficientFee       = errors.New("attempt to debit an account but found no record of a prior credit")
	ErrSimInstruction           = errors.New("transaction simulation failed")
	ErrSimAccountNotFound       = errors.New("could not find account")
)

// SimMintState is the decoded state of a mint account.
type SimMintState struct {
	Initialized     bool
	Decimals        uint8
	MintAuthority   solcommon.PublicKey
	FreezeAuthority *solcommon.PublicKey
	Supply          uint64
}

// SimTokenAccountState is the decoded state of a token account.
type SimTokenAccountState struct {
	Mint   solcommon.PublicKey
	Owner  solcommon.PublicKey
	Amount uint64
}

type simAccount struct {
	lamports uint64
	owner    solcommon.PublicKey
	space    uint64
	mint     *SimMintState
	token    *SimTokenAccountState
}

func (a *simAccount) clone() *simAccount {
	c := *a
	if a.mint != nil {
		m := *a.mint
		c.mint = &m
	}
	if a.token != nil {
		t := *a.token
		c.token = &t
	}
	return &c
}

type simTx struct {
	slot      uint64
	err       string
	pollsLeft int
}

// SimLedger is an in-process ledger that executes the system, token and
// associated token account instructions the issuer builds. It verifies
// signatures, charges fees and rent, and lets tests steer confirmation.
type SimLedger struct {
	mu sync.Mutex

	accounts    map[solcommon.PublicKey]*simAccount
	blockhashes map[string]bool
	latest      string
	slot        uint64
	txs         map[string]*simTx
	landed      []types.Transaction
	calls       map[string]int

	confirmAfterPolls int
	neverConfirm      bool
	failNext          string
	rejectNext        error
	dropNext          bool
}

var _ agreement.NetworkClient = (*SimLedger)(nil)

func NewSimLedger() *SimLedger {
	l := &SimLedger{
		accounts:    make(map[solcommon.PublicKey]*simAccount),
		blockhashes: make(map[string]bool),
		txs:         make(map[string]*simTx),
		calls:       make(map[string]int),
	}
	l.rotateBlockhash()
	return l
}

func (l *SimLedger) rotateBlockhash() {
	l.latest = base58.Encode(common.RandBytes(32))
	l.blockhashes[l.latest] = true
}

// SimRentExemption mirrors the rent schedule of a default cluster.
func SimRentExemption(size uint64) uint64 {
	return (size + simAccountOverhead) * simRentPerByte
}

// Airdrop credits lamports to a system account, creating it if needed.
func (l *SimLedger) Airdrop(to solcommon.PublicKey, lamports uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[to]
	if !ok {
		acc = &simAccount{owner: solcommon.SystemProgramID}
		l.accounts[to] = acc
	}
	acc.lamports += lamports
}

// SetConfirmAfterPolls makes every later tx report pending for n polls.
func (l *SimLedger) SetConfirmAfterPolls(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.confirmAfterPolls = n
}

// SetNeverConfirm keeps landed txs pending forever.
func (l *SimLedger) SetNeverConfirm(never bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.neverConfirm = never
}

// FailNextOnChain lets the next tx pass preflight, then land with errMsg
// and no state change other than the fee.
func (l *SimLedger) FailNextOnChain(errMsg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext = errMsg
}

// DropNextSend makes the next tx pass preflight and return its signature,
// but it never lands, like a tx lost on its way to the leader.
func (l *SimLedger) DropNextSend() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropNext = true
}

// ExpireBlockhashes invalidates every blockhash handed out so far and
// starts a fresh one.
func (l *SimLedger) ExpireBlockhashes() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.blockhashes = make(map[string]bool)
	l.rotateBlockhash()
}

// RejectNextSend makes the next SendTransaction return err.
func (l *SimLedger) RejectNextSend(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rejectNext = err
}

// Calls returns how many times method was invoked.
func (l *SimLedger) Calls(method string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[method]
}

func (l *SimLedger) TotalCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.calls {
		n += c
	}
	return n
}

// Transactions returns the landed transactions in order.
func (l *SimLedger) Transactions() []types.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.Transaction, len(l.landed))
	copy(out, l.landed)
	return out
}

func (l *SimLedger) Lamports(address solcommon.PublicKey) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if acc, ok := l.accounts[address]; ok {
		return acc.lamports
	}
	return 0
}

func (l *SimLedger) MintState(mint solcommon.PublicKey) (SimMintState, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[mint]
	if !ok || acc.mint == nil {
		return SimMintState{}, false
	}
	return *acc.mint, true
}

func (l *SimLedger) TokenAccountState(address solcommon.PublicKey) (SimTokenAccountState, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[address]
	if !ok || acc.token == nil {
		return SimTokenAccountState{}, false
	}
	return *acc.token, true
}

func (l *SimLedger) enter(ctx context.Context, method string) error {
	l.calls[method]++
	return ctx.Err()
}

func (l *SimLedger) GetLatestBlockhash(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter(ctx, "getLatestBlockhash"); err != nil {
		return "", err
	}
	return l.latest, nil
}

func (l *SimLedger) GetMinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter(ctx, "getMinimumBalanceForRentExemption"); err != nil {
		return 0, err
	}
	return SimRentExemption(size), nil
}

func (l *SimLedger) IsBlockhashValid(ctx context.Context, blockhash string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter(ctx, "isBlockhashValid"); err != nil {
		return false, err
	}
	return l.blockhashes[blockhash], nil
}

func (l *SimLedger) SendTransaction(ctx context.Context, tx types.Transaction) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter(ctx, "sendTransaction"); err != nil {
		return "", err
	}

	if l.rejectNext != nil {
		err := l.rejectNext
		l.rejectNext = nil
		return "", err
	}

	msg := tx.Message
	if !l.blockhashes[msg.RecentBlockHash] {
		return "", ErrSimBlockhashNotFound
	}

	data, err := msg.Serialize()
	if err != nil {
		return "", err
	}
	numSigners := int(msg.Header.NumRequireSignatures)
	if numSigners == 0 || len(tx.Signatures) != numSigners || len(msg.Accounts) < numSigners {
		return "", ErrSimSignatureVerification
	}
	for i := 0; i < numSigners; i++ {
		if !ed25519.Verify(ed25519.PublicKey(msg.Accounts[i].Bytes()), data, tx.Signatures[i]) {
			return "", fmt.Errorf("%w: missing or invalid signature for %s", ErrSimSignatureVerification, msg.Accounts[i].ToBase58())
		}
	}

	sig := base58.Encode(tx.Signatures[0])
	if _, ok := l.txs[sig]; ok {
		return "", ErrSimAlreadyProcessed
	}

	fee := uint64(SimLamportsPerSignature * numSigners)
	payer, ok := l.accounts[msg.Accounts[0]]
	if !ok || payer.lamports < fee {
		return "", ErrSimInsufficientFee
	}

	// run against a scratch copy so a failing instruction leaves nothing behind
	work := make(map[solcommon.PublicKey]*simAccount, len(l.accounts))
	for k, v := range l.accounts {
		work[k] = v.clone()
	}
	work[msg.Accounts[0]].lamports -= fee

	for i, ins := range msg.Instructions {
		if err := execInstruction(work, &msg, ins); err != nil {
			return "", fmt.Errorf("%w: error processing instruction %d: %v", ErrSimInstruction, i, err)
		}
	}

	if l.dropNext {
		l.dropNext = false
		return sig, nil
	}

	l.slot++
	rec := &simTx{slot: l.slot, pollsLeft: l.confirmAfterPolls}
	if l.failNext != "" {
		rec.err = l.failNext
		l.failNext = ""
		payer.lamports -= fee
	} else {
		l.accounts = work
	}
	l.txs[sig] = rec
	l.landed = append(l.landed, tx)
	l.rotateBlockhash()

	logger.WithFields(logger.Fields{
		"sig":  common.Shorten(sig, 8),
		"slot": rec.slot,
		"ixs":  len(msg.Instructions),
	}).Debug("sim ledger accepted tx")

	return sig, nil
}

func (l *SimLedger) GetSignatureStatus(ctx context.Context, sig string, _ agreement.Commitment) (*agreement.SignatureStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter(ctx, "getSignatureStatuses"); err != nil {
		return nil, err
	}

	rec, ok := l.txs[sig]
	if !ok {
		return &agreement.SignatureStatus{Status: agreement.TxLimbo}, nil
	}
	if l.neverConfirm {
		return &agreement.SignatureStatus{Status: agreement.TxPending, Slot: rec.slot}, nil
	}
	if rec.pollsLeft > 0 {
		rec.pollsLeft--
		return &agreement.SignatureStatus{Status: agreement.TxPending, Slot: rec.slot}, nil
	}
	if rec.err != "" {
		return &agreement.SignatureStatus{Status: agreement.TxFailed, Slot: rec.slot, Err: rec.err}, nil
	}
	return &agreement.SignatureStatus{Status: agreement.TxConfirmed, Slot: rec.slot}, nil
}

func (l *SimLedger) AccountExists(ctx context.Context, address solcommon.PublicKey) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter(ctx, "getAccountInfo"); err != nil {
		return false, err
	}
	_, ok := l.accounts[address]
	return ok, nil
}

func (l *SimLedger) GetTokenBalance(ctx context.Context, tokenAccount solcommon.PublicKey) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter(ctx, "getTokenAccountBalance"); err != nil {
		return 0, err
	}
	acc, ok := l.accounts[tokenAccount]
	if !ok || acc.token == nil {
		return 0, fmt.Errorf("%w: %s", ErrSimAccountNotFound, tokenAccount.ToBase58())
	}
	return acc.token.Amount, nil
}

// Instruction processing. Only what the issuer emits is supported.

type ixContext struct {
	accounts map[solcommon.PublicKey]*simAccount
	msg      *types.Message
	ix       types.CompiledInstruction
}

func (c *ixContext) key(i int) (solcommon.PublicKey, error) {
	if i >= len(c.ix.Accounts) {
		return solcommon.PublicKey{}, errors.New("not enough account keys")
	}
	idx := c.ix.Accounts[i]
	if idx < 0 || idx >= len(c.msg.Accounts) {
		return solcommon.PublicKey{}, errors.New("account index out of range")
	}
	return c.msg.Accounts[idx], nil
}

func (c *ixContext) isSigner(i int) bool {
	return i < len(c.ix.Accounts) && c.ix.Accounts[i] < int(c.msg.Header.NumRequireSignatures)
}

func execInstruction(accounts map[solcommon.PublicKey]*simAccount, msg *types.Message, ix types.CompiledInstruction) error {
	if ix.ProgramIDIndex < 0 || ix.ProgramIDIndex >= len(msg.Accounts) {
		return errors.New("program id index out of range")
	}
	c := &ixContext{accounts: accounts, msg: msg, ix: ix}

	switch program := msg.Accounts[ix.ProgramIDIndex]; program {
	case solcommon.SystemProgramID:
		return execSystem(c)
	case solcommon.TokenProgramID:
		return execToken(c)
	case solcommon.SPLAssociatedTokenAccountProgramID:
		return execAssociatedTokenAccount(c)
	default:
		return fmt.Errorf("unsupported program %s", program.ToBase58())
	}
}

func execSystem(c *ixContext) error {
	data := c.ix.Data
	if len(data) < 4 {
		return errors.New("invalid instruction data")
	}
	if binary.LittleEndian.Uint32(data[:4]) != 0 {
		return errors.New("unsupported system instruction")
	}
	if len(data) < 52 {
		return errors.New("invalid instruction data")
	}
	lamports := binary.LittleEndian.Uint64(data[4:12])
	space := binary.LittleEndian.Uint64(data[12:20])
	owner := solcommon.PublicKeyFromBytes(data[20:52])

	from, err := c.key(0)
	if err != nil {
		return err
	}
	newKey, err := c.key(1)
	if err != nil {
		return err
	}
	if !c.isSigner(0) || !c.isSigner(1) {
		return errors.New("missing required signature for instruction")
	}
	if _, exists := c.accounts[newKey]; exists {
		return fmt.Errorf("create account: account %s already in use", newKey.ToBase58())
	}
	payer, ok := c.accounts[from]
	if !ok || payer.lamports < lamports {
		return fmt.Errorf("transfer: insufficient lamports, need %d", lamports)
	}

	payer.lamports -= lamports
	c.accounts[newKey] = &simAccount{lamports: lamports, owner: owner, space: space}
	return nil
}

func execToken(c *ixContext) error {
	data := c.ix.Data
	if len(data) == 0 {
		return errors.New("invalid instruction data")
	}
	switch data[0] {
	case 0, 20: // InitializeMint, InitializeMint2
		return execInitializeMint(c)
	case 7, 14: // MintTo, MintToChecked
		return execMintTo(c)
	default:
		return fmt.Errorf("unsupported token instruction %d", data[0])
	}
}

func execInitializeMint(c *ixContext) error {
	data := c.ix.Data
	if len(data) < 34 {
		return errors.New("invalid instruction data")
	}
	mintKey, err := c.key(0)
	if err != nil {
		return err
	}
	acc, ok := c.accounts[mintKey]
	if !ok || acc.owner != solcommon.TokenProgramID {
		return errors.New("incorrect program id for instruction")
	}
	if acc.space != token.MintAccountSize {
		return errors.New("invalid account data for instruction")
	}
	if acc.mint != nil && acc.mint.Initialized {
		return errors.New("account already in use")
	}
	if acc.lamports < SimRentExemption(acc.space) {
		return errors.New("lamport balance below rent-exempt threshold")
	}

	state := &SimMintState{
		Initialized:   true,
		Decimals:      data[1],
		MintAuthority: solcommon.PublicKeyFromBytes(data[2:34]),
	}
	if len(data) >= 67 && data[34] == 1 {
		freeze := solcommon.PublicKeyFromBytes(data[35:67])
		state.FreezeAuthority = &freeze
	}
	acc.mint = state
	return nil
}

func execMintTo(c *ixContext) error {
	data := c.ix.Data
	if len(data) < 9 {
		return errors.New("invalid instruction data")
	}
	amount := binary.LittleEndian.Uint64(data[1:9])

	mintKey, err := c.key(0)
	if err != nil {
		return err
	}
	destKey, err := c.key(1)
	if err != nil {
		return err
	}
	authKey, err := c.key(2)
	if err != nil {
		return err
	}

	mintAcc, ok := c.accounts[mintKey]
	if !ok || mintAcc.mint == nil || !mintAcc.mint.Initialized {
		return errors.New("invalid mint")
	}
	if data[0] == 14 && (len(data) < 10 || data[9] != mintAcc.mint.Decimals) {
		return errors.New("mint decimals mismatch")
	}
	dest, ok := c.accounts[destKey]
	if !ok || dest.token == nil {
		return errors.New("uninitialized account")
	}
	if dest.token.Mint != mintKey {
		return errors.New("account not associated with this mint")
	}
	if authKey != mintAcc.mint.MintAuthority || !c.isSigner(2) {
		return errors.New("owner does not match")
	}
	if amount > math.MaxUint64-mintAcc.mint.Supply {
		return errors.New("operation overflowed")
	}

	mintAcc.mint.Supply += amount
	dest.token.Amount += amount
	return nil
}

func execAssociatedTokenAccount(c *ixContext) error {
	idempotent := len(c.ix.Data) > 0 && c.ix.Data[0] == 1
	if len(c.ix.Data) > 0 && c.ix.Data[0] > 1 {
		return fmt.Errorf("unsupported associated token account instruction %d", c.ix.Data[0])
	}

	keys := make([]solcommon.PublicKey, 4)
	for i := range keys {
		k, err := c.key(i)
		if err != nil {
			return err
		}
		keys[i] = k
	}
	funder, ataKey, owner, mintKey := keys[0], keys[1], keys[2], keys[3]

	if !c.isSigner(0) {
		return errors.New("missing required signature for instruction")
	}
	derived, _, err := solcommon.FindAssociatedTokenAddress(owner, mintKey)
	if err != nil || derived != ataKey {
		return errors.New("provided seeds do not result in a valid address")
	}
	mintAcc, ok := c.accounts[mintKey]
	if !ok || mintAcc.mint == nil || !mintAcc.mint.Initialized {
		return errors.New("invalid mint")
	}

	if existing, ok := c.accounts[ataKey]; ok {
		if idempotent && existing.token != nil && existing.token.Mint == mintKey && existing.token.Owner == owner {
			return nil
		}
		return errors.New("account already in use")
	}

	rent := SimRentExemption(SimTokenAccountSize)
	payer, ok := c.accounts[funder]
	if !ok || payer.lamports < rent {
		return fmt.Errorf("transfer: insufficient lamports, need %d", rent)
	}
	payer.lamports -= rent
	c.accounts[ataKey] = &simAccount{
		lamports: rent,
		owner:    solcommon.TokenProgramID,
		space:    SimTokenAccountSize,
		token:    &SimTokenAccountState{Mint: mintKey, Owner: owner},
	}
	return nil
}

// SimWallet is a browser-style wallet on top of the simulator: it can be
// disconnected and it can refuse to sign.
type SimWallet struct {
	mu sync.Mutex

	account    types.Account
	net        agreement.NetworkClient
	connected  bool
	rejectNext bool
	requests   int
}

var _ agreement.WalletSigner = (*SimWallet)(nil)

// NewSimWallet creates a connected wallet with a fresh key, funded with
// 10 SOL on ledger.
func NewSimWallet(ledger *SimLedger) *SimWallet {
	acc := types.NewAccount()
	ledger.Airdrop(acc.PublicKey, simDefaultAirdropSOL*lamportsPerSOL)
	return &SimWallet{account: acc, net: ledger, connected: true}
}

func (w *SimWallet) Account() types.Account {
	return w.account
}

func (w *SimWallet) Connect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected = true
}

func (w *SimWallet) Disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected = false
}

// RejectNext makes the wallet refuse the next signature request.
func (w *SimWallet) RejectNext() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rejectNext = true
}

// Requests counts signature requests that reached the wallet.
func (w *SimWallet) Requests() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.requests
}

func (w *SimWallet) PublicKey(_ context.Context) (solcommon.PublicKey, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.connected {
		return solcommon.PublicKey{}, agreement.ErrWalletNotConnected
	}
	return w.account.PublicKey, nil
}

func (w *SimWallet) SignAndSend(ctx context.Context, tx *types.Transaction) (string, error) {
	return signAndRelay(ctx, tx, w.signMessage, w.net)
}

func (w *SimWallet) signMessage(_ context.Context, message []byte) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.connected {
		return nil, agreement.ErrWalletNotConnected
	}
	w.requests++
	if w.rejectNext {
		w.rejectNext = false
		return nil, agreement.ErrWalletRejected
	}
	return w.account.Sign(message), nil
}
