package memory

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"

	"github.com/code-payments/code-staking/pkg/solana"
	compute_budget "github.com/code-payments/code-staking/pkg/solana/computebudget"
	"github.com/code-payments/code-staking/pkg/solana/memo"
	"github.com/code-payments/code-staking/pkg/solana/system"
	"github.com/code-payments/code-staking/pkg/solana/token"
)

const (
	// DefaultBlockhashMaxAge mirrors the number of slots a blockhash remains
	// usable on mainnet.
	DefaultBlockhashMaxAge = 150

	lamportsPerByteYear = 3480
	exemptionYears      = 2
	accountStorageSize  = 128
)

// ErrInjected is the default error returned by injected failures.
var ErrInjected = errors.New("injected network failure")

var _ solana.Client = (*Client)(nil)

type account struct {
	owner    ed25519.PublicKey
	lamports uint64
	data     []byte

	// remaining reads for which the account is reported missing
	hiddenReads int
}

func (a *account) clone() *account {
	cloned := *a
	cloned.data = append([]byte(nil), a.data...)
	return &cloned
}

type blockhashEntry struct {
	issuedSlot uint64
	expired    bool
}

type signatureEntry struct {
	slot         uint64
	err          *solana.TransactionError
	pendingPolls int
}

type inFlight struct {
	signature solana.Signature
	blockhash solana.Blockhash
}

// Client is a deterministic, in-process Solana network. It implements
// solana.Client by executing the subset of programs used by staking clients
// against an in-memory account store.
type Client struct {
	mu sync.Mutex

	accounts    map[string]*account
	slot        uint64
	blockhash   solana.Blockhash
	blockhashes map[solana.Blockhash]*blockhashEntry
	signatures  map[solana.Signature]*signatureEntry

	stakingPrograms map[string]*stakingProgram

	blockhashMaxAge   uint64
	transactionFee    uint64
	skipPreflight     bool
	confirmationDelay int
	visibilityDelay   int

	expireNextBlockhashes int
	dropNextSubmissions   int
	injected              map[string][]error

	inFlightByPayer map[string]inFlight
	overlaps        int
	calls           map[string]int
	executed        map[string]int
}

// Option configures the in-memory network.
type Option func(*Client)

// WithStakingProgram deploys the staking program at the provided address.
// Every stake or unstake that leaves tokens staked accrues rewardYield
// pending rewards.
func WithStakingProgram(program ed25519.PublicKey, stakingMint, rewardMint ed25519.PublicKey, rewardYield uint64) Option {
	return func(c *Client) {
		c.stakingPrograms[string(program)] = &stakingProgram{
			id:          program,
			stakingMint: stakingMint,
			rewardMint:  rewardMint,
			rewardYield: rewardYield,
		}
	}
}

// WithTransactionFee charges the fee payer the provided lamports per
// signature. Payers are also charged rent for the accounts they create.
func WithTransactionFee(lamportsPerSignature uint64) Option {
	return func(c *Client) {
		c.transactionFee = lamportsPerSignature
	}
}

// WithBlockhashMaxAge sets the number of slots a blockhash remains valid.
// Every status poll advances the slot.
func WithBlockhashMaxAge(slots uint64) Option {
	return func(c *Client) {
		c.blockhashMaxAge = slots
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		accounts:        make(map[string]*account),
		blockhashes:     make(map[solana.Blockhash]*blockhashEntry),
		signatures:      make(map[solana.Signature]*signatureEntry),
		stakingPrograms: make(map[string]*stakingProgram),
		blockhashMaxAge: DefaultBlockhashMaxAge,
		injected:        make(map[string][]error),
		inFlightByPayer: make(map[string]inFlight),
		calls:           make(map[string]int),
		executed:        make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.rotateBlockhash()
	return c
}

//
// Test hooks
//

// CreateMint registers a token mint.
func (c *Client) CreateMint(mint ed25519.PublicKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.accounts[string(mint)] = &account{
		owner:    token.ProgramKey,
		lamports: rentExemption(mintAccountSize),
		data:     make([]byte, mintAccountSize),
	}
}

// CreateTokenAccount creates, or overwrites, the associated token account
// of owner for mint with the provided balance.
func (c *Client) CreateTokenAccount(owner, mint ed25519.PublicKey, amount uint64) (ed25519.PublicKey, error) {
	address, err := token.GetAssociatedAccount(owner, mint)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.accounts[string(address)] = newTokenAccount(owner, mint, amount)
	return address, nil
}

// FundLamports credits the account with lamports, creating it if needed.
func (c *Client) FundLamports(address ed25519.PublicKey, lamports uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.creditLamports(address, lamports)
}

// ExpireBlockhashes causes the next n freshness tokens handed out to already
// be expired.
func (c *Client) ExpireBlockhashes(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.expireNextBlockhashes = n
}

// DropSubmissions causes the next n submissions to be accepted by the RPC
// node but never land.
func (c *Client) DropSubmissions(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dropNextSubmissions = n
}

// InjectErrors causes the next len(errs) calls to method to fail with the
// provided errors, in order. Method names match the solana.Client methods.
func (c *Client) InjectErrors(method string, errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.injected[method] = append(c.injected[method], errs...)
}

// FailNext causes the next n calls to method to fail with ErrInjected.
func (c *Client) FailNext(method string, n int) {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = ErrInjected
	}
	c.InjectErrors(method, errs...)
}

// SetConfirmationDelay hides processed transactions from status queries for
// the provided number of polls.
func (c *Client) SetConfirmationDelay(polls int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.confirmationDelay = polls
}

// SetAccountVisibilityDelay hides newly created accounts from reads for the
// provided number of queries, emulating lagging RPC nodes.
func (c *Client) SetAccountVisibilityDelay(reads int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.visibilityDelay = reads
}

// SetSkipPreflight controls whether failing transactions are rejected at
// submission time (false) or land on chain with an error status (true).
func (c *Client) SetSkipPreflight(skip bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.skipPreflight = skip
}

// CallCount returns the number of times a solana.Client method was invoked.
func (c *Client) CallCount(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.calls[method]
}

// ExecutedInstructions returns the number of successfully executed
// instructions that targeted program.
func (c *Client) ExecutedInstructions(program ed25519.PublicKey) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.executed[string(program)]
}

// Overlaps returns the number of submissions made by a fee payer while one
// of its earlier transactions was still in flight.
func (c *Client) Overlaps() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.overlaps
}

// TokenBalance returns the balance of a token account, bypassing visibility
// delays and failure injection.
func (c *Client) TokenBalance(address ed25519.PublicKey) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := getTokenAccount(accountMap(c.accounts), address)
	if !ok {
		return 0, false
	}
	return state.Amount, true
}

//
// solana.Client
//

func (c *Client) GetAccountInfo(address ed25519.PublicKey, _ solana.Commitment) (solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter("GetAccountInfo"); err != nil {
		return solana.AccountInfo{}, err
	}

	a, ok := c.readAccount(address)
	if !ok {
		return solana.AccountInfo{}, solana.ErrNoAccountInfo
	}

	return solana.AccountInfo{
		Data:     append([]byte(nil), a.data...),
		Owner:    a.owner,
		Lamports: a.lamports,
	}, nil
}

func (c *Client) GetBalance(address ed25519.PublicKey) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter("GetBalance"); err != nil {
		return 0, err
	}

	a, ok := c.readAccount(address)
	if !ok {
		return 0, nil
	}
	return a.lamports, nil
}

func (c *Client) GetMinimumBalanceForRentExemption(size uint64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter("GetMinimumBalanceForRentExemption"); err != nil {
		return 0, err
	}
	return rentExemption(size), nil
}

func (c *Client) GetLatestBlockhash() (solana.Blockhash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter("GetLatestBlockhash"); err != nil {
		return solana.Blockhash{}, err
	}

	if c.expireNextBlockhashes > 0 {
		c.expireNextBlockhashes--
		c.rotateBlockhash()
		c.blockhashes[c.blockhash].expired = true
		expired := c.blockhash
		c.rotateBlockhash()
		return expired, nil
	}

	// A new blockhash is produced every slot
	if !c.isBlockhashValid(c.blockhash) || c.blockhashes[c.blockhash].issuedSlot < c.slot {
		c.rotateBlockhash()
	}
	return c.blockhash, nil
}

func (c *Client) IsBlockhashValid(bh solana.Blockhash, _ solana.Commitment) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter("IsBlockhashValid"); err != nil {
		return false, err
	}

	valid := c.isBlockhashValid(bh)
	if !valid {
		// Transactions signed over an expired blockhash can never land
		for payer, pending := range c.inFlightByPayer {
			if pending.blockhash == bh {
				delete(c.inFlightByPayer, payer)
			}
		}
	}
	return valid, nil
}

func (c *Client) GetSignatureStatus(sig solana.Signature, commitment solana.Commitment) (*solana.SignatureStatus, error) {
	return solana.PollSignatureStatus(c, sig, commitment)
}

func (c *Client) GetSignatureStatuses(sigs []solana.Signature) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter("GetSignatureStatuses"); err != nil {
		return nil, err
	}

	// Time passes between polls
	c.slot++

	statuses := make([]*solana.SignatureStatus, len(sigs))
	for i, sig := range sigs {
		entry, ok := c.signatures[sig]
		if !ok {
			continue
		}
		if entry.pendingPolls > 0 {
			entry.pendingPolls--
			continue
		}

		statuses[i] = &solana.SignatureStatus{
			Slot:               entry.slot,
			ErrorResult:        entry.err,
			ConfirmationStatus: "finalized",
		}

		for payer, pending := range c.inFlightByPayer {
			if pending.signature == sig {
				delete(c.inFlightByPayer, payer)
			}
		}
	}
	return statuses, nil
}

func (c *Client) GetSlot(_ solana.Commitment) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter("GetSlot"); err != nil {
		return 0, err
	}
	return c.slot, nil
}

func (c *Client) GetTokenAccountBalance(address ed25519.PublicKey, _ solana.Commitment) (uint64, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter("GetTokenAccountBalance"); err != nil {
		return 0, 0, err
	}

	if _, ok := c.readAccount(address); !ok {
		return 0, 0, solana.ErrNoBalance
	}

	state, ok := getTokenAccount(accountMap(c.accounts), address)
	if !ok {
		return 0, 0, solana.ErrNoBalance
	}
	return state.Amount, c.slot, nil
}

func (c *Client) RequestAirdrop(address ed25519.PublicKey, lamports uint64, _ solana.Commitment) (solana.Signature, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter("RequestAirdrop"); err != nil {
		return solana.Signature{}, err
	}

	c.creditLamports(address, lamports)

	var sig solana.Signature
	if _, err := rand.Read(sig[:]); err != nil {
		return solana.Signature{}, errors.Wrap(err, "failed to generate signature")
	}
	c.slot++
	c.signatures[sig] = &signatureEntry{slot: c.slot}
	return sig, nil
}

func (c *Client) SubmitTransaction(txn solana.Transaction, _ solana.Commitment) (solana.Signature, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter("SubmitTransaction"); err != nil {
		return solana.Signature{}, err
	}

	if len(txn.Signatures) == 0 || len(txn.Message.Accounts) == 0 {
		return solana.Signature{}, solana.NewTransactionError(solana.TransactionErrorSanitizeFailure)
	}
	sig := txn.Signatures[0]

	// Duplicate submissions are deduplicated by signature
	if _, ok := c.signatures[sig]; ok {
		return sig, nil
	}

	payer := string(txn.Message.Accounts[0])
	if pending, ok := c.inFlightByPayer[payer]; ok && pending.signature != sig {
		c.overlaps++
	}

	if c.dropNextSubmissions > 0 {
		c.dropNextSubmissions--
		c.inFlightByPayer[payer] = inFlight{signature: sig, blockhash: txn.Message.RecentBlockhash}
		return sig, nil
	}

	if err := c.verifySignatures(txn); err != nil {
		return sig, err
	}

	if !c.isBlockhashValid(txn.Message.RecentBlockhash) {
		if c.skipPreflight {
			c.inFlightByPayer[payer] = inFlight{signature: sig, blockhash: txn.Message.RecentBlockhash}
			return sig, nil
		}
		return sig, solana.NewTransactionError(solana.TransactionErrorBlockhashNotFound)
	}

	txErr := c.process(txn)
	if txErr != nil && !c.skipPreflight {
		return sig, txErr
	}

	c.slot++
	c.signatures[sig] = &signatureEntry{
		slot:         c.slot,
		err:          txErr,
		pendingPolls: c.confirmationDelay,
	}
	c.inFlightByPayer[payer] = inFlight{signature: sig, blockhash: txn.Message.RecentBlockhash}

	return sig, nil
}

//
// Internals
//

func (c *Client) enter(method string) error {
	c.calls[method]++

	queued := c.injected[method]
	if len(queued) == 0 {
		return nil
	}

	err := queued[0]
	c.injected[method] = queued[1:]
	return err
}

func (c *Client) readAccount(address ed25519.PublicKey) (*account, bool) {
	a, ok := c.accounts[string(address)]
	if !ok {
		return nil, false
	}
	if a.hiddenReads > 0 {
		a.hiddenReads--
		return nil, false
	}
	return a, true
}

func (c *Client) rotateBlockhash() {
	var seed [8 + 8]byte
	binary.LittleEndian.PutUint64(seed[:], c.slot)
	binary.LittleEndian.PutUint64(seed[8:], uint64(len(c.blockhashes)))

	c.blockhash = sha256.Sum256(seed[:])
	c.blockhashes[c.blockhash] = &blockhashEntry{issuedSlot: c.slot}
}

func (c *Client) isBlockhashValid(bh solana.Blockhash) bool {
	entry, ok := c.blockhashes[bh]
	if !ok || entry.expired {
		return false
	}
	return c.slot-entry.issuedSlot <= c.blockhashMaxAge
}

func (c *Client) creditLamports(address ed25519.PublicKey, lamports uint64) {
	a, ok := c.accounts[string(address)]
	if !ok {
		a = &account{owner: system.ProgramKey[:]}
		c.accounts[string(address)] = a
	}
	a.lamports += lamports
}

func (c *Client) verifySignatures(txn solana.Transaction) error {
	if len(txn.Signatures) != int(txn.Message.Header.NumSignatures) {
		return solana.NewTransactionError(solana.TransactionErrorSanitizeFailure)
	}

	message := txn.Message.Marshal()
	for i, pub := range txn.RequiredSigners() {
		if !ed25519.Verify(pub, message, txn.Signatures[i][:]) {
			return solana.NewTransactionError(solana.TransactionErrorSignatureFailure)
		}
	}
	return nil
}

// process executes every instruction atomically against a working copy of
// the touched accounts.
func (c *Client) process(txn solana.Transaction) *solana.TransactionError {
	working := &workingSet{base: c.accounts, modified: make(map[string]*account)}

	if c.transactionFee > 0 {
		fee := c.transactionFee * uint64(txn.Message.Header.NumSignatures)
		payer, ok := working.get(txn.Message.Accounts[0])
		if !ok || payer.lamports < fee {
			return solana.NewTransactionError(solana.TransactionErrorInsufficientFundsForFee)
		}
		payer = working.modify(txn.Message.Accounts[0])
		payer.lamports -= fee
	}

	executed := make(map[string]int)
	for index, ixn := range txn.Message.Instructions {
		program := txn.Message.Accounts[ixn.ProgramIndex]

		var err error
		switch {
		case bytes.Equal(program, system.ProgramKey[:]):
			err = c.executeSystem(working, txn.Message, index)
		case bytes.Equal(program, token.AssociatedTokenAccountProgramKey):
			err = c.executeAssociatedTokenAccount(working, txn.Message, index)
		case bytes.Equal(program, token.ProgramKey):
			err = c.executeToken(working, txn.Message, index)
		case bytes.Equal(program, compute_budget.ProgramKey):
			err = executeComputeBudget(ixn.Data)
		case bytes.Equal(program, memo.ProgramKey):
		default:
			sp, ok := c.stakingPrograms[string(program)]
			if !ok {
				return solana.NewTransactionError(solana.TransactionErrorProgramAccountNotFound)
			}
			err = sp.execute(c, working, txn.Message, index)
		}

		if err != nil {
			return instructionFailure(index, err)
		}
		executed[string(program)]++
	}

	for key, a := range working.modified {
		c.accounts[key] = a
	}
	for program, count := range executed {
		c.executed[program] += count
	}
	return nil
}

func (c *Client) executeSystem(working *workingSet, m solana.Message, index int) error {
	transfer, err := system.DecompileTransfer(m, index)
	if err != nil {
		return invalidInstructionData
	}
	if !isSigner(m, transfer.From) {
		return missingRequiredSignature
	}

	from, ok := working.get(transfer.From)
	if !ok || from.lamports < transfer.Lamports {
		return solana.CustomError(1) // SystemError::ResultWithNegativeLamports
	}

	working.modify(transfer.From).lamports -= transfer.Lamports
	to := working.getOrCreate(transfer.To, system.ProgramKey[:])
	to.lamports += transfer.Lamports
	return nil
}

func (c *Client) executeAssociatedTokenAccount(working *workingSet, m solana.Message, index int) error {
	create, err := token.DecompileCreateAssociatedAccount(m, index)
	if err != nil {
		return invalidInstructionData
	}
	if !isSigner(m, create.Payer) {
		return missingRequiredSignature
	}

	expected, err := token.GetAssociatedAccount(create.Owner, create.Mint)
	if err != nil || !bytes.Equal(expected, create.Address) {
		return invalidSeeds
	}

	mint, ok := working.get(create.Mint)
	if !ok || !bytes.Equal(mint.owner, token.ProgramKey) {
		return incorrectProgramID
	}

	if existing, ok := working.get(create.Address); ok {
		if !create.Idempotent {
			return solana.CustomError(0) // SystemError::AccountAlreadyInUse
		}

		var state token.Account
		if !bytes.Equal(existing.owner, token.ProgramKey) || !state.Unmarshal(existing.data) {
			return illegalOwner
		}
		if !bytes.Equal(state.Owner, create.Owner) || !bytes.Equal(state.Mint, create.Mint) {
			return invalidAccountData
		}
		return nil
	}

	if c.transactionFee > 0 {
		rent := rentExemption(token.AccountSize)
		payer, ok := working.get(create.Payer)
		if !ok || payer.lamports < rent {
			return solana.CustomError(1) // SystemError::ResultWithNegativeLamports
		}
		working.modify(create.Payer).lamports -= rent
	}

	created := newTokenAccount(create.Owner, create.Mint, 0)
	created.hiddenReads = c.visibilityDelay
	working.put(create.Address, created)
	return nil
}

func (c *Client) executeToken(working *workingSet, m solana.Message, index int) error {
	transfer, err := token.DecompileTransfer(m, index)
	if err != nil {
		return invalidInstructionData
	}
	if !isSigner(m, transfer.Owner) {
		return missingRequiredSignature
	}

	source, ok := getTokenAccount(working, transfer.Source)
	if !ok {
		return invalidAccountData
	}
	dest, ok := getTokenAccount(working, transfer.Destination)
	if !ok {
		return invalidAccountData
	}
	if !bytes.Equal(source.Owner, transfer.Owner) {
		return token.ErrorOwnerMismatch
	}
	if !bytes.Equal(source.Mint, dest.Mint) {
		return token.ErrorMintMismatch
	}
	if source.Amount < transfer.Amount {
		return token.ErrorInsufficientFunds
	}

	moveTokens(working, transfer.Source, source, transfer.Destination, dest, transfer.Amount)
	return nil
}

func executeComputeBudget(data []byte) error {
	if _, err := compute_budget.ParseSetComputeUnitPriceIxnData(data); err == nil {
		return nil
	}
	if _, err := compute_budget.ParseSetComputeUnitLimitIxnData(data); err == nil {
		return nil
	}
	return invalidInstructionData
}

// getTokenAccount returns the initialized token account state at address.
func getTokenAccount(reader accountReader, address ed25519.PublicKey) (*token.Account, bool) {
	a, ok := reader.get(address)
	if !ok || !bytes.Equal(a.owner, token.ProgramKey) {
		return nil, false
	}

	var state token.Account
	if !state.Unmarshal(a.data) || state.State == token.AccountStateUninitialized {
		return nil, false
	}
	return &state, true
}

func moveTokens(working *workingSet, sourceAddress ed25519.PublicKey, source *token.Account, destAddress ed25519.PublicKey, dest *token.Account, amount uint64) {
	if bytes.Equal(sourceAddress, destAddress) {
		return
	}

	source.Amount -= amount
	dest.Amount += amount
	working.modify(sourceAddress).data = source.Marshal()
	working.modify(destAddress).data = dest.Marshal()
}

func newTokenAccount(owner, mint ed25519.PublicKey, amount uint64) *account {
	state := token.Account{
		Mint:   mint,
		Owner:  owner,
		Amount: amount,
		State:  token.AccountStateInitialized,
	}
	return &account{
		owner:    token.ProgramKey,
		lamports: rentExemption(token.AccountSize),
		data:     state.Marshal(),
	}
}

func isSigner(m solana.Message, address ed25519.PublicKey) bool {
	for i := 0; i < int(m.Header.NumSignatures) && i < len(m.Accounts); i++ {
		if bytes.Equal(m.Accounts[i], address) {
			return true
		}
	}
	return false
}

func rentExemption(size uint64) uint64 {
	return (accountStorageSize + size) * lamportsPerByteYear * exemptionYears
}
