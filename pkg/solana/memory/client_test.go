package memory

import (
	"crypto/ed25519"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-staking/pkg/solana"
	compute_budget "github.com/code-payments/code-staking/pkg/solana/computebudget"
	"github.com/code-payments/code-staking/pkg/solana/memo"
	"github.com/code-payments/code-staking/pkg/solana/staking"
	"github.com/code-payments/code-staking/pkg/solana/system"
	"github.com/code-payments/code-staking/pkg/solana/token"
)

type testEnv struct {
	client      *Client
	program     ed25519.PublicKey
	stakingMint ed25519.PublicKey
	rewardMint  ed25519.PublicKey
}

func setup(t *testing.T, opts ...Option) *testEnv {
	env := &testEnv{
		program:     generateKey(t).Public().(ed25519.PublicKey),
		stakingMint: generateKey(t).Public().(ed25519.PublicKey),
		rewardMint:  generateKey(t).Public().(ed25519.PublicKey),
	}

	opts = append([]Option{WithStakingProgram(env.program, env.stakingMint, env.rewardMint, 7)}, opts...)
	env.client = NewClient(opts...)
	env.client.CreateMint(env.stakingMint)
	env.client.CreateMint(env.rewardMint)
	return env
}

func (e *testEnv) submit(t *testing.T, signer ed25519.PrivateKey, instructions ...solana.Instruction) (solana.Signature, error) {
	bh, err := e.client.GetLatestBlockhash()
	require.NoError(t, err)

	txn := solana.NewTransaction(signer.Public().(ed25519.PublicKey), instructions...)
	txn.SetBlockhash(bh)
	require.NoError(t, txn.Sign(signer))

	return e.client.SubmitTransaction(txn, solana.CommitmentConfirmed)
}

func TestClient_AssociatedTokenAccounts(t *testing.T) {
	env := setup(t)
	owner := generateKey(t)
	ownerPub := owner.Public().(ed25519.PublicKey)

	create, address, err := token.CreateAssociatedTokenAccount(ownerPub, ownerPub, env.stakingMint)
	require.NoError(t, err)

	_, err = env.client.GetAccountInfo(address, solana.CommitmentConfirmed)
	assert.Equal(t, solana.ErrNoAccountInfo, err)

	_, err = env.submit(t, owner, create)
	require.NoError(t, err)

	info, err := env.client.GetAccountInfo(address, solana.CommitmentConfirmed)
	require.NoError(t, err)
	assert.EqualValues(t, token.ProgramKey, info.Owner)

	var state token.Account
	require.True(t, state.Unmarshal(info.Data))
	assert.EqualValues(t, ownerPub, state.Owner)
	assert.EqualValues(t, env.stakingMint, state.Mint)
	assert.Equal(t, token.AccountStateInitialized, state.State)

	// Plain creation fails once the account exists
	create, _, err = token.CreateAssociatedTokenAccount(ownerPub, ownerPub, env.stakingMint)
	require.NoError(t, err)
	_, err = env.submit(t, owner, create, memo.Instruction("retry"))
	require.Error(t, err)

	txErr, ok := err.(*solana.TransactionError)
	require.True(t, ok)
	require.NotNil(t, txErr.InstructionError())
	assert.EqualValues(t, 0, *txErr.InstructionError().CustomError())

	// Idempotent creation succeeds
	idempotent, _, err := token.CreateAssociatedTokenAccountIdempotent(ownerPub, ownerPub, env.stakingMint)
	require.NoError(t, err)
	_, err = env.submit(t, owner, idempotent)
	require.NoError(t, err)

	assert.Equal(t, 2, env.client.ExecutedInstructions(token.AssociatedTokenAccountProgramKey))

	// Unknown mints are rejected
	unknownMint := generateKey(t).Public().(ed25519.PublicKey)
	create, _, err = token.CreateAssociatedTokenAccount(ownerPub, ownerPub, unknownMint)
	require.NoError(t, err)
	_, err = env.submit(t, owner, create)
	require.Error(t, err)
}

func TestClient_TransfersAreAtomic(t *testing.T) {
	env := setup(t)
	sender := generateKey(t)
	senderPub := sender.Public().(ed25519.PublicKey)
	receiverPub := generateKey(t).Public().(ed25519.PublicKey)

	source, err := env.client.CreateTokenAccount(senderPub, env.stakingMint, 100)
	require.NoError(t, err)
	dest, err := env.client.CreateTokenAccount(receiverPub, env.stakingMint, 0)
	require.NoError(t, err)

	_, err = env.submit(t, sender,
		compute_budget.SetComputeUnitPrice(1000),
		memo.Instruction("transfer"),
		token.Transfer(source, dest, senderPub, 40),
	)
	require.NoError(t, err)

	balance, _, err := env.client.GetTokenAccountBalance(source, solana.CommitmentConfirmed)
	require.NoError(t, err)
	assert.EqualValues(t, 60, balance)
	balance, _, err = env.client.GetTokenAccountBalance(dest, solana.CommitmentConfirmed)
	require.NoError(t, err)
	assert.EqualValues(t, 40, balance)

	// The second transfer fails, so the first is rolled back
	_, err = env.submit(t, sender,
		token.Transfer(source, dest, senderPub, 10),
		token.Transfer(source, dest, senderPub, 1000),
	)
	require.Error(t, err)
	txErr, ok := err.(*solana.TransactionError)
	require.True(t, ok)
	assert.Equal(t, 1, txErr.InstructionError().Index)
	assert.EqualValues(t, token.ErrorInsufficientFunds, *txErr.InstructionError().CustomError())

	balance, ok = env.client.TokenBalance(source)
	require.True(t, ok)
	assert.EqualValues(t, 60, balance)
}

func TestClient_SystemTransferAndFees(t *testing.T) {
	env := setup(t, WithTransactionFee(5000))
	sender := generateKey(t)
	senderPub := sender.Public().(ed25519.PublicKey)
	receiverPub := generateKey(t).Public().(ed25519.PublicKey)

	_, err := env.submit(t, sender, system.Transfer(senderPub, receiverPub, 1))
	require.Error(t, err)
	assert.Equal(t, solana.TransactionErrorInsufficientFundsForFee, err.(*solana.TransactionError).ErrorKey())

	_, err = env.client.RequestAirdrop(senderPub, 1_000_000, solana.CommitmentConfirmed)
	require.NoError(t, err)

	_, err = env.submit(t, sender, system.Transfer(senderPub, receiverPub, 10_000))
	require.NoError(t, err)

	balance, err := env.client.GetBalance(senderPub)
	require.NoError(t, err)
	assert.EqualValues(t, 1_000_000-10_000-5000, balance)

	balance, err = env.client.GetBalance(receiverPub)
	require.NoError(t, err)
	assert.EqualValues(t, 10_000, balance)
}

func TestClient_StakingProgram(t *testing.T) {
	env := setup(t)
	owner := generateKey(t)
	ownerPub := owner.Public().(ed25519.PublicKey)

	stakingTokenAccount, err := env.client.CreateTokenAccount(ownerPub, env.stakingMint, 100)
	require.NoError(t, err)
	rewardTokenAccount, err := env.client.CreateTokenAccount(ownerPub, env.rewardMint, 0)
	require.NoError(t, err)

	stakingAccount, err := staking.GetStakingAccountAddress(&staking.GetStakingAccountAddressArgs{
		Program: env.program,
		Owner:   ownerPub,
	})
	require.NoError(t, err)
	vault, err := staking.GetVaultAddress(&staking.GetVaultAddressArgs{
		Program:        env.program,
		StakingAccount: stakingAccount.Address,
	})
	require.NoError(t, err)
	rewardAuthority, err := staking.GetRewardAuthorityAddress(&staking.GetRewardAuthorityAddressArgs{
		Program: env.program,
	})
	require.NoError(t, err)

	stakeAccounts := &staking.StakeInstructionAccounts{
		Program:             env.program,
		StakingAccount:      stakingAccount.Address,
		StakingTokenAccount: stakingTokenAccount,
		Vault:               vault.Address,
		StakingMint:         env.stakingMint,
		Owner:               ownerPub,
	}

	// Staking before initialization fails
	_, err = env.submit(t, owner, staking.NewStakeInstruction(stakeAccounts, &staking.StakeInstructionArgs{Amount: 10, Bump: stakingAccount.Bump}))
	require.Error(t, err)

	_, err = env.submit(t, owner, staking.NewInitializeInstruction(
		&staking.InitializeInstructionAccounts{
			Program:        env.program,
			StakingAccount: stakingAccount.Address,
			Owner:          ownerPub,
		},
		&staking.InitializeInstructionArgs{Bump: stakingAccount.Bump},
	))
	require.NoError(t, err)

	_, err = env.submit(t, owner, staking.NewStakeInstruction(stakeAccounts, &staking.StakeInstructionArgs{Amount: 0, Bump: stakingAccount.Bump}))
	require.Error(t, err)
	stakingErr, ok := staking.GetStakingError(err.(*solana.TransactionError))
	require.True(t, ok)
	assert.Equal(t, staking.ErrorInvalidAmount, stakingErr)

	_, err = env.submit(t, owner, staking.NewStakeInstruction(stakeAccounts, &staking.StakeInstructionArgs{Amount: 60, Bump: stakingAccount.Bump}))
	require.NoError(t, err)

	balance, ok := env.client.TokenBalance(stakingTokenAccount)
	require.True(t, ok)
	assert.EqualValues(t, 40, balance)
	balance, ok = env.client.TokenBalance(vault.Address)
	require.True(t, ok)
	assert.EqualValues(t, 60, balance)

	unstakeAccounts := &staking.UnstakeInstructionAccounts{
		Program:             env.program,
		StakingAccount:      stakingAccount.Address,
		StakingTokenAccount: stakingTokenAccount,
		Vault:               vault.Address,
		StakingMint:         env.stakingMint,
		Owner:               ownerPub,
	}

	_, err = env.submit(t, owner, staking.NewUnstakeInstruction(unstakeAccounts, &staking.UnstakeInstructionArgs{Amount: 61, Bump: stakingAccount.Bump}))
	require.Error(t, err)
	stakingErr, ok = staking.GetStakingError(err.(*solana.TransactionError))
	require.True(t, ok)
	assert.Equal(t, staking.ErrorInsufficientStake, stakingErr)

	_, err = env.submit(t, owner, staking.NewUnstakeInstruction(unstakeAccounts, &staking.UnstakeInstructionArgs{Amount: 20, Bump: stakingAccount.Bump}))
	require.NoError(t, err)

	_, err = env.submit(t, owner, staking.NewClaimRewardsInstruction(
		&staking.ClaimRewardsInstructionAccounts{
			Program:            env.program,
			StakingAccount:     stakingAccount.Address,
			RewardTokenAccount: rewardTokenAccount,
			RewardMint:         env.rewardMint,
			RewardAuthority:    rewardAuthority.Address,
			Owner:              ownerPub,
		},
		&staking.ClaimRewardsInstructionArgs{Bump: stakingAccount.Bump},
	))
	require.NoError(t, err)

	balance, ok = env.client.TokenBalance(rewardTokenAccount)
	require.True(t, ok)
	assert.EqualValues(t, 14, balance)

	info, err := env.client.GetAccountInfo(stakingAccount.Address, solana.CommitmentConfirmed)
	require.NoError(t, err)

	var state staking.StakingAccount
	require.NoError(t, state.Unmarshal(info.Data))
	assert.EqualValues(t, ownerPub, state.Owner)
	assert.EqualValues(t, 40, state.StakedAmount)
	assert.EqualValues(t, 0, state.PendingRewards)
	assert.EqualValues(t, 14, state.TotalClaimed)
	assert.Equal(t, stakingAccount.Bump, state.Bump)

	assert.Equal(t, 4, env.client.ExecutedInstructions(env.program))
}

func TestClient_Signatures(t *testing.T) {
	env := setup(t)
	sender := generateKey(t)
	senderPub := sender.Public().(ed25519.PublicKey)
	receiverPub := generateKey(t).Public().(ed25519.PublicKey)

	bh, err := env.client.GetLatestBlockhash()
	require.NoError(t, err)

	txn := solana.NewTransaction(senderPub, system.Transfer(senderPub, receiverPub, 0))
	txn.SetBlockhash(bh)
	require.NoError(t, txn.Sign(sender))
	txn.Signatures[0][0] ^= 0xff

	_, err = env.client.SubmitTransaction(txn, solana.CommitmentConfirmed)
	require.Error(t, err)
	assert.Equal(t, solana.TransactionErrorSignatureFailure, err.(*solana.TransactionError).ErrorKey())
}

func TestClient_ExpiredBlockhashes(t *testing.T) {
	env := setup(t)
	sender := generateKey(t)
	senderPub := sender.Public().(ed25519.PublicKey)

	env.client.ExpireBlockhashes(1)

	expired, err := env.client.GetLatestBlockhash()
	require.NoError(t, err)
	valid, err := env.client.IsBlockhashValid(expired, solana.CommitmentConfirmed)
	require.NoError(t, err)
	assert.False(t, valid)

	fresh, err := env.client.GetLatestBlockhash()
	require.NoError(t, err)
	assert.NotEqual(t, expired, fresh)
	valid, err = env.client.IsBlockhashValid(fresh, solana.CommitmentConfirmed)
	require.NoError(t, err)
	assert.True(t, valid)

	txn := solana.NewTransaction(senderPub, memo.Instruction("expired"))
	txn.SetBlockhash(expired)
	require.NoError(t, txn.Sign(sender))

	_, err = env.client.SubmitTransaction(txn, solana.CommitmentConfirmed)
	require.Error(t, err)
	assert.Equal(t, solana.TransactionErrorBlockhashNotFound, err.(*solana.TransactionError).ErrorKey())
}

func TestClient_BlockhashAging(t *testing.T) {
	env := setup(t, WithBlockhashMaxAge(2))

	bh, err := env.client.GetLatestBlockhash()
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = env.client.GetSignatureStatuses(nil)
		require.NoError(t, err)
	}

	valid, err := env.client.IsBlockhashValid(bh, solana.CommitmentConfirmed)
	require.NoError(t, err)
	assert.False(t, valid)

	fresh, err := env.client.GetLatestBlockhash()
	require.NoError(t, err)
	assert.NotEqual(t, bh, fresh)

	// Within a slot the blockhash is stable
	same, err := env.client.GetLatestBlockhash()
	require.NoError(t, err)
	assert.Equal(t, fresh, same)
}

func TestClient_ConfirmationDelayAndDrops(t *testing.T) {
	env := setup(t)
	sender := generateKey(t)

	env.client.SetConfirmationDelay(2)

	sig, err := env.submit(t, sender, memo.Instruction("delayed"))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		statuses, err := env.client.GetSignatureStatuses([]solana.Signature{sig})
		require.NoError(t, err)
		assert.Nil(t, statuses[0])
	}

	statuses, err := env.client.GetSignatureStatuses([]solana.Signature{sig})
	require.NoError(t, err)
	require.NotNil(t, statuses[0])
	assert.True(t, statuses[0].Finalized())
	assert.Nil(t, statuses[0].ErrorResult)

	env.client.SetConfirmationDelay(0)
	env.client.DropSubmissions(1)

	bh, err := env.client.GetLatestBlockhash()
	require.NoError(t, err)
	txn := solana.NewTransaction(sender.Public().(ed25519.PublicKey), memo.Instruction("dropped"))
	txn.SetBlockhash(bh)
	require.NoError(t, txn.Sign(sender))

	sig, err = env.client.SubmitTransaction(txn, solana.CommitmentConfirmed)
	require.NoError(t, err)
	statuses, err = env.client.GetSignatureStatuses([]solana.Signature{sig})
	require.NoError(t, err)
	assert.Nil(t, statuses[0])

	// Rebroadcasting the same payload lands it
	_, err = env.client.SubmitTransaction(txn, solana.CommitmentConfirmed)
	require.NoError(t, err)
	statuses, err = env.client.GetSignatureStatuses([]solana.Signature{sig})
	require.NoError(t, err)
	require.NotNil(t, statuses[0])

	assert.Equal(t, 0, env.client.Overlaps())
}

func TestClient_SkipPreflight(t *testing.T) {
	env := setup(t)
	sender := generateKey(t)
	senderPub := sender.Public().(ed25519.PublicKey)

	source, err := env.client.CreateTokenAccount(senderPub, env.stakingMint, 1)
	require.NoError(t, err)

	env.client.SetSkipPreflight(true)

	sig, err := env.submit(t, sender, token.Transfer(source, source, senderPub, 5))
	require.NoError(t, err)

	statuses, err := env.client.GetSignatureStatuses([]solana.Signature{sig})
	require.NoError(t, err)
	require.NotNil(t, statuses[0])
	require.NotNil(t, statuses[0].ErrorResult)
	assert.EqualValues(t, token.ErrorInsufficientFunds, *statuses[0].ErrorResult.InstructionError().CustomError())
}

func TestClient_Overlaps(t *testing.T) {
	env := setup(t)
	sender := generateKey(t)

	first, err := env.submit(t, sender, memo.Instruction("first"))
	require.NoError(t, err)

	_, err = env.submit(t, sender, memo.Instruction("second"))
	require.NoError(t, err)
	assert.Equal(t, 1, env.client.Overlaps())

	_, err = env.client.GetSignatureStatuses([]solana.Signature{first})
	require.NoError(t, err)

	// The second transaction is still unobserved
	_, err = env.submit(t, sender, memo.Instruction("third"))
	require.NoError(t, err)
	assert.Equal(t, 2, env.client.Overlaps())
}

func TestClient_InjectedErrorsAndCounters(t *testing.T) {
	env := setup(t)
	address := generateKey(t).Public().(ed25519.PublicKey)

	custom := errors.New("custom")
	env.client.InjectErrors("GetAccountInfo", custom)
	env.client.FailNext("GetAccountInfo", 1)

	_, err := env.client.GetAccountInfo(address, solana.CommitmentConfirmed)
	assert.Equal(t, custom, err)
	_, err = env.client.GetAccountInfo(address, solana.CommitmentConfirmed)
	assert.Equal(t, ErrInjected, err)
	_, err = env.client.GetAccountInfo(address, solana.CommitmentConfirmed)
	assert.Equal(t, solana.ErrNoAccountInfo, err)

	assert.Equal(t, 3, env.client.CallCount("GetAccountInfo"))
	assert.Equal(t, 0, env.client.CallCount("SubmitTransaction"))
}

func TestClient_AccountVisibilityDelay(t *testing.T) {
	env := setup(t)
	owner := generateKey(t)
	ownerPub := owner.Public().(ed25519.PublicKey)

	env.client.SetAccountVisibilityDelay(2)

	create, address, err := token.CreateAssociatedTokenAccount(ownerPub, ownerPub, env.rewardMint)
	require.NoError(t, err)
	_, err = env.submit(t, owner, create)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = env.client.GetAccountInfo(address, solana.CommitmentConfirmed)
		assert.Equal(t, solana.ErrNoAccountInfo, err)
	}

	_, err = env.client.GetAccountInfo(address, solana.CommitmentConfirmed)
	assert.NoError(t, err)
}

func TestClient_RentExemption(t *testing.T) {
	env := setup(t)

	lamports, err := env.client.GetMinimumBalanceForRentExemption(token.AccountSize)
	require.NoError(t, err)
	assert.EqualValues(t, 2039280, lamports)
}

func generateKey(t *testing.T) ed25519.PrivateKey {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return priv
}
