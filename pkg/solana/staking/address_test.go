package staking

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-staking/pkg/solana"
)

func TestGetStakingAccountAddress(t *testing.T) {
	program := newKey(t)
	owner := newKey(t)

	first, err := GetStakingAccountAddress(&GetStakingAccountAddressArgs{Program: program, Owner: owner})
	require.NoError(t, err)
	second, err := GetStakingAccountAddress(&GetStakingAccountAddressArgs{Program: program, Owner: owner})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	expected, err := solana.CreateProgramAddress(program, []byte("staking_account"), owner, []byte{first.Bump})
	require.NoError(t, err)
	assert.EqualValues(t, expected, first.Address)

	other, err := GetStakingAccountAddress(&GetStakingAccountAddressArgs{Program: program, Owner: newKey(t)})
	require.NoError(t, err)
	assert.NotEqual(t, first.Address, other.Address)

	otherProgram, err := GetStakingAccountAddress(&GetStakingAccountAddressArgs{Program: newKey(t), Owner: owner})
	require.NoError(t, err)
	assert.NotEqual(t, first.Address, otherProgram.Address)
}

func TestGetVaultAndRewardAuthorityAddress(t *testing.T) {
	program := newKey(t)
	owner := newKey(t)

	stakingAccount, err := GetStakingAccountAddress(&GetStakingAccountAddressArgs{Program: program, Owner: owner})
	require.NoError(t, err)

	vault, err := GetVaultAddress(&GetVaultAddressArgs{Program: program, StakingAccount: stakingAccount.Address})
	require.NoError(t, err)
	expected, err := solana.CreateProgramAddress(program, []byte("vault"), stakingAccount.Address, []byte{vault.Bump})
	require.NoError(t, err)
	assert.EqualValues(t, expected, vault.Address)

	authority, err := GetRewardAuthorityAddress(&GetRewardAuthorityAddressArgs{Program: program})
	require.NoError(t, err)
	expected, err = solana.CreateProgramAddress(program, []byte("reward_authority"), []byte{authority.Bump})
	require.NoError(t, err)
	assert.EqualValues(t, expected, authority.Address)

	assert.NotEqual(t, vault.Address, authority.Address)
}

func newKey(t *testing.T) ed25519.PublicKey {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return pub
}
