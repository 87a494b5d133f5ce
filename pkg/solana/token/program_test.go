package token

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-staking/pkg/solana"
)

func TestTransfer(t *testing.T) {
	keys := generateKeys(t, 3)

	instruction := Transfer(keys[0], keys[1], keys[2], 123456789)

	assert.Equal(t, byte(CommandTransfer), instruction.Data[0])
	assert.Len(t, instruction.Data, 9)
	require.Len(t, instruction.Accounts, 3)
	assert.True(t, instruction.Accounts[0].IsWritable)
	assert.True(t, instruction.Accounts[1].IsWritable)
	assert.True(t, instruction.Accounts[2].IsSigner)
	assert.False(t, instruction.Accounts[2].IsWritable)

	tx := solana.NewTransaction(keys[2], instruction)

	command, err := GetCommand(tx.Message, 0)
	require.NoError(t, err)
	assert.Equal(t, CommandTransfer, command)

	decompiled, err := DecompileTransfer(tx.Message, 0)
	require.NoError(t, err)
	assert.Equal(t, keys[0], decompiled.Source)
	assert.Equal(t, keys[1], decompiled.Destination)
	assert.Equal(t, keys[2], decompiled.Owner)
	assert.EqualValues(t, 123456789, decompiled.Amount)

	_, err = DecompileTransfer(tx.Message, 1)
	assert.Error(t, err)
}

func TestDecompileTransfer_WrongProgram(t *testing.T) {
	keys := generateKeys(t, 4)

	tx := solana.NewTransaction(keys[0], solana.NewInstruction(keys[1], []byte{byte(CommandTransfer)}))

	_, err := DecompileTransfer(tx.Message, 0)
	assert.Equal(t, solana.ErrIncorrectProgram, err)

	_, err = GetCommand(tx.Message, 0)
	assert.Equal(t, solana.ErrIncorrectProgram, err)
}

func generateKeys(t *testing.T, n int) []ed25519.PublicKey {
	keys := make([]ed25519.PublicKey, n)
	for i := 0; i < n; i++ {
		pub, _, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)
		keys[i] = pub
	}
	return keys
}
