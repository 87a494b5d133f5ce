package common

import (
	"crypto/ed25519"
	"testing"

	"github.com/mr-tron/base58/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-staking/pkg/solana"
	"github.com/code-payments/code-staking/pkg/solana/memo"
	"github.com/code-payments/code-staking/pkg/solana/token"
)

func TestAccountWithPublicKey(t *testing.T) {
	publicKey, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	var accounts []*Account

	account, err := NewAccountFromPublicKeyBytes(publicKey)
	require.NoError(t, err)
	accounts = append(accounts, account)

	account, err = NewAccountFromPublicKeyString(base58.Encode(publicKey))
	require.NoError(t, err)
	accounts = append(accounts, account)

	for _, account := range accounts {
		assert.EqualValues(t, publicKey, account.PublicKey().ToBytes())
		assert.Nil(t, account.PrivateKey())
		assert.Equal(t, base58.Encode(publicKey), account.String())

		_, err = account.Sign([]byte("message"))
		assert.Equal(t, ErrPrivateKeyUnavailable, err)

		_, err = account.Signer()
		assert.Equal(t, ErrPrivateKeyUnavailable, err)
	}
}

func TestAccountWithPrivateKey(t *testing.T) {
	publicKey, privateKey, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	var accounts []*Account

	account, err := NewAccountFromPrivateKeyBytes(privateKey)
	require.NoError(t, err)
	accounts = append(accounts, account)

	account, err = NewAccountFromPrivateKeyString(base58.Encode(privateKey))
	require.NoError(t, err)
	accounts = append(accounts, account)

	for _, account := range accounts {
		assert.EqualValues(t, publicKey, account.PublicKey().ToBytes())
		assert.EqualValues(t, privateKey, account.PrivateKey().ToBytes())

		message := []byte("message")
		signature, err := account.Sign(message)
		require.NoError(t, err)
		assert.Equal(t, ed25519.Sign(privateKey, message), signature)
	}
}

func TestAccountFromMnemonic(t *testing.T) {
	mnemonic, err := NewRandomMnemonic()
	require.NoError(t, err)

	account, err := NewAccountFromMnemonic(mnemonic, "")
	require.NoError(t, err)
	require.NotNil(t, account.PrivateKey())

	same, err := NewAccountFromMnemonic(mnemonic, "")
	require.NoError(t, err)
	assert.True(t, account.Equals(same))

	_, err = NewAccountFromMnemonic("not a mnemonic", "")
	assert.Equal(t, ErrInvalidMnemonic, err)
}

func TestInvalidAccount(t *testing.T) {
	publicKey, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	_, err = NewAccountFromPrivateKeyBytes(publicKey)
	assert.Error(t, err)

	_, err = NewAccountFromPublicKeyBytes([]byte("too short"))
	assert.Error(t, err)

	var nilAccount *Account
	assert.Error(t, nilAccount.Validate())
}

func TestAccountSigner(t *testing.T) {
	payer := newRandomTestAccount(t)

	signer, err := payer.Signer()
	require.NoError(t, err)
	assert.EqualValues(t, payer.PublicKey().ToBytes(), signer.PublicKey())

	txn := solana.NewTransaction(payer.PublicKey().ToBytes(), memo.Instruction("hello"))
	require.NoError(t, txn.SignWith(signer))
	assert.Empty(t, txn.MissingSignatures())
	assert.True(t, ed25519.Verify(payer.PublicKey().ToBytes(), txn.Message.Marshal(), txn.Signature()))
}

func TestAccountEquals(t *testing.T) {
	account := newRandomTestAccount(t)
	publicOnly, err := NewAccountFromPublicKeyBytes(account.PublicKey().ToBytes())
	require.NoError(t, err)

	assert.True(t, account.Equals(publicOnly))
	assert.False(t, account.Equals(newRandomTestAccount(t)))
	assert.False(t, account.Equals(nil))
}

func TestToAssociatedTokenAccount(t *testing.T) {
	owner := newRandomTestAccount(t)
	mint := newRandomTestAccount(t)

	ata, err := owner.ToAssociatedTokenAccount(mint)
	require.NoError(t, err)

	expected, err := token.GetAssociatedAccount(owner.PublicKey().ToBytes(), mint.PublicKey().ToBytes())
	require.NoError(t, err)
	assert.EqualValues(t, expected, ata.PublicKey().ToBytes())

	// Associated token accounts are program addresses
	assert.True(t, owner.IsOnCurve())
	assert.False(t, ata.IsOnCurve())
}
