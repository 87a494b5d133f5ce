package staking

import (
	"errors"

	"github.com/code-payments/code-staking/pkg/solana/system"
	"github.com/code-payments/code-staking/pkg/solana/token"
)

var (
	ErrInvalidProgram         = errors.New("invalid program id")
	ErrInvalidAccountData     = errors.New("unexpected account data")
	ErrInvalidInstructionData = errors.New("unexpected instruction data")
)

var (
	SYSTEM_PROGRAM_ID    = system.ProgramKey[:]
	SPL_TOKEN_PROGRAM_ID = token.ProgramKey
)
