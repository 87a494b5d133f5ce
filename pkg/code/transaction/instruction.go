package transaction

import (
	"context"

	"github.com/code-payments/code-staking/pkg/solana"
	compute_budget "github.com/code-payments/code-staking/pkg/solana/computebudget"
	"github.com/code-payments/code-staking/pkg/solana/memo"
)

// makeInstructions prepends the configured compute budget and appends the
// request's memo.
func (s *Sequencer) makeInstructions(ctx context.Context, req *Request) []solana.Instruction {
	var instructions []solana.Instruction

	if limit := s.conf.computeUnitLimit.Get(ctx); limit > 0 {
		instructions = append(instructions, compute_budget.SetComputeUnitLimit(uint32(limit)))
	}

	if price := s.conf.computeUnitPrice.Get(ctx); price > 0 {
		instructions = append(instructions, compute_budget.SetComputeUnitPrice(price))
	}

	instructions = append(instructions, req.Instructions...)

	if len(req.Memo) > 0 {
		instructions = append(instructions, memo.Instruction(req.Memo))
	}

	return instructions
}
