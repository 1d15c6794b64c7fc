package chain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Verifier is the on-chain verification capability. Implementations talk to
// blockchain RPC nodes; errors they return are transport-level and distinct
// from a negative verification result.
type Verifier interface {
	// VerifyProof checks a specific transaction reference against the
	// expected destination address and amount.
	VerifyProof(ctx context.Context, proof, address string, amount decimal.Decimal) (bool, error)

	// BalanceDelta reports the observed balance increase on address since
	// the verifier last observed it. Tolerance policy is the caller's.
	BalanceDelta(ctx context.Context, address string) (decimal.Decimal, error)
}
