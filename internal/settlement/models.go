package settlement

import (
	"github.com/ksred/escrow-api/internal/types"
)

// ExecuteRequest is the body of an execute call. buy_amount is the amount
// of the buy asset the executor delivers to the creator; the executor is
// the authenticated caller.
type ExecuteRequest struct {
	BuyAmount types.Amount `json:"buy_amount"`
}

// ExecutabilityResponse answers the read-only "can this intent execute
// right now" query executors poll before committing funds to an attempt.
type ExecutabilityResponse struct {
	IntentID           uint64       `json:"intent_id"`
	Executable         bool         `json:"executable"`
	CurrentPrice       types.Amount `json:"current_price"`
	TargetPrice        types.Amount `json:"target_price"`
	EstimatedBuyAmount types.Amount `json:"estimated_buy_amount"`
}

// QuoteResponse is the router's expected output for a path and input.
type QuoteResponse struct {
	SellAsset      string         `json:"sell_asset"`
	BuyAsset       string         `json:"buy_asset"`
	SellAmount     types.Amount   `json:"sell_amount"`
	ExpectedOutput types.Amount   `json:"expected_output"`
	Amounts        []types.Amount `json:"amounts"`
}
