package ledger

import (
	"time"

	"gorm.io/gorm"

	"github.com/ksred/escrow-api/internal/types"
)

// EscrowAccount is the vault's own holder identity in the token ledger.
// Deposited funds sit here until they are settled out or withdrawn.
const EscrowAccount = "escrow"

// Holding is one holder's position in one asset on the token ledger. The
// token-transfer primitive is an external collaborator of the escrow
// engine; realizing it as rows in the same database lets every transfer
// leg join the caller's transaction, which is what makes multi-leg
// settlement atomic.
type Holding struct {
	gorm.Model `json:"-"`
	Holder     string       `gorm:"uniqueIndex:idx_holding_holder_asset" json:"holder"`
	Asset      string       `gorm:"uniqueIndex:idx_holding_holder_asset" json:"asset"`
	Amount     types.Amount `gorm:"type:text" json:"amount"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// DepositRequest is the body of a deposit call. The depositing user is
// taken from the authenticated caller, never from the body.
type DepositRequest struct {
	Asset  string       `json:"asset" binding:"required"`
	Amount types.Amount `json:"amount"`
}

// WithdrawRequest is the body of a withdraw call.
type WithdrawRequest struct {
	Asset  string       `json:"asset" binding:"required"`
	Amount types.Amount `json:"amount"`
}
