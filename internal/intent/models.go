package intent

import (
	"time"

	"gorm.io/gorm"

	"github.com/ksred/escrow-api/internal/types"
)

// IntentCounter is the persisted monotonic id source. A single row holds
// the next id to hand out; it is read and bumped inside the create
// transaction so ids are strictly increasing and never reused.
type IntentCounter struct {
	ID   uint   `gorm:"primaryKey"`
	Next uint64 `gorm:"not null"`
}

// UserIntent is one row of the append-only per-user intent index. It
// exists for enumeration only; the intent record stays authoritative.
type UserIntent struct {
	gorm.Model `json:"-"`
	User       string    `gorm:"index" json:"user"`
	IntentID   uint64    `json:"intent_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateIntentRequest is the body of a create call. The creator is the
// authenticated caller.
type CreateIntentRequest struct {
	SellAsset    string       `json:"sell_asset" binding:"required"`
	SellAmount   types.Amount `json:"sell_amount"`
	BuyAsset     string       `json:"buy_asset" binding:"required"`
	MinBuyAmount types.Amount `json:"min_buy_amount"`
	TargetPrice  types.Amount `json:"target_price"`
	Incentive    types.Amount `json:"incentive"`
	Expiry       int64        `json:"expiry"`
}
