package types

import (
	"time"

	"gorm.io/gorm"
)

// PriceScale is the fixed decimal multiplier used for every price ratio.
// A target price of 1.5 is stored as 15_000_000.
const PriceScale = 10_000_000

// Intent statuses. An intent leaves ACTIVE exactly once.
const (
	IntentStatusActive    = "ACTIVE"
	IntentStatusExecuted  = "EXECUTED"
	IntentStatusCancelled = "CANCELLED"
)

// Intent is a posted conditional limit order: sell SellAmount of SellAsset
// for at least MinBuyAmount of BuyAsset once the price condition holds.
// All fields other than Status, Executor and ActualBuyAmount are immutable
// after creation.
type Intent struct {
	gorm.Model      `json:"-"`
	IntentID        uint64    `gorm:"uniqueIndex" json:"intent_id"`
	Creator         string    `gorm:"index" json:"creator"`
	SellAsset       string    `json:"sell_asset"`
	SellAmount      Amount    `gorm:"type:text" json:"sell_amount"`
	BuyAsset        string    `json:"buy_asset"`
	MinBuyAmount    Amount    `gorm:"type:text" json:"min_buy_amount"`
	TargetPrice     Amount    `gorm:"type:text" json:"target_price"`
	Incentive       Amount    `gorm:"type:text" json:"incentive"`
	Expiry          int64     `json:"expiry"`
	Status          string    `gorm:"index" json:"status"`
	Executor        string    `json:"executor,omitempty"`
	ActualBuyAmount *Amount   `gorm:"type:text" json:"actual_buy_amount,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Balance is the custodial balance of one user in one asset. Available
// funds can be withdrawn or locked against new intents; locked funds are
// reserved for active intents and released only when the intent reaches a
// terminal state. Both fields are always non-negative.
type Balance struct {
	gorm.Model `json:"-"`
	User       string    `gorm:"uniqueIndex:idx_balance_user_asset" json:"user"`
	Asset      string    `gorm:"uniqueIndex:idx_balance_user_asset" json:"asset"`
	Available  Amount    `gorm:"type:text" json:"available"`
	Locked     Amount    `gorm:"type:text" json:"locked"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
