package ledger

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ksred/escrow-api/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// DB exposes the underlying connection so that other services can open
// transactions spanning balances, holdings and intents.
func (d *Database) DB() *gorm.DB {
	return d.db
}

// GetBalance returns the balance record for (user, asset). Balances are
// created lazily: an absent row reads as a zero balance.
func (d *Database) GetBalance(user, asset string) (*types.Balance, error) {
	return getBalance(d.db, user, asset)
}

func getBalance(tx *gorm.DB, user, asset string) (*types.Balance, error) {
	var balance types.Balance
	if err := tx.Where("user = ? AND asset = ?", user, asset).First(&balance).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &types.Balance{User: user, Asset: asset}, nil
		}
		return nil, err
	}
	return &balance, nil
}

func saveBalance(tx *gorm.DB, balance *types.Balance) error {
	balance.UpdatedAt = time.Now()
	return tx.Save(balance).Error
}

// Credit adds available funds within an open transaction.
func (d *Database) Credit(tx *gorm.DB, user, asset string, amount types.Amount) error {
	balance, err := getBalance(tx, user, asset)
	if err != nil {
		return err
	}
	balance.Available = balance.Available.Add(amount)
	return saveBalance(tx, balance)
}

// Debit removes available funds within an open transaction, failing with
// InsufficientBalance rather than ever driving the field negative.
func (d *Database) Debit(tx *gorm.DB, user, asset string, amount types.Amount) error {
	balance, err := getBalance(tx, user, asset)
	if err != nil {
		return err
	}
	if balance.Available.Cmp(amount) < 0 {
		return types.ErrInsufficientBalance
	}
	balance.Available = balance.Available.Sub(amount)
	return saveBalance(tx, balance)
}

// Lock moves amount from available to locked within an open transaction.
// Only the intent lifecycle calls this; it is never an external operation.
func (d *Database) Lock(tx *gorm.DB, user, asset string, amount types.Amount) error {
	balance, err := getBalance(tx, user, asset)
	if err != nil {
		return err
	}
	if balance.Available.Cmp(amount) < 0 {
		return types.ErrInsufficientBalance
	}
	balance.Available = balance.Available.Sub(amount)
	balance.Locked = balance.Locked.Add(amount)
	return saveBalance(tx, balance)
}

// Unlock moves amount from locked back to available within an open
// transaction. Used when an intent is cancelled.
func (d *Database) Unlock(tx *gorm.DB, user, asset string, amount types.Amount) error {
	balance, err := getBalance(tx, user, asset)
	if err != nil {
		return err
	}
	if balance.Locked.Cmp(amount) < 0 {
		return fmt.Errorf("locked balance underflow for %s/%s: %w", user, asset, types.ErrInsufficientBalance)
	}
	balance.Locked = balance.Locked.Sub(amount)
	balance.Available = balance.Available.Add(amount)
	return saveBalance(tx, balance)
}

// SpendLocked releases amount from locked without returning it to
// available. Used when an intent executes and the locked funds leave the
// creator's custody entirely.
func (d *Database) SpendLocked(tx *gorm.DB, user, asset string, amount types.Amount) error {
	balance, err := getBalance(tx, user, asset)
	if err != nil {
		return err
	}
	if balance.Locked.Cmp(amount) < 0 {
		return fmt.Errorf("locked balance underflow for %s/%s: %w", user, asset, types.ErrInsufficientBalance)
	}
	balance.Locked = balance.Locked.Sub(amount)
	return saveBalance(tx, balance)
}

// Transfer moves amount of asset between holders on the token ledger
// within an open transaction. Fails with TransferFailed when the sender
// does not hold the funds.
func (d *Database) Transfer(tx *gorm.DB, asset, from, to string, amount types.Amount) error {
	if amount.Sign() < 0 {
		return types.ErrInvalidAmount
	}
	if amount.IsZero() {
		return nil
	}

	var source Holding
	if err := tx.Where("holder = ? AND asset = ?", from, asset).First(&source).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%s holds no %s: %w", from, asset, types.ErrTransferFailed)
		}
		return err
	}
	if source.Amount.Cmp(amount) < 0 {
		return fmt.Errorf("%s holds %s of %s, needs %s: %w",
			from, source.Amount.String(), asset, amount.String(), types.ErrTransferFailed)
	}

	source.Amount = source.Amount.Sub(amount)
	source.UpdatedAt = time.Now()
	if err := tx.Save(&source).Error; err != nil {
		return err
	}

	var dest Holding
	if err := tx.Where("holder = ? AND asset = ?", to, asset).First(&dest).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		dest = Holding{Holder: to, Asset: asset}
	}
	dest.Amount = dest.Amount.Add(amount)
	dest.UpdatedAt = time.Now()
	return tx.Save(&dest).Error
}

// Mint credits asset out of thin air to a holder. This stands in for
// issuance on the external token ledger, which sits outside the escrow
// engine; it exists for the simulation binary and tests, not the API
// surface.
func (d *Database) Mint(holder, asset string, amount types.Amount) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		var holding Holding
		if err := tx.Where("holder = ? AND asset = ?", holder, asset).First(&holding).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			holding = Holding{Holder: holder, Asset: asset}
		}
		holding.Amount = holding.Amount.Add(amount)
		holding.UpdatedAt = time.Now()
		return tx.Save(&holding).Error
	})
}

// GetHolding returns the token-ledger position for (holder, asset), zero
// if absent.
func (d *Database) GetHolding(holder, asset string) (*Holding, error) {
	var holding Holding
	if err := d.db.Where("holder = ? AND asset = ?", holder, asset).First(&holding).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &Holding{Holder: holder, Asset: asset}, nil
		}
		return nil, err
	}
	return &holding, nil
}
