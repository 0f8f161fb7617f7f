package settlement

import (
	"time"

	"gorm.io/gorm"

	"github.com/ksred/escrow-api/internal/intent"
	"github.com/ksred/escrow-api/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) DB() *gorm.DB {
	return d.db
}

// MarkExecuted flips an intent out of ACTIVE into EXECUTED, recording the
// executor and the delivered buy amount, within an open transaction. The
// ACTIVE guard makes racing executors resolve to exactly one winner: the
// loser's update touches zero rows and the whole call rolls back with
// IntentAlreadyExecuted.
func (d *Database) MarkExecuted(tx *gorm.DB, intentID uint64, executor string, buyAmount types.Amount) error {
	result := tx.Model(&types.Intent{}).
		Where("intent_id = ? AND status = ?", intentID, types.IntentStatusActive).
		Updates(map[string]interface{}{
			"status":            types.IntentStatusExecuted,
			"executor":          executor,
			"actual_buy_amount": buyAmount.String(),
			"updated_at":        time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return types.ErrIntentAlreadyExecuted
	}
	return nil
}

// PruneTerminalIntents hard-deletes executed and cancelled intents whose
// last update is older than the cutoff, together with their index rows.
// Active intents are never pruned regardless of age.
func (d *Database) PruneTerminalIntents(cutoff time.Time) (int64, error) {
	var pruned int64
	err := d.db.Transaction(func(tx *gorm.DB) error {
		var stale []types.Intent
		if err := tx.Where("status <> ? AND updated_at < ?", types.IntentStatusActive, cutoff).
			Find(&stale).Error; err != nil {
			return err
		}
		if len(stale) == 0 {
			return nil
		}

		ids := make([]uint64, len(stale))
		for i, in := range stale {
			ids[i] = in.IntentID
		}

		if err := tx.Unscoped().Where("intent_id IN ?", ids).
			Delete(&intent.UserIntent{}).Error; err != nil {
			return err
		}
		result := tx.Unscoped().Where("intent_id IN ?", ids).Delete(&types.Intent{})
		if result.Error != nil {
			return result.Error
		}
		pruned = result.RowsAffected
		return nil
	})
	return pruned, err
}

// PruneEmptyBalances hard-deletes balance rows that hold nothing and have
// not been touched since the cutoff. Lazily-created balances make this
// safe: a pruned row reads back as the same zero balance.
func (d *Database) PruneEmptyBalances(cutoff time.Time) (int64, error) {
	result := d.db.Unscoped().
		Where("available = ? AND locked = ? AND updated_at < ?", "0", "0", cutoff).
		Delete(&types.Balance{})
	return result.RowsAffected, result.Error
}
