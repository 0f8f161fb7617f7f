package intent

import (
	"errors"
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

// NextIntentID reads and bumps the persisted counter within an open
// transaction, returning the id to assign.
func (d *Database) NextIntentID(tx *gorm.DB) (uint64, error) {
	var counter IntentCounter
	if err := tx.First(&counter).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, err
		}
		counter = IntentCounter{Next: 0}
	}

	id := counter.Next
	counter.Next = id + 1
	if err := tx.Save(&counter).Error; err != nil {
		return 0, err
	}
	return id, nil
}

// CreateIntent persists a new intent within an open transaction.
func (d *Database) CreateIntent(tx *gorm.DB, in *types.Intent) error {
	return tx.Create(in).Error
}

// GetIntent loads an intent by its id, IntentNotFound if absent.
func (d *Database) GetIntent(intentID uint64) (*types.Intent, error) {
	return d.getIntent(d.db, intentID)
}

// GetIntentTx loads an intent within an open transaction.
func (d *Database) GetIntentTx(tx *gorm.DB, intentID uint64) (*types.Intent, error) {
	return d.getIntent(tx, intentID)
}

func (d *Database) getIntent(tx *gorm.DB, intentID uint64) (*types.Intent, error) {
	var in types.Intent
	if err := tx.Where("intent_id = ?", intentID).First(&in).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrIntentNotFound
		}
		return nil, err
	}
	return &in, nil
}

// MarkCancelled flips an intent out of ACTIVE into CANCELLED within an
// open transaction. The guarded update is the compare-and-swap that makes
// racing lifecycle calls resolve to one winner: zero rows affected means
// someone else already moved the intent to a terminal state.
func (d *Database) MarkCancelled(tx *gorm.DB, intentID uint64) error {
	result := tx.Model(&types.Intent{}).
		Where("intent_id = ? AND status = ?", intentID, types.IntentStatusActive).
		Updates(map[string]interface{}{
			"status":     types.IntentStatusCancelled,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return types.ErrIntentAlreadyExecuted
	}
	return nil
}

// AppendUserIntent records an id on the creator's enumeration index.
func (d *Database) AppendUserIntent(tx *gorm.DB, user string, intentID uint64) error {
	return tx.Create(&UserIntent{User: user, IntentID: intentID}).Error
}

// GetUserIntents returns the creator's intent ids in creation order.
func (d *Database) GetUserIntents(user string) ([]uint64, error) {
	var rows []UserIntent
	if err := d.db.Where("user = ?", user).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	ids := make([]uint64, len(rows))
	for i, row := range rows {
		ids[i] = row.IntentID
	}
	return ids, nil
}
