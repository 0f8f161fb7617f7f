package ledger

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ksred/escrow-api/internal/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&types.Balance{}, &Holding{}))
	return db
}

func TestDepositThenWithdrawRestoresAvailable(t *testing.T) {
	svc := NewService(newTestDB(t))
	tokens := svc.GetDB()

	require.NoError(t, tokens.Mint("alice", "TOKA", types.NewAmount(1000)))

	require.NoError(t, svc.Deposit("alice", "TOKA", types.NewAmount(400)))
	require.NoError(t, svc.Deposit("alice", "TOKA", types.NewAmount(100)))
	require.NoError(t, svc.Withdraw("alice", "TOKA", types.NewAmount(250)))

	balance, err := svc.GetBalance("alice", "TOKA")
	require.NoError(t, err)
	assert.Equal(t, "250", balance.Available.String())
	assert.Equal(t, "0", balance.Locked.String())

	// Token ledger mirrors the escrow balance: net 250 sits on escrow
	escrow, err := tokens.GetHolding(EscrowAccount, "TOKA")
	require.NoError(t, err)
	assert.Equal(t, "250", escrow.Amount.String())

	user, err := tokens.GetHolding("alice", "TOKA")
	require.NoError(t, err)
	assert.Equal(t, "750", user.Amount.String())
}

func TestDepositValidation(t *testing.T) {
	svc := NewService(newTestDB(t))

	err := svc.Deposit("alice", "TOKA", types.NewAmount(0))
	assert.ErrorIs(t, err, types.ErrInvalidAmount)

	err = svc.Deposit("alice", "TOKA", types.NewAmount(-5))
	assert.ErrorIs(t, err, types.ErrInvalidAmount)

	err = svc.Deposit("alice", "", types.NewAmount(10))
	assert.ErrorIs(t, err, types.ErrInvalidToken)

	// Depositing tokens the user does not hold fails and leaves the
	// balance untouched
	err = svc.Deposit("alice", "TOKA", types.NewAmount(10))
	assert.ErrorIs(t, err, types.ErrTransferFailed)

	balance, err := svc.GetBalance("alice", "TOKA")
	require.NoError(t, err)
	assert.Equal(t, "0", balance.Available.String())
}

func TestWithdrawInsufficientBalance(t *testing.T) {
	svc := NewService(newTestDB(t))
	require.NoError(t, svc.GetDB().Mint("alice", "TOKA", types.NewAmount(100)))
	require.NoError(t, svc.Deposit("alice", "TOKA", types.NewAmount(100)))

	err := svc.Withdraw("alice", "TOKA", types.NewAmount(101))
	assert.ErrorIs(t, err, types.ErrInsufficientBalance)

	err = svc.Withdraw("alice", "TOKA", types.NewAmount(0))
	assert.ErrorIs(t, err, types.ErrInvalidAmount)

	balance, err := svc.GetBalance("alice", "TOKA")
	require.NoError(t, err)
	assert.Equal(t, "100", balance.Available.String())
}

func TestWithdrawCannotTouchLockedFunds(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	tokens := svc.GetDB()

	require.NoError(t, tokens.Mint("alice", "TOKA", types.NewAmount(100)))
	require.NoError(t, svc.Deposit("alice", "TOKA", types.NewAmount(100)))
	require.NoError(t, tokens.Lock(db, "alice", "TOKA", types.NewAmount(80)))

	err := svc.Withdraw("alice", "TOKA", types.NewAmount(30))
	assert.ErrorIs(t, err, types.ErrInsufficientBalance)

	require.NoError(t, svc.Withdraw("alice", "TOKA", types.NewAmount(20)))

	balance, err := svc.GetBalance("alice", "TOKA")
	require.NoError(t, err)
	assert.Equal(t, "0", balance.Available.String())
	assert.Equal(t, "80", balance.Locked.String())
}

func TestLockUnlockSpend(t *testing.T) {
	db := newTestDB(t)
	tokens := NewDatabase(db)

	require.NoError(t, tokens.Credit(db, "alice", "TOKA", types.NewAmount(100)))

	require.NoError(t, tokens.Lock(db, "alice", "TOKA", types.NewAmount(60)))
	balance, err := tokens.GetBalance("alice", "TOKA")
	require.NoError(t, err)
	assert.Equal(t, "40", balance.Available.String())
	assert.Equal(t, "60", balance.Locked.String())

	// Locking more than available fails
	assert.ErrorIs(t, tokens.Lock(db, "alice", "TOKA", types.NewAmount(41)), types.ErrInsufficientBalance)

	require.NoError(t, tokens.Unlock(db, "alice", "TOKA", types.NewAmount(10)))
	require.NoError(t, tokens.SpendLocked(db, "alice", "TOKA", types.NewAmount(50)))

	balance, err = tokens.GetBalance("alice", "TOKA")
	require.NoError(t, err)
	assert.Equal(t, "50", balance.Available.String())
	assert.Equal(t, "0", balance.Locked.String())

	// Neither unlock nor spend may drive locked negative
	assert.ErrorIs(t, tokens.Unlock(db, "alice", "TOKA", types.NewAmount(1)), types.ErrInsufficientBalance)
	assert.ErrorIs(t, tokens.SpendLocked(db, "alice", "TOKA", types.NewAmount(1)), types.ErrInsufficientBalance)
}

func TestTransferConservesSupply(t *testing.T) {
	db := newTestDB(t)
	tokens := NewDatabase(db)

	require.NoError(t, tokens.Mint("alice", "TOKA", types.NewAmount(500)))
	require.NoError(t, tokens.Transfer(db, "TOKA", "alice", "bob", types.NewAmount(200)))

	alice, err := tokens.GetHolding("alice", "TOKA")
	require.NoError(t, err)
	bob, err := tokens.GetHolding("bob", "TOKA")
	require.NoError(t, err)
	assert.Equal(t, "300", alice.Amount.String())
	assert.Equal(t, "200", bob.Amount.String())

	// Overdraw fails
	err = tokens.Transfer(db, "TOKA", "bob", "alice", types.NewAmount(201))
	assert.ErrorIs(t, err, types.ErrTransferFailed)

	// Transfers from an unknown holder fail
	err = tokens.Transfer(db, "TOKA", "carol", "alice", types.NewAmount(1))
	assert.ErrorIs(t, err, types.ErrTransferFailed)

	// Zero transfers are a no-op, negative ones are rejected
	require.NoError(t, tokens.Transfer(db, "TOKA", "alice", "bob", types.NewAmount(0)))
	assert.ErrorIs(t, tokens.Transfer(db, "TOKA", "alice", "bob", types.NewAmount(-1)), types.ErrInvalidAmount)
}
