package exchange

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ksred/escrow-api/internal/ledger"
	"github.com/ksred/escrow-api/internal/oracle"
	"github.com/ksred/escrow-api/internal/types"
)

func newTestVenue(t *testing.T) (*Venue, *ledger.Database) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&ledger.Holding{}))

	feed := oracle.NewFeed(7)
	now := time.Now().Unix()
	feed.Publish("TOKA", types.NewAmount(120_000_000), now)
	feed.Publish("TOKB", types.NewAmount(80_000_000), now)
	feed.Publish("TOKC", types.NewAmount(40_000_000), now)

	tokens := ledger.NewDatabase(db)
	venue := NewVenue(feed, tokens)
	venue.MinLatency = 0
	venue.MaxLatency = 0
	return venue, tokens
}

func TestGetAmountsOut(t *testing.T) {
	venue, _ := newTestVenue(t)

	// 1000 TOKA at a 1.5 cross rate is 1500 TOKB, minus 30bps fee
	amounts, err := venue.GetAmountsOut(types.NewAmount(1000), []string{"TOKA", "TOKB"})
	require.NoError(t, err)
	require.Len(t, amounts, 2)
	assert.Equal(t, "1000", amounts[0].String())
	assert.Equal(t, "1496", amounts[1].String())
}

func TestGetAmountsOutMultiHop(t *testing.T) {
	venue, _ := newTestVenue(t)

	// TOKA -> TOKB -> TOKC, 30bps off each hop
	amounts, err := venue.GetAmountsOut(types.NewAmount(1000), []string{"TOKA", "TOKB", "TOKC"})
	require.NoError(t, err)
	require.Len(t, amounts, 3)
	assert.Equal(t, "1496", amounts[1].String())
	// 1496 * 2 = 2992, fee 8 (floor of 8.976)
	assert.Equal(t, "2984", amounts[2].String())
}

func TestGetAmountsOutValidation(t *testing.T) {
	venue, _ := newTestVenue(t)

	_, err := venue.GetAmountsOut(types.NewAmount(1000), []string{"TOKA"})
	assert.ErrorIs(t, err, types.ErrInvalidToken)

	_, err = venue.GetAmountsOut(types.NewAmount(0), []string{"TOKA", "TOKB"})
	assert.ErrorIs(t, err, types.ErrInvalidAmount)

	_, err = venue.GetAmountsOut(types.NewAmount(1000), []string{"TOKA", "TOKX"})
	assert.ErrorIs(t, err, types.ErrInvalidToken)
}

func TestSwapSettlesInventory(t *testing.T) {
	venue, tokens := newTestVenue(t)
	require.NoError(t, tokens.Mint("carol", "TOKA", types.NewAmount(1000)))
	require.NoError(t, tokens.Mint(venue.Account, "TOKB", types.NewAmount(10_000)))

	deadline := time.Now().Add(time.Minute).Unix()
	amounts, err := venue.Swap(types.NewAmount(1000), types.NewAmount(1400), []string{"TOKA", "TOKB"}, "carol", deadline)
	require.NoError(t, err)
	assert.Equal(t, "1496", amounts[1].String())

	carolA, err := tokens.GetHolding("carol", "TOKA")
	require.NoError(t, err)
	assert.Equal(t, "0", carolA.Amount.String())

	carolB, err := tokens.GetHolding("carol", "TOKB")
	require.NoError(t, err)
	assert.Equal(t, "1496", carolB.Amount.String())

	venueA, err := tokens.GetHolding(venue.Account, "TOKA")
	require.NoError(t, err)
	assert.Equal(t, "1000", venueA.Amount.String())

	venueB, err := tokens.GetHolding(venue.Account, "TOKB")
	require.NoError(t, err)
	assert.Equal(t, "8504", venueB.Amount.String())
}

func TestSwapBelowMinimum(t *testing.T) {
	venue, tokens := newTestVenue(t)
	require.NoError(t, tokens.Mint("carol", "TOKA", types.NewAmount(1000)))
	require.NoError(t, tokens.Mint(venue.Account, "TOKB", types.NewAmount(10_000)))

	deadline := time.Now().Add(time.Minute).Unix()
	_, err := venue.Swap(types.NewAmount(1000), types.NewAmount(1500), []string{"TOKA", "TOKB"}, "carol", deadline)
	assert.ErrorIs(t, err, types.ErrMinBuyAmountNotMet)

	// Nothing moved
	carolA, err := tokens.GetHolding("carol", "TOKA")
	require.NoError(t, err)
	assert.Equal(t, "1000", carolA.Amount.String())
}

func TestSwapDeadlinePassed(t *testing.T) {
	venue, tokens := newTestVenue(t)
	require.NoError(t, tokens.Mint("carol", "TOKA", types.NewAmount(1000)))

	_, err := venue.Swap(types.NewAmount(1000), types.NewAmount(1), []string{"TOKA", "TOKB"}, "carol", time.Now().Add(-time.Minute).Unix())
	assert.ErrorIs(t, err, types.ErrTransferFailed)
}

func TestSwapUnderfundedVenueRollsBack(t *testing.T) {
	venue, tokens := newTestVenue(t)
	require.NoError(t, tokens.Mint("carol", "TOKA", types.NewAmount(1000)))
	require.NoError(t, tokens.Mint(venue.Account, "TOKB", types.NewAmount(10)))

	deadline := time.Now().Add(time.Minute).Unix()
	_, err := venue.Swap(types.NewAmount(1000), types.NewAmount(1), []string{"TOKA", "TOKB"}, "carol", deadline)
	assert.ErrorIs(t, err, types.ErrTransferFailed)

	// The input leg rolled back with the failed output leg
	carolA, err := tokens.GetHolding("carol", "TOKA")
	require.NoError(t, err)
	assert.Equal(t, "1000", carolA.Amount.String())
}
