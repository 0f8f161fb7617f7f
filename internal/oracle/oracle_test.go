package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/escrow-api/internal/types"
)

func TestFeedLastPrice(t *testing.T) {
	feed := NewFeed(7)

	p, err := feed.LastPrice("TOKA")
	require.NoError(t, err)
	assert.Nil(t, p)

	feed.Publish("TOKA", types.NewAmount(120_000_000), 100)
	feed.Publish("TOKA", types.NewAmount(125_000_000), 200)

	p, err = feed.LastPrice("TOKA")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "125000000", p.Price.String())
	assert.Equal(t, int64(200), p.Timestamp)
}

func TestFeedHistoricalPrice(t *testing.T) {
	feed := NewFeed(7)
	feed.Publish("TOKA", types.NewAmount(100), 100)
	feed.Publish("TOKA", types.NewAmount(200), 200)
	feed.Publish("TOKA", types.NewAmount(300), 300)

	// At an intermediate timestamp: most recent point at or before it
	p, err := feed.Price("TOKA", 250)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "200", p.Price.String())

	// Exact match
	p, err = feed.Price("TOKA", 200)
	require.NoError(t, err)
	assert.Equal(t, "200", p.Price.String())

	// Before all observations
	p, err = feed.Price("TOKA", 50)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestFeedOutOfOrderPublish(t *testing.T) {
	feed := NewFeed(7)
	feed.Publish("TOKA", types.NewAmount(300), 300)
	feed.Publish("TOKA", types.NewAmount(100), 100)

	p, err := feed.LastPrice("TOKA")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(300), p.Timestamp)
	assert.Equal(t, "300", p.Price.String())
}

func TestFeedTWAP(t *testing.T) {
	feed := NewFeed(7)

	avg, err := feed.TWAP("TOKA", 5)
	require.NoError(t, err)
	assert.Nil(t, avg)

	for i, price := range []int64{100, 200, 300, 400, 500, 600} {
		feed.Publish("TOKA", types.NewAmount(price), int64(i))
	}

	// Last five: (200+300+400+500+600)/5
	avg, err = feed.TWAP("TOKA", 5)
	require.NoError(t, err)
	require.NotNil(t, avg)
	assert.Equal(t, "400", avg.String())

	// Window larger than history averages everything
	avg, err = feed.TWAP("TOKA", 10)
	require.NoError(t, err)
	assert.Equal(t, "350", avg.String())
}

func TestFeedCrossRate(t *testing.T) {
	feed := NewFeed(7)
	feed.Publish("TOKA", types.NewAmount(120_000_000), 100)
	feed.Publish("TOKB", types.NewAmount(80_000_000), 200)

	rate, err := feed.CrossRate("TOKA", "TOKB")
	require.NoError(t, err)
	require.NotNil(t, rate)
	assert.Equal(t, "15000000", rate.Price.String())
	assert.Equal(t, int64(200), rate.Timestamp)

	inverse, err := feed.CrossRate("TOKB", "TOKA")
	require.NoError(t, err)
	require.NotNil(t, inverse)
	assert.Equal(t, "6666666", inverse.Price.String())

	missing, err := feed.CrossRate("TOKA", "TOKC")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFeedAssets(t *testing.T) {
	feed := NewFeed(7)
	feed.Publish("TOKB", types.NewAmount(1), 1)
	feed.Publish("TOKA", types.NewAmount(1), 1)

	assets, err := feed.Assets()
	require.NoError(t, err)
	assert.Equal(t, []string{"TOKA", "TOKB"}, assets)
}

func TestFeedHistoryBound(t *testing.T) {
	feed := NewFeed(7)
	for i := int64(0); i < 300; i++ {
		feed.Publish("TOKA", types.NewAmount(i), i)
	}

	// Oldest points fall off; the 256 newest remain
	p, err := feed.Price("TOKA", 40)
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = feed.LastPrice("TOKA")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(299), p.Timestamp)
}

func TestCheckPriceTriggerSpot(t *testing.T) {
	feed := NewFeed(7)
	feed.Publish("TOKA", types.NewAmount(120_000_000), 100)
	feed.Publish("TOKB", types.NewAmount(80_000_000), 100)

	met, ratio, err := CheckPriceTrigger(feed, "TOKA", "TOKB", types.NewAmount(15_000_000), false)
	require.NoError(t, err)
	assert.True(t, met)
	assert.Equal(t, "15000000", ratio.String())

	met, _, err = CheckPriceTrigger(feed, "TOKA", "TOKB", types.NewAmount(15_000_001), false)
	require.NoError(t, err)
	assert.False(t, met)
}

func TestCheckPriceTriggerTWAP(t *testing.T) {
	feed := NewFeed(7)
	// Spot spikes on the last point but the five-point average does not
	for i, price := range []int64{100, 100, 100, 100, 1000} {
		feed.Publish("TOKA", types.NewAmount(price), int64(i))
	}
	for i := 0; i < 5; i++ {
		feed.Publish("TOKB", types.NewAmount(100), int64(i))
	}

	met, _, err := CheckPriceTrigger(feed, "TOKA", "TOKB", types.NewAmount(50_000_000), false)
	require.NoError(t, err)
	assert.True(t, met)

	// TWAP of TOKA is 280 against 100, ratio 2.8: the spike is damped
	met, ratio, err := CheckPriceTrigger(feed, "TOKA", "TOKB", types.NewAmount(50_000_000), true)
	require.NoError(t, err)
	assert.False(t, met)
	assert.Equal(t, "28000000", ratio.String())
}

func TestCheckPriceTriggerMissingFeed(t *testing.T) {
	feed := NewFeed(7)
	feed.Publish("TOKA", types.NewAmount(100), 1)

	met, ratio, err := CheckPriceTrigger(feed, "TOKA", "TOKB", types.NewAmount(1), false)
	require.NoError(t, err)
	assert.False(t, met)
	assert.True(t, ratio.IsZero())
}

func TestScale(t *testing.T) {
	assert.Equal(t, "10000000", Scale(NewFeed(7)).String())
	assert.Equal(t, "1", Scale(NewFeed(0)).String())
	assert.Equal(t, "100000000000000", Scale(NewFeed(14)).String())
}

func TestParseRecords(t *testing.T) {
	assert.Equal(t, 5, ParseRecords(""))
	assert.Equal(t, 5, ParseRecords("bogus"))
	assert.Equal(t, 5, ParseRecords("-3"))
	assert.Equal(t, 12, ParseRecords("12"))
}
