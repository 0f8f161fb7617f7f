package exchange

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ksred/escrow-api/internal/ledger"
	"github.com/ksred/escrow-api/internal/oracle"
	"github.com/ksred/escrow-api/internal/types"
)

// Router is the external exchange collaborator: quote expected output for a
// token path, or execute a swap along it. The escrow engine uses it only
// for price discovery; custody never moves through it during settlement.
type Router interface {
	// GetAmountsOut returns the expected output amount at each hop of the
	// path for the given input amount.
	GetAmountsOut(amountIn types.Amount, path []string) ([]types.Amount, error)
	// Swap trades amountIn of path[0] for at least minOut of the final
	// path asset, delivering to `to`. Deadline is a unix timestamp.
	Swap(amountIn, minOut types.Amount, path []string, to string, deadline int64) ([]types.Amount, error)
}

// Venue is a mock liquidity venue priced off the oracle feed. Swaps settle
// against the token ledger out of the venue's own inventory account, with
// simulated latency and a basis-point fee, standing in for the AMM behind
// the configured router address.
type Venue struct {
	ID         string
	Name       string
	Account    string
	MinLatency int // in milliseconds
	MaxLatency int
	FeeBps     int64 // taken off each hop's output

	source oracle.Source
	tokens *ledger.Database
}

// NewVenue creates a mock venue. tokens may be nil for quote-only use.
func NewVenue(source oracle.Source, tokens *ledger.Database) *Venue {
	return &Venue{
		ID:         "VENUE1",
		Name:       "Primary AMM",
		Account:    "venue:primary",
		MinLatency: 5,
		MaxLatency: 30,
		FeeBps:     30, // 0.3%
		source:     source,
		tokens:     tokens,
	}
}

// GetAmountsOut walks the path hop by hop, converting at the oracle cross
// rate and shaving the venue fee off each hop's output.
func (v *Venue) GetAmountsOut(amountIn types.Amount, path []string) ([]types.Amount, error) {
	if len(path) < 2 {
		return nil, types.ErrInvalidToken
	}
	if amountIn.Sign() <= 0 {
		return nil, types.ErrInvalidAmount
	}

	amounts := make([]types.Amount, 0, len(path))
	amounts = append(amounts, amountIn)

	current := amountIn
	for i := 0; i+1 < len(path); i++ {
		rate, err := v.source.CrossRate(path[i], path[i+1])
		if err != nil {
			return nil, err
		}
		if rate == nil {
			return nil, fmt.Errorf("no feed for %s/%s: %w", path[i], path[i+1], types.ErrInvalidToken)
		}

		out := current.MulDiv(rate.Price, oracle.Scale(v.source))
		fee := out.MulDiv(types.NewAmount(v.FeeBps), types.NewAmount(10_000))
		out = out.Sub(fee)

		amounts = append(amounts, out)
		current = out
	}
	return amounts, nil
}

// Swap executes the quoted trade out of the venue's inventory: the input
// moves from `to` into the venue account and the output moves back, both
// in one transaction.
func (v *Venue) Swap(amountIn, minOut types.Amount, path []string, to string, deadline int64) ([]types.Amount, error) {
	logger := log.With().
		Str("venue_id", v.ID).
		Str("to", to).
		Str("amount_in", amountIn.String()).
		Logger()

	if v.tokens == nil {
		return nil, types.ErrTransferFailed
	}
	if deadline > 0 && time.Now().Unix() > deadline {
		return nil, fmt.Errorf("swap deadline passed: %w", types.ErrTransferFailed)
	}

	amounts, err := v.GetAmountsOut(amountIn, path)
	if err != nil {
		return nil, err
	}
	out := amounts[len(amounts)-1]
	if out.Cmp(minOut) < 0 {
		logger.Warn().
			Str("expected_out", out.String()).
			Str("min_out", minOut.String()).
			Msg("swap output below minimum")
		return nil, types.ErrMinBuyAmountNotMet
	}

	// Simulate venue latency
	latency := v.MinLatency
	if v.MaxLatency > v.MinLatency {
		latency += rand.Intn(v.MaxLatency - v.MinLatency + 1)
	}
	time.Sleep(time.Duration(latency) * time.Millisecond)

	err = v.tokens.DB().Transaction(func(tx *gorm.DB) error {
		if err := v.tokens.Transfer(tx, path[0], to, v.Account, amountIn); err != nil {
			return err
		}
		return v.tokens.Transfer(tx, path[len(path)-1], v.Account, to, out)
	})
	if err != nil {
		logger.Error().Err(err).Msg("swap settlement failed")
		return nil, err
	}

	logger.Info().
		Str("amount_out", out.String()).
		Int("latency_ms", latency).
		Msg("swap executed")
	return amounts, nil
}
