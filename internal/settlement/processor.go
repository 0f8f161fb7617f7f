package settlement

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// RetentionPeriod matches the ledger's extended record retention: terminal
// intents and untouched empty balances older than this are pruned.
const RetentionPeriod = 60 * 24 * time.Hour

// Processor is the background retention sweeper: a ticker loop that
// hard-deletes terminal records once they age past the retention window.
type Processor struct {
	db           *Database
	retention    time.Duration
	processDelay time.Duration
}

func NewProcessor(db *Database) *Processor {
	return &Processor{
		db:           db,
		retention:    RetentionPeriod,
		processDelay: time.Hour,
	}
}

// Start begins the retention loop and blocks until ctx is cancelled.
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "retention_processor").Logger()
	logger.Info().Dur("retention", p.retention).Msg("starting retention processor")

	ticker := time.NewTicker(p.processDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down retention processor")
			return
		case <-ticker.C:
			p.sweep()
		}
	}
}

func (p *Processor) sweep() {
	logger := log.With().Str("component", "retention_processor").Logger()
	cutoff := time.Now().Add(-p.retention)

	intents, err := p.db.PruneTerminalIntents(cutoff)
	if err != nil {
		logger.Error().Err(err).Msg("failed to prune terminal intents")
	}

	balances, err := p.db.PruneEmptyBalances(cutoff)
	if err != nil {
		logger.Error().Err(err).Msg("failed to prune empty balances")
	}

	if intents > 0 || balances > 0 {
		logger.Info().
			Int64("intents_pruned", intents).
			Int64("balances_pruned", balances).
			Msg("retention sweep completed")
	}
}
