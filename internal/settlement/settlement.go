package settlement

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ksred/escrow-api/internal/exchange"
	"github.com/ksred/escrow-api/internal/intent"
	"github.com/ksred/escrow-api/internal/ledger"
	"github.com/ksred/escrow-api/internal/oracle"
	"github.com/ksred/escrow-api/internal/types"
	"github.com/ksred/escrow-api/pkg/response"
)

// Service is the Settlement Engine: it verifies an intent's price
// condition and performs the multi-leg transfer that fulfills it. Three
// token movements and two bookkeeping updates commit as one transaction;
// a failure anywhere rolls the whole call back.
type Service struct {
	db      *Database
	intents *intent.Database
	ledger  *ledger.Database
	source  oracle.Source
	router  exchange.Router
}

func NewService(gormDB *gorm.DB, source oracle.Source, router exchange.Router) *Service {
	return &Service{
		db:      NewDatabase(gormDB),
		intents: intent.NewDatabase(gormDB),
		ledger:  ledger.NewDatabase(gormDB),
		source:  source,
		router:  router,
	}
}

// GetDB exposes the settlement database for the retention processor.
func (s *Service) GetDB() *Database {
	return s.db
}

// ExecuteIntent settles an active intent. Any authenticated party may
// execute; the caller must already hold buy_amount of the buy asset. The
// price check is exact floor division at PriceScale, so the achieved price
// only ever rounds down, in the creator's favor.
func (s *Service) ExecuteIntent(intentID uint64, executor string, buyAmount types.Amount) (*types.Intent, error) {
	logger := log.With().
		Uint64("intent_id", intentID).
		Str("executor", executor).
		Str("buy_amount", buyAmount.String()).
		Str("service", "settlement").
		Logger()

	logger.Info().Msg("starting intent execution")

	var executed *types.Intent
	err := s.db.DB().Transaction(func(tx *gorm.DB) error {
		in, err := s.intents.GetIntentTx(tx, intentID)
		if err != nil {
			return err
		}
		if in.Status != types.IntentStatusActive {
			return types.ErrIntentAlreadyExecuted
		}
		if time.Now().Unix() > in.Expiry {
			return types.ErrIntentExpired
		}
		if buyAmount.Cmp(in.MinBuyAmount) < 0 {
			return types.ErrMinBuyAmountNotMet
		}

		actualPrice := buyAmount.MulDiv(types.NewAmount(types.PriceScale), in.SellAmount)
		if actualPrice.Cmp(in.TargetPrice) < 0 {
			logger.Info().
				Str("actual_price", actualPrice.String()).
				Str("target_price", in.TargetPrice.String()).
				Msg("price condition not met")
			return types.ErrPriceConditionNotMet
		}

		// All checks passed; the transfer choreography below either
		// commits as a whole or not at all.

		// Sell amount escrow -> executor, payment for performing the trade
		if err := s.ledger.Transfer(tx, in.SellAsset, ledger.EscrowAccount, executor, in.SellAmount); err != nil {
			return err
		}

		// Buy amount executor -> creator. The buy side is never escrowed
		// up front; an executor without the funds fails here and the call
		// rolls back with nothing moved.
		if err := s.ledger.Transfer(tx, in.BuyAsset, executor, in.Creator, buyAmount); err != nil {
			return err
		}

		// Incentive escrow -> executor
		if err := s.ledger.Transfer(tx, in.SellAsset, ledger.EscrowAccount, executor, in.Incentive); err != nil {
			return err
		}

		// The locked funds are spent, not returned to available
		totalLocked := in.SellAmount.Add(in.Incentive)
		if err := s.ledger.SpendLocked(tx, in.Creator, in.SellAsset, totalLocked); err != nil {
			return err
		}

		if err := s.db.MarkExecuted(tx, intentID, executor, buyAmount); err != nil {
			return err
		}

		in.Status = types.IntentStatusExecuted
		in.Executor = executor
		in.ActualBuyAmount = &buyAmount
		executed = in
		return nil
	})
	if err != nil {
		logger.Warn().Err(err).Msg("intent execution failed")
		return nil, err
	}

	logger.Info().
		Str("creator", executed.Creator).
		Str("sell_amount", executed.SellAmount.String()).
		Str("incentive", executed.Incentive.String()).
		Msg("intent executed")
	return executed, nil
}

// CheckExecutable answers whether an intent could execute right now at
// oracle prices, and what buy amount those prices imply. Pure read.
func (s *Service) CheckExecutable(intentID uint64, useTWAP bool) (*ExecutabilityResponse, error) {
	in, err := s.intents.GetIntent(intentID)
	if err != nil {
		return nil, err
	}

	resp := &ExecutabilityResponse{
		IntentID:           intentID,
		TargetPrice:        in.TargetPrice,
		CurrentPrice:       types.NewAmount(0),
		EstimatedBuyAmount: types.NewAmount(0),
	}

	if in.Status != types.IntentStatusActive || time.Now().Unix() > in.Expiry {
		return resp, nil
	}

	met, ratio, err := oracle.CheckPriceTrigger(s.source, in.SellAsset, in.BuyAsset, in.TargetPrice, useTWAP)
	if err != nil {
		return nil, err
	}

	resp.Executable = met
	resp.CurrentPrice = ratio
	resp.EstimatedBuyAmount = in.SellAmount.MulDiv(ratio, oracle.Scale(s.source))
	return resp, nil
}

// Quote asks the router for the expected output of selling sellAmount
// along the direct pair path. Pure read.
func (s *Service) Quote(sellAsset, buyAsset string, sellAmount types.Amount) (*QuoteResponse, error) {
	if sellAmount.Sign() <= 0 {
		return nil, types.ErrInvalidAmount
	}
	if sellAsset == "" || buyAsset == "" {
		return nil, types.ErrInvalidToken
	}

	amounts, err := s.router.GetAmountsOut(sellAmount, []string{sellAsset, buyAsset})
	if err != nil {
		return nil, err
	}

	return &QuoteResponse{
		SellAsset:      sellAsset,
		BuyAsset:       buyAsset,
		SellAmount:     sellAmount,
		ExpectedOutput: amounts[len(amounts)-1],
		Amounts:        amounts,
	}, nil
}

// GinHandlers contains HTTP handlers for settlement endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// ExecuteIntentHandler handles POST requests to execute an intent
// Permissionless: any authenticated caller may act as executor
func (h *GinHandlers) ExecuteIntentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		executor := c.GetString("clientID")
		if executor == "" {
			response.Unauthorized(c, "Missing authenticated client")
			return
		}

		intentID, err := intent.ParseIntentID(c.Param("intent_id"))
		if err != nil {
			response.BadRequest(c, "invalid intent id")
			return
		}

		var request ExecuteRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		executed, err := h.service.ExecuteIntent(intentID, executor, request.BuyAmount)
		response.Handle(c, executed, err)
	}
}

// CheckExecutableHandler handles GET requests probing executability
// No authorization required. ?twap=true uses time-weighted prices
func (h *GinHandlers) CheckExecutableHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		intentID, err := intent.ParseIntentID(c.Param("intent_id"))
		if err != nil {
			response.BadRequest(c, "invalid intent id")
			return
		}

		useTWAP := c.Query("twap") == "true"
		resp, err := h.service.CheckExecutable(intentID, useTWAP)
		response.Handle(c, resp, err)
	}
}

// QuoteHandler handles GET requests for a router quote
// No authorization required
func (h *GinHandlers) QuoteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sellAsset := c.Query("sell_asset")
		buyAsset := c.Query("buy_asset")
		rawAmount := c.Query("sell_amount")

		sellAmount, err := types.ParseAmount(rawAmount)
		if err != nil {
			response.BadRequest(c, "invalid sell_amount")
			return
		}

		quote, err := h.service.Quote(sellAsset, buyAsset, sellAmount)
		response.Handle(c, quote, err)
	}
}
