package intent

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ksred/escrow-api/internal/config"
	"github.com/ksred/escrow-api/internal/ledger"
	"github.com/ksred/escrow-api/internal/types"
	"github.com/ksred/escrow-api/pkg/response"
)

// Service is the Intent Registry: it owns the lifecycle of posted limit
// orders and the lock they hold on the creator's balance.
type Service struct {
	db     *Database
	ledger *ledger.Database
	cfg    *config.Service
}

func NewService(gormDB *gorm.DB, cfg *config.Service) *Service {
	return &Service{
		db:     NewDatabase(gormDB),
		ledger: ledger.NewDatabase(gormDB),
		cfg:    cfg,
	}
}

// GetDB exposes the intent database for the settlement engine.
func (s *Service) GetDB() *Database {
	return s.db
}

// CreateIntent validates the order, locks sell_amount+incentive out of the
// creator's available balance and persists the intent with a fresh
// monotonic id, all in one transaction. Returns the new id.
func (s *Service) CreateIntent(creator string, req CreateIntentRequest) (*types.Intent, error) {
	logger := log.With().
		Str("creator", creator).
		Str("sell_asset", req.SellAsset).
		Str("buy_asset", req.BuyAsset).
		Str("service", "intent").
		Logger()

	if req.SellAmount.Sign() <= 0 || req.MinBuyAmount.Sign() <= 0 {
		return nil, types.ErrInvalidAmount
	}
	if req.TargetPrice.Sign() <= 0 {
		return nil, types.ErrInvalidPrice
	}
	if req.Incentive.Sign() < 0 || req.Incentive.Cmp(req.SellAmount) > 0 {
		return nil, types.ErrInvalidAmount
	}
	if req.SellAsset == "" || req.BuyAsset == "" || req.SellAsset == req.BuyAsset {
		return nil, types.ErrInvalidToken
	}
	if req.Expiry <= time.Now().Unix() {
		return nil, types.ErrIntentExpired
	}

	totalRequired := req.SellAmount.Add(req.Incentive)

	var created types.Intent
	err := s.ledger.DB().Transaction(func(tx *gorm.DB) error {
		if err := s.ledger.Lock(tx, creator, req.SellAsset, totalRequired); err != nil {
			return err
		}

		id, err := s.db.NextIntentID(tx)
		if err != nil {
			return err
		}

		created = types.Intent{
			IntentID:     id,
			Creator:      creator,
			SellAsset:    req.SellAsset,
			SellAmount:   req.SellAmount,
			BuyAsset:     req.BuyAsset,
			MinBuyAmount: req.MinBuyAmount,
			TargetPrice:  req.TargetPrice,
			Incentive:    req.Incentive,
			Expiry:       req.Expiry,
			Status:       types.IntentStatusActive,
		}
		if err := s.db.CreateIntent(tx, &created); err != nil {
			return err
		}
		return s.db.AppendUserIntent(tx, creator, id)
	})
	if err != nil {
		logger.Warn().Err(err).Msg("intent creation failed")
		return nil, err
	}

	logger.Info().
		Uint64("intent_id", created.IntentID).
		Str("sell_amount", created.SellAmount.String()).
		Str("target_price", created.TargetPrice.String()).
		Str("locked", totalRequired.String()).
		Int64("expiry", created.Expiry).
		Msg("intent created")
	return &created, nil
}

// CancelIntent releases the lock and moves the intent to CANCELLED. Only
// the creator may cancel; a terminal intent cannot be cancelled again.
func (s *Service) CancelIntent(intentID uint64, caller string) (*types.Intent, error) {
	return s.cancel(intentID, caller, false)
}

// AdminCancelIntent is the emergency override: same effect as cancel but
// authorized against the configured admin, ignoring the creator.
func (s *Service) AdminCancelIntent(intentID uint64, caller string) (*types.Intent, error) {
	if err := s.cfg.RequireAdmin(caller); err != nil {
		return nil, err
	}
	return s.cancel(intentID, caller, true)
}

func (s *Service) cancel(intentID uint64, caller string, admin bool) (*types.Intent, error) {
	logger := log.With().
		Uint64("intent_id", intentID).
		Str("caller", caller).
		Bool("admin", admin).
		Str("service", "intent").
		Logger()

	var cancelled *types.Intent
	err := s.ledger.DB().Transaction(func(tx *gorm.DB) error {
		in, err := s.db.GetIntentTx(tx, intentID)
		if err != nil {
			return err
		}
		if !admin && in.Creator != caller {
			return types.ErrOnlyCreatorCanCancel
		}
		if in.Status != types.IntentStatusActive {
			return types.ErrIntentAlreadyExecuted
		}

		// The guarded update re-checks ACTIVE so a racing execute cannot
		// slip between the read above and this write.
		if err := s.db.MarkCancelled(tx, intentID); err != nil {
			return err
		}

		totalLocked := in.SellAmount.Add(in.Incentive)
		if err := s.ledger.Unlock(tx, in.Creator, in.SellAsset, totalLocked); err != nil {
			return err
		}

		in.Status = types.IntentStatusCancelled
		cancelled = in
		return nil
	})
	if err != nil {
		logger.Warn().Err(err).Msg("intent cancellation failed")
		return nil, err
	}

	logger.Info().Msg("intent cancelled")
	return cancelled, nil
}

// GetIntent is a public read.
func (s *Service) GetIntent(intentID uint64) (*types.Intent, error) {
	return s.db.GetIntent(intentID)
}

// GetUserIntents is a public read of a user's enumeration index.
func (s *Service) GetUserIntents(user string) ([]uint64, error) {
	return s.db.GetUserIntents(user)
}

// GinHandlers contains HTTP handlers for intent endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// ParseIntentID parses an intent_id path parameter.
func ParseIntentID(raw string) (uint64, error) {
	return strconv.ParseUint(raw, 10, 64)
}

// CreateIntentHandler handles POST requests to post a new limit order
// The creator is the authenticated caller
func (h *GinHandlers) CreateIntentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		creator := c.GetString("clientID")
		if creator == "" {
			response.Unauthorized(c, "Missing authenticated client")
			return
		}

		var request CreateIntentRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		created, err := h.service.CreateIntent(creator, request)
		response.Handle(c, created, err)
	}
}

// CancelIntentHandler handles POST requests to cancel an intent
// Only the intent's creator succeeds
func (h *GinHandlers) CancelIntentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("clientID")
		if caller == "" {
			response.Unauthorized(c, "Missing authenticated client")
			return
		}

		intentID, err := ParseIntentID(c.Param("intent_id"))
		if err != nil {
			response.BadRequest(c, "invalid intent id")
			return
		}

		cancelled, err := h.service.CancelIntent(intentID, caller)
		response.Handle(c, cancelled, err)
	}
}

// AdminCancelIntentHandler handles POST requests for the admin override
func (h *GinHandlers) AdminCancelIntentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("clientID")

		intentID, err := ParseIntentID(c.Param("intent_id"))
		if err != nil {
			response.BadRequest(c, "invalid intent id")
			return
		}

		cancelled, err := h.service.AdminCancelIntent(intentID, caller)
		response.Handle(c, cancelled, err)
	}
}

// GetIntentHandler handles GET requests for an intent record
// No authorization required
func (h *GinHandlers) GetIntentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		intentID, err := ParseIntentID(c.Param("intent_id"))
		if err != nil {
			response.BadRequest(c, "invalid intent id")
			return
		}

		in, err := h.service.GetIntent(intentID)
		response.Handle(c, in, err)
	}
}

// GetUserIntentsHandler handles GET requests for a user's intent ids
// No authorization required
func (h *GinHandlers) GetUserIntentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.Param("user")
		if user == "" {
			response.BadRequest(c, "user is required")
			return
		}

		ids, err := h.service.GetUserIntents(user)
		response.Handle(c, gin.H{"user": user, "intent_ids": ids}, err)
	}
}
