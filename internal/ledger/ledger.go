package ledger

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ksred/escrow-api/internal/types"
	"github.com/ksred/escrow-api/pkg/response"
)

// Service is the Balance Ledger: custodial available/locked accounting per
// (user, asset), backed by the escrow token ledger.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{db: NewDatabase(gormDB)}
}

// GetDB exposes the ledger database for services that settle against it.
func (s *Service) GetDB() *Database {
	return s.db
}

// Deposit moves amount of asset from the user onto the escrow account and
// credits the user's available balance. The token transfer and the balance
// credit commit together.
func (s *Service) Deposit(user, asset string, amount types.Amount) error {
	if amount.Sign() <= 0 {
		return types.ErrInvalidAmount
	}
	if asset == "" {
		return types.ErrInvalidToken
	}

	logger := log.With().
		Str("user", user).
		Str("asset", asset).
		Str("amount", amount.String()).
		Str("service", "ledger").
		Logger()

	err := s.db.DB().Transaction(func(tx *gorm.DB) error {
		if err := s.db.Transfer(tx, asset, user, EscrowAccount, amount); err != nil {
			return err
		}
		return s.db.Credit(tx, user, asset, amount)
	})
	if err != nil {
		logger.Error().Err(err).Msg("deposit failed")
		return err
	}

	logger.Info().Msg("deposit completed")
	return nil
}

// Withdraw debits the user's available balance and moves the tokens back
// off the escrow account. Locked funds can never be withdrawn.
func (s *Service) Withdraw(user, asset string, amount types.Amount) error {
	if amount.Sign() <= 0 {
		return types.ErrInvalidAmount
	}
	if asset == "" {
		return types.ErrInvalidToken
	}

	logger := log.With().
		Str("user", user).
		Str("asset", asset).
		Str("amount", amount.String()).
		Str("service", "ledger").
		Logger()

	err := s.db.DB().Transaction(func(tx *gorm.DB) error {
		if err := s.db.Debit(tx, user, asset, amount); err != nil {
			return err
		}
		if err := s.db.Transfer(tx, asset, EscrowAccount, user, amount); err != nil {
			return fmt.Errorf("escrow payout: %w", err)
		}
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("withdrawal failed")
		return err
	}

	logger.Info().Msg("withdrawal completed")
	return nil
}

// GetBalance is a public read; absent balances read as zero.
func (s *Service) GetBalance(user, asset string) (*types.Balance, error) {
	return s.db.GetBalance(user, asset)
}

// GinHandlers contains HTTP handlers for balance endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// DepositHandler handles POST requests to deposit funds into escrow
// The depositing user is the authenticated caller
func (h *GinHandlers) DepositHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.GetString("clientID")
		if user == "" {
			response.Unauthorized(c, "Missing authenticated client")
			return
		}

		var request DepositRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if err := h.service.Deposit(user, request.Asset, request.Amount); err != nil {
			response.Handle(c, nil, err)
			return
		}

		balance, err := h.service.GetBalance(user, request.Asset)
		response.Handle(c, balance, err)
	}
}

// WithdrawHandler handles POST requests to withdraw available funds
// The withdrawing user is the authenticated caller
func (h *GinHandlers) WithdrawHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.GetString("clientID")
		if user == "" {
			response.Unauthorized(c, "Missing authenticated client")
			return
		}

		var request WithdrawRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if err := h.service.Withdraw(user, request.Asset, request.Amount); err != nil {
			response.Handle(c, nil, err)
			return
		}

		balance, err := h.service.GetBalance(user, request.Asset)
		response.Handle(c, balance, err)
	}
}

// GetBalanceHandler handles GET requests for any user's balance
// No authorization required, reads never mutate state
func (h *GinHandlers) GetBalanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.Param("user")
		asset := c.Param("asset")
		if user == "" || asset == "" {
			response.BadRequest(c, "user and asset are required")
			return
		}

		balance, err := h.service.GetBalance(user, asset)
		response.Handle(c, balance, err)
	}
}
