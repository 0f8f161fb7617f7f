package config

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ksred/escrow-api/internal/types"
	"github.com/ksred/escrow-api/pkg/response"
)

// Configuration is the single persisted configuration record: the admin
// identity plus the external router and oracle endpoints. Every update
// re-checks the caller against the stored admin, never a cached copy.
type Configuration struct {
	gorm.Model `json:"-"`
	Admin      string    `json:"admin"`
	Router     string    `json:"router"`
	Oracle     string    `json:"oracle"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Service reads and updates the configuration record.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Bootstrap creates the configuration record on first run. An existing
// record is left untouched so a restart never silently rotates the admin.
func (s *Service) Bootstrap(admin, router, oracle string) error {
	var cfg Configuration
	err := s.db.First(&cfg).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	cfg = Configuration{Admin: admin, Router: router, Oracle: oracle}
	if err := s.db.Create(&cfg).Error; err != nil {
		return err
	}

	log.Info().
		Str("admin", admin).
		Str("router", router).
		Str("oracle", oracle).
		Msg("configuration bootstrapped")
	return nil
}

// Get returns the configuration record.
func (s *Service) Get() (*Configuration, error) {
	var cfg Configuration
	if err := s.db.First(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrUnauthorized
		}
		return nil, err
	}
	return &cfg, nil
}

// IsAdmin reports whether caller matches the stored admin identity.
func (s *Service) IsAdmin(caller string) (bool, error) {
	cfg, err := s.Get()
	if err != nil {
		return false, err
	}
	return cfg.Admin == caller, nil
}

// RequireAdmin fails with Unauthorized unless caller is the stored admin.
func (s *Service) RequireAdmin(caller string) error {
	ok, err := s.IsAdmin(caller)
	if err != nil {
		return err
	}
	if !ok {
		return types.ErrUnauthorized
	}
	return nil
}

// SetRouter updates the router endpoint. Admin only.
func (s *Service) SetRouter(caller, router string) error {
	if err := s.RequireAdmin(caller); err != nil {
		return err
	}
	return s.db.Model(&Configuration{}).
		Where("1 = 1").
		Updates(map[string]interface{}{
			"router":     router,
			"updated_at": time.Now(),
		}).Error
}

// SetOracle updates the oracle endpoint. Admin only.
func (s *Service) SetOracle(caller, oracle string) error {
	if err := s.RequireAdmin(caller); err != nil {
		return err
	}
	return s.db.Model(&Configuration{}).
		Where("1 = 1").
		Updates(map[string]interface{}{
			"oracle":     oracle,
			"updated_at": time.Now(),
		}).Error
}

// GinHandlers contains HTTP handlers for configuration endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// GetConfigHandler handles GET requests for the current configuration
func (h *GinHandlers) GetConfigHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg, err := h.service.Get()
		response.Handle(c, cfg, err)
	}
}

// SetRouterHandler handles PUT requests to update the router endpoint
// Requires the caller to be the configured admin
func (h *GinHandlers) SetRouterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("clientID")

		var request struct {
			Router string `json:"router" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if err := h.service.SetRouter(caller, request.Router); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{"router": request.Router})
	}
}

// SetOracleHandler handles PUT requests to update the oracle endpoint
// Requires the caller to be the configured admin
func (h *GinHandlers) SetOracleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("clientID")

		var request struct {
			Oracle string `json:"oracle" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if err := h.service.SetOracle(caller, request.Oracle); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{"oracle": request.Oracle})
	}
}
