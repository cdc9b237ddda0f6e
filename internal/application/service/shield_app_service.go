// Package service provides application-level services that bind the domain
// services to the loaded configuration.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/turtacn/apishield/internal/application/dto"
	"github.com/turtacn/apishield/internal/domain/models"
	domainService "github.com/turtacn/apishield/internal/domain/service"
	"github.com/turtacn/apishield/pkg/errors"
	"github.com/turtacn/apishield/pkg/logger"
)

// ShieldAppService is the surface the HTTP layer and the admin CLI use.
type ShieldAppService interface {
	// Admit decides whether identity may proceed with a request to path.
	Admit(ctx context.Context, identity, path string) (models.AdmissionResult, error)

	// Resolve explains which limit applies to path.
	Resolve(path string) *dto.ResolveResponse

	// BanStatus reports the ban of identity.
	BanStatus(ctx context.Context, identity string) (*dto.BanStatusResponse, error)

	// Ban bans identity for duration.
	Ban(ctx context.Context, identity string, duration time.Duration) (*dto.BanStatusResponse, error)

	// LiftBan removes the ban of identity.
	LiftBan(ctx context.Context, identity string) error

	// Sweep removes expired bans and stale counters once.
	Sweep(ctx context.Context) (*dto.SweepResponse, error)
}

type shieldAppService struct {
	admission   *domainService.AdmissionService
	global      models.LimitConfig
	rules       []models.RouteRule
	identityTTL time.Duration
	logger      logger.Logger
}

// NewShieldAppService creates the service. rules are read-only afterwards.
func NewShieldAppService(admission *domainService.AdmissionService, global models.LimitConfig, rules []models.RouteRule, identityTTL time.Duration, log logger.Logger) ShieldAppService {
	return &shieldAppService{
		admission:   admission,
		global:      global,
		rules:       rules,
		identityTTL: identityTTL,
		logger:      log.WithComponent("shield_app_service"),
	}
}

func (s *shieldAppService) Admit(ctx context.Context, identity, path string) (models.AdmissionResult, error) {
	return s.admission.Admit(ctx, identity, path, s.global, s.rules)
}

func (s *shieldAppService) Resolve(path string) *dto.ResolveResponse {
	return dto.NewResolveResponse(path, s.admission.Resolve(path, s.global, s.rules))
}

func (s *shieldAppService) BanStatus(ctx context.Context, identity string) (*dto.BanStatusResponse, error) {
	if err := validateIdentity(identity); err != nil {
		return nil, err
	}
	status, err := s.admission.BanStatus(ctx, identity)
	if err != nil {
		return nil, err
	}
	return dto.NewBanStatusResponse(identity, status), nil
}

func (s *shieldAppService) Ban(ctx context.Context, identity string, duration time.Duration) (*dto.BanStatusResponse, error) {
	if err := validateIdentity(identity); err != nil {
		return nil, err
	}
	if duration < 0 {
		return nil, errors.ErrInvalidRequest("ban duration must be >= 0")
	}
	if _, err := s.admission.Ban(ctx, identity, duration); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "Operator ban applied",
		logger.String("identity", identity),
		logger.Duration("duration", duration),
	)
	return s.BanStatus(ctx, identity)
}

func (s *shieldAppService) LiftBan(ctx context.Context, identity string) error {
	if err := validateIdentity(identity); err != nil {
		return err
	}
	return s.admission.LiftBan(ctx, identity)
}

func (s *shieldAppService) Sweep(ctx context.Context) (*dto.SweepResponse, error) {
	report, err := s.admission.Sweeper().Sweep(ctx, s.identityTTL)
	if err != nil {
		return nil, err
	}
	return dto.NewSweepResponse(report), nil
}

func validateIdentity(identity string) error {
	if strings.TrimSpace(identity) == "" {
		return errors.ErrInvalidRequest("identity is required")
	}
	return nil
}
