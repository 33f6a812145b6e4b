package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Resolver resolves the effective billing rate for a service and account as
// of a date. Account overrides win over catalog defaults; a missing rate is
// a hard failure, never a silent zero.
type Resolver interface {
	Resolve(ctx context.Context, serviceID, accountID snowflake.ID, asOf time.Time) (ResolvedRate, error)
}

// Service is the package alias for Resolver.
type Service = Resolver

var (
	ErrInvalidService   = errors.New("invalid_service")
	ErrInvalidAccount   = errors.New("invalid_account")
	ErrServiceNotFound  = errors.New("service_not_found")
	ErrNoRateConfigured = errors.New("no_rate_configured")
)
