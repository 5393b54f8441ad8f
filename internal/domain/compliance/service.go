package compliance

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrUnknownStandard is returned when a requested standard is not in the
// registry.
var ErrUnknownStandard = errors.New("unknown standard")

// Service runs audits and serves the stored audit history.
type Service struct {
	runner *Runner
	repo   Repository
	logger zerolog.Logger
}

func NewService(runner *Runner, repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		runner: runner,
		repo:   repo,
		logger: logger.With().Str("component", "compliance_service").Logger(),
	}
}

// RunAudit audits the named standards and stores the outcome. The audit
// result is returned even when persistence fails; the caller asked for the
// scores, the history row is bookkeeping.
func (s *Service) RunAudit(ctx context.Context, standardNames []string) (*Result, error) {
	standards := make([]Standard, 0, len(standardNames))
	for _, name := range standardNames {
		std, ok := ParseStandard(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStandard, name)
		}
		standards = append(standards, std)
	}

	res, err := s.runner.Run(ctx, standards)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, res); err != nil {
		s.logger.Error().Err(err).Str("audit_id", res.ID.String()).Msg("failed to persist audit result")
	}
	return res, nil
}

// History lists past audit runs, newest first.
func (s *Service) History(ctx context.Context, limit, offset int) ([]*Result, int, error) {
	return s.repo.List(ctx, limit, offset)
}
