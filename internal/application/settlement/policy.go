package settlement

import (
	"fmt"
	"time"
	_ "time/tzdata" // Africa/Bamako on images without zoneinfo

	"github.com/shopspring/decimal"

	"github.com/turtacn/TransitLedger/internal/config"
	domain "github.com/turtacn/TransitLedger/internal/domain/settlement"
)

// PolicyFromConfig converts the settlement section of the configuration into
// a domain policy.
func PolicyFromConfig(cfg config.SettlementConfig) (domain.Policy, error) {
	p := domain.DefaultPolicy()
	p.FreeDays = cfg.FreeDays
	if cfg.DeadlineDays > 0 {
		p.DeadlineDays = cfg.DeadlineDays
	}

	var err error
	if cfg.DemurrageRate != "" {
		if p.DemurrageRate, err = decimal.NewFromString(cfg.DemurrageRate); err != nil {
			return p, fmt.Errorf("demurrage_rate %q: %w", cfg.DemurrageRate, err)
		}
	}
	if cfg.LatePenaltyRate != "" {
		if p.LatePenaltyRate, err = decimal.NewFromString(cfg.LatePenaltyRate); err != nil {
			return p, fmt.Errorf("late_penalty_rate %q: %w", cfg.LatePenaltyRate, err)
		}
	}
	if cfg.Timezone != "" {
		if p.Location, err = time.LoadLocation(cfg.Timezone); err != nil {
			return p, fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
		}
	}
	return p, nil
}
