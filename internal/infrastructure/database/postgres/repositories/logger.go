package repositories

import (
	"context"
	"time"

	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/logging"
)

// slowQueryThreshold is the duration above which a statement is logged at
// Warn.
const slowQueryThreshold = 200 * time.Millisecond

// logSlow reports statements that exceeded slowQueryThreshold.
func logSlow(ctx context.Context, log logging.Logger, op string, started time.Time) {
	elapsed := time.Since(started)
	if elapsed < slowQueryThreshold {
		return
	}
	log.Warn("slow settlement query",
		logging.String("op", op),
		logging.Duration("elapsed", elapsed),
		logging.String("request_id", logging.RequestIDFromContext(ctx)),
	)
}
