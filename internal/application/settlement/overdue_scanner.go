package settlement

import (
	"context"
	"fmt"
	"time"

	domain "github.com/turtacn/TransitLedger/internal/domain/settlement"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/prometheus"
)

// Deduplicator reports whether a key is seen for the first time within ttl.
type Deduplicator interface {
	FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// DefaultOverdueBatchSize caps the missions handled by one scan.
const DefaultOverdueBatchSize = 500

// ScanResult summarizes one overdue scan.
type ScanResult struct {
	Day      time.Time `json:"jour"`
	Overdue  int       `json:"missions_en_retard"`
	Notified int       `json:"notifications"`
	Skipped  int       `json:"deja_notifiees"`
}

// OverdueScanner notifies, at most once per mission and per day, about
// en_cours missions whose contract return deadline has passed.
type OverdueScanner struct {
	base
	dedupe    Deduplicator
	batchSize int
}

// NewOverdueScanner constructs an OverdueScanner. A nil dedupe notifies on
// every scan.
func NewOverdueScanner(d Deps, dedupe Deduplicator, batchSize int) *OverdueScanner {
	if batchSize <= 0 {
		batchSize = DefaultOverdueBatchSize
	}
	return &OverdueScanner{base: newBase(d, "overdue"), dedupe: dedupe, batchSize: batchSize}
}

// Scan runs one pass for today.
func (s *OverdueScanner) Scan(ctx context.Context) (res *ScanResult, err error) {
	timer := prometheus.StartOperation(s.metrics, "mission.overdue_scan")
	defer func() { timer.Stop(err) }()

	today := s.today()
	overdue, err := s.repo.ListOverdueMissions(ctx, today, s.batchSize)
	if err != nil {
		return nil, err
	}
	if len(overdue) == s.batchSize {
		s.logger.Warn("overdue scan hit its batch size", logging.Int("batch_size", s.batchSize))
	}
	prometheus.SetOverdueMissions(s.metrics, len(overdue))

	res = &ScanResult{Day: today, Overdue: len(overdue)}
	fx := &effects{}
	for _, o := range overdue {
		key := fmt.Sprintf("overdue:%s:%s", o.Mission.ID, today.Format(time.DateOnly))
		if s.dedupe != nil {
			first, err := s.dedupe.FirstSeen(ctx, key, 24*time.Hour)
			if err != nil {
				s.logger.Error("overdue dedupe failed", logging.String("mission_id", o.Mission.ID), logging.Err(err))
				return nil, err
			}
			if !first {
				res.Skipped++
				continue
			}
		}
		fx.notify(overdueNotification(o, today, s.now()))
		res.Notified++
	}

	s.flush(ctx, fx)
	s.logger.Info("overdue scan finished",
		logging.String("day", today.Format(time.DateOnly)),
		logging.Int("overdue", res.Overdue),
		logging.Int("notified", res.Notified),
		logging.Int("skipped", res.Skipped))
	return res, nil
}

// Run scans every interval until ctx is done. A failed scan is logged and
// retried at the next tick.
func (s *OverdueScanner) Run(ctx context.Context, interval time.Duration) error {
	if _, err := s.Scan(ctx); err != nil {
		s.logger.Error("overdue scan failed", logging.Err(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Scan(ctx); err != nil {
				s.logger.Error("overdue scan failed", logging.Err(err))
			}
		}
	}
}

func overdueNotification(o *domain.OverdueMission, today, now time.Time) domain.Notification {
	m := o.Mission
	jours := domain.DaysBetween(o.DateLimiteRetour, today)
	short := m.ID
	if len(short) > 8 {
		short = short[:8]
	}
	return domain.Notification{
		Type:  domain.NotifyMissionEnRetard,
		Title: fmt.Sprintf("Mission en retard - %s", m.Destination),
		Message: fmt.Sprintf("La mission vers %s (#%s, BL %s) est en retard de %d jour(s). Date de retour prévue: %s. Veuillez vérifier son statut.",
			m.Destination, short, o.NumeroBL, jours, o.DateLimiteRetour.Format("02/01/2006")),
		EntityType:   domain.EntityMission,
		EntityID:     m.ID,
		EntrepriseID: o.EntrepriseID,
		Data: map[string]interface{}{
			"contrat_id":   m.ContractID,
			"numero_bl":    o.NumeroBL,
			"jours_retard": jours,
		},
		CreatedAt: now,
	}
}
