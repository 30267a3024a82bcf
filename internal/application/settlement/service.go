// Package settlement orchestrates the settlement workflow: contract creation
// and its generated records, the mission state machine, the cancellation
// cascades, caution handling and the payment validation gate. Every
// operation runs in one repository transaction; notifications and audit
// records are published once the transaction has committed.
package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"

	domain "github.com/turtacn/TransitLedger/internal/domain/settlement"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/prometheus"
)

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// Locker takes exclusive locks on named resources across processes.
type Locker interface {
	Acquire(ctx context.Context, ttl time.Duration, keys ...string) (func(context.Context) error, error)
}

// Publisher delivers notifications and audit records to downstream
// consumers.
type Publisher interface {
	PublishNotification(ctx context.Context, n domain.Notification) error
	PublishAudit(ctx context.Context, rec domain.AuditRecord) error
}

// BatchPublisher is implemented by publishers that deliver everything one
// operation emitted in a single write. flush prefers it when available.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, notifications []domain.Notification, audits []domain.AuditRecord) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type nopPublisher struct{}

func (nopPublisher) PublishNotification(context.Context, domain.Notification) error { return nil }
func (nopPublisher) PublishAudit(context.Context, domain.AuditRecord) error         { return nil }

// localLocker is used when no distributed locker is configured. The row
// locks taken inside the transaction still serialize writers.
type localLocker struct{}

func (localLocker) Acquire(context.Context, time.Duration, ...string) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}

// ---------------------------------------------------------------------------
// Dependencies
// ---------------------------------------------------------------------------

// Deps groups the collaborators shared by the settlement services. Repo and
// Logger are required; the other fields fall back to working defaults.
type Deps struct {
	Repo      domain.Repository
	Locker    Locker
	Publisher Publisher
	Policy    domain.Policy
	LockTTL   time.Duration
	Clock     Clock
	Logger    logging.Logger
	Metrics   *prometheus.AppMetrics
	NewID     func() string
}

const (
	// DefaultLockTTL bounds how long a truck or driver lock may be held.
	DefaultLockTTL = 10 * time.Second

	// publishTimeout bounds post-commit delivery, which outlives the request.
	publishTimeout = 5 * time.Second
)

// base carries the resolved dependencies and the helpers every service uses.
type base struct {
	repo      domain.Repository
	locker    Locker
	publisher Publisher
	policy    domain.Policy
	calc      *domain.DemurrageCalculator
	lockTTL   time.Duration
	clock     Clock
	logger    logging.Logger
	metrics   *prometheus.AppMetrics
	newID     func() string
}

func newBase(d Deps, name string) base {
	b := base{
		repo:      d.Repo,
		locker:    d.Locker,
		publisher: d.Publisher,
		policy:    d.Policy,
		lockTTL:   d.LockTTL,
		clock:     d.Clock,
		logger:    d.Logger,
		metrics:   d.Metrics,
		newID:     d.NewID,
	}
	if b.locker == nil {
		b.locker = localLocker{}
	}
	if b.publisher == nil {
		b.publisher = nopPublisher{}
	}
	if b.policy.DemurrageRate.IsZero() && b.policy.FreeDays == 0 {
		b.policy = domain.DefaultPolicy()
	}
	if b.policy.Location == nil {
		b.policy.Location = time.UTC
	}
	if b.lockTTL <= 0 {
		b.lockTTL = DefaultLockTTL
	}
	if b.clock == nil {
		b.clock = systemClock{}
	}
	if b.logger == nil {
		b.logger = logging.NewNopLogger()
	}
	if b.newID == nil {
		b.newID = uuid.NewString
	}
	b.logger = b.logger.Named(name)
	b.calc = domain.NewDemurrageCalculator(b.policy)
	return b
}

func (b *base) now() time.Time { return b.clock.Now().UTC() }

func (b *base) today() time.Time { return b.policy.Today(b.clock.Now()) }

// ---------------------------------------------------------------------------
// Post-commit effects
// ---------------------------------------------------------------------------

// effects collects what must leave the process once the transaction commits.
type effects struct {
	audits        []domain.AuditRecord
	notifications []domain.Notification
}

func (f *effects) notify(n domain.Notification) {
	f.notifications = append(f.notifications, n)
}

// audit writes an audit record inside tx and queues it for publication.
func (b *base) audit(ctx context.Context, tx domain.Repository, fx *effects, meta domain.RequestMeta,
	action domain.AuditAction, entity domain.EntityType, entityID, representation string,
	changes map[string]interface{}) error {
	rec := domain.AuditRecord{
		ID:             b.newID(),
		Actor:          meta.ActorOrSystem(),
		Action:         action,
		EntityType:     entity,
		EntityID:       entityID,
		Representation: representation,
		Changes:        changes,
		IPAddress:      meta.IPAddress,
		UserAgent:      meta.UserAgent,
		Timestamp:      b.now(),
	}
	if err := tx.CreateAuditRecord(ctx, &rec); err != nil {
		return err
	}
	fx.audits = append(fx.audits, rec)
	return nil
}

// flush publishes the collected effects. The operation has committed by
// then, so delivery is detached from the caller's cancellation; failures are
// logged and never undo it.
func (b *base) flush(ctx context.Context, fx *effects) {
	if len(fx.notifications) == 0 && len(fx.audits) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	for _, n := range fx.notifications {
		prometheus.RecordNotification(b.metrics, string(n.Type))
	}
	if bp, ok := b.publisher.(BatchPublisher); ok {
		if err := bp.PublishBatch(ctx, fx.notifications, fx.audits); err != nil {
			b.logger.Warn("settlement effects not delivered",
				logging.Int("notifications", len(fx.notifications)),
				logging.Int("audits", len(fx.audits)),
				logging.Err(err))
		}
		return
	}

	for _, n := range fx.notifications {
		if err := b.publisher.PublishNotification(ctx, n); err != nil {
			b.logger.Warn("notification not delivered",
				logging.String("type", string(n.Type)),
				logging.String("entity_id", n.EntityID),
				logging.Err(err))
		}
	}
	for _, rec := range fx.audits {
		if err := b.publisher.PublishAudit(ctx, rec); err != nil {
			b.logger.Warn("audit record not delivered",
				logging.String("action", string(rec.Action)),
				logging.String("entity_id", rec.EntityID),
				logging.Err(err))
		}
	}
}

// appendEvents drains the sources and stores their events in tx. Callers
// only pass non-nil aggregates.
func appendEvents(ctx context.Context, tx domain.Repository, actor string, sources ...domain.EventSource) error {
	events := domain.Drain(actor, sources...)
	if len(events) == 0 {
		return nil
	}
	return tx.AppendEvents(ctx, events)
}

func dateString(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateOnly)
}
