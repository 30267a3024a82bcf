package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/turtacn/TransitLedger/internal/domain/settlement"
	"github.com/turtacn/TransitLedger/internal/testutil"
)

// ctxPublisher records the context state seen at delivery time.
type ctxPublisher struct {
	fakePublisher
	ctxErrs     []error
	hasDeadline []bool
	batchCalls  int
	batchNotifs int
	batchAudits int
	batchErr    error
}

func (p *ctxPublisher) seen(ctx context.Context) {
	_, ok := ctx.Deadline()
	p.ctxErrs = append(p.ctxErrs, ctx.Err())
	p.hasDeadline = append(p.hasDeadline, ok)
}

func (p *ctxPublisher) PublishNotification(ctx context.Context, n domain.Notification) error {
	p.seen(ctx)
	return p.fakePublisher.PublishNotification(ctx, n)
}

func (p *ctxPublisher) PublishAudit(ctx context.Context, rec domain.AuditRecord) error {
	p.seen(ctx)
	return p.fakePublisher.PublishAudit(ctx, rec)
}

type batchingPublisher struct {
	*ctxPublisher
}

func (p batchingPublisher) PublishBatch(ctx context.Context, notifications []domain.Notification, audits []domain.AuditRecord) error {
	p.seen(ctx)
	p.batchCalls++
	p.batchNotifs += len(notifications)
	p.batchAudits += len(audits)
	return p.batchErr
}

func sampleEffects() *effects {
	fx := &effects{}
	fx.notify(domain.Notification{Type: domain.NotifyMissionAnnulee, EntityID: "m-1"})
	fx.audits = append(fx.audits, domain.AuditRecord{Action: domain.AuditAnnulerMission, EntityID: "m-1"})
	return fx
}

// ─────────────────────────────────────────────────────────────────────────────
// flush
// ─────────────────────────────────────────────────────────────────────────────

func TestFlush_OutlivesCancelledRequest(t *testing.T) {
	pub := &ctxPublisher{}
	b := newBase(Deps{Repo: newMemRepo(), Publisher: pub}, "test")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b.flush(ctx, sampleEffects())

	require.Len(t, pub.ctxErrs, 2)
	for i := range pub.ctxErrs {
		assert.NoError(t, pub.ctxErrs[i], "a client disconnect must not drop committed effects")
		assert.True(t, pub.hasDeadline[i], "delivery is bounded")
	}
	assert.Len(t, pub.notifications, 1)
	assert.Len(t, pub.audits, 1)
}

func TestFlush_PrefersBatch(t *testing.T) {
	pub := batchingPublisher{&ctxPublisher{}}
	b := newBase(Deps{Repo: newMemRepo(), Publisher: pub}, "test")

	b.flush(context.Background(), sampleEffects())

	assert.Equal(t, 1, pub.batchCalls)
	assert.Equal(t, 1, pub.batchNotifs)
	assert.Equal(t, 1, pub.batchAudits)
	assert.Empty(t, pub.notifications, "single-record methods are not used")
	assert.Empty(t, pub.audits)
}

func TestFlush_BatchFailureIsLogged(t *testing.T) {
	logger := testutil.NewMockLogger()
	pub := batchingPublisher{&ctxPublisher{batchErr: errors.New("broker down")}}
	b := newBase(Deps{Repo: newMemRepo(), Publisher: pub, Logger: logger}, "test")

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	b.flush(ctx, sampleEffects())

	assert.NoError(t, pub.ctxErrs[0])
	assert.True(t, logger.HasMessage("warn", "settlement effects not delivered"))
}

func TestFlush_NothingToSend(t *testing.T) {
	pub := batchingPublisher{&ctxPublisher{}}
	b := newBase(Deps{Repo: newMemRepo(), Publisher: pub}, "test")

	b.flush(context.Background(), &effects{})
	assert.Zero(t, pub.batchCalls)
}
