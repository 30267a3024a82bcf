package settlement

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/turtacn/TransitLedger/internal/domain/settlement"
	apperrors "github.com/turtacn/TransitLedger/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// In-memory repository
// ─────────────────────────────────────────────────────────────────────────────

// memRepo stores copies of the aggregates so that callers only see changes
// they saved. WithTx restores a snapshot when fn fails.
type memRepo struct {
	mu sync.Mutex

	contracts    map[string]domain.Contract
	missions     map[string]domain.Mission
	cautions     map[string]domain.Caution
	payments     map[string]domain.Payment
	prestations  map[string]domain.Prestation
	trucks       map[string]domain.Truck
	drivers      map[string]domain.Driver
	transitaires map[string]domain.Transitaire
	containers   map[string]domain.Container
	events       []*domain.Event
	audits       []*domain.AuditRecord

	// failOn makes the named method return the error.
	failOn map[string]error
	// lockedTrucks records LockTruck calls.
	lockedTrucks []string
}

func newMemRepo() *memRepo {
	return &memRepo{
		contracts:    map[string]domain.Contract{},
		missions:     map[string]domain.Mission{},
		cautions:     map[string]domain.Caution{},
		payments:     map[string]domain.Payment{},
		prestations:  map[string]domain.Prestation{},
		trucks:       map[string]domain.Truck{},
		drivers:      map[string]domain.Driver{},
		transitaires: map[string]domain.Transitaire{},
		containers:   map[string]domain.Container{},
		failOn:       map[string]error{},
	}
}

func (r *memRepo) fail(method string) error {
	return r.failOn[method]
}

type memSnapshot struct {
	contracts   map[string]domain.Contract
	missions    map[string]domain.Mission
	cautions    map[string]domain.Caution
	payments    map[string]domain.Payment
	prestations map[string]domain.Prestation
	containers  map[string]domain.Container
	events      int
	audits      int
}

func copyMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (r *memRepo) WithTx(ctx context.Context, fn func(domain.Repository) error) error {
	if err := r.fail("WithTx"); err != nil {
		return err
	}
	r.mu.Lock()
	snap := memSnapshot{
		contracts:   copyMap(r.contracts),
		missions:    copyMap(r.missions),
		cautions:    copyMap(r.cautions),
		payments:    copyMap(r.payments),
		prestations: copyMap(r.prestations),
		containers:  copyMap(r.containers),
		events:      len(r.events),
		audits:      len(r.audits),
	}
	r.mu.Unlock()

	if err := fn(r); err != nil {
		r.mu.Lock()
		r.contracts, r.missions, r.cautions = snap.contracts, snap.missions, snap.cautions
		r.payments, r.prestations, r.containers = snap.payments, snap.prestations, snap.containers
		r.events, r.audits = r.events[:snap.events], r.audits[:snap.audits]
		r.mu.Unlock()
		return err
	}
	return nil
}

// ── Contract ────────────────────────────────────────────────────────────────

func (r *memRepo) CreateContract(_ context.Context, c *domain.Contract) error {
	if err := r.fail("CreateContract"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.contracts {
		if existing.NumeroBL == c.NumeroBL {
			return apperrors.New(apperrors.ErrCodeDuplicateBL, "numero_bl already exists")
		}
	}
	v := *c
	v.DrainEvents()
	r.contracts[c.ID] = v
	return nil
}

func (r *memRepo) UpdateContract(_ context.Context, c *domain.Contract) error {
	if err := r.fail("UpdateContract"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	v := *c
	v.DrainEvents()
	r.contracts[c.ID] = v
	return nil
}

func (r *memRepo) GetContract(_ context.Context, id string) (*domain.Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.contracts[id]
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeContractNotFound, "contract not found")
	}
	return &v, nil
}

func (r *memRepo) DeleteContract(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.contracts, id)
	return nil
}

func (r *memRepo) CountContractDependents(_ context.Context, id string) (domain.ContractDependents, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var d domain.ContractDependents
	for _, m := range r.missions {
		if m.ContractID == id {
			d.Missions++
		}
	}
	for _, c := range r.cautions {
		if c.ContractID == id {
			d.Cautions++
		}
	}
	return d, nil
}

// ── Mission ─────────────────────────────────────────────────────────────────

func (r *memRepo) CreateMission(ctx context.Context, m *domain.Mission) error {
	return r.UpdateMission(ctx, m)
}

func (r *memRepo) UpdateMission(_ context.Context, m *domain.Mission) error {
	if err := r.fail("UpdateMission"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	v := *m
	v.DrainEvents()
	r.missions[m.ID] = v
	return nil
}

func (r *memRepo) GetMission(_ context.Context, id string) (*domain.Mission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.missions[id]
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeMissionNotFound, "mission not found")
	}
	return &v, nil
}

func (r *memRepo) ListMissionsByContract(_ context.Context, contractID string) ([]*domain.Mission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Mission
	for _, m := range r.missions {
		if m.ContractID == contractID {
			v := m
			out = append(out, &v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) findActive(match func(domain.Contract) bool, excludeContractID string) *domain.Mission {
	for _, m := range r.missions {
		if m.Statut != domain.MissionEnCours || m.ContractID == excludeContractID {
			continue
		}
		if c, ok := r.contracts[m.ContractID]; ok && match(c) {
			v := m
			return &v
		}
	}
	return nil
}

func (r *memRepo) FindActiveMissionForTruck(_ context.Context, truckID, excludeContractID string) (*domain.Mission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findActive(func(c domain.Contract) bool { return c.TruckID == truckID }, excludeContractID), nil
}

func (r *memRepo) FindActiveMissionForDriver(_ context.Context, driverID, excludeContractID string) (*domain.Mission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findActive(func(c domain.Contract) bool { return c.DriverID == driverID }, excludeContractID), nil
}

func (r *memRepo) ListOverdueMissions(_ context.Context, day time.Time, limit int) ([]*domain.OverdueMission, error) {
	if err := r.fail("ListOverdueMissions"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.OverdueMission
	for _, m := range r.missions {
		c, ok := r.contracts[m.ContractID]
		if !ok || m.Statut != domain.MissionEnCours || !c.IsOverdue(day) {
			continue
		}
		v := m
		out = append(out, &domain.OverdueMission{
			Mission:          &v,
			NumeroBL:         c.NumeroBL,
			EntrepriseID:     c.EntrepriseID,
			DateLimiteRetour: c.DateLimiteRetour,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Mission.ID < out[j].Mission.ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ── Caution ─────────────────────────────────────────────────────────────────

func (r *memRepo) CreateCaution(ctx context.Context, c *domain.Caution) error {
	return r.UpdateCaution(ctx, c)
}

func (r *memRepo) UpdateCaution(_ context.Context, c *domain.Caution) error {
	if err := r.fail("UpdateCaution"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	v := *c
	v.DrainEvents()
	r.cautions[c.ID] = v
	return nil
}

func (r *memRepo) GetCaution(_ context.Context, id string) (*domain.Caution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.cautions[id]
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeCautionNotFound, "caution not found")
	}
	return &v, nil
}

func (r *memRepo) ListCautionsByContract(_ context.Context, contractID string) ([]*domain.Caution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Caution
	for _, c := range r.cautions {
		if c.ContractID == contractID {
			v := c
			out = append(out, &v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ── Payment ─────────────────────────────────────────────────────────────────

func (r *memRepo) CreatePayment(ctx context.Context, p *domain.Payment) error {
	return r.UpdatePayment(ctx, p)
}

func (r *memRepo) UpdatePayment(_ context.Context, p *domain.Payment) error {
	if err := r.fail("UpdatePayment"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	v := *p
	v.DrainEvents()
	r.payments[p.ID] = v
	return nil
}

func (r *memRepo) GetPayment(_ context.Context, id string) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.payments[id]
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodePaymentNotFound, "payment not found")
	}
	return &v, nil
}

func (r *memRepo) ListPaymentsByMission(_ context.Context, missionID string) ([]*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Payment
	for _, p := range r.payments {
		if p.MissionID == missionID {
			v := p
			out = append(out, &v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ── Prestation ──────────────────────────────────────────────────────────────

func (r *memRepo) CreatePrestation(_ context.Context, p *domain.Prestation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := *p
	v.DrainEvents()
	r.prestations[p.ID] = v
	return nil
}

func (r *memRepo) ListPrestationsByContract(_ context.Context, contractID string) ([]*domain.Prestation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Prestation
	for _, p := range r.prestations {
		if p.ContractID == contractID {
			v := p
			out = append(out, &v)
		}
	}
	return out, nil
}

// ── Resources ───────────────────────────────────────────────────────────────

func (r *memRepo) LockTruck(_ context.Context, id string) (*domain.Truck, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lockedTrucks = append(r.lockedTrucks, id)
	v, ok := r.trucks[id]
	if !ok {
		return nil, apperrors.NotFound("camion introuvable")
	}
	return &v, nil
}

func (r *memRepo) LockDriver(_ context.Context, id string) (*domain.Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.drivers[id]
	if !ok {
		return nil, apperrors.NotFound("chauffeur introuvable")
	}
	return &v, nil
}

func (r *memRepo) GetTransitaire(_ context.Context, id string) (*domain.Transitaire, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.transitaires[id]
	if !ok {
		return nil, apperrors.NotFound("transitaire introuvable")
	}
	return &v, nil
}

func (r *memRepo) GetContainer(_ context.Context, id string) (*domain.Container, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.containers[id]
	if !ok {
		return nil, apperrors.NotFound("conteneur introuvable")
	}
	return &v, nil
}

func (r *memRepo) UpdateContainer(_ context.Context, c *domain.Container) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.containers[c.ID] = *c
	return nil
}

// ── Events & audit ──────────────────────────────────────────────────────────

func (r *memRepo) AppendEvents(_ context.Context, events []*domain.Event) error {
	if err := r.fail("AppendEvents"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *memRepo) ListEvents(_ context.Context, entity domain.EntityType, id string) ([]*domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Event
	for _, e := range r.events {
		if e.EntityType == entity && e.EntityID() == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memRepo) CreateAuditRecord(_ context.Context, rec *domain.AuditRecord) error {
	if err := r.fail("CreateAuditRecord"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audits = append(r.audits, rec)
	return nil
}

func (r *memRepo) eventTypes(entity domain.EntityType, id string) []domain.EventType {
	events, _ := r.ListEvents(context.Background(), entity, id)
	out := make([]domain.EventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.EventType)
	}
	return out
}

func (r *memRepo) auditActions() []domain.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuditAction, 0, len(r.audits))
	for _, a := range r.audits {
		out = append(out, a.Action)
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Locker, publisher, clock
// ─────────────────────────────────────────────────────────────────────────────

type fakeLocker struct {
	mu       sync.Mutex
	acquired [][]string
	released int
	err      error
}

func (l *fakeLocker) Acquire(_ context.Context, _ time.Duration, keys ...string) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.acquired = append(l.acquired, keys)
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.released++
		return nil
	}, nil
}

type fakePublisher struct {
	mu            sync.Mutex
	notifications []domain.Notification
	audits        []domain.AuditRecord
	err           error
}

func (p *fakePublisher) PublishNotification(_ context.Context, n domain.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifications = append(p.notifications, n)
	return p.err
}

func (p *fakePublisher) PublishAudit(_ context.Context, rec domain.AuditRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audits = append(p.audits, rec)
	return p.err
}

func (p *fakePublisher) types() []domain.NotificationType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.NotificationType, 0, len(p.notifications))
	for _, n := range p.notifications {
		out = append(out, n.Type)
	}
	return out
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fakeDedupe struct {
	seen map[string]bool
	err  error
}

func (d *fakeDedupe) FirstSeen(_ context.Context, key string, _ time.Duration) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	if d.seen == nil {
		d.seen = map[string]bool{}
	}
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Fixture
// ─────────────────────────────────────────────────────────────────────────────

type fixture struct {
	repo      *memRepo
	locker    *fakeLocker
	publisher *fakePublisher
	deps      Deps
	contracts ContractService
	missions  MissionService
	payments  PaymentService
}

// fixtureNow is Monday 2025-03-03, 10:00 UTC.
var fixtureNow = time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

func newFixture() *fixture {
	repo := newMemRepo()
	repo.trucks["truck-1"] = domain.Truck{ID: "truck-1", Immatriculation: "AB-123-CD"}
	repo.trucks["truck-2"] = domain.Truck{ID: "truck-2", Immatriculation: "EF-456-GH"}
	repo.drivers["driver-1"] = domain.Driver{ID: "driver-1", Nom: "Traoré", Prenom: "Moussa"}
	repo.drivers["driver-2"] = domain.Driver{ID: "driver-2", Nom: "Diallo", Prenom: "Awa"}
	repo.transitaires["tr-1"] = domain.Transitaire{ID: "tr-1", Nom: "Transit SA", CommissionPercentage: decimal.NewFromInt(10)}
	repo.containers["cont-1"] = domain.Container{ID: "cont-1", NumeroConteneur: "MSCU1234567", Statut: domain.ContainerAuPort}
	repo.containers["cont-2"] = domain.Container{ID: "cont-2", NumeroConteneur: "MSCU7654321", Statut: domain.ContainerAuPort}

	var n int
	f := &fixture{repo: repo, locker: &fakeLocker{}, publisher: &fakePublisher{}}
	f.deps = Deps{
		Repo:      repo,
		Locker:    f.locker,
		Publisher: f.publisher,
		Policy:    domain.DefaultPolicy(),
		Clock:     fixedClock{t: fixtureNow},
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%03d", n)
		},
	}
	f.contracts = NewContractService(f.deps)
	f.missions = NewMissionService(f.deps)
	f.payments = NewPaymentService(f.deps)
	return f
}

func contractInput(bl string) CreateContractInput {
	return CreateContractInput{
		NumeroBL:        bl,
		EntrepriseID:    "ent-1",
		TruckID:         "truck-1",
		DriverID:        "driver-1",
		ClientID:        "client-1",
		TransitaireID:   "tr-1",
		ContainerID:     "cont-1",
		LieuChargement:  "Dakar",
		Destinataire:    "Bamako",
		MontantTotal:    decimal.NewFromInt(1000000),
		AvanceTransport: decimal.NewFromInt(300000),
		Caution:         decimal.NewFromInt(200000),
		DateDebut:       domain.NewDate(2025, 2, 3),
	}
}

var testMeta = domain.RequestMeta{Actor: "ops@transit.ml", IPAddress: "10.0.0.7", UserAgent: "test"}
