// Package reporting renders a contract and its settlement records to an
// XLSX workbook, stores it in the exports bucket and hands back a
// time-limited download link.
package reporting

import (
	"context"
	"fmt"
	"regexp"
	"time"

	domain "github.com/turtacn/TransitLedger/internal/domain/settlement"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/prometheus"
	storage "github.com/turtacn/TransitLedger/internal/infrastructure/storage/minio"
)

// ContentTypeXLSX is the media type of the generated workbooks.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// DefaultLinkExpiry bounds the validity of download links.
const DefaultLinkExpiry = 15 * time.Minute

// ExportResult locates a stored export.
type ExportResult struct {
	ObjectKey string    `json:"object_key"`
	URL       string    `json:"url"`
	Size      int64     `json:"size"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExportService exports settlement records.
type ExportService interface {
	ExportContract(ctx context.Context, contractID string, meta domain.RequestMeta) (*ExportResult, error)
}

// Deps groups the collaborators of the export service.
type Deps struct {
	Repo       domain.Repository
	Store      storage.ExportStore
	Policy     domain.Policy
	LinkExpiry time.Duration
	Logger     logging.Logger
	Metrics    *prometheus.AppMetrics
	Now        func() time.Time
}

type exportService struct {
	repo    domain.Repository
	store   storage.ExportStore
	policy  domain.Policy
	calc    *domain.DemurrageCalculator
	expiry  time.Duration
	logger  logging.Logger
	metrics *prometheus.AppMetrics
	now     func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(d Deps) ExportService {
	if d.LinkExpiry <= 0 {
		d.LinkExpiry = DefaultLinkExpiry
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = logging.NewNopLogger()
	}
	if d.Policy.Location == nil {
		d.Policy = domain.DefaultPolicy()
	}
	return &exportService{
		repo:    d.Repo,
		store:   d.Store,
		policy:  d.Policy,
		calc:    domain.NewDemurrageCalculator(d.Policy),
		expiry:  d.LinkExpiry,
		logger:  d.Logger.Named("export"),
		metrics: d.Metrics,
		now:     d.Now,
	}
}

func (s *exportService) ExportContract(ctx context.Context, contractID string, meta domain.RequestMeta) (res *ExportResult, err error) {
	defer func() { prometheus.RecordExport(s.metrics, err) }()

	data, err := s.collect(ctx, contractID, meta)
	if err != nil {
		return nil, err
	}
	content, err := RenderWorkbook(data)
	if err != nil {
		s.logger.Error("workbook rendering failed", logging.String("contract_id", contractID), logging.Err(err))
		return nil, err
	}

	key := ObjectKey(data.Contract, data.GeneratedAt)
	up, err := s.store.Upload(ctx, &storage.UploadRequest{
		ObjectKey:   key,
		Data:        content,
		ContentType: ContentTypeXLSX,
		Metadata: map[string]string{
			"contrat-id":  data.Contract.ID,
			"numero-bl":   data.Contract.NumeroBL,
			"exporte-par": meta.ActorOrSystem(),
		},
	})
	if err != nil {
		return nil, err
	}
	url, err := s.store.PresignedURL(ctx, key, s.expiry)
	if err != nil {
		return nil, err
	}

	s.logger.Info("contract exported",
		logging.String("contract_id", contractID),
		logging.String("object_key", key),
		logging.Int64("size", up.Size))
	return &ExportResult{ObjectKey: key, URL: url, Size: up.Size, ExpiresAt: data.GeneratedAt.Add(s.expiry)}, nil
}

func (s *exportService) collect(ctx context.Context, contractID string, meta domain.RequestMeta) (*SettlementData, error) {
	c, err := s.repo.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	missions, err := s.repo.ListMissionsByContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	cautions, err := s.repo.ListCautionsByContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	events, err := s.repo.ListEvents(ctx, domain.EntityContract, contractID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	today := s.policy.Today(now)
	data := &SettlementData{
		Contract:    c,
		Cautions:    cautions,
		GeneratedAt: now,
		GeneratedBy: meta.ActorOrSystem(),
	}
	for _, m := range missions {
		data.Missions = append(data.Missions, MissionLine{Mission: m, Demurrage: m.Demurrage(s.calc, today)})
		payments, err := s.repo.ListPaymentsByMission(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		data.Payments = append(data.Payments, payments...)

		mEvents, err := s.repo.ListEvents(ctx, domain.EntityMission, m.ID)
		if err != nil {
			return nil, err
		}
		events = append(events, mEvents...)
	}
	for _, p := range data.Payments {
		pEvents, err := s.repo.ListEvents(ctx, domain.EntityPayment, p.ID)
		if err != nil {
			return nil, err
		}
		events = append(events, pEvents...)
	}
	data.Events = events
	return data, nil
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// ObjectKey names the stored workbook of c generated at t.
func ObjectKey(c *domain.Contract, t time.Time) string {
	bl := unsafeKeyChars.ReplaceAllString(c.NumeroBL, "_")
	return fmt.Sprintf("contrats/%s/%s-%s.xlsx", bl, c.ID, t.UTC().Format("20060102T150405Z"))
}
