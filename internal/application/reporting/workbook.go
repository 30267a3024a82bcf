package reporting

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	domain "github.com/turtacn/TransitLedger/internal/domain/settlement"
	apperrors "github.com/turtacn/TransitLedger/pkg/errors"
)

// Sheet names of the settlement workbook.
const (
	SheetContrat    = "Contrat"
	SheetMissions   = "Missions"
	SheetCautions   = "Cautions"
	SheetPaiements  = "Paiements"
	SheetHistorique = "Historique"
)

const dateLayout = "02/01/2006"

// MissionLine is a mission with the demurrage computed at export time.
type MissionLine struct {
	Mission   *domain.Mission
	Demurrage domain.DemurrageResult
}

// SettlementData is everything rendered into one workbook.
type SettlementData struct {
	Contract    *domain.Contract
	Missions    []MissionLine
	Cautions    []*domain.Caution
	Payments    []*domain.Payment
	Events      []*domain.Event
	GeneratedAt time.Time
	GeneratedBy string
}

// RenderWorkbook writes data as an XLSX document.
func RenderWorkbook(data *SettlementData) ([]byte, error) {
	if data == nil || data.Contract == nil {
		return nil, apperrors.New(apperrors.ErrCodeExportFailed, "nothing to export")
	}
	f := excelize.NewFile()
	defer f.Close()

	w := &workbook{f: f}
	if err := f.SetSheetName("Sheet1", SheetContrat); err != nil {
		return nil, w.fail(err)
	}
	for _, name := range []string{SheetMissions, SheetCautions, SheetPaiements, SheetHistorique} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, w.fail(err)
		}
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, w.fail(err)
	}
	w.header = bold

	w.contract(data)
	w.missions(data.Missions)
	w.cautions(data.Cautions)
	w.payments(data.Payments)
	w.history(data.Events)
	if w.err != nil {
		return nil, w.fail(w.err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, w.fail(err)
	}
	return buf.Bytes(), nil
}

// workbook accumulates the first write error so the sheet builders stay
// linear.
type workbook struct {
	f      *excelize.File
	header int
	err    error
}

func (w *workbook) fail(err error) error {
	return apperrors.Wrap(err, apperrors.ErrCodeExportFailed, "failed to render workbook")
}

func (w *workbook) row(sheet string, n int, values ...interface{}) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		w.err = err
		return
	}
	w.err = w.f.SetSheetRow(sheet, cell, &values)
}

func (w *workbook) table(sheet string, headers []string) {
	if w.err != nil {
		return
	}
	values := make([]interface{}, len(headers))
	for i, h := range headers {
		values[i] = h
	}
	w.row(sheet, 1, values...)
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		w.err = err
		return
	}
	if w.err == nil {
		w.err = w.f.SetCellStyle(sheet, "A1", last, w.header)
	}
	if w.err == nil {
		end, _ := excelize.ColumnNumberToName(len(headers))
		w.err = w.f.SetColWidth(sheet, "A", end, 20)
	}
}

func (w *workbook) contract(d *SettlementData) {
	c := d.Contract
	lines := [][]interface{}{
		{"Numéro BL", c.NumeroBL},
		{"Statut", string(c.Statut)},
		{"Statut caution", string(c.CautionHold)},
		{"Destinataire", c.Destinataire},
		{"Lieu de chargement", c.LieuChargement},
		{"Date de début", day(c.DateDebut)},
		{"Date limite de retour", day(c.DateLimiteRetour)},
		{"Montant total", amount(c.MontantTotal)},
		{"Avance transport", amount(c.AvanceTransport)},
		{"Reliquat transport", amount(c.ReliquatTransport)},
		{"Caution", amount(c.Caution)},
		{"Frais de stationnement", amount(totalDemurrage(d.Missions))},
		{"Généré le", d.GeneratedAt.Format("02/01/2006 15:04")},
		{"Généré par", d.GeneratedBy},
	}
	for i, l := range lines {
		w.row(SheetContrat, i+1, l...)
	}
	if w.err == nil {
		w.err = w.f.SetCellStyle(SheetContrat, "A1", "A14", w.header)
	}
	if w.err == nil {
		w.err = w.f.SetColWidth(SheetContrat, "A", "B", 28)
	}
}

func (w *workbook) missions(lines []MissionLine) {
	w.table(SheetMissions, []string{
		"ID", "Origine", "Destination", "Statut", "Date départ", "Date retour",
		"Arrivée", "Déchargement", "Jours facturables", "Stationnement", "Détail",
	})
	for i, l := range lines {
		m := l.Mission
		w.row(SheetMissions, i+2,
			m.ID, m.Origine, m.Destination, string(m.Statut), day(m.DateDepart), dayPtr(m.DateRetour),
			dayPtr(m.DateArrivee), dayPtr(m.DateDechargement),
			l.Demurrage.JoursFacturables, amount(l.Demurrage.Montant), l.Demurrage.Message)
	}
}

func (w *workbook) cautions(cautions []*domain.Caution) {
	w.table(SheetCautions, []string{"ID", "Montant", "Statut", "Montant remboursé"})
	for i, c := range cautions {
		w.row(SheetCautions, i+2, c.ID, amount(c.Montant), c.Statut.Label(), amount(c.MontantRembourser))
	}
}

func (w *workbook) payments(payments []*domain.Payment) {
	w.table(SheetPaiements, []string{
		"ID", "Mission", "Montant total", "Commission", "Stationnement", "Statut", "Validé le", "Caution à la validation",
	})
	for i, p := range payments {
		snapshot := ""
		if p.CautionSnapshot != nil {
			snapshot = p.CautionSnapshot.Statut.Label()
		}
		w.row(SheetPaiements, i+2,
			p.ID, p.MissionID, amount(p.MontantTotal), amount(p.CommissionTransitaire),
			amount(p.FraisStationnement), string(p.StatutPaiement), dayPtr(p.DateValidation), snapshot)
	}
}

func (w *workbook) history(events []*domain.Event) {
	sorted := append([]*domain.Event(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	w.table(SheetHistorique, []string{"Date", "Entité", "ID", "Événement", "Acteur"})
	for i, e := range sorted {
		w.row(SheetHistorique, i+2,
			e.Timestamp.Format("02/01/2006 15:04"), string(e.EntityType), e.AggID, string(e.EventType), e.Actor)
	}
}

func totalDemurrage(lines []MissionLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Demurrage.Montant)
	}
	return total
}

func amount(d decimal.Decimal) float64 {
	return d.Round(0).InexactFloat64()
}

func day(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func dayPtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return day(*t)
}
