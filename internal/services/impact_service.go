package services

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
	"github.com/tbourn/ecoprenda-backend/internal/impact"
	"github.com/tbourn/ecoprenda-backend/internal/repo"
)

// platformWaterPerCarbonKg converts platform-wide carbon into water litres.
const platformWaterPerCarbonKg = 500

// ImpactSummary is a figure triple with its everyday equivalences.
type ImpactSummary struct {
	Figures      impact.Figures      `json:"figures"`
	Equivalences impact.Equivalences `json:"equivalences"`
	Phrases      []string            `json:"phrases"`
	Transactions int64               `json:"transactions"`
}

func summarize(f impact.Figures, n int64) ImpactSummary {
	f = f.Rounded()
	eq := impact.Equivalent(f)
	return ImpactSummary{Figures: f, Equivalences: eq, Phrases: impact.Describe(eq), Transactions: n}
}

// Calculation is the answer of the impact calculator.
type Calculation struct {
	Category domain.Category `json:"category"`
	WeightKg *float64        `json:"weight_kg,omitempty"`
	ImpactSummary
	Transport *impact.Figures `json:"transport,omitempty"`
}

// ReportScope selects whose completed transactions a Report covers.
type ReportScope string

const (
	ScopeUser       ReportScope = "user"
	ScopeFoundation ReportScope = "foundation"
	ScopeGlobal     ReportScope = "global"
)

// TypeBreakdown is the share of one transaction type in a report.
type TypeBreakdown struct {
	Count   int64          `json:"count"`
	Figures impact.Figures `json:"figures"`
}

// Report is an impact summary broken down by transaction type.
type Report struct {
	Scope ReportScope `json:"scope"`
	ID    uint        `json:"id,omitempty"`
	ImpactSummary
	ByType map[domain.TxType]TypeBreakdown `json:"by_type"`
}

// ImpactService aggregates stored impact records.
type ImpactService struct {
	DB *gorm.DB
}

// Calculate evaluates a hypothetical garment. courier is optional and adds
// the estimated transport emissions.
func (s *ImpactService) Calculate(category string, weightKg *float64, courier string) (*Calculation, error) {
	c, ok := domain.ParseCategory(category)
	if !ok {
		return nil, invalid("unknown category %q", category)
	}
	if weightKg != nil && *weightKg < 0 {
		return nil, invalid("weight must be >= 0")
	}
	out := &Calculation{Category: c, WeightKg: weightKg, ImpactSummary: summarize(impact.ForCategory(c, weightKg), 0)}
	if courier = strings.TrimSpace(courier); courier != "" {
		t := impact.Transport(courier)
		out.Transport = &t
	}
	return out, nil
}

// rowFigures returns the stored figures of a completed row, recomputing them
// from the category when the listing has no record.
func rowFigures(r repo.CompletedImpactRow) impact.Figures {
	if r.CarbonKg != nil && r.EnergyKWh != nil && r.WaterL != nil {
		return impact.Figures{CarbonKg: *r.CarbonKg, EnergyKWh: *r.EnergyKWh, WaterL: *r.WaterL}
	}
	return impact.ForCategory(r.Category, r.WeightKg)
}

// UserTotals sums the impact of the completed transactions userID originated.
func (s *ImpactService) UserTotals(ctx context.Context, userID uint) (*ImpactSummary, error) {
	tr := otel.Tracer("services/ImpactService")
	ctx, span := tr.Start(ctx, "UserTotals",
		trace.WithAttributes(attribute.Int64("user.id", int64(userID))),
	)
	defer span.End()

	rows, err := repo.ListCompletedImpact(ctx, s.DB, repo.ImpactScope{OriginUserID: userID})
	if err != nil {
		return nil, err
	}
	var total impact.Figures
	for _, r := range rows {
		total = total.Add(rowFigures(r))
	}
	sum := summarize(total, int64(len(rows)))
	return &sum, nil
}

// PlatformTotals sums every stored impact record. Water is derived from
// carbon at a fixed platform ratio.
func (s *ImpactService) PlatformTotals(ctx context.Context) (*ImpactSummary, error) {
	tr := otel.Tracer("services/ImpactService")
	ctx, span := tr.Start(ctx, "PlatformTotals")
	defer span.End()

	t, err := repo.SumAllImpact(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	completed, err := repo.CountCompleted(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	f := impact.Figures{CarbonKg: t.CarbonKg, EnergyKWh: t.EnergyKWh, WaterL: t.CarbonKg * platformWaterPerCarbonKg}
	sum := summarize(f, completed)
	return &sum, nil
}

// Report builds a per-type breakdown for one user, one foundation, or the
// whole platform. Users may see their own report; foundation reports are for
// the representative; administrators and moderators see everything.
func (s *ImpactService) Report(ctx context.Context, actor domain.Actor, scope ReportScope, id uint) (*Report, error) {
	tr := otel.Tracer("services/ImpactService")
	ctx, span := tr.Start(ctx, "Report",
		trace.WithAttributes(
			attribute.String("scope", string(scope)),
			attribute.Int64("scope.id", int64(id)),
		),
	)
	defer span.End()

	var q repo.ImpactScope
	switch scope {
	case ScopeUser:
		if id == 0 {
			id = actor.UserID
		}
		if id != actor.UserID && !actor.IsModerator() {
			return nil, denied("you can only see your own impact report")
		}
		q.OriginUserID = id
	case ScopeFoundation:
		if !actor.IsModerator() && !actor.Represents(&id) {
			return nil, denied("only the foundation representative can see this report")
		}
		if _, err := repo.GetFoundation(ctx, s.DB, id); err != nil {
			return nil, mapNotFound(err, ErrFoundationNotFound)
		}
		q.FoundationID = id
	case ScopeGlobal:
		id = 0
	default:
		return nil, invalid("scope must be user, foundation or global")
	}

	rows, err := repo.ListCompletedImpact(ctx, s.DB, q)
	if err != nil {
		return nil, err
	}
	var total impact.Figures
	by := map[domain.TxType]TypeBreakdown{}
	for _, t := range domain.TxTypes {
		by[t.Code] = TypeBreakdown{}
	}
	for _, r := range rows {
		f := rowFigures(r)
		total = total.Add(f)
		b := by[r.TypeCode]
		b.Count++
		b.Figures = b.Figures.Add(f).Rounded()
		by[r.TypeCode] = b
	}
	return &Report{Scope: scope, ID: id, ImpactSummary: summarize(total, int64(len(rows))), ByType: by}, nil
}
