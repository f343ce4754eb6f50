package conversation

import (
	"github.com/kapu/phantom-panel/internal/domain"
	"github.com/kapu/phantom-panel/internal/util"
)

const (
	MetricPurchaseIntent    = "purchase_intent"
	MetricCredibilityRating = "credibility_rating"
)

// ViewShifts lists the tracked metrics that changed between two responses.
// Unchanged metrics produce no shift.
func ViewShifts(persona *domain.PersonaContext, before, after *domain.PersonaResponse) []domain.ViewShift {
	if before == nil || after == nil {
		return nil
	}
	metrics := []struct {
		name          string
		before, after int
	}{
		{MetricPurchaseIntent, before.PurchaseIntent, after.PurchaseIntent},
		{MetricCredibilityRating, before.CredibilityRating, after.CredibilityRating},
	}

	var shifts []domain.ViewShift
	for _, m := range metrics {
		if m.before == m.after {
			continue
		}
		shifts = append(shifts, domain.ViewShift{
			PersonaID:   persona.ID,
			PersonaName: persona.DisplayName(),
			Metric:      m.name,
			Before:      m.before,
			After:       m.after,
		})
	}
	return shifts
}

// ComputeImpact derives the moderation summary. A clarified persona counts
// as salvaged when any tracked metric improved, even if another declined.
func ComputeImpact(clarifiedPersonaIDs []string, shifts []domain.ViewShift) domain.ModerationImpact {
	clarified := util.SortedUnique(clarifiedPersonaIDs)
	isClarified := make(map[string]bool, len(clarified))
	for _, id := range clarified {
		isClarified[id] = true
	}

	salvaged := make(map[string]bool)
	for _, s := range shifts {
		if isClarified[s.PersonaID] && s.Improved() {
			salvaged[s.PersonaID] = true
		}
	}

	impact := domain.ModerationImpact{
		PersonasClarified: len(clarified),
		PersonasSalvaged:  len(salvaged),
		ViewShifts:        shifts,
	}
	if impact.ViewShifts == nil {
		impact.ViewShifts = []domain.ViewShift{}
	}
	if len(clarified) > 0 {
		impact.SalvageRate = util.RoundTo(float64(len(salvaged))/float64(len(clarified))*100, 2)
	}
	return impact
}
