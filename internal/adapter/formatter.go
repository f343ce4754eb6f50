package adapter

import (
	"fmt"

	"github.com/kapu/phantom-panel/internal/domain"
	"github.com/kapu/phantom-panel/internal/util"
)

// summaryData feeds the "summary" template.
type summaryData struct {
	TestID     string
	Status     string
	Responded  int
	Failed     int
	Analysis   *domain.AggregatedAnalysis
	Moderation domain.ModerationImpact
	Clarified  bool
	Usage      domain.UsageSummary

	// Interventions counts probe, clarification and draw-out turns.
	Interventions int
}

// ReportFormatter renders test results as plain text for terminals and logs.
type ReportFormatter struct {
	maxTurnRunes int
}

// NewReportFormatter creates a formatter. maxTurnRunes <= 0 disables
// truncation of turn content.
func NewReportFormatter(maxTurnRunes int) *ReportFormatter {
	return &ReportFormatter{maxTurnRunes: maxTurnRunes}
}

// FormatSummary renders the headline scores, verdict and cost.
func (f *ReportFormatter) FormatSummary(r *domain.TestResult) string {
	if r == nil {
		return "No result."
	}
	data := summaryData{
		TestID:     r.TestID,
		Status:     string(r.Status),
		Responded:  len(r.Responses),
		Failed:     len(r.Failures),
		Analysis:   r.Analysis,
		Moderation: r.Moderation,
		Clarified:  r.Moderation.PersonasClarified > 0,
		Usage:      r.Usage,
	}
	for _, t := range r.Turns {
		if t.Type.IsModeratorIntervention() {
			data.Interventions++
		}
	}
	out, err := executeFormatterTemplate("summary", data)
	if err != nil {
		return fmt.Sprintf("Test %s: %s (report unavailable: %v)", r.TestID, r.Status, err)
	}
	return out
}

// FormatTranscript renders turns in order, one block per turn.
func (f *ReportFormatter) FormatTranscript(turns []domain.ConversationTurn) string {
	if len(turns) == 0 {
		return "No conversation turns."
	}
	view := make([]domain.ConversationTurn, len(turns))
	for i, t := range turns {
		t.Content = f.truncate(t.Content)
		view[i] = t
	}
	out, err := executeFormatterTemplate("transcript", view)
	if err != nil {
		return fmt.Sprintf("transcript unavailable: %v", err)
	}
	return out
}

// FormatReport is the summary followed by the transcript.
func (f *ReportFormatter) FormatReport(r *domain.TestResult) string {
	if r == nil {
		return f.FormatSummary(nil)
	}
	return f.FormatSummary(r) + "\n\n" + f.FormatTranscript(r.Turns)
}

func (f *ReportFormatter) truncate(s string) string {
	if f.maxTurnRunes <= 0 {
		return s
	}
	return util.TruncateString(s, f.maxTurnRunes)
}
