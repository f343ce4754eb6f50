package domain

import "time"

type TestStatus string

const (
	TestStatusDraft     TestStatus = "draft"
	TestStatusRunning   TestStatus = "running"
	TestStatusCompleted TestStatus = "completed"
	TestStatusPartial   TestStatus = "partial"
	TestStatusFailed    TestStatus = "failed"
	TestStatusCancelled TestStatus = "cancelled"
)

func (s TestStatus) String() string {
	return string(s)
}

func (s TestStatus) IsTerminal() bool {
	switch s {
	case TestStatusCompleted, TestStatusPartial, TestStatusFailed, TestStatusCancelled:
		return true
	default:
		return false
	}
}

// TestConfig is the input describing one panel test.
type TestConfig struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	StimulusText     string          `json:"stimulus_text"`
	StimulusType     StimulusType    `json:"stimulus_type"`
	CreativeBrief    string          `json:"creative_brief,omitempty"`
	ArchetypeRefs    []string        `json:"archetype_refs"`
	Calibration      SkepticismLevel `json:"calibration"`
	ProductCategory  string          `json:"product_category"`
	EmotionalContext []string        `json:"emotional_context,omitempty"`
	EnableModeration bool            `json:"enable_moderation"`
	MaxFollowUps     int             `json:"max_follow_ups"`
	Status           TestStatus      `json:"status"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

type ViewShift struct {
	PersonaID   string `json:"persona_id"`
	PersonaName string `json:"persona_name"`
	Metric      string `json:"metric"`
	Before      int    `json:"before"`
	After       int    `json:"after"`
}

func (v ViewShift) Delta() int {
	return v.After - v.Before
}

func (v ViewShift) Improved() bool {
	return v.After > v.Before
}

type ModerationImpact struct {
	PersonasClarified int         `json:"personas_clarified"`
	PersonasSalvaged  int         `json:"personas_salvaged"`
	ViewShifts        []ViewShift `json:"view_shifts"`
	SalvageRate       float64     `json:"salvage_rate"`
}

type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
	}
}

func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}

type CostEstimate struct {
	InputCost  float64 `json:"input_cost"`
	OutputCost float64 `json:"output_cost"`
	TotalCost  float64 `json:"total_cost"`
	Currency   string  `json:"currency"`
}

type UsageSummary struct {
	ByPhase map[string]TokenUsage `json:"by_phase"`
	Total   TokenUsage            `json:"total"`
	Cost    CostEstimate          `json:"cost"`
}

// PersonaResponseRecord is what persists of a persona after a run.
type PersonaResponseRecord struct {
	TestID          string           `json:"test_id"`
	PersonaID       string           `json:"persona_id"`
	ArchetypeID     string           `json:"archetype_id"`
	PersonaName     string           `json:"persona_name"`
	Age             int              `json:"age"`
	Location        string           `json:"location"`
	SkepticismLevel int              `json:"skepticism_level"`
	Skepticism      SkepticismResult `json:"skepticism"`
	InitialResponse PersonaResponse  `json:"initial_response"`
	RevisedResponse *PersonaResponse `json:"revised_response,omitempty"`
	MemoriesUsed    []string         `json:"memories_used"`
	ActivatedTraits []string         `json:"activated_traits"`
}

type PersonaFailure struct {
	ArchetypeRef string `json:"archetype_ref"`
	PersonaID    string `json:"persona_id,omitempty"`
	Phase        string `json:"phase"`
	Error        string `json:"error"`
}

type TestResult struct {
	TestID     string                  `json:"test_id"`
	Status     TestStatus              `json:"status"`
	Brief      *BriefAnalysis          `json:"brief,omitempty"`
	Analysis   *AggregatedAnalysis     `json:"analysis,omitempty"`
	Moderation ModerationImpact        `json:"moderation_impact"`
	Turns      []ConversationTurn      `json:"turns"`
	Responses  []PersonaResponseRecord `json:"responses"`
	Failures   []PersonaFailure        `json:"failures,omitempty"`
	Usage      UsageSummary            `json:"usage"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
}
