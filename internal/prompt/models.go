package prompt

type BriefAnalysisData struct {
	Stimulus      string
	StimulusType  string
	CreativeBrief string
}

type PersonaSystemData struct {
	Name            string
	Age             int
	Location        string
	ArchetypeName   string
	Description     string
	Occupation      string
	IncomeBracket   string
	Education       string
	Values          []string
	PainPoints      []string
	BuyingStyle     string
	VoiceTone       string
	VoiceVocabulary string
	VoiceQuirks     []string
	SkepticismText  string
	MemoryText      string
	TraitText       string
}

type PersonaResponseData struct {
	Stimulus     string
	StimulusType string
	Introduction string
}

type PersonaRevisedData struct {
	Stimulus          string
	OriginalResponse  string
	PurchaseIntent    int
	CredibilityRating int
	Clarification     string
}

type PersonaFollowUpData struct {
	Stimulus         string
	OriginalResponse string
	Question         string
}

type ModeratorIntroData struct {
	Stimulus     string
	StimulusType string
	PanelSize    int
}

type ModeratorProbeData struct {
	PersonaName  string
	ResponseText string
	ProbeType    string
	Guidance     string
}

type ModeratorClosingData struct {
	PanelSize     int
	Clarified     int
	ResponseCount int
}

type SynthesisResponse struct {
	PersonaName       string
	Archetype         string
	GutReaction       string
	ConsideredView    string
	PurchaseIntent    int
	CredibilityRating int
	EmotionalResponse string
	KeyConcerns       []string
	WhatWouldConvince string
}

type SynthesisData struct {
	Stimulus      string
	StimulusType  string
	CreativeBrief string
	Responses     []SynthesisResponse
	GroupDynamics string
}
