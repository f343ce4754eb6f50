package domain

import "time"

type SpeakerRole string

const (
	SpeakerModerator SpeakerRole = "moderator"
	SpeakerPersona   SpeakerRole = "persona"
)

type TurnType string

const (
	TurnIntroduction    TurnType = "introduction"
	TurnInitialResponse TurnType = "initial_response"
	TurnProbe           TurnType = "probe"
	TurnFollowUp        TurnType = "follow_up"
	TurnClarification   TurnType = "clarification"
	TurnRevisedResponse TurnType = "revised_response"
	TurnDrawOut         TurnType = "draw_out"
	TurnClosing         TurnType = "closing"
)

func (t TurnType) IsModeratorIntervention() bool {
	switch t {
	case TurnProbe, TurnClarification, TurnDrawOut:
		return true
	default:
		return false
	}
}

// ConversationTurn is one utterance in the transcript. Turns are append-only.
type ConversationTurn struct {
	ID             string           `json:"id"`
	TestID         string           `json:"test_id"`
	TurnNumber     int              `json:"turn_number"`
	Speaker        SpeakerRole      `json:"speaker"`
	PersonaID      string           `json:"persona_id,omitempty"`
	PersonaName    string           `json:"persona_name,omitempty"`
	Type           TurnType         `json:"turn_type"`
	Content        string           `json:"content"`
	Response       *PersonaResponse `json:"response,omitempty"`
	ReferencesTurn int              `json:"references_turn,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}
