package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/kapu/phantom-panel/internal/domain"
)

// TestRepository persists panel tests and everything a run produces.
type TestRepository struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

func NewTestRepository(postgres *PostgresService, logger *zap.Logger) *TestRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TestRepository{
		db:     postgres.GetDB(),
		logger: logger,
		now:    time.Now,
	}
}

func (r *TestRepository) CreateTest(ctx context.Context, cfg *domain.TestConfig) error {
	query := `
		INSERT INTO panel_tests (id, name, stimulus_text, stimulus_type, creative_brief, archetype_refs,
		                         calibration, product_category, emotional_context, enable_moderation,
		                         max_follow_ups, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
	`
	status := cfg.Status
	if status == "" {
		status = domain.TestStatusDraft
	}
	createdAt := cfg.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}

	_, err := r.db.ExecContext(ctx, query,
		cfg.ID, cfg.Name, cfg.StimulusText, string(cfg.StimulusType), nullIfEmpty(cfg.CreativeBrief),
		pq.Array(cfg.ArchetypeRefs), string(cfg.Calibration), cfg.ProductCategory,
		pq.Array(cfg.EmotionalContext), cfg.EnableModeration, cfg.MaxFollowUps, string(status), createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert test: %w", err)
	}
	return nil
}

// GetTest returns nil when the test does not exist.
func (r *TestRepository) GetTest(ctx context.Context, id string) (*domain.TestConfig, error) {
	query := `
		SELECT id, name, stimulus_text, stimulus_type, creative_brief, archetype_refs, calibration,
		       product_category, emotional_context, enable_moderation, max_follow_ups, status,
		       error_message, created_at
		FROM panel_tests
		WHERE id = $1
		LIMIT 1
	`

	var (
		cfg                               domain.TestConfig
		stimulusType, calibration, status string
		creativeBrief, errorMessage       sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&cfg.ID, &cfg.Name, &cfg.StimulusText, &stimulusType, &creativeBrief, pq.Array(&cfg.ArchetypeRefs),
		&calibration, &cfg.ProductCategory, pq.Array(&cfg.EmotionalContext), &cfg.EnableModeration,
		&cfg.MaxFollowUps, &status, &errorMessage, &cfg.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query test: %w", err)
	}

	cfg.StimulusType = domain.StimulusType(stimulusType)
	cfg.Calibration = domain.SkepticismLevel(calibration)
	cfg.Status = domain.TestStatus(status)
	cfg.CreativeBrief = creativeBrief.String
	cfg.ErrorMessage = errorMessage.String
	return &cfg, nil
}

// TransitionStatus moves the test to `to` only if its current status is one
// of `from`. It reports whether the row was updated.
func (r *TestRepository) TransitionStatus(ctx context.Context, id string, from []domain.TestStatus, to domain.TestStatus) (bool, error) {
	query := `
		UPDATE panel_tests
		SET status = $2, error_message = NULL, updated_at = $4
		WHERE id = $1 AND status = ANY($3)
	`
	res, err := r.db.ExecContext(ctx, query, id, string(to), pq.Array(statusStrings(from)), r.now())
	if err != nil {
		return false, fmt.Errorf("failed to transition test status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

func (r *TestRepository) UpdateStatus(ctx context.Context, id string, status domain.TestStatus, message string) error {
	query := `UPDATE panel_tests SET status = $2, error_message = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, string(status), nullIfEmpty(message), r.now()); err != nil {
		return fmt.Errorf("failed to update test status: %w", err)
	}
	r.logger.Debug("Test status updated", zap.String("test_id", id), zap.String("status", string(status)))
	return nil
}

// ReplaceTurns swaps the stored transcript for `turns` in one transaction,
// so a retried run never mixes transcripts.
func (r *TestRepository) ReplaceTurns(ctx context.Context, testID string, turns []domain.ConversationTurn) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_turns WHERE test_id = $1`, testID); err != nil {
		return fmt.Errorf("failed to clear turns: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("conversation_turns",
		"id", "test_id", "turn_number", "speaker", "persona_id", "persona_name",
		"turn_type", "content", "response", "references_turn", "created_at"))
	if err != nil {
		return fmt.Errorf("failed to prepare turn copy: %w", err)
	}

	for _, t := range turns {
		values, err := turnValues(t)
		if err != nil {
			stmt.Close()
			return err
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			stmt.Close()
			return fmt.Errorf("failed to copy turn %d: %w", t.TurnNumber, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("failed to flush turns: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to close turn copy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit turns: %w", err)
	}
	return nil
}

func turnValues(t domain.ConversationTurn) ([]any, error) {
	response, err := marshalNullable(t.Response)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal turn %d response: %w", t.TurnNumber, err)
	}
	return []any{
		t.ID, t.TestID, t.TurnNumber, string(t.Speaker), nullIfEmpty(t.PersonaID), nullIfEmpty(t.PersonaName),
		string(t.Type), t.Content, response, nullIfZero(t.ReferencesTurn), t.CreatedAt,
	}, nil
}

func (r *TestRepository) ListTurns(ctx context.Context, testID string) ([]domain.ConversationTurn, error) {
	query := `
		SELECT id, test_id, turn_number, speaker, persona_id, persona_name, turn_type, content,
		       response, references_turn, created_at
		FROM conversation_turns
		WHERE test_id = $1
		ORDER BY turn_number
	`
	rows, err := r.db.QueryContext(ctx, query, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []domain.ConversationTurn
	for rows.Next() {
		var (
			t                      domain.ConversationTurn
			speaker, turnType      string
			personaID, personaName sql.NullString
			responseJSON           []byte
			referencesTurn         sql.NullInt64
		)
		if err := rows.Scan(&t.ID, &t.TestID, &t.TurnNumber, &speaker, &personaID, &personaName,
			&turnType, &t.Content, &responseJSON, &referencesTurn, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		t.Speaker = domain.SpeakerRole(speaker)
		t.Type = domain.TurnType(turnType)
		t.PersonaID = personaID.String
		t.PersonaName = personaName.String
		t.ReferencesTurn = int(referencesTurn.Int64)
		if len(responseJSON) > 0 {
			var resp domain.PersonaResponse
			if err := unmarshalOptional(responseJSON, &resp); err != nil {
				return nil, fmt.Errorf("failed to unmarshal turn %d response: %w", t.TurnNumber, err)
			}
			t.Response = &resp
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate turns: %w", err)
	}
	return turns, nil
}

// SaveResponses upserts one row per persona.
func (r *TestRepository) SaveResponses(ctx context.Context, records []domain.PersonaResponseRecord) error {
	query := `
		INSERT INTO persona_responses (test_id, persona_id, archetype_id, persona_name, age, location,
		                               skepticism_level, skepticism, initial_response, revised_response,
		                               memories_used, activated_traits)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (test_id, persona_id) DO UPDATE SET
			skepticism_level = EXCLUDED.skepticism_level,
			skepticism = EXCLUDED.skepticism,
			initial_response = EXCLUDED.initial_response,
			revised_response = EXCLUDED.revised_response,
			memories_used = EXCLUDED.memories_used,
			activated_traits = EXCLUDED.activated_traits
	`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		skepticism, err := marshalNullable(rec.Skepticism)
		if err != nil {
			return fmt.Errorf("failed to marshal skepticism: %w", err)
		}
		initial, err := marshalNullable(rec.InitialResponse)
		if err != nil {
			return fmt.Errorf("failed to marshal initial response: %w", err)
		}
		revised, err := marshalNullable(rec.RevisedResponse)
		if err != nil {
			return fmt.Errorf("failed to marshal revised response: %w", err)
		}

		if _, err := tx.ExecContext(ctx, query,
			rec.TestID, rec.PersonaID, rec.ArchetypeID, rec.PersonaName, rec.Age, rec.Location,
			rec.SkepticismLevel, skepticism, initial, revised,
			pq.Array(rec.MemoriesUsed), pq.Array(rec.ActivatedTraits),
		); err != nil {
			return fmt.Errorf("failed to save response for %s: %w", rec.PersonaName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit responses: %w", err)
	}
	return nil
}

func (r *TestRepository) ListResponses(ctx context.Context, testID string) ([]domain.PersonaResponseRecord, error) {
	query := `
		SELECT test_id, persona_id, archetype_id, persona_name, age, location, skepticism_level,
		       skepticism, initial_response, revised_response, memories_used, activated_traits
		FROM persona_responses
		WHERE test_id = $1
		ORDER BY persona_name
	`
	rows, err := r.db.QueryContext(ctx, query, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to query responses: %w", err)
	}
	defer rows.Close()

	var records []domain.PersonaResponseRecord
	for rows.Next() {
		var (
			rec                          domain.PersonaResponseRecord
			skepticism, initial, revised []byte
		)
		if err := rows.Scan(&rec.TestID, &rec.PersonaID, &rec.ArchetypeID, &rec.PersonaName, &rec.Age,
			&rec.Location, &rec.SkepticismLevel, &skepticism, &initial, &revised,
			pq.Array(&rec.MemoriesUsed), pq.Array(&rec.ActivatedTraits)); err != nil {
			return nil, fmt.Errorf("failed to scan response: %w", err)
		}
		if err := decodeResponseJSON(&rec, skepticism, initial, revised); err != nil {
			r.logger.Warn("Failed to parse response", zap.String("persona", rec.PersonaName), zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate responses: %w", err)
	}
	return records, nil
}

func decodeResponseJSON(rec *domain.PersonaResponseRecord, skepticism, initial, revised []byte) error {
	if err := unmarshalOptional(skepticism, &rec.Skepticism); err != nil {
		return fmt.Errorf("failed to unmarshal skepticism: %w", err)
	}
	if err := unmarshalOptional(initial, &rec.InitialResponse); err != nil {
		return fmt.Errorf("failed to unmarshal initial response: %w", err)
	}
	if len(revised) > 0 && string(revised) != "null" {
		var resp domain.PersonaResponse
		if err := unmarshalOptional(revised, &resp); err != nil {
			return fmt.Errorf("failed to unmarshal revised response: %w", err)
		}
		rec.RevisedResponse = &resp
	}
	return nil
}

// SaveResult upserts the test's summary row. Turns and responses are stored
// separately.
func (r *TestRepository) SaveResult(ctx context.Context, result *domain.TestResult) error {
	query := `
		INSERT INTO test_results (test_id, status, pressure_score, gut_attraction_index, credibility_score,
		                          purchase_intent_avg, brief, analysis, moderation_impact, usage, failures,
		                          started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (test_id) DO UPDATE SET
			status = EXCLUDED.status,
			pressure_score = EXCLUDED.pressure_score,
			gut_attraction_index = EXCLUDED.gut_attraction_index,
			credibility_score = EXCLUDED.credibility_score,
			purchase_intent_avg = EXCLUDED.purchase_intent_avg,
			brief = EXCLUDED.brief,
			analysis = EXCLUDED.analysis,
			moderation_impact = EXCLUDED.moderation_impact,
			usage = EXCLUDED.usage,
			failures = EXCLUDED.failures,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at
	`

	values, err := resultValues(result)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, query, values...); err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}

func resultValues(result *domain.TestResult) ([]any, error) {
	var pressure, gut, credibility sql.NullInt64
	var intentAvg sql.NullFloat64
	if a := result.Analysis; a != nil {
		pressure = sql.NullInt64{Int64: int64(a.PressureScore), Valid: true}
		gut = sql.NullInt64{Int64: int64(a.GutAttractionIndex), Valid: true}
		credibility = sql.NullInt64{Int64: int64(a.CredibilityScore), Valid: true}
		intentAvg = sql.NullFloat64{Float64: a.PurchaseIntentAvg, Valid: true}
	}

	brief, err := marshalNullable(result.Brief)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal brief: %w", err)
	}
	analysis, err := marshalNullable(result.Analysis)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analysis: %w", err)
	}
	moderation, err := marshalNullable(result.Moderation)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal moderation impact: %w", err)
	}
	usage, err := marshalNullable(result.Usage)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal usage: %w", err)
	}
	failures := result.Failures
	if failures == nil {
		failures = []domain.PersonaFailure{}
	}
	failuresJSON, err := marshalNullable(failures)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal failures: %w", err)
	}

	return []any{
		result.TestID, string(result.Status), pressure, gut, credibility, intentAvg,
		brief, analysis, moderation, usage, failuresJSON, result.StartedAt, result.FinishedAt,
	}, nil
}

func statusStrings(statuses []domain.TestStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
