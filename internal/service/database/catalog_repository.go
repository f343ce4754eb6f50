package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/kapu/phantom-panel/internal/domain"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// CatalogRepository reads archetypes, traits and memories. The catalog is
// seeded out of band; the engine never writes to it.
type CatalogRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewCatalogRepository(postgres *PostgresService, logger *zap.Logger) *CatalogRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogRepository{
		db:     postgres.GetDB(),
		logger: logger,
	}
}

const archetypeColumns = `id, slug, name, description, demographics, psychographics,
		       baseline_skepticism, voice_traits`

// GetArchetypeByID returns nil when no archetype has the id.
func (r *CatalogRepository) GetArchetypeByID(ctx context.Context, id string) (*domain.PersonaArchetype, error) {
	query := `SELECT ` + archetypeColumns + ` FROM persona_archetypes WHERE id = $1 LIMIT 1`

	archetype, err := scanArchetype(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query archetype by id: %w", err)
	}
	return archetype, nil
}

// GetArchetypeBySlug returns nil when no archetype has the slug.
func (r *CatalogRepository) GetArchetypeBySlug(ctx context.Context, slug string) (*domain.PersonaArchetype, error) {
	query := `SELECT ` + archetypeColumns + ` FROM persona_archetypes WHERE slug = $1 LIMIT 1`

	archetype, err := scanArchetype(r.db.QueryRowContext(ctx, query, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query archetype by slug: %w", err)
	}
	return archetype, nil
}

func (r *CatalogRepository) ListArchetypes(ctx context.Context) ([]*domain.PersonaArchetype, error) {
	query := `SELECT ` + archetypeColumns + ` FROM persona_archetypes ORDER BY slug`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query archetypes: %w", err)
	}
	defer rows.Close()

	var archetypes []*domain.PersonaArchetype
	for rows.Next() {
		archetype, err := scanArchetype(rows)
		if err != nil {
			r.logger.Warn("Failed to parse archetype", zap.Error(err))
			continue
		}
		archetypes = append(archetypes, archetype)
	}
	return archetypes, rows.Err()
}

func scanArchetype(row rowScanner) (*domain.PersonaArchetype, error) {
	var (
		a                                       domain.PersonaArchetype
		baseline                                string
		demographics, psychographics, voiceJSON []byte
	)
	if err := row.Scan(&a.ID, &a.Slug, &a.Name, &a.Description,
		&demographics, &psychographics, &baseline, &voiceJSON); err != nil {
		return nil, err
	}
	a.BaselineSkepticism = domain.SkepticismLevel(baseline)
	if err := decodeArchetypeJSON(&a, demographics, psychographics, voiceJSON); err != nil {
		return nil, err
	}
	return &a, nil
}

func decodeArchetypeJSON(a *domain.PersonaArchetype, demographics, psychographics, voice []byte) error {
	if err := unmarshalOptional(demographics, &a.Demographics); err != nil {
		return fmt.Errorf("failed to unmarshal demographics: %w", err)
	}
	if err := unmarshalOptional(psychographics, &a.Psychographics); err != nil {
		return fmt.Errorf("failed to unmarshal psychographics: %w", err)
	}
	if err := unmarshalOptional(voice, &a.Voice); err != nil {
		return fmt.Errorf("failed to unmarshal voice traits: %w", err)
	}
	return nil
}

// ListTraits returns every trait attached to the archetype.
func (r *CatalogRepository) ListTraits(ctx context.Context, archetypeID string) ([]domain.PhantomTrait, error) {
	query := `
		SELECT id, archetype_id, name, category, description, trigger_words, trigger_claims,
		       emotional_contexts, weight, activation_threshold, behavior_pattern, emotional_narrative
		FROM phantom_traits
		WHERE archetype_id = $1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query, archetypeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query traits: %w", err)
	}
	defer rows.Close()

	var traits []domain.PhantomTrait
	for rows.Next() {
		var (
			t                   domain.PhantomTrait
			category            string
			behavior, narrative sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.ArchetypeID, &t.Name, &category, &t.Description,
			pq.Array(&t.TriggerWords), pq.Array(&t.TriggerClaims), pq.Array(&t.EmotionalContexts),
			&t.Weight, &t.ActivationThreshold, &behavior, &narrative); err != nil {
			return nil, fmt.Errorf("failed to scan trait: %w", err)
		}
		t.Category = domain.TraitCategory(category)
		t.BehaviorPattern = behavior.String
		t.EmotionalNarrative = narrative.String
		traits = append(traits, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate traits: %w", err)
	}
	return traits, nil
}

const memoryColumns = `id, archetype_id, product_category, title, experience, brand_mentioned,
		       trigger_keywords, emotional_residue, trust_modifier`

// ListMemories returns the archetype's memories for one product category.
func (r *CatalogRepository) ListMemories(ctx context.Context, archetypeID, category string) ([]domain.PhantomMemory, error) {
	query := `SELECT ` + memoryColumns + `
		FROM phantom_memories
		WHERE archetype_id = $1 AND product_category = $2
		ORDER BY title`
	return r.queryMemories(ctx, query, archetypeID, category)
}

// ListMemoriesByCategory returns memories of every archetype for the category.
func (r *CatalogRepository) ListMemoriesByCategory(ctx context.Context, category string) ([]domain.PhantomMemory, error) {
	query := `SELECT ` + memoryColumns + `
		FROM phantom_memories
		WHERE product_category = $1
		ORDER BY title`
	return r.queryMemories(ctx, query, category)
}

func (r *CatalogRepository) queryMemories(ctx context.Context, query string, args ...any) ([]domain.PhantomMemory, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	var memories []domain.PhantomMemory
	for rows.Next() {
		var (
			m       domain.PhantomMemory
			brand   sql.NullString
			residue string
		)
		if err := rows.Scan(&m.ID, &m.ArchetypeID, &m.ProductCategory, &m.Title, &m.Experience,
			&brand, pq.Array(&m.TriggerKeywords), &residue, &m.TrustModifier); err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		m.BrandMentioned = brand.String
		m.EmotionalResidue = domain.EmotionalResidue(residue)
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memories: %w", err)
	}
	return memories, nil
}

func unmarshalOptional(data []byte, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}

func marshalNullable(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return nil, nil
	}
	return string(data), nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullIfZero(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}
