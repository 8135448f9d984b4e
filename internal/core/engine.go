package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/latticehq/lattice/internal/config"
	"github.com/latticehq/lattice/internal/core/dedupe"
	"github.com/latticehq/lattice/internal/core/extraction"
	"github.com/latticehq/lattice/internal/core/model"
	"github.com/latticehq/lattice/internal/driver"
	"github.com/latticehq/lattice/internal/embedindex"
	"github.com/latticehq/lattice/internal/llm"
	"github.com/latticehq/lattice/internal/logger"
	"github.com/latticehq/lattice/internal/store"
)

// Engine keeps the relational index and the graph mirror consistent: it
// resolves extracted entities, commits or parks relationships, reviews
// suggestions, detects and merges duplicates, and binds speakers to people.
type Engine struct {
	Store      *store.Store
	Driver     driver.GraphDriver
	Extractor  *extraction.Service
	Detector   *dedupe.Detector
	EmbedIndex *embedindex.Client
	Log        *logger.Logger

	threshold        float64
	allowedTypes     map[model.RelationshipType]bool
	maxDuplicateScan int
	dedupeThreshold  float64
}

func NewEngine(st *store.Store, drv driver.GraphDriver, llmClient llm.LLMClient, embedder llm.EmbedderClient, idx *embedindex.Client, cfg *config.Config, baseLog *logger.Logger) *Engine {
	log := baseLog.With("component", "engine")

	// Config can narrow the relationship whitelist but never extend it:
	// names that fail enum validation are dropped at startup.
	allowed := make(map[model.RelationshipType]bool)
	for _, name := range cfg.Reconcile.RelationshipTypes {
		t, ok := model.ParseRelationshipType(name)
		if !ok {
			log.Warn("ignoring unknown relationship type in config", "type", name)
			continue
		}
		allowed[t] = true
	}
	if len(allowed) == 0 {
		for _, t := range model.AllRelationshipTypes() {
			allowed[t] = true
		}
	}

	return &Engine{
		Store:      st,
		Driver:     drv,
		Extractor:  extraction.NewService(llmClient, cfg.Extraction, cfg.Reconcile.MinExtractionConfidence),
		Detector:   dedupe.NewDetector(embedder, llmClient, cfg.Reconcile.UseLLMDedupe, cfg.Reconcile.MaxDuplicateScan, baseLog),
		EmbedIndex: idx,
		Log:        log,

		threshold:        cfg.Reconcile.ConfidenceThreshold,
		allowedTypes:     allowed,
		maxDuplicateScan: cfg.Reconcile.MaxDuplicateScan,
		dedupeThreshold:  cfg.Reconcile.DedupeThreshold,
	}
}

func (e *Engine) BuildIndices(ctx context.Context) error {
	return e.Driver.BuildIndices(ctx)
}

// ReconcileSession runs the extraction-to-store pipeline for one session:
// extract entity candidates, resolve each into both stores, then extract and
// commit relationship candidates among the resolved entities. Failures are
// isolated per candidate; the summary reports how far the batch got.
func (e *Engine) ReconcileSession(ctx context.Context, userID, sessionID uuid.UUID, segments []model.TranscriptSegment, language string) (*model.ReconcileSummary, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: no transcript segments", ErrInvalidInput)
	}

	if _, err := e.Store.EnsureSession(ctx, userID, sessionID, "", language); err != nil {
		return nil, upstreamErr("ensure session", err)
	}
	if err := e.upsertSessionNode(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	e.registerSpeakers(ctx, userID, sessionID, segments)

	summary := &model.ReconcileSummary{SessionID: sessionID}

	candidates, err := e.Extractor.ExtractEntities(ctx, segments, language)
	if err != nil {
		e.Log.Error("entity extraction failed", "session_id", sessionID, "error", err)
	}

	var knownEntities []string
	for _, c := range candidates {
		if _, err := e.ResolveEntity(ctx, userID, sessionID, c); err != nil {
			e.Log.Warn("entity candidate failed",
				"session_id", sessionID, "value", c.Value, "error", err)
			summary.EntitiesFailed++
			continue
		}
		summary.EntitiesResolved++
		knownEntities = append(knownEntities, c.Value)
	}

	relationships, err := e.Extractor.ExtractRelationships(ctx, segments, knownEntities, language)
	if err != nil {
		e.Log.Error("relationship extraction failed", "session_id", sessionID, "error", err)
	}

	for _, c := range relationships {
		outcome, err := e.CommitRelationship(ctx, userID, sessionID, c)
		if err != nil {
			e.Log.Warn("relationship candidate failed",
				"session_id", sessionID,
				"source", c.SourceValue, "target", c.TargetValue, "error", err)
			summary.RelationshipsSkipped++
			continue
		}
		switch outcome {
		case model.OutcomeCommitted:
			summary.RelationshipsCommitted++
		case model.OutcomeSuggested:
			summary.RelationshipsSuggested++
		case model.OutcomeRejectedType:
			summary.RelationshipsRejected++
		default:
			summary.RelationshipsSkipped++
		}
	}

	e.Log.Info("session reconciled",
		"session_id", sessionID,
		"entities_resolved", summary.EntitiesResolved,
		"entities_failed", summary.EntitiesFailed,
		"relationships_committed", summary.RelationshipsCommitted,
		"relationships_suggested", summary.RelationshipsSuggested,
		"relationships_skipped", summary.RelationshipsSkipped,
		"relationships_rejected", summary.RelationshipsRejected)
	return summary, nil
}

func (e *Engine) upsertSessionNode(ctx context.Context, userID, sessionID uuid.UUID) error {
	params := map[string]interface{}{
		"id":      sessionID.String(),
		"user_id": userID.String(),
		"title":   "",
		"now":     time.Now().UTC().Format(time.RFC3339),
	}
	if _, err := e.Driver.ExecuteQuery(ctx, driver.SessionNodeUpsertQuery, params); err != nil {
		return upstreamErr("graph session upsert", err)
	}
	return nil
}

// registerSpeakers records each distinct diarized speaker label so the
// binder has slots to attach people to. Best-effort: a failed label never
// blocks reconciliation.
func (e *Engine) registerSpeakers(ctx context.Context, userID, sessionID uuid.UUID, segments []model.TranscriptSegment) {
	seen := make(map[string]bool)
	for _, seg := range segments {
		label := seg.Speaker
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		if err := e.Store.UpsertSpeakerLabel(ctx, userID, sessionID, label); err != nil {
			e.Log.Warn("speaker label upsert failed",
				"session_id", sessionID, "label", label, "error", err)
		}
	}
}

// ListEntities returns the user's entities ordered by mention count.
func (e *Engine) ListEntities(ctx context.Context, userID uuid.UUID, entityType model.EntityType, limit int) ([]model.Entity, error) {
	if entityType != "" && !entityType.Valid() {
		return nil, fmt.Errorf("%w: unknown entity type %q", ErrInvalidInput, entityType)
	}
	rows, err := e.Store.ListEntities(ctx, userID, entityType, limit)
	if err != nil {
		return nil, upstreamErr("list entities", err)
	}
	return rows, nil
}

func (e *Engine) ListSuggestions(ctx context.Context, userID uuid.UUID, status model.SuggestionStatus, limit int) ([]model.RelationshipSuggestion, error) {
	if status != "" && status != model.SuggestionPending && !status.Terminal() {
		return nil, fmt.Errorf("%w: unknown suggestion status %q", ErrInvalidInput, status)
	}
	rows, err := e.Store.ListSuggestions(ctx, userID, status, limit)
	if err != nil {
		return nil, upstreamErr("list suggestions", err)
	}
	return rows, nil
}

// CoOccurrence is one pair of entities that keep showing up in the same
// sessions.
type CoOccurrence struct {
	SourceID       string `json:"source_id"`
	SourceValue    string `json:"source_value"`
	TargetID       string `json:"target_id"`
	TargetValue    string `json:"target_value"`
	SharedSessions int64  `json:"shared_sessions"`
}

// CoOccurrences lists entity pairs sharing at least minSessions sessions,
// strongest first.
func (e *Engine) CoOccurrences(ctx context.Context, userID uuid.UUID, minSessions, limit int) ([]CoOccurrence, error) {
	if minSessions < 1 {
		minSessions = 2
	}
	if limit <= 0 {
		limit = 50
	}
	params := map[string]interface{}{
		"user_id":      userID.String(),
		"min_sessions": minSessions,
		"limit":        limit,
	}
	result, err := e.Driver.ExecuteQuery(ctx, driver.CoOccurrenceQuery, params)
	if err != nil {
		return nil, upstreamErr("co-occurrence query", err)
	}

	out := make([]CoOccurrence, 0, len(result.Records))
	for _, record := range result.Records {
		out = append(out, CoOccurrence{
			SourceID:       driver.GetString(record, "source_id"),
			SourceValue:    driver.GetString(record, "source_value"),
			TargetID:       driver.GetString(record, "target_id"),
			TargetValue:    driver.GetString(record, "target_value"),
			SharedSessions: driver.GetInt64(record, "shared_sessions"),
		})
	}
	return out, nil
}

// InferCollaborations derives COLLABORATES_WITH edges between people who
// share sessions. Strength tracks the current shared-session count;
// provenance marks the edges as inferred. Returns the number of edges
// touched.
func (e *Engine) InferCollaborations(ctx context.Context, userID uuid.UUID, minSessions int) (int64, error) {
	if minSessions < 1 {
		minSessions = 2
	}
	params := map[string]interface{}{
		"user_id":      userID.String(),
		"min_sessions": minSessions,
		"provenance":   string(model.ProvenanceInferred),
		"now":          time.Now().UTC().Format(time.RFC3339),
	}
	result, err := e.Driver.ExecuteQuery(ctx, driver.InferCollaborationsQuery, params)
	if err != nil {
		return 0, upstreamErr("infer collaborations", err)
	}
	if len(result.Records) == 0 {
		return 0, nil
	}
	return driver.GetInt64(result.Records[0], "inferred"), nil
}
