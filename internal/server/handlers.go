package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/latticehq/lattice/internal/core"
	"github.com/latticehq/lattice/internal/core/model"
)

const userContextKey = "user_id"

// RequireUser resolves the tenant from the X-User-ID header. Upstream auth
// owns identity; this service only scopes data by it.
func (s *Server) RequireUser(c *gin.Context) {
	raw := c.GetHeader("X-User-ID")
	if raw == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "X-User-ID header is required"})
		return
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "X-User-ID must be a UUID"})
		return
	}
	c.Set(userContextKey, id)
	c.Next()
}

func (s *Server) userID(c *gin.Context) uuid.UUID {
	return c.MustGet(userContextKey).(uuid.UUID)
}

func (s *Server) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, core.ErrUpstream):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		s.Log.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a UUID"})
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func (s *Server) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type ReconcileRequest struct {
	Segments []model.TranscriptSegment `json:"segments"`
	Language string                    `json:"language"`
}

// ReconcileSession accepts a transcript and runs reconciliation in the
// background. The request is acknowledged with 202; the summary lands in
// the logs. Obviously empty input is rejected up front so the caller does
// not get an acknowledgment for a run that cannot start.
func (s *Server) ReconcileSession(c *gin.Context) {
	sessionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if len(req.Segments) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "segments are required"})
		return
	}
	if req.Language == "" {
		req.Language = "en"
	}

	userID := s.userID(c)
	timeout := time.Duration(s.Config.Reconcile.TimeoutSeconds) * time.Second

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		summary, err := s.Engine.ReconcileSession(ctx, userID, sessionID, req.Segments, req.Language)
		if err != nil {
			s.Log.Error("reconciliation failed", "session_id", sessionID, "error", err)
			return
		}
		s.Log.Info("reconciliation finished",
			"session_id", sessionID,
			"entities_resolved", summary.EntitiesResolved,
			"relationships_committed", summary.RelationshipsCommitted,
			"relationships_suggested", summary.RelationshipsSuggested)
	}()

	c.JSON(http.StatusAccepted, gin.H{"session_id": sessionID, "status": "accepted"})
}

func (s *Server) ListEntities(c *gin.Context) {
	entities, err := s.Engine.ListEntities(c.Request.Context(), s.userID(c),
		model.EntityType(c.Query("type")), queryInt(c, "limit", 100))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entities": entities})
}

func (s *Server) ListDuplicates(c *gin.Context) {
	threshold := 0.0
	if raw := c.Query("threshold"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "threshold must be a number"})
			return
		}
		threshold = f
	}

	groups, err := s.Engine.FindDuplicateGroups(c.Request.Context(), s.userID(c),
		model.EntityType(c.Query("type")), threshold)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

type MergeRequest struct {
	CanonicalID uuid.UUID `json:"canonical_id" binding:"required"`
	DuplicateID uuid.UUID `json:"duplicate_id" binding:"required"`
}

func (s *Server) MergeEntities(c *gin.Context) {
	var req MergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "canonical_id and duplicate_id are required"})
		return
	}

	merged, err := s.Engine.MergeEntities(c.Request.Context(), s.userID(c), req.CanonicalID, req.DuplicateID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entity": merged})
}

func (s *Server) ListSuggestions(c *gin.Context) {
	suggestions, err := s.Engine.ListSuggestions(c.Request.Context(), s.userID(c),
		model.SuggestionStatus(c.Query("status")), queryInt(c, "limit", 100))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

type CreateSuggestionRequest struct {
	SessionID        uuid.UUID `json:"session_id" binding:"required"`
	SourceValue      string    `json:"source_value"`
	TargetValue      string    `json:"target_value"`
	RelationshipType string    `json:"relationship_type"`
	Confidence       float64   `json:"confidence"`
	Context          string    `json:"context"`
}

func (s *Server) CreateSuggestion(c *gin.Context) {
	var req CreateSuggestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	suggestion, err := s.Engine.CreateSuggestion(c.Request.Context(), s.userID(c), req.SessionID,
		model.CandidateRelationship{
			SourceValue:      req.SourceValue,
			TargetValue:      req.TargetValue,
			RelationshipType: req.RelationshipType,
			Confidence:       req.Confidence,
			Context:          req.Context,
		})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"suggestion": suggestion})
}

func (s *Server) ApproveSuggestion(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	suggestion, err := s.Engine.ApproveSuggestion(c.Request.Context(), s.userID(c), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestion": suggestion})
}

func (s *Server) RejectSuggestion(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	suggestion, err := s.Engine.RejectSuggestion(c.Request.Context(), s.userID(c), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestion": suggestion})
}

type AssignSpeakerRequest struct {
	Person string `json:"person" binding:"required"`
}

func (s *Server) AssignSpeaker(c *gin.Context) {
	sessionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	speakerID, ok := pathUUID(c, "speakerId")
	if !ok {
		return
	}
	var req AssignSpeakerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "person is required"})
		return
	}

	person, err := s.Engine.AssignSpeakerToPerson(c.Request.Context(), s.userID(c), sessionID, speakerID, req.Person)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"person": person})
}

func (s *Server) UnassignSpeaker(c *gin.Context) {
	sessionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	speakerID, ok := pathUUID(c, "speakerId")
	if !ok {
		return
	}

	if err := s.Engine.UnassignSpeaker(c.Request.Context(), s.userID(c), sessionID, speakerID); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) CoOccurrences(c *gin.Context) {
	pairs, err := s.Engine.CoOccurrences(c.Request.Context(), s.userID(c),
		queryInt(c, "min_sessions", 2), queryInt(c, "limit", 50))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pairs": pairs})
}

func (s *Server) InferCollaborations(c *gin.Context) {
	inferred, err := s.Engine.InferCollaborations(c.Request.Context(), s.userID(c),
		queryInt(c, "min_sessions", 2))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"inferred": inferred})
}
