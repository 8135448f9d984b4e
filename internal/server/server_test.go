package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticehq/lattice/internal/config"
	"github.com/latticehq/lattice/internal/core"
	"github.com/latticehq/lattice/internal/core/model"
	"github.com/latticehq/lattice/internal/logger"
	"github.com/latticehq/lattice/internal/store"
)

type stubDriver struct {
	results map[string]neo4j.EagerResult

	mu      sync.Mutex
	queries []string
}

func (d *stubDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	d.mu.Lock()
	d.queries = append(d.queries, query)
	d.mu.Unlock()
	for needle, res := range d.results {
		if strings.Contains(query, needle) {
			return res, nil
		}
	}
	return neo4j.EagerResult{}, nil
}

func (d *stubDriver) BuildIndices(ctx context.Context) error { return nil }

func (d *stubDriver) Close(ctx context.Context) error { return nil }

type stubLLM struct{ response string }

func (m *stubLLM) Generate(ctx context.Context, prompt string) (string, error) {
	return m.response, nil
}

func newTestServer(t *testing.T, drv *stubDriver) (*gin.Engine, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "server_test.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	engine := core.NewEngine(st, drv, &stubLLM{response: `{"entities": []}`}, nil, nil, cfg, logger.NewNop())
	srv := &Server{Engine: engine, Config: cfg, Log: logger.NewNop()}
	return srv.SetupRouter(), st
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, userID *uuid.UUID, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != nil {
		req.Header.Set("X-User-ID", userID.String())
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	router, _ := newTestServer(t, &stubDriver{})

	w := doJSON(t, router, http.MethodGet, "/api/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// Every data route requires a parseable tenant header.
func TestRequireUser(t *testing.T) {
	router, _ := newTestServer(t, &stubDriver{})

	w := doJSON(t, router, http.MethodGet, "/api/entities", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/entities", nil)
	req.Header.Set("X-User-ID", "not-a-uuid")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListEntitiesEndpoint(t *testing.T) {
	router, st := newTestServer(t, &stubDriver{})
	userID := uuid.New()
	ctx := context.Background()

	for i, name := range []string{"Alice Johnson", "Acme Corp"} {
		_, err := st.UpsertEntity(ctx, &model.Entity{
			UserID:        userID,
			NormalizedKey: model.NormalizeKey(name),
			EntityType:    model.EntityTypePerson,
			DisplayValue:  name,
			MentionCount:  i + 1,
			Aliases:       model.AliasesJSON(nil),
		})
		require.NoError(t, err)
	}

	w := doJSON(t, router, http.MethodGet, "/api/entities", &userID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Entities []model.Entity `json:"entities"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Entities, 2)
	assert.Equal(t, "Acme Corp", resp.Entities[0].DisplayValue)

	w = doJSON(t, router, http.MethodGet, "/api/entities?type=starship", &userID, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMergeEntitiesEndpoint(t *testing.T) {
	router, st := newTestServer(t, &stubDriver{})
	userID := uuid.New()
	ctx := context.Background()

	seed := func(name string, count int) *model.Entity {
		row, err := st.UpsertEntity(ctx, &model.Entity{
			UserID:        userID,
			NormalizedKey: model.NormalizeKey(name),
			EntityType:    model.EntityTypePerson,
			DisplayValue:  name,
			MentionCount:  count,
			Aliases:       model.AliasesJSON(nil),
		})
		require.NoError(t, err)
		return row
	}
	canonical := seed("Daniel Green", 12)
	duplicate := seed("Dan Green", 5)

	w := doJSON(t, router, http.MethodPost, "/api/entities/merge", &userID, gin.H{
		"canonical_id": canonical.ID, "duplicate_id": duplicate.ID,
	})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Entity model.Entity `json:"entity"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 17, resp.Entity.MentionCount)

	// The duplicate is gone now.
	w = doJSON(t, router, http.MethodPost, "/api/entities/merge", &userID, gin.H{
		"canonical_id": canonical.ID, "duplicate_id": duplicate.ID,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/entities/merge", &userID, gin.H{
		"canonical_id": canonical.ID, "duplicate_id": canonical.ID,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

// Suggestion lifecycle over HTTP, including the status mapping for each
// failure mode: 502 when the graph cannot resolve an approval, 409 on a
// second review, 404 for an unknown id.
func TestSuggestionEndpoints(t *testing.T) {
	drv := &stubDriver{results: map[string]neo4j.EagerResult{}}
	router, st := newTestServer(t, drv)
	userID := uuid.New()
	sessionID := uuid.New()
	ctx := context.Background()

	_, err := st.EnsureSession(ctx, userID, sessionID, "Weekly sync", "en")
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodPost, "/api/suggestions", &userID, gin.H{
		"session_id":        sessionID,
		"source_value":      "Alice Johnson",
		"target_value":      "Acme Corp",
		"relationship_type": "WORKS_AT",
		"confidence":        0.6,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Suggestion model.RelationshipSuggestion `json:"suggestion"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, model.SuggestionPending, created.Suggestion.Status)

	// Unresolvable endpoints: approval fails upstream, row stays pending.
	approvePath := fmt.Sprintf("/api/suggestions/%s/approve", created.Suggestion.ID)
	w = doJSON(t, router, http.MethodPost, approvePath, &userID, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	drv.results["MERGE (source)-[r:WORKS_AT]"] = neo4j.EagerResult{
		Records: []*neo4j.Record{{
			Keys:   []string{"source_id", "target_id"},
			Values: []interface{}{"id-alice", "id-acme"},
		}},
	}
	w = doJSON(t, router, http.MethodPost, approvePath, &userID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, approvePath, &userID, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/suggestions?status=approved", &userID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Suggestions []model.RelationshipSuggestion `json:"suggestions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Len(t, listed.Suggestions, 1)

	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/suggestions/%s/reject", uuid.New()), &userID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/suggestions?status=maybe", &userID, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReconcileEndpoint(t *testing.T) {
	router, st := newTestServer(t, &stubDriver{})
	userID := uuid.New()
	sessionID := uuid.New()

	w := doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/sessions/%s/reconcile", sessionID), &userID, gin.H{
		"segments": []gin.H{},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/sessions/%s/reconcile", sessionID), &userID, gin.H{
		"segments": []model.TranscriptSegment{{Speaker: "SPEAKER_00", Text: "Hello from Acme"}},
		"language": "en",
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	// The background run registers the session even though extraction
	// returned nothing.
	assert.Eventually(t, func() bool {
		_, err := st.GetSession(context.Background(), userID, sessionID)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	w = doJSON(t, router, http.MethodPost, "/api/sessions/not-a-uuid/reconcile", &userID, gin.H{
		"segments": []model.TranscriptSegment{{Text: "hi"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSpeakerEndpoints(t *testing.T) {
	router, st := newTestServer(t, &stubDriver{})
	userID := uuid.New()
	ctx := context.Background()
	sessionID := uuid.New()
	_, err := st.EnsureSession(ctx, userID, sessionID, "Weekly sync", "en")
	require.NoError(t, err)
	require.NoError(t, st.UpsertSpeakerLabel(ctx, userID, sessionID, "SPEAKER_00"))
	var speaker model.SessionSpeaker
	require.NoError(t, st.DB().Where("session_id = ?", sessionID).First(&speaker).Error)

	assignPath := fmt.Sprintf("/api/sessions/%s/speakers/%s/assign", sessionID, speaker.ID)
	w := doJSON(t, router, http.MethodPost, assignPath, &userID, gin.H{"person": "Alice Johnson"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Person model.Person `json:"person"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alice johnson", resp.Person.NormalizedName)

	w = doJSON(t, router, http.MethodPost, assignPath, &userID, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/sessions/%s/speakers/%s/assign", sessionID, uuid.New()), &userID,
		gin.H{"person": "Alice Johnson"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/sessions/%s/speakers/%s/unassign", sessionID, speaker.ID), &userID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	bound, err := st.GetSpeaker(ctx, userID, sessionID, speaker.ID)
	require.NoError(t, err)
	assert.Nil(t, bound.PersonID)
}

func TestInsightsEndpoints(t *testing.T) {
	drv := &stubDriver{results: map[string]neo4j.EagerResult{
		"ORDER BY shared_sessions DESC": {
			Records: []*neo4j.Record{{
				Keys:   []string{"source_id", "source_value", "target_id", "target_value", "shared_sessions"},
				Values: []interface{}{"id-a", "Alice Johnson", "id-b", "Acme Corp", int64(3)},
			}},
		},
		"COLLABORATES_WITH": {
			Records: []*neo4j.Record{{
				Keys:   []string{"inferred"},
				Values: []interface{}{int64(2)},
			}},
		},
	}}
	router, _ := newTestServer(t, drv)
	userID := uuid.New()

	w := doJSON(t, router, http.MethodGet, "/api/insights/co-occurrences?min_sessions=2", &userID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pairs struct {
		Pairs []core.CoOccurrence `json:"pairs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pairs))
	require.Len(t, pairs.Pairs, 1)
	assert.EqualValues(t, 3, pairs.Pairs[0].SharedSessions)

	w = doJSON(t, router, http.MethodPost, "/api/insights/collaborations", &userID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var inferred struct {
		Inferred int64 `json:"inferred"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &inferred))
	assert.EqualValues(t, 2, inferred.Inferred)
}
