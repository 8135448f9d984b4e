package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/latticehq/lattice/internal/core/model"
	"github.com/latticehq/lattice/internal/logger"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := OpenSQLite(filepath.Join(t.TempDir(), "store_test.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func entityRow(userID uuid.UUID, display string, entityType model.EntityType, count int, aliases ...string) *model.Entity {
	return &model.Entity{
		UserID:        userID,
		NormalizedKey: model.NormalizeKey(display),
		EntityType:    entityType,
		DisplayValue:  display,
		MentionCount:  count,
		Aliases:       model.AliasesJSON(aliases),
	}
}

// The conditional upsert adds mention counts onto the surviving row and
// never rewrites its type or display value.
func TestUpsertEntity(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	userID := uuid.New()

	first, err := st.UpsertEntity(ctx, entityRow(userID, "Atlas Migration", model.EntityTypeProject, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, first.MentionCount)

	second, err := st.UpsertEntity(ctx, entityRow(userID, "atlas   migration", model.EntityTypeTopic, 3))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 5, second.MentionCount)
	assert.Equal(t, model.EntityTypeProject, second.EntityType)
	assert.Equal(t, "Atlas Migration", second.DisplayValue)

	var total int64
	require.NoError(t, st.DB().Model(&model.Entity{}).Where("user_id = ?", userID).Count(&total).Error)
	assert.EqualValues(t, 1, total)
}

// Nearby keys stay distinct rows; identity is the exact normalized key.
func TestUpsertEntity_DistinctKeys(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	userID := uuid.New()

	a, err := st.UpsertEntity(ctx, entityRow(userID, "Dana Levi", model.EntityTypePerson, 1))
	require.NoError(t, err)
	b, err := st.UpsertEntity(ctx, entityRow(userID, "Dana Levin", model.EntityTypePerson, 1))
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestListEntities(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	userID := uuid.New()

	_, err := st.UpsertEntity(ctx, entityRow(userID, "Alice Johnson", model.EntityTypePerson, 4))
	require.NoError(t, err)
	_, err = st.UpsertEntity(ctx, entityRow(userID, "Acme Corp", model.EntityTypeOrganization, 9))
	require.NoError(t, err)
	_, err = st.UpsertEntity(ctx, entityRow(userID, "Dana Levi", model.EntityTypePerson, 7))
	require.NoError(t, err)
	_, err = st.UpsertEntity(ctx, entityRow(uuid.New(), "Bob Stone", model.EntityTypePerson, 99))
	require.NoError(t, err)

	all, err := st.ListEntities(ctx, userID, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Acme Corp", all[0].DisplayValue)
	assert.Equal(t, "Dana Levi", all[1].DisplayValue)

	people, err := st.ListEntities(ctx, userID, model.EntityTypePerson, 1)
	require.NoError(t, err)
	require.Len(t, people, 1)
	assert.Equal(t, "Dana Levi", people[0].DisplayValue)
}

// The merge transaction moves mentions, unions aliases, adds counts and
// deletes the duplicate in one commit.
func TestMergeEntities(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	userID := uuid.New()

	canonical, err := st.UpsertEntity(ctx, entityRow(userID, "Daniel Green", model.EntityTypePerson, 12, "Danny"))
	require.NoError(t, err)
	duplicate, err := st.UpsertEntity(ctx, entityRow(userID, "Dan Green", model.EntityTypePerson, 5))
	require.NoError(t, err)
	require.NoError(t, st.InsertMention(ctx, &model.EntityMention{EntityID: duplicate.ID, SessionID: uuid.New()}))

	merged, err := st.MergeEntities(ctx, userID, canonical.ID, duplicate.ID)
	require.NoError(t, err)
	assert.Equal(t, 17, merged.MentionCount)
	assert.ElementsMatch(t, []string{"Danny", "Dan Green"}, merged.AliasStrings())

	moved, err := st.CountMentions(ctx, canonical.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, moved)

	_, err = st.GetEntity(ctx, userID, duplicate.ID)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestMergeEntities_MissingRow(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	userID := uuid.New()

	canonical, err := st.UpsertEntity(ctx, entityRow(userID, "Daniel Green", model.EntityTypePerson, 1))
	require.NoError(t, err)

	_, err = st.MergeEntities(ctx, userID, canonical.ID, uuid.New())
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	// The aborted transaction left the canonical untouched.
	row, err := st.GetEntity(ctx, userID, canonical.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, row.MentionCount)
}

// The guarded update flips pending exactly once; the loser of a double
// review sees ErrNotPending.
func TestMarkSuggestionReviewed(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	userID := uuid.New()

	suggestion := &model.RelationshipSuggestion{
		UserID:           userID,
		SessionID:        uuid.New(),
		SourceValue:      "Alice Johnson",
		TargetValue:      "Acme Corp",
		RelationshipType: model.RelWorksAt,
		Confidence:       0.6,
	}
	require.NoError(t, st.CreateSuggestion(ctx, suggestion))
	assert.Equal(t, model.SuggestionPending, suggestion.Status)

	now := time.Now().UTC()
	require.NoError(t, st.MarkSuggestionReviewed(ctx, userID, suggestion.ID, model.SuggestionApproved, now))

	err := st.MarkSuggestionReviewed(ctx, userID, suggestion.ID, model.SuggestionRejected, now)
	assert.True(t, errors.Is(err, ErrNotPending))

	stored, err := st.GetSuggestion(ctx, userID, suggestion.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SuggestionApproved, stored.Status)

	pending, err := st.ListSuggestions(ctx, userID, model.SuggestionPending, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
	approved, err := st.ListSuggestions(ctx, userID, model.SuggestionApproved, 0)
	require.NoError(t, err)
	assert.Len(t, approved, 1)
}

func TestMarkSuggestionReviewed_WrongTenant(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	userID := uuid.New()

	suggestion := &model.RelationshipSuggestion{
		UserID:           userID,
		SessionID:        uuid.New(),
		SourceValue:      "Alice Johnson",
		TargetValue:      "Acme Corp",
		RelationshipType: model.RelWorksAt,
		Confidence:       0.6,
	}
	require.NoError(t, st.CreateSuggestion(ctx, suggestion))

	err := st.MarkSuggestionReviewed(ctx, uuid.New(), suggestion.ID, model.SuggestionApproved, time.Now().UTC())
	assert.True(t, errors.Is(err, ErrNotPending))
}

// Person resolution by normalized name converges on one row per tenant.
func TestGetOrCreatePerson(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	userID := uuid.New()

	a, err := st.GetOrCreatePerson(ctx, userID, "Alice Johnson", "alice johnson")
	require.NoError(t, err)
	b, err := st.GetOrCreatePerson(ctx, userID, "ALICE JOHNSON", "alice johnson")
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, "Alice Johnson", b.DisplayName)

	other, err := st.GetOrCreatePerson(ctx, uuid.New(), "Alice Johnson", "alice johnson")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, other.ID)
}

func TestEnsureSession(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	userID := uuid.New()
	sessionID := uuid.New()

	created, err := st.EnsureSession(ctx, userID, sessionID, "Weekly sync", "en")
	require.NoError(t, err)
	assert.Equal(t, "Weekly sync", created.Title)

	again, err := st.EnsureSession(ctx, userID, sessionID, "ignored", "de")
	require.NoError(t, err)
	assert.Equal(t, sessionID, again.ID)
	assert.Equal(t, "Weekly sync", again.Title)
	assert.Equal(t, "en", again.Language)
}

// Re-registering a speaker label keeps the existing slot and its binding.
func TestUpsertSpeakerLabel(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	userID := uuid.New()
	sessionID := uuid.New()

	require.NoError(t, st.UpsertSpeakerLabel(ctx, userID, sessionID, "SPEAKER_00"))
	var slot model.SessionSpeaker
	require.NoError(t, st.DB().Where("session_id = ? AND label = ?", sessionID, "SPEAKER_00").First(&slot).Error)

	person, err := st.GetOrCreatePerson(ctx, userID, "Alice Johnson", "alice johnson")
	require.NoError(t, err)
	require.NoError(t, st.SetSpeakerPerson(ctx, slot.ID, &person.ID))

	require.NoError(t, st.UpsertSpeakerLabel(ctx, userID, sessionID, "SPEAKER_00"))

	bound, err := st.GetSpeaker(ctx, userID, sessionID, slot.ID)
	require.NoError(t, err)
	require.NotNil(t, bound.PersonID)
	assert.Equal(t, person.ID, *bound.PersonID)

	var slots int64
	require.NoError(t, st.DB().Model(&model.SessionSpeaker{}).Where("session_id = ?", sessionID).Count(&slots).Error)
	assert.EqualValues(t, 1, slots)
}

func TestSessionPersonIndex(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	userID := uuid.New()
	sessionID := uuid.New()
	personID := uuid.New()

	require.NoError(t, st.UpsertSessionPersonIndex(ctx, userID, sessionID, personID))
	require.NoError(t, st.UpsertSessionPersonIndex(ctx, userID, sessionID, personID))

	has, err := st.HasSessionPersonIndex(ctx, sessionID, personID)
	require.NoError(t, err)
	assert.True(t, has)

	var rows int64
	require.NoError(t, st.DB().Model(&model.SessionPersonIndex{}).Where("session_id = ?", sessionID).Count(&rows).Error)
	assert.EqualValues(t, 1, rows)

	require.NoError(t, st.DeleteSessionPersonIndex(ctx, sessionID, personID))
	has, err = st.HasSessionPersonIndex(ctx, sessionID, personID)
	require.NoError(t, err)
	assert.False(t, has)
}
