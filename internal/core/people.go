package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/latticehq/lattice/internal/core/model"
	"github.com/latticehq/lattice/internal/driver"
)

// AssignSpeakerToPerson binds a session's diarized speaker slot to a
// durable person. personRef is either a person id or a display name; names
// resolve by normalized form, creating the person on first sight. The
// (session, person) index row is upserted for the new person and recomputed
// for the person the slot previously pointed at, because that person may
// have just lost their last speaker in this session. Embedding-index
// metadata, the graph mirror, and the audit trail are maintained
// best-effort.
func (e *Engine) AssignSpeakerToPerson(ctx context.Context, userID, sessionID, speakerID uuid.UUID, personRef string) (*model.Person, error) {
	personRef = strings.TrimSpace(personRef)
	if personRef == "" {
		return nil, fmt.Errorf("%w: person reference is required", ErrInvalidInput)
	}

	if _, err := e.Store.GetSession(ctx, userID, sessionID); err != nil {
		return nil, storeErr("session", err)
	}
	speaker, err := e.Store.GetSpeaker(ctx, userID, sessionID, speakerID)
	if err != nil {
		return nil, storeErr("speaker", err)
	}

	person, err := e.resolvePersonRef(ctx, userID, personRef)
	if err != nil {
		return nil, err
	}

	prior := speaker.PersonID
	if err := e.Store.SetSpeakerPerson(ctx, speaker.ID, &person.ID); err != nil {
		return nil, upstreamErr("bind speaker", err)
	}
	if err := e.Store.UpsertSessionPersonIndex(ctx, userID, sessionID, person.ID); err != nil {
		return nil, upstreamErr("session person index", err)
	}
	if prior != nil && *prior != person.ID {
		if err := e.recomputeSessionPersonIndex(ctx, sessionID, *prior); err != nil {
			return nil, err
		}
	}

	e.upsertPersonBinding(ctx, userID, sessionID, person)
	e.updateEmbedIndex(ctx, userID, sessionID, speakerDisplay(speaker), &person.ID)
	e.appendSpeakerEvent(ctx, sessionID, speaker.ID, prior, &person.ID)

	e.Log.Info("speaker assigned",
		"session_id", sessionID, "speaker_id", speakerID, "person_id", person.ID)
	return person, nil
}

// UnassignSpeaker clears a speaker slot's person binding. The index row for
// the person is deleted only when no other speaker in the session still
// maps to them, decided by counting the remaining slots rather than
// assumed. Unassigning an unbound slot is a no-op.
func (e *Engine) UnassignSpeaker(ctx context.Context, userID, sessionID, speakerID uuid.UUID) error {
	if _, err := e.Store.GetSession(ctx, userID, sessionID); err != nil {
		return storeErr("session", err)
	}
	speaker, err := e.Store.GetSpeaker(ctx, userID, sessionID, speakerID)
	if err != nil {
		return storeErr("speaker", err)
	}
	if speaker.PersonID == nil {
		return nil
	}

	prior := *speaker.PersonID
	if err := e.Store.SetSpeakerPerson(ctx, speaker.ID, nil); err != nil {
		return upstreamErr("unbind speaker", err)
	}
	if err := e.recomputeSessionPersonIndex(ctx, sessionID, prior); err != nil {
		return err
	}

	e.updateEmbedIndex(ctx, userID, sessionID, speakerDisplay(speaker), nil)
	e.appendSpeakerEvent(ctx, sessionID, speaker.ID, &prior, nil)

	e.Log.Info("speaker unassigned",
		"session_id", sessionID, "speaker_id", speakerID, "person_id", prior)
	return nil
}

func (e *Engine) resolvePersonRef(ctx context.Context, userID uuid.UUID, ref string) (*model.Person, error) {
	if id, err := uuid.Parse(ref); err == nil {
		person, err := e.Store.GetPerson(ctx, userID, id)
		if err != nil {
			return nil, storeErr("person", err)
		}
		return person, nil
	}

	normalized := model.NormalizeKey(ref)
	if normalized == "" {
		return nil, fmt.Errorf("%w: person name is empty", ErrInvalidInput)
	}
	person, err := e.Store.GetOrCreatePerson(ctx, userID, ref, normalized)
	if err != nil {
		return nil, upstreamErr("resolve person", err)
	}
	return person, nil
}

// recomputeSessionPersonIndex re-derives the (session, person) index row
// from the speaker slots. Zero remaining slots delete the row and the
// graph's SPOKE_IN edge.
func (e *Engine) recomputeSessionPersonIndex(ctx context.Context, sessionID, personID uuid.UUID) error {
	n, err := e.Store.CountSpeakersForPerson(ctx, sessionID, personID)
	if err != nil {
		return upstreamErr("count speakers for person", err)
	}
	if n > 0 {
		return nil
	}

	if err := e.Store.DeleteSessionPersonIndex(ctx, sessionID, personID); err != nil {
		return upstreamErr("delete session person index", err)
	}

	params := map[string]interface{}{
		"person_id":  personID.String(),
		"session_id": sessionID.String(),
	}
	if _, err := e.Driver.ExecuteQuery(ctx, driver.PersonBindingDeleteQuery, params); err != nil {
		e.Log.Warn("graph person binding delete failed",
			"person_id", personID, "session_id", sessionID, "error", err)
	}
	return nil
}

func (e *Engine) upsertPersonBinding(ctx context.Context, userID, sessionID uuid.UUID, person *model.Person) {
	params := map[string]interface{}{
		"person_id":    person.ID.String(),
		"user_id":      userID.String(),
		"display_name": person.DisplayName,
		"session_id":   sessionID.String(),
		"now":          time.Now().UTC().Format(time.RFC3339),
	}
	if _, err := e.Driver.ExecuteQuery(ctx, driver.PersonBindingUpsertQuery, params); err != nil {
		e.Log.Warn("graph person binding failed",
			"person_id", person.ID, "session_id", sessionID, "error", err)
	}
}

func (e *Engine) updateEmbedIndex(ctx context.Context, userID, sessionID uuid.UUID, speakerName string, personID *uuid.UUID) {
	if err := e.EmbedIndex.UpdateSpeakerPerson(ctx, userID, sessionID, speakerName, personID); err != nil {
		e.Log.Warn("embedding index update failed",
			"session_id", sessionID, "speaker", speakerName, "error", err)
	}
}

func (e *Engine) appendSpeakerEvent(ctx context.Context, sessionID, speakerID uuid.UUID, prior, next *uuid.UUID) {
	ev := &model.SpeakerAssignmentEvent{
		SessionID:     sessionID,
		SpeakerID:     speakerID,
		PriorPersonID: prior,
		NewPersonID:   next,
	}
	if err := e.Store.AppendSpeakerEvent(ctx, ev); err != nil {
		e.Log.Warn("speaker audit event failed", "speaker_id", speakerID, "error", err)
	}
}

func speakerDisplay(speaker *model.SessionSpeaker) string {
	if speaker.DisplayName != "" {
		return speaker.DisplayName
	}
	return speaker.Label
}
