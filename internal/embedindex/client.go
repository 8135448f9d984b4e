// Package embedindex updates speaker metadata held by the embedding index
// service so vector search stays consistent with person bindings. The index
// is an optional deployment piece; an unconfigured client is nil and every
// caller treats updates as best-effort.
package embedindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/latticehq/lattice/internal/logger"
)

const maxErrorBodyBytes = 1024

type Client struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger
}

// New returns nil when no URL is configured, which callers take as "index
// disabled".
func New(url string, timeoutSeconds int, baseLog *logger.Logger) *Client {
	if strings.TrimSpace(url) == "" {
		return nil
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = 5
	}
	return &Client{
		baseURL: strings.TrimRight(url, "/"),
		http:    &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second},
		log:     baseLog.With("service", "embedindex"),
	}
}

type speakerPersonUpdate struct {
	UserID      string  `json:"user_id"`
	SessionID   string  `json:"session_id"`
	SpeakerName string  `json:"speaker_name"`
	PersonID    *string `json:"person_id"`
}

// UpdateSpeakerPerson retags every indexed chunk carrying the speaker's
// display name with the new person id. A nil personID clears the tag.
func (c *Client) UpdateSpeakerPerson(ctx context.Context, userID, sessionID uuid.UUID, speakerName string, personID *uuid.UUID) error {
	if c == nil {
		return nil
	}

	update := speakerPersonUpdate{
		UserID:      userID.String(),
		SessionID:   sessionID.String(),
		SpeakerName: speakerName,
	}
	if personID != nil {
		id := personID.String()
		update.PersonID = &id
	}

	return c.doJSON(ctx, http.MethodPost, "/metadata/speaker-person", update)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(in); err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("embedindex request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return fmt.Errorf("embedindex status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}
