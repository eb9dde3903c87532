package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pairium/experimentd/pkg/models"
)

// SessionStore is the Persistence Gateway's typed access to the sessions
// collection (§4.1).
type SessionStore struct {
	pool *pgxpool.Pool
}

// Insert creates a new session row.
func (s *SessionStore) Insert(ctx context.Context, sess *models.Session) error {
	stateJSON, err := json.Marshal(sess.UserState)
	if err != nil {
		return err
	}

	var prolificPID, prolificStudy, prolificSession *string
	if sess.Prolific != nil {
		prolificPID = &sess.Prolific.PID
		prolificStudy = &sess.Prolific.StudyID
		prolificSession = &sess.Prolific.SessionID
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (id, config_id, current_page_id, user_state, user_id,
		                       prolific_pid, prolific_study_id, prolific_session_id,
		                       ended_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, sess.ID, sess.ConfigID, sess.CurrentPageID, stateJSON, sess.UserID,
		prolificPID, prolificStudy, prolificSession,
		sess.EndedAt, sess.CreatedAt, sess.UpdatedAt)
	return classify(err)
}

// GetByID loads a session by its primary key.
func (s *SessionStore) GetByID(ctx context.Context, id string) (*models.Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, config_id, current_page_id, user_state, user_id,
		       prolific_pid, prolific_study_id, prolific_session_id,
		       ended_at, created_at, updated_at
		FROM sessions WHERE id = $1
	`, id)
	return scanSession(row)
}

// FindLatestByUser returns the newest session for (userId, configId), or
// ErrNotFound if none exists. Used for OAuth-based resumption (§4.5 start).
func (s *SessionStore) FindLatestByUser(ctx context.Context, userID, configID string) (*models.Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, config_id, current_page_id, user_state, user_id,
		       prolific_pid, prolific_study_id, prolific_session_id,
		       ended_at, created_at, updated_at
		FROM sessions
		WHERE user_id = $1 AND config_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, userID, configID)
	return scanSession(row)
}

// FindLatestByProlific returns the newest session for (prolificPid,
// configId), or ErrNotFound if none exists (§4.5 start).
func (s *SessionStore) FindLatestByProlific(ctx context.Context, prolificPID, configID string) (*models.Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, config_id, current_page_id, user_state, user_id,
		       prolific_pid, prolific_study_id, prolific_session_id,
		       ended_at, created_at, updated_at
		FROM sessions
		WHERE prolific_pid = $1 AND config_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, prolificPID, configID)
	return scanSession(row)
}

// UpdateCurrentPage advances the session to a new page, setting endedAt if
// isEnd is true. Returns the fresh row.
func (s *SessionStore) UpdateCurrentPage(ctx context.Context, id, pageID string, isEnd bool) (*models.Session, error) {
	var endedAt *time.Time
	if isEnd {
		now := time.Now()
		endedAt = &now
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE sessions
		SET current_page_id = $2,
		    ended_at = COALESCE(ended_at, $3),
		    updated_at = now()
		WHERE id = $1
		RETURNING id, config_id, current_page_id, user_state, user_id,
		          prolific_pid, prolific_study_id, prolific_session_id,
		          ended_at, created_at, updated_at
	`, id, pageID, endedAt)
	return scanSession(row)
}

// PatchState merges updates into user_state at the top level (one key per
// call is typical, but batched here to stay within a single round trip).
// Dotted-path semantics are resolved by the caller (pkg/runtime) before this
// is invoked; the store only knows how to persist the resulting flat map.
func (s *SessionStore) PatchState(ctx context.Context, id string, patch map[string]any) (*models.Session, error) {
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE sessions
		SET user_state = user_state || $2::jsonb,
		    updated_at = now()
		WHERE id = $1
		RETURNING id, config_id, current_page_id, user_state, user_id,
		          prolific_pid, prolific_study_id, prolific_session_id,
		          ended_at, created_at, updated_at
	`, id, patchJSON)
	return scanSession(row)
}

// ListIDsByChatGroup returns the ids of sessions whose user_state carries
// chat_group_id == groupID. Used by pkg/chat and pkg/agentrunner to
// resolve a group's members for §4.2's broadcastToGroup fan-out, so the
// Event Bus itself does not depend on persistence.
func (s *SessionStore) ListIDsByChatGroup(ctx context.Context, groupID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM sessions WHERE user_state->>'chat_group_id' = $1
	`, groupID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		sess                                             models.Session
		stateJSON                                        []byte
		userID, prolificPID, prolificStudy, prolificSess *string
	)
	if err := row.Scan(
		&sess.ID, &sess.ConfigID, &sess.CurrentPageID, &stateJSON, &userID,
		&prolificPID, &prolificStudy, &prolificSess,
		&sess.EndedAt, &sess.CreatedAt, &sess.UpdatedAt,
	); err != nil {
		return nil, classify(err)
	}

	sess.UserID = userID
	if prolificPID != nil {
		sess.Prolific = &models.ProlificInfo{PID: *prolificPID}
		if prolificStudy != nil {
			sess.Prolific.StudyID = *prolificStudy
		}
		if prolificSess != nil {
			sess.Prolific.SessionID = *prolificSess
		}
	}
	sess.UserState = map[string]any{}
	if len(stateJSON) > 0 {
		if err := json.Unmarshal(stateJSON, &sess.UserState); err != nil {
			return nil, err
		}
	}
	return &sess, nil
}
