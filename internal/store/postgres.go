package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nightingale-health/backend/internal/model/chat"
	"github.com/nightingale-health/backend/internal/model/profile"
	"github.com/nightingale-health/backend/internal/model/triage"
)

// Postgres is the durable Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPool dials postgres and verifies the connection.
func NewPool(ctx context.Context, databaseURL string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = minConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const conversationCols = `id, patient_id, version, last_sequence, last_message_at, created_at`

func scanConversation(row pgx.Row) (chat.Conversation, error) {
	var c chat.Conversation
	err := row.Scan(&c.ID, &c.PatientID, &c.Version, &c.LastSequence, &c.LastMessageAt, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.Conversation{}, ErrConversationNotFound
	}
	return c, err
}

func (s *Postgres) CreateConversation(ctx context.Context, conv chat.Conversation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (id, patient_id, version, last_sequence, last_message_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		conv.ID, conv.PatientID, conv.Version, conv.LastSequence, conv.LastMessageAt, conv.CreatedAt)
	return err
}

func (s *Postgres) GetConversation(ctx context.Context, id string) (chat.Conversation, error) {
	return scanConversation(s.pool.QueryRow(ctx,
		`SELECT `+conversationCols+` FROM conversations WHERE id = $1`, id))
}

func (s *Postgres) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+conversationCols+` FROM conversations ORDER BY last_message_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectConversations(rows)
}

func (s *Postgres) ConversationsByPatient(ctx context.Context, patientID string) ([]chat.Conversation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+conversationCols+` FROM conversations WHERE patient_id = $1 ORDER BY created_at ASC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectConversations(rows)
}

func collectConversations(rows pgx.Rows) ([]chat.Conversation, error) {
	var out []chat.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const messageCols = `id, conversation_id, sender, content, content_redacted, sequence,
	risk_level, risk_reason, confidence_score, confidence_level, verified, created_at`

func scanMessage(row pgx.Row) (chat.Message, error) {
	var (
		m          chat.Message
		riskLevel  *string
		riskReason *string
		confScore  *int
		confLevel  *string
	)
	err := row.Scan(&m.ID, &m.ConversationID, &m.Sender, &m.Content, &m.ContentRedacted,
		&m.Sequence, &riskLevel, &riskReason, &confScore, &confLevel, &m.Verified, &m.CreatedAt)
	if err != nil {
		return chat.Message{}, err
	}
	if !m.Sender.Valid() {
		return chat.Message{}, fmt.Errorf("message %s: unknown sender %q", m.ID, m.Sender)
	}
	if riskLevel != nil {
		m.Risk = &chat.RiskAnnotation{Level: chat.RiskLevel(*riskLevel)}
		if riskReason != nil {
			m.Risk.Reason = *riskReason
		}
		if confScore != nil {
			m.Risk.ConfidenceScore = *confScore
		}
		if confLevel != nil {
			m.Risk.ConfidenceLevel = chat.ConfidenceLevel(*confLevel)
		}
	}
	return m, nil
}

func (s *Postgres) AppendMessage(ctx context.Context, msg chat.Message) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var riskLevel, riskReason, confLevel *string
	var confScore *int
	if msg.Risk != nil {
		lvl := string(msg.Risk.Level)
		riskLevel = &lvl
		riskReason = &msg.Risk.Reason
		confScore = &msg.Risk.ConfidenceScore
		cl := string(msg.Risk.ConfidenceLevel)
		confLevel = &cl
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender, content, content_redacted, sequence,
			risk_level, risk_reason, confidence_score, confidence_level, verified, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		msg.ID, msg.ConversationID, msg.Sender, msg.Content, msg.ContentRedacted, msg.Sequence,
		riskLevel, riskReason, confScore, confLevel, msg.Verified, msg.CreatedAt)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE conversations
		SET last_sequence = $2, last_message_at = $3, version = version + 1
		WHERE id = $1`,
		msg.ConversationID, msg.Sequence, msg.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return tx.Commit(ctx)
}

func (s *Postgres) Messages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+messageCols+` FROM messages WHERE conversation_id = $1 ORDER BY sequence ASC`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []chat.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Postgres) SetMessageRisk(ctx context.Context, conversationID, messageID string, risk *chat.RiskAnnotation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE messages
		SET risk_level = $3, risk_reason = $4, confidence_score = $5, confidence_level = $6
		WHERE id = $2 AND conversation_id = $1`,
		conversationID, messageID,
		string(risk.Level), risk.Reason, risk.ConfidenceScore, string(risk.ConfidenceLevel))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMessageNotFound
	}
	if _, err := tx.Exec(ctx,
		`UPDATE conversations SET version = version + 1 WHERE id = $1`, conversationID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Postgres) Profile(ctx context.Context, conversationID string) (profile.Profile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT category, value, status, source_message_id, created_at, updated_at
		FROM profile_items WHERE conversation_id = $1 ORDER BY created_at ASC`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	prof := profile.Profile{}
	for rows.Next() {
		var item profile.Item
		if err := rows.Scan(&item.Category, &item.Value, &item.Status,
			&item.SourceMessageID, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		prof[item.Category] = append(prof[item.Category], item)
	}
	return prof, rows.Err()
}

func (s *Postgres) UpsertProfileItem(ctx context.Context, conversationID string, item profile.Item) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO profile_items (conversation_id, category, value, status, source_message_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (conversation_id, category, value)
		DO UPDATE SET status = EXCLUDED.status,
			source_message_id = EXCLUDED.source_message_id,
			updated_at = EXCLUDED.updated_at`,
		conversationID, item.Category, item.Value, item.Status,
		item.SourceMessageID, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx,
		`UPDATE conversations SET version = version + 1 WHERE id = $1`, conversationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return tx.Commit(ctx)
}

const escalationCols = `id, conversation_id, trigger_message_id, status, triage_summary,
	profile_snapshot, resolution_reply, resolved_by, created_at, resolved_at`

func scanEscalation(row pgx.Row) (triage.Escalation, error) {
	var (
		e        triage.Escalation
		snapshot []byte
	)
	err := row.Scan(&e.ID, &e.ConversationID, &e.TriggerMessageID, &e.Status, &e.TriageSummary,
		&snapshot, &e.ResolutionReply, &e.ResolvedBy, &e.CreatedAt, &e.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return triage.Escalation{}, ErrEscalationNotFound
	}
	if err != nil {
		return triage.Escalation{}, err
	}
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &e.ProfileSnapshot); err != nil {
			return triage.Escalation{}, fmt.Errorf("decode profile snapshot: %w", err)
		}
	}
	return e, nil
}

func (s *Postgres) CreateEscalation(ctx context.Context, esc triage.Escalation) error {
	snapshot, err := json.Marshal(esc.ProfileSnapshot)
	if err != nil {
		return fmt.Errorf("encode profile snapshot: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO escalations (id, conversation_id, trigger_message_id, status, triage_summary,
			profile_snapshot, resolution_reply, resolved_by, created_at, resolved_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		esc.ID, esc.ConversationID, esc.TriggerMessageID, esc.Status, esc.TriageSummary,
		snapshot, esc.ResolutionReply, esc.ResolvedBy, esc.CreatedAt, esc.ResolvedAt)
	return err
}

func (s *Postgres) GetEscalation(ctx context.Context, id string) (triage.Escalation, error) {
	return scanEscalation(s.pool.QueryRow(ctx,
		`SELECT `+escalationCols+` FROM escalations WHERE id = $1`, id))
}

func (s *Postgres) UpdateEscalation(ctx context.Context, esc triage.Escalation) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE escalations
		SET status = $2, triage_summary = $3, resolution_reply = $4, resolved_by = $5, resolved_at = $6
		WHERE id = $1`,
		esc.ID, esc.Status, esc.TriageSummary, esc.ResolutionReply, esc.ResolvedBy, esc.ResolvedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEscalationNotFound
	}
	return nil
}

func (s *Postgres) PendingEscalations(ctx context.Context) ([]triage.Escalation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+escalationCols+` FROM escalations
		WHERE status = $1 ORDER BY created_at DESC`, triage.StatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []triage.Escalation
	for rows.Next() {
		e, err := scanEscalation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Postgres) PendingByConversation(ctx context.Context, conversationID string) (triage.Escalation, bool, error) {
	esc, err := scanEscalation(s.pool.QueryRow(ctx, `
		SELECT `+escalationCols+` FROM escalations
		WHERE conversation_id = $1 AND status = $2
		ORDER BY created_at DESC LIMIT 1`,
		conversationID, triage.StatusPending))
	if errors.Is(err, ErrEscalationNotFound) {
		return triage.Escalation{}, false, nil
	}
	if err != nil {
		return triage.Escalation{}, false, err
	}
	return esc, true, nil
}
