package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the durable implementation of Store, EventStore,
// PreferenceStore and EndpointStore over a pgx connection pool. Schema lives
// in pkg/notification/migrations and is applied with the postgres package's
// migration runner.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const notificationColumns = `id, user_id, channel, category, priority, title, message, data,
	template_id, status, external_id, retry_count, last_error, next_retry_at,
	scheduled_at, expires_at, read_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, n *Notification) error {
	data, err := marshalMap(n.Data)
	if err != nil {
		return fmt.Errorf("encode data payload: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		n.ID, n.UserID, n.Channel, n.Category, n.Priority, n.Title, n.Message, data,
		nullStr(n.TemplateID), n.Status, nullStr(n.ExternalID), n.RetryCount,
		nullStr(n.LastError), n.NextRetryAt, n.ScheduledAt, n.ExpiresAt, n.ReadAt,
		n.CreatedAt, n.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Notification, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)
	return scanNotification(row)
}

func (s *PostgresStore) GetByExternalID(ctx context.Context, ch Channel, externalID string) (*Notification, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications WHERE channel = $1 AND external_id = $2`, ch, externalID)
	return scanNotification(row)
}

func (s *PostgresStore) Claim(ctx context.Context, id uuid.UUID, now time.Time) (*Notification, error) {
	// Single-statement claim: the WHERE clause excludes rows another worker
	// already moved to in_flight, so exactly one concurrent caller wins.
	row := s.pool.QueryRow(ctx, `
		UPDATE notifications
		SET status = $2, updated_at = $3
		WHERE id = $1
		  AND (status = 'pending'
		       OR (status = 'scheduled' AND scheduled_at <= $3))
		RETURNING `+notificationColumns, id, StatusInFlight, now)

	n, err := scanNotification(row)
	if errors.Is(err, ErrNotFound) {
		// Distinguish a missing row from a lost race.
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrAlreadyClaimed
	}
	return n, err
}

func (s *PostgresStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 100
	}

	// SKIP LOCKED keeps concurrent scheduler ticks from claiming the same
	// rows while one tick's transaction is still open.
	rows, err := s.pool.Query(ctx, `
		UPDATE notifications
		SET status = $1, updated_at = $2
		WHERE id IN (
			SELECT id FROM notifications
			WHERE (status = 'pending' AND (next_retry_at IS NULL OR next_retry_at <= $2))
			   OR (status = 'scheduled' AND scheduled_at <= $2)
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+notificationColumns, StatusInFlight, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claimed []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, *n)
	}
	return claimed, rows.Err()
}

func (s *PostgresStore) Transition(ctx context.Context, n *Notification, ev *Event) error {
	data, err := marshalMap(n.Data)
	if err != nil {
		return fmt.Errorf("encode data payload: %w", err)
	}

	// Status update and event append succeed or fail together.
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	tag, err := tx.Exec(ctx, `
		UPDATE notifications
		SET status = $2, external_id = $3, retry_count = $4, last_error = $5,
		    next_retry_at = $6, read_at = $7, data = $8, updated_at = $9
		WHERE id = $1 AND status NOT IN ('delivered', 'failed', 'cancelled')`,
		n.ID, n.Status, nullStr(n.ExternalID), n.RetryCount, nullStr(n.LastError),
		n.NextRetryAt, n.ReadAt, data, n.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.Get(ctx, n.ID); getErr != nil {
			return getErr
		}
		return ErrInvalidTransition
	}

	if ev != nil {
		if err := appendEvent(ctx, tx, *ev); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Cancel(ctx context.Context, id uuid.UUID, userID string, now time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications
		SET status = $3, updated_at = $4
		WHERE id = $1 AND user_id = $2 AND status = 'scheduled'`,
		id, userID, StatusCancelled, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
		return ErrInvalidTransition
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, userID string, opts ListOptions) ([]Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = $1`
	args := []any{userID}

	if opts.Channel != "" {
		args = append(args, opts.Channel)
		query += fmt.Sprintf(" AND channel = $%d", len(args))
	}
	if opts.Category != "" {
		args = append(args, opts.Category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if opts.UnreadOnly {
		query += " AND read_at IS NULL"
	}
	query += " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE user_id = $1 AND channel = $2 AND read_at IS NULL`,
		userID, ChannelInApp).Scan(&count)
	return count, err
}

func (s *PostgresStore) MarkRead(ctx context.Context, userID string, now time.Time, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE notifications SET read_at = $3, updated_at = $3
		WHERE user_id = $1 AND id = ANY($2) AND read_at IS NULL`,
		userID, ids, now)
	return err
}

func (s *PostgresStore) MarkAllRead(ctx context.Context, userID string, now time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notifications SET read_at = $2, updated_at = $2
		WHERE user_id = $1 AND read_at IS NULL`, userID, now)
	return err
}

func (s *PostgresStore) Append(ctx context.Context, ev Event) error {
	return appendEvent(ctx, s.pool, ev)
}

// execer is satisfied by both pgxpool.Pool and pgx.Tx, letting event appends
// participate in the Transition transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func appendEvent(ctx context.Context, db execer, ev Event) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	data, err := marshalMap(ev.Data)
	if err != nil {
		return fmt.Errorf("encode event data: %w", err)
	}
	_, err = db.Exec(ctx, `
		INSERT INTO notification_events (id, notification_id, event_type, event_data, event_timestamp)
		VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, ev.NotificationID, ev.Type, data, ev.Timestamp)
	return err
}

func (s *PostgresStore) ListByNotification(ctx context.Context, id uuid.UUID) ([]Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, notification_id, event_type, event_data, event_timestamp
		FROM notification_events
		WHERE notification_id = $1
		ORDER BY event_timestamp, id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var data []byte
		if err := rows.Scan(&ev.ID, &ev.NotificationID, &ev.Type, &data, &ev.Timestamp); err != nil {
			return nil, err
		}
		if err := unmarshalMap(data, &ev.Data); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetPreference(ctx context.Context, userID string, ch Channel, cat Category) (*Preference, error) {
	var p Preference
	var settings []byte
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, channel, category, enabled, settings, updated_at
		FROM user_preferences
		WHERE user_id = $1 AND channel = $2 AND category = $3`,
		userID, ch, cat).Scan(&p.UserID, &p.Channel, &p.Category, &p.Enabled, &settings, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := unmarshalMap(settings, &p.Settings); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) ListPreferences(ctx context.Context, userID string) ([]Preference, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, channel, category, enabled, settings, updated_at
		FROM user_preferences
		WHERE user_id = $1
		ORDER BY channel, category`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Preference
	for rows.Next() {
		var p Preference
		var settings []byte
		if err := rows.Scan(&p.UserID, &p.Channel, &p.Category, &p.Enabled, &settings, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if err := unmarshalMap(settings, &p.Settings); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetPreference(ctx context.Context, p Preference) error {
	settings, err := marshalMap(p.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO user_preferences (user_id, channel, category, enabled, settings, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, channel, category)
		DO UPDATE SET enabled = EXCLUDED.enabled, settings = EXCLUDED.settings,
		              updated_at = EXCLUDED.updated_at`,
		p.UserID, p.Channel, p.Category, p.Enabled, settings, p.UpdatedAt)
	return err
}

func (s *PostgresStore) Upsert(ctx context.Context, e Endpoint) error {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO channel_endpoints (user_id, channel, address, metadata, is_active, is_verified, last_used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, channel, address)
		DO UPDATE SET metadata = EXCLUDED.metadata, is_active = EXCLUDED.is_active,
		              is_verified = EXCLUDED.is_verified`,
		e.UserID, e.Channel, e.Address, metadata, e.IsActive, e.IsVerified, e.LastUsedAt, e.CreatedAt)
	return err
}

func (s *PostgresStore) Active(ctx context.Context, userID string, ch Channel) (*Endpoint, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, channel, address, metadata, is_active, is_verified, last_used_at, created_at
		FROM channel_endpoints
		WHERE user_id = $1 AND channel = $2 AND is_active AND is_verified
		ORDER BY last_used_at DESC NULLS LAST, created_at DESC
		LIMIT 1`, userID, ch)

	var e Endpoint
	var metadata []byte
	err := row.Scan(&e.UserID, &e.Channel, &e.Address, &metadata, &e.IsActive, &e.IsVerified, &e.LastUsedAt, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEndpointNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, err
		}
	}
	return &e, nil
}

func (s *PostgresStore) Deactivate(ctx context.Context, userID string, ch Channel, address string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE channel_endpoints SET is_active = FALSE
		WHERE user_id = $1 AND channel = $2 AND address = $3`,
		userID, ch, address)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEndpointNotFound
	}
	return nil
}

func (s *PostgresStore) TouchUsed(ctx context.Context, userID string, ch Channel, address string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE channel_endpoints SET last_used_at = $4
		WHERE user_id = $1 AND channel = $2 AND address = $3`,
		userID, ch, address, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEndpointNotFound
	}
	return nil
}

// scanner abstracts pgx.Row and pgx.Rows for shared scanning.
type scanner interface {
	Scan(dest ...any) error
}

func scanNotification(row scanner) (*Notification, error) {
	var n Notification
	var data []byte
	var templateID, externalID, lastError *string

	err := row.Scan(&n.ID, &n.UserID, &n.Channel, &n.Category, &n.Priority, &n.Title,
		&n.Message, &data, &templateID, &n.Status, &externalID, &n.RetryCount,
		&lastError, &n.NextRetryAt, &n.ScheduledAt, &n.ExpiresAt, &n.ReadAt,
		&n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	n.TemplateID = deref(templateID)
	n.ExternalID = deref(externalID)
	n.LastError = deref(lastError)
	if err := unmarshalMap(data, &n.Data); err != nil {
		return nil, err
	}
	return &n, nil
}

func marshalMap(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func unmarshalMap(data []byte, dst *map[string]any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
