package calls

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"voicecall-platform/internal/batchcall"
	"voicecall-platform/internal/poller"
	"voicecall-platform/pkg/utils"
)

// PostgresRepo stores batches in batch_calls and their recipients in
// batch_call_recipients.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

// Create inserts the batch and all recipients in one transaction.
func (r *PostgresRepo) Create(ctx context.Context, b BatchCall) error {
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const qb = `
INSERT INTO batch_calls (
  id, call_name, agent_id, phone_number_id, scheduled_at,
  vendor_status, poll_state, poll_attempts, poll_reason, last_error, last_response,
  submitted_by, created_at, updated_at, finished_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
)
`
		if _, err := tx.ExecContext(ctx, qb,
			b.ID,
			b.CallName,
			b.AgentID,
			b.PhoneNumberID,
			utils.NullTime(b.ScheduledAt),
			b.VendorStatus,
			string(b.PollState),
			b.PollAttempts,
			b.PollReason,
			b.LastError,
			nullJSON(b.LastResponse),
			b.SubmittedBy,
			b.CreatedAt,
			b.UpdatedAt,
			utils.NullTime(b.FinishedAt),
		); err != nil {
			return fmt.Errorf("insert batch_calls: %w", err)
		}

		const qr = `
INSERT INTO batch_call_recipients (batch_id, position, phone_number, dynamic_variables)
VALUES ($1,$2,$3,$4)
`
		for i, rc := range b.Recipients {
			vars := rc.DynamicVariables
			if vars == nil {
				vars = batchcall.DynamicVariables{}
			}
			raw, err := json.Marshal(vars)
			if err != nil {
				return fmt.Errorf("encode recipient %d variables: %w", i, err)
			}
			if _, err := tx.ExecContext(ctx, qr, b.ID, i, rc.PhoneNumber, string(raw)); err != nil {
				return fmt.Errorf("insert batch_call_recipients: %w", err)
			}
		}
		return nil
	})
}

func (r *PostgresRepo) UpdatePoll(ctx context.Context, id string, u PollUpdate) error {
	const q = `
UPDATE batch_calls SET
  vendor_status = COALESCE(NULLIF($2, ''), vendor_status),
  last_response = COALESCE($3::jsonb, last_response),
  poll_state    = $4,
  poll_attempts = $5,
  poll_reason   = $6,
  last_error    = $7,
  finished_at   = $8,
  updated_at    = $9
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q,
		id,
		u.VendorStatus,
		nullJSON(u.LastResponse),
		string(u.State),
		u.Attempts,
		u.Reason,
		u.LastError,
		utils.NullTime(u.FinishedAt),
		u.At,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const selectBatch = `
SELECT id, call_name, agent_id, phone_number_id, scheduled_at,
       vendor_status, poll_state, poll_attempts, poll_reason, last_error, last_response,
       submitted_by, created_at, updated_at, finished_at
FROM batch_calls
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(s rowScanner) (BatchCall, error) {
	var (
		b         BatchCall
		state     string
		scheduled sql.NullTime
		finished  sql.NullTime
		lastResp  []byte
	)
	if err := s.Scan(
		&b.ID,
		&b.CallName,
		&b.AgentID,
		&b.PhoneNumberID,
		&scheduled,
		&b.VendorStatus,
		&state,
		&b.PollAttempts,
		&b.PollReason,
		&b.LastError,
		&lastResp,
		&b.SubmittedBy,
		&b.CreatedAt,
		&b.UpdatedAt,
		&finished,
	); err != nil {
		return BatchCall{}, err
	}
	b.PollState = poller.State(state)
	b.ScheduledAt = utils.TimePtr(scheduled)
	b.FinishedAt = utils.TimePtr(finished)
	if len(lastResp) > 0 {
		b.LastResponse = json.RawMessage(lastResp)
	}
	return b, nil
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (BatchCall, error) {
	b, err := scanBatch(r.db.QueryRowContext(ctx, selectBatch+"WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BatchCall{}, ErrNotFound
		}
		return BatchCall{}, err
	}
	recipients, err := r.recipients(ctx, id)
	if err != nil {
		return BatchCall{}, err
	}
	b.Recipients = recipients
	return b, nil
}

// List returns batch rows without recipients.
func (r *PostgresRepo) List(ctx context.Context, f ListFilter) ([]BatchCall, error) {
	f = f.normalized()
	q := selectBatch + `
WHERE ($1 = '' OR poll_state = $1)
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3
`
	rows, err := r.db.QueryContext(ctx, q, string(f.State), f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []BatchCall{}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) recipients(ctx context.Context, batchID string) ([]batchcall.Recipient, error) {
	const q = `
SELECT phone_number, dynamic_variables
FROM batch_call_recipients
WHERE batch_id = $1
ORDER BY position
`
	rows, err := r.db.QueryContext(ctx, q, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []batchcall.Recipient
	for rows.Next() {
		var (
			rc  batchcall.Recipient
			raw []byte
		)
		if err := rows.Scan(&rc.PhoneNumber, &raw); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			vars := batchcall.DynamicVariables{}
			if err := json.Unmarshal(raw, &vars); err != nil {
				return nil, fmt.Errorf("decode recipient variables: %w", err)
			}
			if len(vars) > 0 {
				rc.DynamicVariables = vars
			}
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
