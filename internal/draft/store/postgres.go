package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/twinsuns/draftroom/internal/models"
	"github.com/twinsuns/draftroom/internal/sqlutil"
)

// PostgresStore persists drafts in two tables, drafts and draft_seats.
// Hands and supplies are opaque JSONB blobs; the CAS and the bot lease are
// single conditional UPDATEs so no separate lock table is needed.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open connection pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const draftColumns = `id, share_id, host_seat_id, set_code, max_seats, status,
	phase_state, settings, seed, paused, paused_at, paused_accumulated_ms,
	state_version, bot_processing_since, created_at, started_at, completed_at,
	pick_started_at`

const seatColumns = `id, draft_id, seat_number, principal, is_bot, pick_status,
	selected_card_id, leader_offering, current_pack, drafted_leaders,
	drafted_cards, leader_queue, pack_queue`

func (p *PostgresStore) CreateDraft(ctx context.Context, d *models.Draft) error {
	return sqlutil.WithTx(ctx, p.db, func(tx *sql.Tx) error {
		if err := insertDraftRow(ctx, tx, d); err != nil {
			return err
		}
		return insertSeatRows(ctx, tx, d)
	})
}

func (p *PostgresStore) LoadDraft(ctx context.Context, id uuid.UUID) (*models.Draft, error) {
	return p.load(ctx, `WHERE id = $1`, id)
}

func (p *PostgresStore) LoadDraftByShareID(ctx context.Context, shareID string) (*models.Draft, error) {
	return p.load(ctx, `WHERE share_id = $1`, shareID)
}

func (p *PostgresStore) load(ctx context.Context, where string, arg any) (*models.Draft, error) {
	var d *models.Draft
	err := sqlutil.WithTx(ctx, p.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+draftColumns+` FROM drafts `+where, arg)
		loaded, err := scanDraft(row)
		if err != nil {
			return err
		}
		seats, err := loadSeats(ctx, tx, loaded.ID)
		if err != nil {
			return err
		}
		loaded.Seats = seats
		d = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (p *PostgresStore) UpdateDraft(ctx context.Context, id uuid.UUID, expectedVersion int64, mutate func(*models.Draft) error) (int64, bool, error) {
	var newVersion int64
	conflict := false
	err := sqlutil.WithTx(ctx, p.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+draftColumns+` FROM drafts WHERE id = $1 FOR UPDATE`, id)
		d, err := scanDraft(row)
		if err != nil {
			return err
		}
		if d.StateVersion != expectedVersion {
			conflict = true
			return nil
		}
		seats, err := loadSeats(ctx, tx, id)
		if err != nil {
			return err
		}
		d.Seats = seats

		if err := mutate(d); err != nil {
			return err
		}
		d.StateVersion = expectedVersion + 1

		if err := updateDraftRow(ctx, tx, d, expectedVersion); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM draft_seats WHERE draft_id = $1`, id); err != nil {
			return fmt.Errorf("clear seat rows: %w", err)
		}
		if err := insertSeatRows(ctx, tx, d); err != nil {
			return err
		}
		newVersion = d.StateVersion
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return newVersion, conflict, nil
}

func (p *PostgresStore) DeleteDraft(ctx context.Context, id uuid.UUID) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM drafts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) ListActiveDraftIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id FROM drafts WHERE status = $1 OR status = $2`,
		models.DraftStatusLeaderDraft, models.DraftStatusPackDraft)
	if err != nil {
		return nil, fmt.Errorf("list active drafts: %w", err)
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *PostgresStore) AcquireBotLease(ctx context.Context, id uuid.UUID, maxAge time.Duration) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE drafts SET bot_processing_since = now()
		WHERE id = $1
		  AND (bot_processing_since IS NULL
		       OR bot_processing_since < now() - make_interval(secs => $2))`,
		id, maxAge.Seconds())
	if err != nil {
		return false, fmt.Errorf("acquire bot lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (p *PostgresStore) RefreshBotLease(ctx context.Context, id uuid.UUID) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE drafts SET bot_processing_since = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("refresh bot lease: %w", err)
	}
	return nil
}

func (p *PostgresStore) ReleaseBotLease(ctx context.Context, id uuid.UUID) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE drafts SET bot_processing_since = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("release bot lease: %w", err)
	}
	return nil
}

func insertDraftRow(ctx context.Context, tx *sql.Tx, d *models.Draft) error {
	phase, settings, err := marshalDraftBlobs(d)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO drafts (`+draftColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		d.ID, d.ShareID, d.HostSeatID, d.SetCode, d.MaxSeats, d.Status,
		phase, settings, d.Seed, d.Paused, nullTime(d.PausedAt),
		d.PausedAccumulated.Milliseconds(), d.StateVersion,
		nullTime(d.BotProcessingSince), d.CreatedAt, nullTime(d.StartedAt),
		nullTime(d.CompletedAt), nullTime(d.PickStartedAt))
	if err != nil {
		return fmt.Errorf("insert draft row: %w", err)
	}
	return nil
}

func updateDraftRow(ctx context.Context, tx *sql.Tx, d *models.Draft, expectedVersion int64) error {
	phase, settings, err := marshalDraftBlobs(d)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE drafts SET
			status = $2, phase_state = $3, settings = $4, seed = $5,
			paused = $6, paused_at = $7, paused_accumulated_ms = $8,
			state_version = $9, started_at = $10, completed_at = $11,
			pick_started_at = $12, max_seats = $13, host_seat_id = $14
		WHERE id = $1 AND state_version = $15`,
		d.ID, d.Status, phase, settings, d.Seed, d.Paused,
		nullTime(d.PausedAt), d.PausedAccumulated.Milliseconds(),
		d.StateVersion, nullTime(d.StartedAt), nullTime(d.CompletedAt),
		nullTime(d.PickStartedAt), d.MaxSeats, d.HostSeatID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update draft row: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		// The FOR UPDATE read should make this unreachable; treat it as a
		// storage fault rather than silently losing the write.
		return errors.New("draft row vanished during CAS update")
	}
	return nil
}

func insertSeatRows(ctx context.Context, tx *sql.Tx, d *models.Draft) error {
	for _, s := range d.Seats {
		offering, err := json.Marshal(s.LeaderOffering)
		if err != nil {
			return err
		}
		pack, err := json.Marshal(s.CurrentPack)
		if err != nil {
			return err
		}
		leaders, err := json.Marshal(s.DraftedLeaders)
		if err != nil {
			return err
		}
		drafted, err := json.Marshal(s.DraftedCards)
		if err != nil {
			return err
		}
		leaderQueue, err := json.Marshal(s.LeaderQueue)
		if err != nil {
			return err
		}
		packQueue, err := json.Marshal(s.PackQueue)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO draft_seats (`+seatColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			s.ID, d.ID, s.SeatNumber, s.Principal, s.IsBot, s.PickStatus,
			nullString(s.SelectedCardID), offering, pack, leaders, drafted,
			leaderQueue, packQueue)
		if err != nil {
			return fmt.Errorf("insert seat row: %w", err)
		}
	}
	return nil
}

func loadSeats(ctx context.Context, tx *sql.Tx, draftID uuid.UUID) ([]*models.Seat, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+seatColumns+` FROM draft_seats WHERE draft_id = $1 ORDER BY seat_number`, draftID)
	if err != nil {
		return nil, fmt.Errorf("load seats: %w", err)
	}
	defer rows.Close()

	var seats []*models.Seat
	for rows.Next() {
		var (
			s           models.Seat
			selected    sql.NullString
			offering    []byte
			pack        []byte
			leaders     []byte
			drafted     []byte
			leaderQueue []byte
			packQueue   []byte
		)
		if err := rows.Scan(&s.ID, &s.DraftID, &s.SeatNumber, &s.Principal,
			&s.IsBot, &s.PickStatus, &selected, &offering, &pack, &leaders,
			&drafted, &leaderQueue, &packQueue); err != nil {
			return nil, err
		}
		if selected.Valid {
			s.SelectedCardID = &selected.String
		}
		for _, blob := range []struct {
			raw  []byte
			dest any
		}{
			{offering, &s.LeaderOffering},
			{pack, &s.CurrentPack},
			{leaders, &s.DraftedLeaders},
			{drafted, &s.DraftedCards},
			{leaderQueue, &s.LeaderQueue},
			{packQueue, &s.PackQueue},
		} {
			if err := json.Unmarshal(blob.raw, blob.dest); err != nil {
				return nil, fmt.Errorf("decode seat blob: %w", err)
			}
		}
		seats = append(seats, &s)
	}
	return seats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDraft(row rowScanner) (*models.Draft, error) {
	var (
		d         models.Draft
		phase     pqtype.NullRawMessage
		settings  []byte
		pausedMS  int64
		pausedAt  sql.NullTime
		botSince  sql.NullTime
		started   sql.NullTime
		completed sql.NullTime
		pickStart sql.NullTime
	)
	err := row.Scan(&d.ID, &d.ShareID, &d.HostSeatID, &d.SetCode, &d.MaxSeats,
		&d.Status, &phase, &settings, &d.Seed, &d.Paused, &pausedAt,
		&pausedMS, &d.StateVersion, &botSince, &d.CreatedAt, &started,
		&completed, &pickStart)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan draft row: %w", err)
	}

	if phase.Valid {
		if err := json.Unmarshal(phase.RawMessage, &d.Phase); err != nil {
			return nil, fmt.Errorf("decode phase state: %w", err)
		}
	}
	if err := json.Unmarshal(settings, &d.Settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	d.PausedAccumulated = time.Duration(pausedMS) * time.Millisecond
	d.PausedAt = timePtr(pausedAt)
	d.BotProcessingSince = timePtr(botSince)
	d.StartedAt = timePtr(started)
	d.CompletedAt = timePtr(completed)
	d.PickStartedAt = timePtr(pickStart)
	return &d, nil
}

func marshalDraftBlobs(d *models.Draft) (pqtype.NullRawMessage, []byte, error) {
	var phase pqtype.NullRawMessage
	if d.Phase.Leader != nil || d.Phase.Pack != nil {
		raw, err := json.Marshal(d.Phase)
		if err != nil {
			return phase, nil, err
		}
		phase = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
	}
	settings, err := json.Marshal(d.Settings)
	if err != nil {
		return phase, nil, err
	}
	return phase, settings, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

var _ Store = (*PostgresStore)(nil)
