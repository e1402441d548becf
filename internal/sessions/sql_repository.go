package sessions

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
)

// sessionRow stores timestamps as unix milliseconds so the monotonic
// comparison in Extend behaves the same on Postgres and SQLite.
type sessionRow struct {
	bun.BaseModel `bun:"table:sessions,alias:s"`

	Token           string `bun:"token,pk"`
	UserID          string `bun:"user_id,notnull"`
	CreatedAt       int64  `bun:"created_at,notnull"`
	ExpiresAt       int64  `bun:"expires_at,notnull"`
	LastRefreshedAt int64  `bun:"last_refreshed_at,notnull"`
}

func toRow(s *Session) *sessionRow {
	return &sessionRow{
		Token:           s.Token,
		UserID:          s.UserID,
		CreatedAt:       s.CreatedAt.UnixMilli(),
		ExpiresAt:       s.ExpiresAt.UnixMilli(),
		LastRefreshedAt: s.LastRefreshedAt.UnixMilli(),
	}
}

func (r *sessionRow) toSession() *Session {
	return &Session{
		Token:           r.Token,
		UserID:          r.UserID,
		CreatedAt:       time.UnixMilli(r.CreatedAt).UTC(),
		ExpiresAt:       time.UnixMilli(r.ExpiresAt).UTC(),
		LastRefreshedAt: time.UnixMilli(r.LastRefreshedAt).UTC(),
	}
}

// SQLRepository implements Repository on a relational database through bun.
type SQLRepository struct {
	db *bun.DB
}

func NewSQLRepository(db *bun.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

// CreateSchema creates the sessions table and its user index if missing.
func (r *SQLRepository) CreateSchema(ctx context.Context) error {
	if _, err := r.db.NewCreateTable().Model((*sessionRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return err
	}
	_, err := r.db.NewCreateIndex().
		Model((*sessionRow)(nil)).
		Index("sessions_user_id_idx").
		Column("user_id").
		IfNotExists().
		Exec(ctx)
	return err
}

func (r *SQLRepository) Create(ctx context.Context, s *Session) error {
	_, err := r.db.NewInsert().Model(toRow(s)).Exec(ctx)
	return err
}

func (r *SQLRepository) GetByToken(ctx context.Context, token string) (*Session, error) {
	row := new(sessionRow)
	if err := r.db.NewSelect().Model(row).Where("token = ?", token).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toSession(), nil
}

func (r *SQLRepository) Extend(ctx context.Context, token string, expiresAt, refreshedAt time.Time) (bool, error) {
	exp := expiresAt.UnixMilli()
	res, err := r.db.NewUpdate().
		Model((*sessionRow)(nil)).
		Set("expires_at = ?", exp).
		Set("last_refreshed_at = ?", refreshedAt.UnixMilli()).
		Where("token = ?", token).
		Where("expires_at < ?", exp).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SQLRepository) DeleteByToken(ctx context.Context, token string) error {
	_, err := r.db.NewDelete().Model((*sessionRow)(nil)).Where("token = ?", token).Exec(ctx)
	return err
}
