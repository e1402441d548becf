package users

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/todoapp/auth-service/internal/database"
	"github.com/todoapp/auth-service/internal/models"
)

type userRow struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        string    `bun:"id,pk"`
	Email     string    `bun:"email,notnull"`
	Name      string    `bun:"name,notnull"`
	Image     string    `bun:"image,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// accountRow links one provider identity to a user.
type accountRow struct {
	bun.BaseModel `bun:"table:accounts,alias:a"`

	ID                string `bun:"id,pk"`
	UserID            string `bun:"user_id,notnull"`
	Provider          string `bun:"provider,notnull,unique:accounts_provider_account"`
	ProviderAccountID string `bun:"provider_account_id,notnull,unique:accounts_provider_account"`
	Email             string `bun:"email,notnull"`
	Name              string `bun:"name,notnull"`
	Image             string `bun:"image,notnull"`
}

// SQLRepository implements Repository on Postgres or SQLite through bun.
type SQLRepository struct {
	db *bun.DB
}

func NewSQLRepository(db *bun.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

// CreateSchema creates the users and accounts tables if missing.
func (r *SQLRepository) CreateSchema(ctx context.Context) error {
	if _, err := r.db.NewCreateTable().Model((*userRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return err
	}
	if _, err := r.db.NewCreateTable().
		Model((*accountRow)(nil)).
		IfNotExists().
		ForeignKey(`("user_id") REFERENCES "users" ("id") ON DELETE CASCADE`).
		Exec(ctx); err != nil {
		return err
	}
	_, err := r.db.NewCreateIndex().
		Model((*accountRow)(nil)).
		Index("accounts_user_id_idx").
		Column("user_id").
		IfNotExists().
		Exec(ctx)
	return err
}

func (r *SQLRepository) FindByIdentity(ctx context.Context, provider, subject string) (*models.User, error) {
	acc := new(accountRow)
	err := r.db.NewSelect().
		Model(acc).
		Where("provider = ? AND provider_account_id = ?", provider, subject).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return r.Get(ctx, acc.UserID)
}

func (r *SQLRepository) Get(ctx context.Context, id string) (*models.User, error) {
	row := new(userRow)
	if err := r.db.NewSelect().Model(row).Where("id = ?", id).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var accounts []accountRow
	if err := r.db.NewSelect().Model(&accounts).Where("user_id = ?", id).Order("provider").Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	u := &models.User{
		ID:        row.ID,
		Email:     row.Email,
		Name:      row.Name,
		Image:     row.Image,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
	for _, a := range accounts {
		u.Identities = append(u.Identities, models.Identity{
			Provider: a.Provider,
			Subject:  a.ProviderAccountID,
			Email:    a.Email,
			Name:     a.Name,
			Image:    a.Image,
		})
	}
	return u, nil
}

// Create inserts the user and its identities in one transaction.
func (r *SQLRepository) Create(ctx context.Context, u *models.User) error {
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := &userRow{
			ID:        u.ID,
			Email:     u.Email,
			Name:      u.Name,
			Image:     u.Image,
			CreatedAt: u.CreatedAt,
			UpdatedAt: u.UpdatedAt,
		}
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return err
		}
		for _, ident := range u.Identities {
			acc := &accountRow{
				ID:                uuid.NewString(),
				UserID:            u.ID,
				Provider:          ident.Provider,
				ProviderAccountID: ident.Subject,
				Email:             ident.Email,
				Name:              ident.Name,
				Image:             ident.Image,
			}
			if _, err := tx.NewInsert().Model(acc).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if database.IsDuplicateKeyError(err) {
		return ErrDuplicateIdentity
	}
	return err
}

func (r *SQLRepository) UpdateProfile(ctx context.Context, userID string, ident models.Identity, at time.Time) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewUpdate().
			Model((*accountRow)(nil)).
			Set("email = ?", ident.Email).
			Set("name = ?", ident.Name).
			Set("image = ?", ident.Image).
			Where("user_id = ? AND provider = ? AND provider_account_id = ?", userID, ident.Provider, ident.Subject).
			Exec(ctx)
		if err != nil {
			return err
		}

		q := tx.NewUpdate().
			Model((*userRow)(nil)).
			Set("updated_at = ?", at).
			Where("id = ?", userID)
		if ident.Name != "" {
			q = q.Set("name = ?", ident.Name)
		}
		if ident.Image != "" {
			q = q.Set("image = ?", ident.Image)
		}
		if ident.Email != "" {
			q = q.Set("email = CASE WHEN email = '' THEN ? ELSE email END", ident.Email)
		}
		_, err = q.Exec(ctx)
		return err
	})
}
