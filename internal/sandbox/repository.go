package sandbox

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neomorfeo/storeconsole/internal/adapter/sqlite"
	"github.com/neomorfeo/storeconsole/internal/domain"
)

//go:embed migrations/*.sql
var migrations embed.FS

const timeFormat = "2006-01-02T15:04:05Z"

// ErrEmailTaken is returned when a user with the same email exists.
var ErrEmailTaken = errors.New("email already registered")

var (
	errUserNotFound  = fmt.Errorf("user %w", domain.ErrNotFound)
	errThemeNotFound = fmt.Errorf("theme %w", domain.ErrNotFound)
)

// User is an account of the sandbox backend.
type User struct {
	ID        string
	Email     string
	Role      string
	FirstName string
	LastName  string
	Status    string
	CreatedAt time.Time
}

// Store is a tenant record of the sandbox backend.
type Store struct {
	ID                 string
	Slug               string
	Name               string
	OwnerID            string
	IsActive           bool
	SubscriptionStatus string
	PlanID             string
	ThemeID            string
	CreatedAt          time.Time
}

// Theme is an entry of the theme catalogue.
type Theme struct {
	ID   string
	Slug string
	Name string
}

// Repository persists users, stores and themes in SQLite.
type Repository struct {
	db *sql.DB
}

// NewRepository runs the sandbox migrations on db and returns a repository.
func NewRepository(ctx context.Context, db *sql.DB) (*Repository, error) {
	if err := sqlite.Migrate(ctx, db, migrations); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

// --- Users ---

func (r *Repository) CreateUser(ctx context.Context, u User, passwordHash string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, role, first_name, last_name, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, strings.ToLower(u.Email), passwordHash, u.Role, u.FirstName, u.LastName, u.Status,
		u.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

func (r *Repository) UserByID(ctx context.Context, id string) (User, error) {
	u, _, err := r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, role, first_name, last_name, status, created_at
		 FROM users WHERE id = ?`, id,
	))
	return u, err
}

// UserByEmail returns the user and its password hash.
func (r *Repository) UserByEmail(ctx context.Context, email string) (User, string, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, role, first_name, last_name, status, created_at
		 FROM users WHERE email = ?`, strings.ToLower(email),
	))
}

// DeleteUser removes the account. Its stores are kept and tokens issued to
// it stop authenticating.
func (r *Repository) DeleteUser(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting user %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return errUserNotFound
	}
	return nil
}

func (r *Repository) scanUser(row *sql.Row) (User, string, error) {
	var u User
	var hash, createdAt string

	err := row.Scan(&u.ID, &u.Email, &hash, &u.Role, &u.FirstName, &u.LastName, &u.Status, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, "", errUserNotFound
		}
		return User{}, "", fmt.Errorf("scanning user: %w", err)
	}
	u.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	return u, hash, nil
}

// --- Stores ---

const storeColumns = `id, slug, name, owner_id, is_active, subscription_status, plan_id, theme_id, created_at`

func (r *Repository) CreateStore(ctx context.Context, s Store) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO stores (`+storeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Slug, s.Name, s.OwnerID, s.IsActive, s.SubscriptionStatus, s.PlanID, s.ThemeID,
		s.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.SlugConflictError{Slug: s.Slug}
		}
		return fmt.Errorf("inserting store: %w", err)
	}
	return nil
}

func (r *Repository) StoreByID(ctx context.Context, id string) (Store, error) {
	return scanStore(r.db.QueryRowContext(ctx,
		`SELECT `+storeColumns+` FROM stores WHERE id = ?`, id,
	))
}

func (r *Repository) StoreBySlug(ctx context.Context, slug string) (Store, error) {
	return scanStore(r.db.QueryRowContext(ctx,
		`SELECT `+storeColumns+` FROM stores WHERE slug = ?`, slug,
	))
}

// ListStores returns the stores of ownerID, newest first. An empty ownerID
// lists every store.
func (r *Repository) ListStores(ctx context.Context, ownerID string) ([]Store, error) {
	query := `SELECT ` + storeColumns + ` FROM stores`
	var args []any

	if ownerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing stores: %w", err)
	}
	defer rows.Close()

	stores := []Store{}
	for rows.Next() {
		s, err := scanStore(rows)
		if err != nil {
			return nil, err
		}
		stores = append(stores, s)
	}
	return stores, rows.Err()
}

// SetStoreTheme records the theme a store runs.
func (r *Repository) SetStoreTheme(ctx context.Context, storeID, themeID string) error {
	return r.updateStore(ctx, storeID, `UPDATE stores SET theme_id = ? WHERE id = ?`, themeID, storeID)
}

// SetStoreStanding changes whether a store is active and its billing state.
func (r *Repository) SetStoreStanding(ctx context.Context, storeID string, isActive bool, subscription string) error {
	return r.updateStore(ctx, storeID,
		`UPDATE stores SET is_active = ?, subscription_status = ? WHERE id = ?`,
		isActive, subscription, storeID)
}

func (r *Repository) updateStore(ctx context.Context, storeID, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating store %s: %w", storeID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrTenantNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStore(row rowScanner) (Store, error) {
	var s Store
	var createdAt string

	err := row.Scan(&s.ID, &s.Slug, &s.Name, &s.OwnerID, &s.IsActive, &s.SubscriptionStatus, &s.PlanID, &s.ThemeID, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Store{}, domain.ErrTenantNotFound
		}
		return Store{}, fmt.Errorf("scanning store: %w", err)
	}
	s.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	return s, nil
}

// --- Themes ---

func (r *Repository) CreateTheme(ctx context.Context, t Theme) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO themes (id, slug, name) VALUES (?, ?, ?)`, t.ID, t.Slug, t.Name,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.SlugConflictError{Slug: t.Slug}
		}
		return fmt.Errorf("inserting theme: %w", err)
	}
	return nil
}

func (r *Repository) ThemeBySlug(ctx context.Context, slug string) (Theme, error) {
	var t Theme
	err := r.db.QueryRowContext(ctx,
		`SELECT id, slug, name FROM themes WHERE slug = ?`, slug,
	).Scan(&t.ID, &t.Slug, &t.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Theme{}, errThemeNotFound
		}
		return Theme{}, fmt.Errorf("scanning theme: %w", err)
	}
	return t, nil
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
