package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/neomorfeo/storeconsole/internal/domain"

	_ "modernc.org/sqlite" // Register SQLite driver.
)

//go:embed migrations/*.sql
var migrations embed.FS

// Compile-time check: CredentialStore implements domain.CredentialStore.
var _ domain.CredentialStore = (*CredentialStore)(nil)

// CredentialStore keeps the credential bundle in a single SQLite row so the
// token, profile, active tenant and pending purchase change together.
type CredentialStore struct {
	db *sql.DB
}

// New opens a SQLite database, runs migrations, and returns a ready store.
func New(dataSourceName string) (*CredentialStore, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection: ":memory:" databases are per connection and the
	// bundle is tiny.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	return NewFromDB(db)
}

// NewFromDB wraps an existing connection, runs migrations, and returns a ready store.
// Use this when the *sql.DB has been pre-configured (e.g., with otelsql instrumentation).
func NewFromDB(db *sql.DB) (*CredentialStore, error) {
	if err := Migrate(context.Background(), db, migrations); err != nil {
		return nil, err
	}
	return &CredentialStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *CredentialStore) Close() error {
	return s.db.Close()
}

// Migrate applies the goose migrations found under "migrations/" in fsys.
// A provider is used instead of goose's package globals so several schemas
// can be migrated from one process.
func Migrate(ctx context.Context, db *sql.DB, fsys fs.FS) error {
	sub, err := fs.Sub(fsys, "migrations")
	if err != nil {
		return fmt.Errorf("opening migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, sub)
	if err != nil {
		return fmt.Errorf("creating goose provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

const timeFormat = time.RFC3339Nano

// profileRecord and tenantRecord are the JSON shapes stored in the bundle.
type profileRecord struct {
	UserID    string   `json:"_id"`
	Email     string   `json:"email"`
	Role      string   `json:"role"`
	FirstName string   `json:"firstName,omitempty"`
	LastName  string   `json:"lastName,omitempty"`
	Status    string   `json:"status,omitempty"`
	TenantID  string   `json:"storeId,omitempty"`
	TenantIDs []string `json:"stores,omitempty"`
}

type tenantRecord struct {
	ID                 string `json:"_id"`
	Slug               string `json:"storeSlug"`
	Name               string `json:"storeName,omitempty"`
	OwnerID            string `json:"ownerId,omitempty"`
	IsActive           bool   `json:"isActive"`
	SubscriptionStatus string `json:"subscriptionStatus,omitempty"`
	PlanID             string `json:"planId,omitempty"`
	ThemeID            string `json:"themeId,omitempty"`
	CreatedAt          string `json:"createdAt,omitempty"`
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Load returns the persisted bundle, or zero Credentials when none is stored.
// A corrupt profile or tenant column is dropped rather than failing the load.
func (s *CredentialStore) Load(ctx context.Context) (domain.Credentials, error) {
	return loadBundle(ctx, s.db)
}

// Save replaces the whole bundle in one statement. Saving a zero bundle clears it.
func (s *CredentialStore) Save(ctx context.Context, creds domain.Credentials) error {
	return saveBundle(ctx, s.db, creds)
}

// Update reads the bundle, lets fn modify it and writes it back in one
// transaction. Nothing is written when fn returns false. fn must not call
// the store.
func (s *CredentialStore) Update(ctx context.Context, fn func(*domain.Credentials) bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning credentials update: %w", err)
	}
	defer tx.Rollback()

	creds, err := loadBundle(ctx, tx)
	if err != nil {
		return err
	}
	if !fn(&creds) {
		return nil
	}
	if err := saveBundle(ctx, tx, creds); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing credentials update: %w", err)
	}
	return nil
}

// Clear removes the bundle.
func (s *CredentialStore) Clear(ctx context.Context) error {
	return clearBundle(ctx, s.db)
}

func loadBundle(ctx context.Context, q querier) (domain.Credentials, error) {
	var (
		creds        domain.Credentials
		profile      sql.NullString
		activeTenant sql.NullString
	)

	err := q.QueryRowContext(ctx,
		`SELECT token, profile, active_tenant, pending_purchase
		 FROM credentials WHERE id = 1`,
	).Scan(&creds.Token, &profile, &activeTenant, &creds.PendingPurchase)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Credentials{}, nil
		}
		return domain.Credentials{}, fmt.Errorf("loading credentials: %w", err)
	}

	if profile.Valid && profile.String != "" {
		var rec profileRecord
		if err := json.Unmarshal([]byte(profile.String), &rec); err == nil {
			p := rec.toDomain()
			creds.Profile = &p
		}
	}

	if activeTenant.Valid && activeTenant.String != "" {
		var rec tenantRecord
		if err := json.Unmarshal([]byte(activeTenant.String), &rec); err == nil {
			t := rec.toDomain()
			creds.ActiveTenant = &t
		}
	}

	return creds, nil
}

func saveBundle(ctx context.Context, q querier, creds domain.Credentials) error {
	if creds.IsZero() {
		return clearBundle(ctx, q)
	}

	profile, err := marshalNullable(creds.Profile, func(p *domain.Profile) any { return profileFromDomain(*p) })
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	activeTenant, err := marshalNullable(creds.ActiveTenant, func(t *domain.Tenant) any { return tenantFromDomain(*t) })
	if err != nil {
		return fmt.Errorf("encoding active tenant: %w", err)
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO credentials (id, token, profile, active_tenant, pending_purchase, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   token = excluded.token,
		   profile = excluded.profile,
		   active_tenant = excluded.active_tenant,
		   pending_purchase = excluded.pending_purchase,
		   updated_at = excluded.updated_at`,
		creds.Token, profile, activeTenant, creds.PendingPurchase,
		time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}
	return nil
}

func clearBundle(ctx context.Context, q querier) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM credentials WHERE id = 1`); err != nil {
		return fmt.Errorf("clearing credentials: %w", err)
	}
	return nil
}

func marshalNullable[T any](v *T, record func(*T) any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(record(v))
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func profileFromDomain(p domain.Profile) profileRecord {
	return profileRecord{
		UserID:    p.UserID,
		Email:     p.Email,
		Role:      string(p.Role),
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Status:    p.Status,
		TenantID:  p.TenantID,
		TenantIDs: p.TenantIDs,
	}
}

func (r profileRecord) toDomain() domain.Profile {
	return domain.Profile{
		UserID:    r.UserID,
		Email:     r.Email,
		Role:      domain.ParseRole(r.Role),
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Status:    r.Status,
		TenantID:  r.TenantID,
		TenantIDs: r.TenantIDs,
	}
}

func tenantFromDomain(t domain.Tenant) tenantRecord {
	rec := tenantRecord{
		ID:                 t.ID,
		Slug:               t.Slug,
		Name:               t.Name,
		OwnerID:            t.OwnerID,
		IsActive:           t.IsActive,
		SubscriptionStatus: string(t.SubscriptionStatus),
		PlanID:             t.PlanID,
		ThemeID:            t.ThemeID,
	}
	if !t.CreatedAt.IsZero() {
		rec.CreatedAt = t.CreatedAt.UTC().Format(timeFormat)
	}
	return rec
}

func (r tenantRecord) toDomain() domain.Tenant {
	t := domain.Tenant{
		ID:                 r.ID,
		Slug:               r.Slug,
		Name:               r.Name,
		OwnerID:            r.OwnerID,
		IsActive:           r.IsActive,
		SubscriptionStatus: domain.SubscriptionStatus(r.SubscriptionStatus),
		PlanID:             r.PlanID,
		ThemeID:            r.ThemeID,
	}
	t.CreatedAt, _ = time.Parse(timeFormat, r.CreatedAt)
	return t
}
