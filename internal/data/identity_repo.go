package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/reachcapital/portal/internal/data/pgxutil"
	domainauth "github.com/reachcapital/portal/internal/domain/auth"
	apperrors "github.com/reachcapital/portal/internal/errors"
	"github.com/reachcapital/portal/internal/ports"
)

// IdentityRepo stores identities and their JSONB metadata in PostgreSQL.
type IdentityRepo struct {
	DB  *sql.DB
	now Clock
}

var _ ports.IdentityRepository = (*IdentityRepo)(nil)

// NewIdentityRepo creates a new IdentityRepo instance with the given database connection.
func NewIdentityRepo(db *sql.DB) *IdentityRepo {
	return &IdentityRepo{DB: db, now: SystemClock}
}

// NewIdentityRepoWithClock creates an IdentityRepo that stamps rows using now.
func NewIdentityRepoWithClock(db *sql.DB, now Clock) *IdentityRepo {
	if now == nil {
		now = SystemClock
	}
	return &IdentityRepo{DB: db, now: now}
}

type identityRow struct {
	ID        string            `db:"id"`
	Email     string            `db:"email"`
	Metadata  map[string]string `db:"metadata"`
	CreatedAt time.Time         `db:"created_at"`
}

func (r identityRow) toDomain() *domainauth.Identity {
	id := &domainauth.Identity{
		ID:        r.ID,
		Email:     r.Email,
		CreatedAt: r.CreatedAt,
	}
	if len(r.Metadata) > 0 {
		id.Metadata = r.Metadata
	}
	return id
}

const identityColumns = `id, email, metadata, created_at`

// GetByID returns the identity with id or ErrIdentityNotFound.
func (r *IdentityRepo) GetByID(ctx context.Context, id string) (*domainauth.Identity, error) {
	if id == "" {
		return nil, ErrIdentityNotFound
	}
	return r.queryOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
}

// GetByEmail looks an identity up by its lower-cased email.
func (r *IdentityRepo) GetByEmail(ctx context.Context, email string) (*domainauth.Identity, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	return r.queryOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE email = $1`, email)
}

// Create inserts a new identity. A concurrent insert of the same email yields ErrIdentityExists.
func (r *IdentityRepo) Create(
	ctx context.Context,
	email string,
	metadata map[string]string,
) (*domainauth.Identity, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	meta, err := encodeMetadata(metadata)
	if err != nil {
		return nil, err
	}
	now := r.now()
	const q = `
		INSERT INTO identities (email, metadata, created_at, updated_at)
		VALUES ($1, $2::jsonb, $3, $3)
		RETURNING ` + identityColumns
	ident, err := r.queryOne(ctx, q, email, meta, now)
	if err != nil {
		if apperrors.IsConflict(err) {
			return nil, fmt.Errorf("create identity %s: %w", email, ErrIdentityExists)
		}
		return nil, err
	}
	return ident, nil
}

// MergeMetadata applies patch over the stored metadata with the JSONB || operator.
// Keys absent from patch keep their current values.
func (r *IdentityRepo) MergeMetadata(
	ctx context.Context,
	id string,
	patch map[string]string,
) (*domainauth.Identity, error) {
	if id == "" {
		return nil, ErrIdentityNotFound
	}
	meta, err := encodeMetadata(patch)
	if err != nil {
		return nil, err
	}
	const q = `
		UPDATE identities
		SET metadata = metadata || $2::jsonb, updated_at = $3
		WHERE id = $1
		RETURNING ` + identityColumns
	return r.queryOne(ctx, q, id, meta, r.now())
}

// SetRole overwrites the stored role for email. It is the administrative path
// for granting roles that sign-in never assigns. The row is locked so a
// concurrent sign-in write-back cannot interleave with the change.
func (r *IdentityRepo) SetRole(ctx context.Context, email string, role domainauth.Role) (*domainauth.Identity, error) {
	if !role.Valid() {
		return nil, apperrors.ValidationField("role", fmt.Sprintf("unknown role %q", role))
	}
	email = normalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	meta, err := encodeMetadata(map[string]string{domainauth.MetadataRoleKey: string(role)})
	if err != nil {
		return nil, err
	}

	var row identityRow
	err = pgxutil.WithPgxTx(ctx, r.DB, func(tx pgx.Tx) error {
		var id string
		if scanErr := tx.QueryRow(ctx,
			`SELECT id FROM identities WHERE email = $1 FOR UPDATE`, email).Scan(&id); scanErr != nil {
			return scanErr
		}
		rows, qErr := tx.Query(ctx, `
			UPDATE identities
			SET metadata = metadata || $2::jsonb, updated_at = $3
			WHERE id = $1
			RETURNING `+identityColumns, id, meta, r.now())
		if qErr != nil {
			return qErr
		}
		row, qErr = pgx.CollectOneRow(rows, pgx.RowToStructByName[identityRow])
		return qErr
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIdentityNotFound
		}
		return nil, apperrors.MapDBError(err)
	}
	return row.toDomain(), nil
}

func (r *IdentityRepo) queryOne(ctx context.Context, q string, args ...any) (*domainauth.Identity, error) {
	var row identityRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		row, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[identityRow])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIdentityNotFound
		}
		return nil, apperrors.MapDBError(err)
	}
	return row.toDomain(), nil
}

func encodeMetadata(m map[string]string) (string, error) {
	if m == nil {
		m = map[string]string{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
