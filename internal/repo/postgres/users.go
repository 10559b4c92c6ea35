package postgres

import (
	"context"
	"errors"

	"github.com/geocoder89/identityhub/internal/domain/user"
	"github.com/geocoder89/identityhub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *UsersRepo) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (exists bool, err error) {
	err = r.observe("users.exists_by_username_or_email", func() error {
		return r.pool.QueryRow(ctx, `SELECT EXISTS(
			SELECT 1 FROM users
			WHERE username = $1 OR email = $2
		)`, username, email).Scan(&exists)
	})

	return
}

func (r *UsersRepo) GetByUsername(ctx context.Context, username string) (user.User, error) {
	var u user.User

	err := r.observe("users.get_by_username", func() error {
		return r.pool.QueryRow(
			ctx,
			`SELECT id::text, username, email, password_hash, full_name, gender, date_of_birth, country
			 FROM users
			 WHERE username = $1`,
			username,
		).Scan(
			&u.ID,
			&u.Username,
			&u.Email,
			&u.PasswordHash,
			&u.FullName,
			&u.Gender,
			&u.DateOfBirth,
			&u.Country,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}

		return user.User{}, err
	}
	return u, nil
}

// FindProfile never selects password_hash. When query is one user's username
// and another user's email, the username match wins.
func (r *UsersRepo) FindProfile(ctx context.Context, query string) (user.PublicProfile, error) {
	var p user.PublicProfile

	err := r.observe("users.find_profile", func() error {
		return r.pool.QueryRow(
			ctx,
			`SELECT id::text, username, email, full_name, gender, date_of_birth, country
			 FROM users
			 WHERE username = $1 OR email = $1
			 ORDER BY (username = $1) DESC
			 LIMIT 1`,
			query,
		).Scan(&p.ID, &p.Username, &p.Email, &p.FullName, &p.Gender, &p.DateOfBirth, &p.Country)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.PublicProfile{}, user.ErrNotFound
		}

		return user.PublicProfile{}, err
	}
	return p, nil
}

// Create inserts the user and returns the id generated by the database.
// Unique violations on username or email are reported as user.ErrDuplicateUser.
func (r *UsersRepo) Create(ctx context.Context, nu user.NewUser) (id string, err error) {
	err = r.observe("users.create", func() error {
		return r.pool.QueryRow(ctx, `
		INSERT INTO users (username, email, password_hash, full_name, gender, date_of_birth, country)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id::text
	`, nu.Username, nu.Email, nu.PasswordHash, nu.FullName, nu.Gender, nu.DateOfBirth, nu.Country).Scan(&id)
	})

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return "", user.ErrDuplicateUser
		}
		return "", err
	}

	return id, nil
}

func (r *UsersRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
