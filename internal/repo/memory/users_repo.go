package memory

import (
	"context"
	"sync"

	"github.com/geocoder89/identityhub/internal/domain/user"
	"github.com/google/uuid"
)

// UsersRepo keeps users in process memory. The username and email indexes play
// the part of the unique constraints in the Postgres schema.
type UsersRepo struct {
	mu         sync.RWMutex
	items      map[string]user.User // {"id": user}
	byUsername map[string]string
	byEmail    map[string]string
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		items:      make(map[string]user.User),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

func (r *UsersRepo) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	_, byName := r.byUsername[username]
	_, byMail := r.byEmail[email]

	return byName || byMail, nil
}

func (r *UsersRepo) GetByUsername(ctx context.Context, username string) (user.User, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[username]

	if !ok {
		return user.User{}, user.ErrNotFound
	}

	return r.items[id], nil
}

func (r *UsersRepo) FindProfile(ctx context.Context, query string) (user.PublicProfile, error) {
	if err := ctx.Err(); err != nil {
		return user.PublicProfile{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[query]

	if !ok {
		id, ok = r.byEmail[query]
	}

	if !ok {
		return user.PublicProfile{}, user.ErrNotFound
	}

	return r.items[id].Profile(), nil
}

func (r *UsersRepo) Create(ctx context.Context, nu user.NewUser) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, nameTaken := r.byUsername[nu.Username]
	_, mailTaken := r.byEmail[nu.Email]

	if nameTaken || mailTaken {
		return "", user.ErrDuplicateUser
	}

	u := user.User{
		ID:           uuid.NewString(),
		Username:     nu.Username,
		Email:        nu.Email,
		PasswordHash: nu.PasswordHash,
		FullName:     nu.FullName,
		Gender:       nu.Gender,
		DateOfBirth:  nu.DateOfBirth,
		Country:      nu.Country,
	}

	r.items[u.ID] = u
	r.byUsername[u.Username] = u.ID
	r.byEmail[u.Email] = u.ID

	return u.ID, nil
}

// Ping satisfies the readiness check; memory is always ready.
func (r *UsersRepo) Ping(ctx context.Context) error {
	return nil
}
