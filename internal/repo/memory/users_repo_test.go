package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/geocoder89/identityhub/internal/domain/user"
)

func alice() user.NewUser {
	return user.NewUser{
		Username:     "alice",
		Email:        "a@x.com",
		PasswordHash: "$2a$10$hash",
		FullName:     "Alice Liddell",
		Gender:       "female",
		DateOfBirth:  "1990-01-01",
		Country:      "UK",
	}
}

func TestUsersRepo_CreateAndLookup(t *testing.T) {
	r := NewUsersRepo()
	ctx := context.Background()

	id, err := r.Create(ctx, alice())
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if id == "" {
		t.Fatalf("expected a generated id")
	}

	got, err := r.GetByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetByUsername error: %v", err)
	}
	if got.ID != id || got.PasswordHash != "$2a$10$hash" {
		t.Fatalf("unexpected user: %+v", got)
	}

	for _, q := range []string{"alice", "a@x.com"} {
		p, err := r.FindProfile(ctx, q)
		if err != nil {
			t.Fatalf("FindProfile(%q) error: %v", q, err)
		}
		if p.ID != id || p.Country != "UK" {
			t.Fatalf("FindProfile(%q) = %+v", q, p)
		}
	}

	exists, err := r.ExistsByUsernameOrEmail(ctx, "someone", "a@x.com")
	if err != nil || !exists {
		t.Fatalf("expected email match, exists=%v err=%v", exists, err)
	}
}

func TestUsersRepo_NotFound(t *testing.T) {
	r := NewUsersRepo()
	ctx := context.Background()

	if _, err := r.GetByUsername(ctx, "bob"); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := r.FindProfile(ctx, "nobody"); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUsersRepo_UniqueConstraints(t *testing.T) {
	r := NewUsersRepo()
	ctx := context.Background()

	if _, err := r.Create(ctx, alice()); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	sameName := alice()
	sameName.Email = "other@x.com"
	if _, err := r.Create(ctx, sameName); !errors.Is(err, user.ErrDuplicateUser) {
		t.Fatalf("username reuse: expected ErrDuplicateUser, got %v", err)
	}

	sameMail := alice()
	sameMail.Username = "alice2"
	if _, err := r.Create(ctx, sameMail); !errors.Is(err, user.ErrDuplicateUser) {
		t.Fatalf("email reuse: expected ErrDuplicateUser, got %v", err)
	}
}

func TestUsersRepo_ConcurrentCreateSameUsername(t *testing.T) {
	r := NewUsersRepo()
	ctx := context.Background()

	const n = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Create(ctx, alice())

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if !errors.Is(err, user.ErrDuplicateUser) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one success, got %d", successes)
	}
}

func TestUsersRepo_CancelledContext(t *testing.T) {
	r := NewUsersRepo()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Create(ctx, alice()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
