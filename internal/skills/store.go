package skills

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/skillrank/internal/domain"
)

// UpdateFunc computes a topic update from the current profile. It runs inside
// the user's critical section and must not mutate the profile it receives.
// Stores using optimistic concurrency may call it again after a conflict.
// Returning an error aborts the update without any mutation.
type UpdateFunc func(current *domain.SkillProfile) (domain.TopicUpdate, error)

// Store defines the persistence interface for skill profiles.
// The memory, SQLite and Postgres stores implement this.
type Store interface {
	// Get returns the stored profile or a fresh cold-start profile. A missing
	// profile is never an error.
	Get(ctx context.Context, userID string) (*domain.SkillProfile, error)

	// ApplyUpdate performs an atomic read-modify-write for one user.
	ApplyUpdate(ctx context.Context, userID string, fn UpdateFunc) (*domain.SkillProfile, error)

	// UsersInRange returns users whose overall rating lies in [lo, hi].
	UsersInRange(ctx context.Context, lo, hi float64) ([]RatedUser, error)
}

// RatedUser is a (user, overall rating) pair used for neighbor selection
type RatedUser struct {
	UserID        string  `json:"user_id"`
	OverallRating float64 `json:"overall_rating"`
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps profiles in process memory
type MemoryStore struct {
	mu        sync.RWMutex
	profiles  map[string]*domain.SkillProfile
	locks     *KeyedMutex
	coldStart float64
	now       func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(coldStart float64) *MemoryStore {
	return &MemoryStore{
		profiles:  make(map[string]*domain.SkillProfile),
		locks:     NewKeyedMutex(),
		coldStart: coldStart,
		now:       time.Now,
	}
}

// Get returns a copy of the stored profile or a cold-start profile
func (s *MemoryStore) Get(ctx context.Context, userID string) (*domain.SkillProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.profiles[userID]; ok {
		return p.Clone(), nil
	}
	return domain.NewSkillProfile(userID, s.coldStart), nil
}

// ApplyUpdate serializes writers per user and persists the computed update
func (s *MemoryStore) ApplyUpdate(ctx context.Context, userID string, fn UpdateFunc) (*domain.SkillProfile, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	current, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	update, err := fn(current.Clone())
	if err != nil {
		return nil, err
	}

	current.Apply(update, s.now())
	current.Version++

	s.mu.Lock()
	s.profiles[userID] = current
	s.mu.Unlock()

	return current.Clone(), nil
}

// UsersInRange scans all profiles for overall ratings inside the band
func (s *MemoryStore) UsersInRange(ctx context.Context, lo, hi float64) ([]RatedUser, error) {
	if lo > hi {
		return nil, fmt.Errorf("invalid range [%f, %f]: %w", lo, hi, domain.ErrInvalidInput)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var users []RatedUser
	for id, p := range s.profiles {
		if p.OverallRating >= lo && p.OverallRating <= hi {
			users = append(users, RatedUser{UserID: id, OverallRating: p.OverallRating})
		}
	}

	sort.Slice(users, func(i, j int) bool {
		return users[i].UserID < users[j].UserID
	})

	return users, nil
}

// Put stores a profile as-is. Used for seeding and tests.
func (s *MemoryStore) Put(profile *domain.SkillProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.UserID] = profile.Clone()
}
