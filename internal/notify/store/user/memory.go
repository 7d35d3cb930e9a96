// Package user persists registered accounts and the sentinel timestamps the
// notification pipeline coordinates through. The one-shot and windowed claims
// are atomic at the store layer so two concurrent requests can never both win
// the same send.
package user

import (
	"context"
	"sort"
	"sync"
	"time"

	"bloomence/internal/notify/models"
	"bloomence/pkg/platform/sentinel"
)

// Memory is the in-memory store used by tests and local development.
type Memory struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func NewMemory() *Memory {
	return &Memory{users: make(map[string]*models.User)}
}

func (s *Memory) Create(ctx context.Context, u models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.UID]; ok {
		return sentinel.ErrConflict
	}
	cp := u
	s.users[u.UID] = &cp
	return nil
}

func (s *Memory) FindByUID(ctx context.Context, uid string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[uid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Memory) UpdateProfile(ctx context.Context, uid, email, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[uid]
	if !ok {
		return sentinel.ErrNotFound
	}
	u.Email = email
	u.Name = name
	return nil
}

// SetEmailPrefs replaces the user's per-category email preferences. The
// preferences UI writes these; the pipeline only reads them.
func (s *Memory) SetEmailPrefs(ctx context.Context, uid string, prefs map[string]bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[uid]
	if !ok {
		return sentinel.ErrNotFound
	}
	u.EmailPrefs = prefs
	return nil
}

func (s *Memory) TouchLastSeen(ctx context.Context, uid string, now time.Time) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[uid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	u.LastSeen = now
	cp := *u
	return &cp, nil
}

// ClaimFirstLoginEmail stamps the first-login sentinel iff it is unset.
// Returns true when this caller won the claim.
func (s *Memory) ClaimFirstLoginEmail(ctx context.Context, uid string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[uid]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	if u.FirstLoginEmailedAt != nil {
		return false, nil
	}
	ts := now
	u.FirstLoginEmailedAt = &ts
	return true, nil
}

// ClaimScoreEmailWindow stamps the score-email throttle iff the window has
// elapsed (or no send was ever recorded). Returns the previous stamp so a
// failed send can release the claim.
func (s *Memory) ClaimScoreEmailWindow(ctx context.Context, uid string, now time.Time, window time.Duration) (bool, *time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[uid]
	if !ok {
		return false, nil, sentinel.ErrNotFound
	}
	if u.LastScoreEmailAt != nil && now.Sub(*u.LastScoreEmailAt) < window {
		return false, nil, nil
	}
	prev := u.LastScoreEmailAt
	ts := now
	u.LastScoreEmailAt = &ts
	return true, prev, nil
}

// ReleaseScoreEmailWindow restores the pre-claim stamp, but only while the
// claim made at claimedAt is still the current value.
func (s *Memory) ReleaseScoreEmailWindow(ctx context.Context, uid string, prev *time.Time, claimedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[uid]
	if !ok {
		return sentinel.ErrNotFound
	}
	if u.LastScoreEmailAt == nil || !u.LastScoreEmailAt.Equal(claimedAt) {
		return nil
	}
	u.LastScoreEmailAt = prev
	return nil
}

// ClaimDormantReminder stamps the reminder throttle with the same discipline
// as the score-email window.
func (s *Memory) ClaimDormantReminder(ctx context.Context, uid string, now time.Time, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[uid]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	if u.LastReminderAt != nil && now.Sub(*u.LastReminderAt) < window {
		return false, nil
	}
	ts := now
	u.LastReminderAt = &ts
	return true, nil
}

// ListDormant returns users whose lastSeen is older than the cutoff, oldest
// first, capped at limit.
func (s *Memory) ListDormant(ctx context.Context, olderThan time.Time, limit int) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.User
	for _, u := range s.users {
		if u.LastSeen.Before(olderThan) {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.Before(out[j].LastSeen) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
