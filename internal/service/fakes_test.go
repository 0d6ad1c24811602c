package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prperemyshlev/estate-auth/internal/domain"
	"github.com/prperemyshlev/estate-auth/internal/notify"
	"github.com/prperemyshlev/estate-auth/internal/repository"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[string]domain.User{}}
}

func (r *fakeUserRepo) FindByEmailOrUsername(_ context.Context, login string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == strings.ToLower(login) || u.Username == login {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", login, repository.ErrNotFound)
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == strings.ToLower(email) {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, repository.ErrNotFound)
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, repository.ErrNotFound)
	}
	return &u, nil
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email || u.Username == user.Username {
			return repository.ErrDuplicateUser
		}
	}
	r.users[user.ID] = *user
	return nil
}

func (r *fakeUserRepo) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	r.users[user.ID] = *user
	return nil
}

func (r *fakeUserRepo) get(login string) domain.User {
	u, err := r.FindByEmailOrUsername(context.Background(), login)
	if err != nil {
		panic(err)
	}
	return *u
}

type fakeOTPRepo struct {
	mu    sync.Mutex
	codes []*domain.OTPCode
}

func (r *fakeOTPRepo) FindLatestUnused(_ context.Context, userID string) (*domain.OTPCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *domain.OTPCode
	for _, c := range r.codes {
		if c.UserID != userID || c.Used {
			continue
		}
		if latest == nil || !c.CreatedAt.Before(latest.CreatedAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *fakeOTPRepo) InvalidateAllUnused(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.codes {
		if c.UserID == userID {
			c.Used = true
		}
	}
	return nil
}

func (r *fakeOTPRepo) Create(_ context.Context, code *domain.OTPCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *code
	r.codes = append(r.codes, &cp)
	return nil
}

func (r *fakeOTPRepo) Update(_ context.Context, code *domain.OTPCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.codes {
		if c.ID == code.ID {
			c.Used = code.Used
			c.Attempts = code.Attempts
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *fakeOTPRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.codes[:0]
	var n int64
	for _, c := range r.codes {
		if c.ExpiresAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, c)
	}
	r.codes = kept
	return n, nil
}

func (r *fakeOTPRepo) unused(userID string) []domain.OTPCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.OTPCode
	for _, c := range r.codes {
		if c.UserID == userID && !c.Used {
			out = append(out, *c)
		}
	}
	return out
}

func (r *fakeOTPRepo) byID(id string) domain.OTPCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.codes {
		if c.ID == id {
			return *c
		}
	}
	panic("otp not found: " + id)
}

type fakeResetRepo struct {
	mu     sync.Mutex
	tokens []*domain.PasswordResetToken
}

func (r *fakeResetRepo) FindValid(_ context.Context, userID, tokenHash string, now time.Time) (*domain.PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.UserID == userID && t.TokenHash == tokenHash && !t.Used && t.ExpiresAt.After(now) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeResetRepo) Create(_ context.Context, token *domain.PasswordResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *token
	r.tokens = append(r.tokens, &cp)
	return nil
}

func (r *fakeResetRepo) MarkUsed(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.ID == id && !t.Used {
			t.Used = true
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *fakeResetRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.tokens[:0]
	var n int64
	for _, t := range r.tokens {
		if t.ExpiresAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, t)
	}
	r.tokens = kept
	return n, nil
}

type fakeTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*domain.RefreshToken
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{tokens: map[string]*domain.RefreshToken{}}
}

func (r *fakeTokenRepo) FindActive(_ context.Context, userID, tokenHash string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.TokenHash == tokenHash && t.UserID == userID && !t.Revoked {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeTokenRepo) GetByTokenHash(_ context.Context, tokenHash string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.TokenHash == tokenHash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeTokenRepo) Create(_ context.Context, token *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.TokenHash == token.TokenHash {
			return repository.ErrDuplicateToken
		}
	}
	cp := *token
	r.tokens[token.ID] = &cp
	return nil
}

func (r *fakeTokenRepo) Revoke(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok || t.Revoked {
		return false, nil
	}
	t.Revoked = true
	return true, nil
}

func (r *fakeTokenRepo) SetReplacedBy(_ context.Context, id, replacedBy string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok {
		return repository.ErrNotFound
	}
	t.ReplacedBy = &replacedBy
	return nil
}

func (r *fakeTokenRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.tokens {
		if t.ExpiresAt.Before(before) {
			delete(r.tokens, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeTokenRepo) byID(id string) domain.RefreshToken {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok {
		panic("token not found: " + id)
	}
	return *t
}

func (r *fakeTokenRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}

// fakeNotifier records every notice and can be made to fail
type fakeNotifier struct {
	mu     sync.Mutex
	otps   []notify.OTPNotice
	resets []notify.ResetNotice
	err    error
}

func (n *fakeNotifier) NotifyOTP(_ context.Context, notice notify.OTPNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.otps = append(n.otps, notice)
	return nil
}

func (n *fakeNotifier) RecipientHint() string {
	return "Check your inbox."
}

func (n *fakeNotifier) NotifyPasswordReset(_ context.Context, notice notify.ResetNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.resets = append(n.resets, notice)
	return nil
}

func (n *fakeNotifier) lastCode() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.otps) == 0 {
		panic("no otp sent")
	}
	return n.otps[len(n.otps)-1].Code
}

func (n *fakeNotifier) lastResetToken() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.resets) == 0 {
		panic("no reset sent")
	}
	return n.resets[len(n.resets)-1].Token
}

func (n *fakeNotifier) fail(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

type fakeGuard struct {
	acquired bool
	err      error
	released int
}

func (g *fakeGuard) Acquire(context.Context, string, time.Duration) (bool, error) {
	return g.acquired, g.err
}

func (g *fakeGuard) Release(context.Context, string) error {
	g.released++
	return nil
}

var errRelayDown = errors.New("smtp relay down")
