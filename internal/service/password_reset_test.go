package service

import (
	"errors"
	"testing"
	"time"
)

func TestPasswordReset_IssueAndReset(t *testing.T) {
	users, clock := newTestUserService(t, "reset-flow")
	resets := NewPasswordResetService(users, "test-secret", time.Hour).WithClock(clock.Now)
	user, token := registerTestUser(t, users, "judy@example.com", "judy")
	if _, err := users.VerifyEmail(token); err != nil {
		t.Fatalf("verify: %v", err)
	}

	resetToken, err := resets.Issue(user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clock.now = clock.now.Add(59 * time.Minute)
	if _, err := resets.Reset(resetToken, "brand-new-pass", "brand-new-pass"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := users.Authenticate("judy@example.com", "brand-new-pass"); err != nil {
		t.Fatalf("expected login with reset password, got %v", err)
	}

	// 密码变更后旧链接失效
	if _, err := resets.Validate(resetToken); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expected used token to be invalid, got %v", err)
	}
}

func TestPasswordReset_Expired(t *testing.T) {
	users, clock := newTestUserService(t, "reset-expired")
	resets := NewPasswordResetService(users, "test-secret", time.Hour).WithClock(clock.Now)
	user, _ := registerTestUser(t, users, "kim@example.com", "kim")

	resetToken, err := resets.Issue(user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clock.now = clock.now.Add(time.Hour + time.Minute)
	if _, err := resets.Validate(resetToken); !errors.Is(err, ErrResetTokenExpired) {
		t.Fatalf("expected ErrResetTokenExpired, got %v", err)
	}
}

func TestPasswordReset_RejectsForeignSignature(t *testing.T) {
	users, clock := newTestUserService(t, "reset-signature")
	user, _ := registerTestUser(t, users, "leo@example.com", "leo")

	forged, err := NewPasswordResetService(users, "other-secret", time.Hour).WithClock(clock.Now).Issue(user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	resets := NewPasswordResetService(users, "test-secret", time.Hour).WithClock(clock.Now)
	if _, err := resets.Validate(forged); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expected ErrResetTokenInvalid, got %v", err)
	}
	if _, err := resets.Validate("not-a-jwt"); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expected ErrResetTokenInvalid for garbage, got %v", err)
	}
}
