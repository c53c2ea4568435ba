package db

import (
	"testing"

	"github.com/google/uuid"
)

func TestLikeUniqueIndexes(t *testing.T) {
	gdb := setupModelTestDB(t)

	post := Post{Title: "hello", IsVisible: true}
	if err := gdb.Create(&post).Error; err != nil {
		t.Fatalf("create post: %v", err)
	}
	user := User{Email: "a@example.com", Username: "a", Password: "x"}
	if err := gdb.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}

	if err := gdb.Create(&Like{PostID: post.ID, IPAddress: "1.2.3.4"}).Error; err != nil {
		t.Fatalf("create anonymous like: %v", err)
	}
	err := gdb.Create(&Like{PostID: post.ID, IPAddress: "1.2.3.4"}).Error
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation for duplicate anonymous like, got %v", err)
	}

	userID := user.ID
	if err := gdb.Create(&Like{PostID: post.ID, UserID: &userID, IPAddress: "1.2.3.4"}).Error; err != nil {
		t.Fatalf("authenticated like from same ip should be allowed: %v", err)
	}
	err = gdb.Create(&Like{PostID: post.ID, UserID: &userID, IPAddress: "5.6.7.8"}).Error
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation for duplicate user like, got %v", err)
	}

	otherID := uuid.New()
	other := User{ID: otherID, Email: "b@example.com", Username: "b", Password: "x"}
	if err := gdb.Create(&other).Error; err != nil {
		t.Fatalf("create second user: %v", err)
	}
	if err := gdb.Create(&Like{PostID: post.ID, UserID: &otherID, IPAddress: "1.2.3.4"}).Error; err != nil {
		t.Fatalf("second user sharing ip should be allowed: %v", err)
	}

	var count int64
	if err := gdb.Model(&Like{}).Where("post_id = ?", post.ID).Count(&count).Error; err != nil {
		t.Fatalf("count likes: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 likes, got %d", count)
	}
}

func TestIsUniqueViolationIgnoresOtherErrors(t *testing.T) {
	if IsUniqueViolation(nil) {
		t.Fatal("nil must not be a unique violation")
	}
	if IsUniqueViolation(errString("no such table: likes")) {
		t.Fatal("unrelated error must not be a unique violation")
	}
}

type errString string

func (e errString) Error() string { return string(e) }
