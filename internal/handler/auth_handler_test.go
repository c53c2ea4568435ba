package handler

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/quillnote/internal/db"
	"github.com/quillnote/internal/mailer"
)

func TestLoginReconcilesAnonymousLikes(t *testing.T) {
	env := setupHandlerTest(t)
	user := env.createUser(t, "reader@example.com", "reader-password", true, false)
	post := env.createPost(t, "Anonymous", "text", true)

	env.postForm("/posts/"+post.ID.String()+"/like", nil)

	var like db.Like
	if err := env.db.First(&like, "post_id = ?", post.ID).Error; err != nil {
		t.Fatalf("load anonymous like: %v", err)
	}
	if like.UserID != nil || like.IPAddress != "192.0.2.1" {
		t.Fatalf("expected anonymous like from 192.0.2.1, got %+v", like)
	}

	env.login(t, "reader@example.com", "reader-password")

	if err := env.db.First(&like, "id = ?", like.ID).Error; err != nil {
		t.Fatalf("reload like: %v", err)
	}
	if like.UserID == nil || *like.UserID != user.ID {
		t.Fatalf("expected like reassigned to user, got %+v", like.UserID)
	}
	if like.IPAddress != "192.0.2.1" {
		t.Fatalf("expected ip address preserved, got %s", like.IPAddress)
	}

	// 登录后再次点赞应视为取消
	env.postForm("/posts/"+post.ID.String()+"/like", nil)
	state := env.renderer.payload(t)["like"].(likeButtonView)
	if state.Liked || state.Count != 0 {
		t.Fatalf("expected toggle to remove reconciled like, got %+v", state)
	}
}

func TestLoginDropsDuplicateAnonymousLike(t *testing.T) {
	env := setupHandlerTest(t)
	user := env.createUser(t, "dup@example.com", "dup-password", true, false)
	post := env.createPost(t, "Both", "text", true)

	userID := user.ID
	if err := env.db.Create(&db.Like{PostID: post.ID, UserID: &userID, IPAddress: "198.51.100.7"}).Error; err != nil {
		t.Fatalf("create user like: %v", err)
	}
	env.postForm("/posts/"+post.ID.String()+"/like", nil)

	env.login(t, "dup@example.com", "dup-password")

	var count int64
	env.db.Model(&db.Like{}).Where("post_id = ?", post.ID).Count(&count)
	if count != 1 {
		t.Fatalf("expected duplicate anonymous like removed, got %d likes", count)
	}
}

func TestLoginUnverifiedUserOffersResend(t *testing.T) {
	env := setupHandlerTest(t)
	env.createUser(t, "new@example.com", "new-password", false, false)

	w := env.postForm("/accounts/login", url.Values{"email": {"new@example.com"}, "password": {"new-password"}})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unverified user, got %d", w.Code)
	}
	payload := env.renderer.payload(t)
	if env.renderer.lastName != "login.html" || payload["showResend"] != true {
		t.Fatalf("expected login form with resend link, got %s %+v", env.renderer.lastName, payload)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := setupHandlerTest(t)
	env.createUser(t, "reader@example.com", "reader-password", true, false)

	w := env.postForm("/accounts/login", url.Values{"email": {"reader@example.com"}, "password": {"wrong-password"}})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestLoginRedirectsToSafeNext(t *testing.T) {
	env := setupHandlerTest(t)
	env.createUser(t, "reader@example.com", "reader-password", true, false)

	w := env.postForm("/accounts/login", url.Values{
		"email":    {"reader@example.com"},
		"password": {"reader-password"},
		"next":     {"https://evil.example.com/"},
	})
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect to /, got %d %s", w.Code, w.Header().Get("Location"))
	}
}

func TestRegisterSendsVerificationLink(t *testing.T) {
	env := setupHandlerTest(t)

	w := env.postForm("/accounts/register", url.Values{
		"email":     {"fresh@example.com"},
		"username":  {"fresh"},
		"password1": {"long-enough"},
		"password2": {"long-enough"},
	})
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/accounts/login" {
		t.Fatalf("expected redirect to login, got %d %s", w.Code, w.Header().Get("Location"))
	}
	if len(env.mail.sent) != 1 {
		t.Fatalf("expected one verification email, got %d", len(env.mail.sent))
	}
	msg := env.mail.sent[0]
	if msg.To != "fresh@example.com" {
		t.Fatalf("unexpected recipient %s", msg.To)
	}
	if !strings.Contains(msg.Text, "http://blog.test/accounts/verify/") {
		t.Fatalf("expected verification link in body, got %s", msg.Text)
	}
	if !hasFlash(env.flashes(t), flashSuccess) {
		t.Fatalf("expected success flash after registration")
	}
}

func TestRegisterSurvivesDeliveryFailure(t *testing.T) {
	env := setupHandlerTest(t)
	env.mail.err = &mailer.DeliveryError{To: "fresh@example.com", StatusCode: http.StatusBadGateway, Err: mailer.ErrDelivery}

	w := env.postForm("/accounts/register", url.Values{
		"email":     {"fresh@example.com"},
		"username":  {"fresh"},
		"password1": {"long-enough"},
		"password2": {"long-enough"},
	})
	if w.Code != http.StatusFound {
		t.Fatalf("expected registration to succeed, got %d", w.Code)
	}

	var user db.User
	if err := env.db.First(&user, "email = ?", "fresh@example.com").Error; err != nil {
		t.Fatalf("expected user to be stored: %v", err)
	}
	if user.IsEmailVerified || user.EmailVerificationToken == nil {
		t.Fatalf("expected unverified user with a pending token")
	}
	if !hasFlash(env.flashes(t), flashWarning) {
		t.Fatalf("expected warning flash when email delivery fails")
	}
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	env := setupHandlerTest(t)

	w := env.postForm("/accounts/register", url.Values{
		"email":     {"fresh@example.com"},
		"username":  {"fresh"},
		"password1": {"long-enough"},
		"password2": {"different"},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if env.renderer.payload(t)["error"] != "两次输入的密码不一致" {
		t.Fatalf("unexpected error message: %v", env.renderer.payload(t)["error"])
	}
	if len(env.mail.sent) != 0 {
		t.Fatalf("expected no email for rejected registration")
	}
}

func registerThroughForm(t *testing.T, env *handlerTestEnv, email string) string {
	t.Helper()
	env.postForm("/accounts/register", url.Values{
		"email":     {email},
		"username":  {strings.Split(email, "@")[0]},
		"password1": {"long-enough"},
		"password2": {"long-enough"},
	})
	var user db.User
	if err := env.db.First(&user, "email = ?", email).Error; err != nil {
		t.Fatalf("load registered user: %v", err)
	}
	if user.EmailVerificationToken == nil {
		t.Fatalf("expected verification token")
	}
	return *user.EmailVerificationToken
}

func TestVerifyEmailLogsInAndReconciles(t *testing.T) {
	env := setupHandlerTest(t)
	post := env.createPost(t, "Before signup", "text", true)
	env.postForm("/posts/"+post.ID.String()+"/like", nil)

	token := registerThroughForm(t, env, "fresh@example.com")

	w := env.get("/accounts/verify/" + token)
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect home after verification, got %d %s", w.Code, w.Header().Get("Location"))
	}

	var user db.User
	env.db.First(&user, "email = ?", "fresh@example.com")
	if !user.IsEmailVerified || user.EmailVerificationToken != nil {
		t.Fatalf("expected verified user with cleared token")
	}

	var like db.Like
	if err := env.db.First(&like, "post_id = ?", post.ID).Error; err != nil {
		t.Fatalf("load like: %v", err)
	}
	if like.UserID == nil || *like.UserID != user.ID {
		t.Fatalf("expected anonymous like reassigned on verification")
	}

	// 已登录：留言不应被重定向到登录页
	w = env.postForm("/comments/"+post.ID.String()+"/add", url.Values{"text": {"hello"}})
	if w.Code != http.StatusFound || !strings.HasPrefix(w.Header().Get("Location"), "/posts/") {
		t.Fatalf("expected session to be active, got %d %s", w.Code, w.Header().Get("Location"))
	}
}

func TestVerifyEmailExpiredToken(t *testing.T) {
	env := setupHandlerTest(t)
	token := registerThroughForm(t, env, "late@example.com")

	later := time.Now().Add(24*time.Hour + time.Minute)
	env.api.Users().WithClock(func() time.Time { return later })

	w := env.get("/accounts/verify/" + token)
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/accounts/resend-verification" {
		t.Fatalf("expected redirect to resend page, got %d %s", w.Code, w.Header().Get("Location"))
	}

	var user db.User
	env.db.First(&user, "email = ?", "late@example.com")
	if user.IsEmailVerified {
		t.Fatalf("expected user to stay unverified")
	}
}

func TestVerifyEmailUnknownToken(t *testing.T) {
	env := setupHandlerTest(t)

	w := env.get("/accounts/verify/does-not-exist")
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/accounts/resend-verification" {
		t.Fatalf("expected redirect to resend page, got %d %s", w.Code, w.Header().Get("Location"))
	}
}

func TestResendVerificationHidesUnknownEmail(t *testing.T) {
	env := setupHandlerTest(t)

	w := env.postForm("/accounts/resend-verification", url.Values{"email": {"ghost@example.com"}})
	if w.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d", w.Code)
	}
	if len(env.mail.sent) != 0 {
		t.Fatalf("expected no email for unknown address")
	}
	if !hasFlash(env.flashes(t), flashInfo) {
		t.Fatalf("expected generic info flash")
	}
}

func TestPasswordResetFlow(t *testing.T) {
	env := setupHandlerTest(t)
	env.createUser(t, "forgot@example.com", "old-password", true, false)

	env.postForm("/accounts/password-reset", url.Values{"email": {"forgot@example.com"}})
	if len(env.mail.sent) != 1 {
		t.Fatalf("expected reset email, got %d", len(env.mail.sent))
	}
	body := env.mail.sent[0].Text
	idx := strings.Index(body, "/accounts/reset/")
	if idx < 0 {
		t.Fatalf("expected reset link in body: %s", body)
	}
	token := strings.Fields(body[idx+len("/accounts/reset/"):])[0]

	w := env.postForm("/accounts/reset/"+token, url.Values{
		"new_password1": {"new-password"},
		"new_password2": {"new-password"},
	})
	if w.Code != http.StatusFound {
		t.Fatalf("expected redirect after reset, got %d", w.Code)
	}

	env.login(t, "forgot@example.com", "new-password")
}

func TestChangePasswordRequiresLogin(t *testing.T) {
	env := setupHandlerTest(t)

	w := env.postForm("/accounts/me/password_change", url.Values{})
	if w.Code != http.StatusFound || !strings.HasPrefix(w.Header().Get("Location"), "/accounts/login?next=") {
		t.Fatalf("expected login redirect, got %d %s", w.Code, w.Header().Get("Location"))
	}
}
