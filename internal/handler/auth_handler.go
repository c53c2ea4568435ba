package handler

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quillnote/internal/db"
	"github.com/quillnote/internal/mailer"
	"github.com/quillnote/internal/service"
)

// registerErrorMessages 把注册校验错误映射为提示文案。
var registerErrorMessages = map[error]string{
	service.ErrInvalidEmail:     "请输入有效的邮箱地址",
	service.ErrUsernameRequired: "请输入用户名",
	service.ErrPasswordTooShort: "密码至少需要 8 个字符",
	service.ErrPasswordMismatch: "两次输入的密码不一致",
	service.ErrEmailTaken:       "该邮箱已被注册",
	service.ErrUsernameTaken:    "该用户名已被使用",
	service.ErrWrongPassword:    "当前密码不正确",
}

func formErrorMessage(err error, fallback string) string {
	for target, message := range registerErrorMessages {
		if errors.Is(err, target) {
			return message
		}
	}
	return fallback
}

// ShowRegister renders the registration form.
func (a *API) ShowRegister(c *gin.Context) {
	if currentUser(c) != nil {
		c.Redirect(http.StatusFound, "/")
		return
	}
	a.renderHTML(c, http.StatusOK, "register.html", gin.H{"title": "注册"})
}

// Register 创建账号并发送验证邮件。邮件发送失败不影响注册结果。
func (a *API) Register(c *gin.Context) {
	input := service.RegisterInput{
		Email:           c.PostForm("email"),
		Username:        c.PostForm("username"),
		Password:        c.PostForm("password1"),
		PasswordConfirm: c.PostForm("password2"),
	}

	user, token, err := a.users.Register(input)
	if err != nil {
		status := http.StatusBadRequest
		message := formErrorMessage(err, "")
		if message == "" {
			log.Printf("[auth] register failed: %v", err)
			status = http.StatusInternalServerError
			message = "注册失败，请稍后重试"
		}
		a.renderHTML(c, status, "register.html", gin.H{
			"title":    "注册",
			"error":    message,
			"email":    input.Email,
			"username": input.Username,
		})
		return
	}

	if err := a.sendVerificationEmail(c, user, token); err != nil {
		addFlash(c, flashWarning, "注册成功，但验证邮件发送失败，请稍后重新发送验证邮件。")
	} else {
		addFlash(c, flashSuccess, "注册成功！请查收邮件并点击验证链接完成激活。")
	}
	c.Redirect(http.StatusFound, "/accounts/login")
}

// ShowLogin renders the login form.
func (a *API) ShowLogin(c *gin.Context) {
	if currentUser(c) != nil {
		c.Redirect(http.StatusFound, "/")
		return
	}
	a.renderHTML(c, http.StatusOK, "login.html", gin.H{
		"title": "登录",
		"next":  c.Query("next"),
	})
}

// Login 校验账号密码，成功后合并该 IP 下的匿名点赞。
func (a *API) Login(c *gin.Context) {
	email := c.PostForm("email")
	next := c.PostForm("next")

	user, err := a.users.Authenticate(email, c.PostForm("password"))
	if err != nil {
		data := gin.H{"title": "登录", "email": email, "next": next}
		status := http.StatusUnauthorized
		switch {
		case errors.Is(err, service.ErrEmailNotVerified):
			data["error"] = "邮箱尚未验证，请先查收验证邮件。"
			data["showResend"] = true
			status = http.StatusForbidden
		case errors.Is(err, service.ErrInvalidCredentials):
			data["error"] = "邮箱或密码错误"
		default:
			log.Printf("[auth] login failed: %v", err)
			data["error"] = "登录失败，请稍后重试"
			status = http.StatusInternalServerError
		}
		a.renderHTML(c, status, "login.html", data)
		return
	}

	if err := a.completeLogin(c, user); err != nil {
		a.renderHTML(c, http.StatusInternalServerError, "login.html", gin.H{
			"title": "登录",
			"email": email,
			"error": "会话保存失败",
		})
		return
	}

	addFlash(c, flashSuccess, "欢迎回来，"+user.Username+"！")
	c.Redirect(http.StatusFound, safeRedirectTarget(next, "/"))
}

// completeLogin 写入会话并合并匿名点赞，合并失败只记录日志。
func (a *API) completeLogin(c *gin.Context, user *db.User) error {
	if err := loginSession(c, user); err != nil {
		log.Printf("[auth] failed to save session for %s: %v", user.ID, err)
		return err
	}
	if _, err := a.likes.ReconcileAnonymous(user.ID, c.ClientIP()); err != nil {
		log.Printf("[likes] reconcile failed for user %s: %v", user.ID, err)
	}
	return nil
}

// Logout 清除会话。
func (a *API) Logout(c *gin.Context) {
	logoutSession(c)
	addFlash(c, flashInfo, "你已退出登录")
	c.Redirect(http.StatusFound, "/")
}

// VerifyEmail 消费验证令牌，成功后自动登录并合并匿名点赞。
func (a *API) VerifyEmail(c *gin.Context) {
	user, err := a.users.VerifyEmail(c.Param("token"))
	switch {
	case err == nil:
	case errors.Is(err, service.ErrVerificationTokenInvalid):
		addFlash(c, flashError, "验证链接无效，请重新发送验证邮件。")
		c.Redirect(http.StatusFound, "/accounts/resend-verification")
		return
	case errors.Is(err, service.ErrVerificationTokenExpired):
		addFlash(c, flashError, "验证链接已过期，请重新发送验证邮件。")
		c.Redirect(http.StatusFound, "/accounts/resend-verification")
		return
	case errors.Is(err, service.ErrEmailAlreadyVerified):
		addFlash(c, flashInfo, "邮箱已验证，请直接登录。")
		c.Redirect(http.StatusFound, "/accounts/login")
		return
	default:
		log.Printf("[auth] verify email failed: %v", err)
		a.renderError(c, http.StatusInternalServerError, "验证失败，请稍后重试")
		return
	}

	if err := a.completeLogin(c, user); err != nil {
		addFlash(c, flashSuccess, "邮箱验证成功，请登录。")
		c.Redirect(http.StatusFound, "/accounts/login")
		return
	}
	addFlash(c, flashSuccess, "邮箱验证成功，欢迎加入！")
	c.Redirect(http.StatusFound, "/")
}

// ShowResendVerification renders the resend form.
func (a *API) ShowResendVerification(c *gin.Context) {
	a.renderHTML(c, http.StatusOK, "resend_verification.html", gin.H{
		"title": "重新发送验证邮件",
		"email": c.Query("email"),
	})
}

// ResendVerification 重新签发令牌。邮箱不存在时给出同样的提示，避免泄露账号信息。
func (a *API) ResendVerification(c *gin.Context) {
	email := strings.TrimSpace(c.PostForm("email"))
	if email == "" {
		a.renderHTML(c, http.StatusBadRequest, "resend_verification.html", gin.H{
			"title": "重新发送验证邮件",
			"error": "请输入邮箱地址",
		})
		return
	}

	user, token, err := a.users.ResendVerification(email)
	switch {
	case err == nil && user == nil:
		addFlash(c, flashInfo, "如果该邮箱已注册且尚未验证，我们已发送新的验证邮件。")
	case err == nil:
		if sendErr := a.sendVerificationEmail(c, user, token); sendErr != nil {
			addFlash(c, flashWarning, "验证邮件发送失败，请稍后重试。")
		} else {
			addFlash(c, flashInfo, "如果该邮箱已注册且尚未验证，我们已发送新的验证邮件。")
		}
	case errors.Is(err, service.ErrEmailAlreadyVerified):
		addFlash(c, flashInfo, "该邮箱已验证，请直接登录。")
	default:
		log.Printf("[auth] resend verification failed: %v", err)
		addFlash(c, flashError, "操作失败，请稍后重试。")
	}
	c.Redirect(http.StatusFound, "/accounts/login")
}

// ShowPasswordReset renders the reset request form.
func (a *API) ShowPasswordReset(c *gin.Context) {
	a.renderHTML(c, http.StatusOK, "password_reset_request.html", gin.H{"title": "找回密码"})
}

// RequestPasswordReset 发送重置链接，始终返回相同提示。
func (a *API) RequestPasswordReset(c *gin.Context) {
	email := c.PostForm("email")
	user, err := a.users.FindByEmail(email)
	switch {
	case err == nil:
		if sendErr := a.sendPasswordResetEmail(c, user); sendErr != nil {
			addFlash(c, flashWarning, "重置邮件发送失败，请稍后重试。")
			c.Redirect(http.StatusFound, "/accounts/password-reset")
			return
		}
	case errors.Is(err, service.ErrUserNotFound):
	default:
		log.Printf("[auth] password reset lookup failed: %v", err)
	}

	addFlash(c, flashInfo, "如果该邮箱已注册，你将收到一封密码重置邮件。")
	c.Redirect(http.StatusFound, "/accounts/login")
}

// ShowPasswordResetConfirm 校验链接后展示设置新密码表单。
func (a *API) ShowPasswordResetConfirm(c *gin.Context) {
	token := c.Param("token")
	_, err := a.resets.Validate(token)
	a.renderHTML(c, http.StatusOK, "password_reset_set_new.html", gin.H{
		"title":     "设置新密码",
		"token":     token,
		"validLink": err == nil,
		"expired":   errors.Is(err, service.ErrResetTokenExpired),
	})
}

// ConfirmPasswordReset 设置新密码。
func (a *API) ConfirmPasswordReset(c *gin.Context) {
	token := c.Param("token")
	_, err := a.resets.Reset(token, c.PostForm("new_password1"), c.PostForm("new_password2"))
	if err != nil {
		data := gin.H{"title": "设置新密码", "token": token, "validLink": true}
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, service.ErrResetTokenInvalid), errors.Is(err, service.ErrResetTokenExpired):
			data["validLink"] = false
			data["expired"] = errors.Is(err, service.ErrResetTokenExpired)
		default:
			data["error"] = formErrorMessage(err, "重置失败，请稍后重试")
		}
		a.renderHTML(c, status, "password_reset_set_new.html", data)
		return
	}

	logoutSession(c)
	addFlash(c, flashSuccess, "密码已重置，请使用新密码登录。")
	c.Redirect(http.StatusFound, "/accounts/login")
}

func (a *API) sendVerificationEmail(c *gin.Context, user *db.User, token string) error {
	link := a.absoluteURL(c, "/accounts/verify/"+token)
	msg, err := mailer.VerificationMessage(a.siteName, user.Email, user.Username, link, a.users.VerificationTTL())
	if err != nil {
		log.Printf("[mail] build verification email failed: %v", err)
		return err
	}
	return a.deliver(c, msg)
}

func (a *API) sendPasswordResetEmail(c *gin.Context, user *db.User) error {
	token, err := a.resets.Issue(user)
	if err != nil {
		log.Printf("[auth] issue reset token failed for %s: %v", user.ID, err)
		return err
	}
	link := a.absoluteURL(c, "/accounts/reset/"+token)
	msg, err := mailer.PasswordResetMessage(a.siteName, user.Email, user.Username, link, a.resets.TTL())
	if err != nil {
		log.Printf("[mail] build reset email failed: %v", err)
		return err
	}
	return a.deliver(c, msg)
}

func (a *API) deliver(c *gin.Context, msg mailer.Message) error {
	err := a.mailer.Send(c.Request.Context(), msg)
	if err != nil && errors.Is(err, mailer.ErrDelivery) {
		log.Printf("[mail] delivery to %s failed: %v", msg.To, err)
	}
	return err
}

// userIDFromSession 用于需要登录的处理函数。
func userIDFromSession(c *gin.Context) uuid.UUID {
	if user := currentUser(c); user != nil {
		return user.ID
	}
	return uuid.Nil
}
