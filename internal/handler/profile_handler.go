package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ShowProfile renders the current user's profile.
func (a *API) ShowProfile(c *gin.Context) {
	a.renderHTML(c, http.StatusOK, "user_profile.html", gin.H{
		"title": "个人资料",
		"user":  currentUser(c),
	})
}

// ShowProfileUpdate renders the profile edit form.
func (a *API) ShowProfileUpdate(c *gin.Context) {
	user := currentUser(c)
	a.renderHTML(c, http.StatusOK, "user_profile_update.html", gin.H{
		"title":    "编辑资料",
		"username": user.Username,
		"email":    user.Email,
	})
}

// UpdateProfile 修改用户名与邮箱。
func (a *API) UpdateProfile(c *gin.Context) {
	username := c.PostForm("username")
	email := c.PostForm("email")

	if _, err := a.users.UpdateProfile(userIDFromSession(c), username, email); err != nil {
		message := formErrorMessage(err, "")
		status := http.StatusBadRequest
		if message == "" {
			log.Printf("[auth] update profile failed: %v", err)
			message = "保存失败，请稍后重试"
			status = http.StatusInternalServerError
		}
		a.renderHTML(c, status, "user_profile_update.html", gin.H{
			"title":    "编辑资料",
			"username": username,
			"email":    email,
			"error":    message,
		})
		return
	}

	addFlash(c, flashSuccess, "资料已更新")
	c.Redirect(http.StatusFound, "/accounts/me")
}

// ShowPasswordChange renders the password change form.
func (a *API) ShowPasswordChange(c *gin.Context) {
	a.renderHTML(c, http.StatusOK, "password_change.html", gin.H{"title": "修改密码"})
}

// ChangePassword 修改密码后退出登录，需要用新密码重新登录。
func (a *API) ChangePassword(c *gin.Context) {
	err := a.users.ChangePassword(
		userIDFromSession(c),
		c.PostForm("old_password"),
		c.PostForm("new_password1"),
		c.PostForm("new_password2"),
	)
	if err != nil {
		message := formErrorMessage(err, "")
		status := http.StatusBadRequest
		if message == "" {
			log.Printf("[auth] change password failed: %v", err)
			message = "修改失败，请稍后重试"
			status = http.StatusInternalServerError
		}
		a.renderHTML(c, status, "password_change.html", gin.H{
			"title": "修改密码",
			"error": message,
		})
		return
	}

	logoutSession(c)
	addFlash(c, flashSuccess, "密码已修改，请重新登录。")
	c.Redirect(http.StatusFound, "/accounts/login")
}

// DeleteAccount 注销账号，评论保留但显示为已注销用户。
func (a *API) DeleteAccount(c *gin.Context) {
	if err := a.users.SoftDelete(userIDFromSession(c)); err != nil {
		log.Printf("[auth] delete account failed: %v", err)
		a.renderError(c, http.StatusInternalServerError, "注销失败，请稍后重试")
		return
	}
	logoutSession(c)
	addFlash(c, flashInfo, "账号已注销")
	c.Redirect(http.StatusFound, "/")
}
