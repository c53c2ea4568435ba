package mailer

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"
)

type actionEmail struct {
	SiteName  string
	Username  string
	Heading   string
	Intro     string
	Button    string
	ActionURL string
	ExpiresIn string
	Footer    string
}

var actionHTMLTemplate = htmltemplate.Must(htmltemplate.New("action_html").Parse(`<html>
  <body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <h2>{{.Heading}}</h2>
    <p>{{.Username}}，你好：</p>
    <p>{{.Intro}}</p>
    <p style="margin: 30px 0;">
      <a href="{{.ActionURL}}" style="background-color: #0d6efd; color: white; padding: 12px 24px; text-decoration: none; border-radius: 5px; display: inline-block;">{{.Button}}</a>
    </p>
    <p>或将以下链接复制到浏览器中打开：</p>
    <p style="word-break: break-all; color: #666;">{{.ActionURL}}</p>
    <p><small>该链接将在 {{.ExpiresIn}} 后失效。</small></p>
    <hr style="margin: 30px 0; border: none; border-top: 1px solid #ddd;">
    <p style="color: #666; font-size: 12px;">{{.Footer}}</p>
  </body>
</html>
`))

var actionTextTemplate = texttemplate.Must(texttemplate.New("action_text").Parse(`{{.Heading}}

{{.Username}}，你好：

{{.Intro}}

{{.ActionURL}}

该链接将在 {{.ExpiresIn}} 后失效。

{{.Footer}}
`))

// VerificationMessage 构造邮箱验证邮件。
func VerificationMessage(siteName, to, username, verificationURL string, ttl time.Duration) (Message, error) {
	return buildActionMessage(to, "验证你的邮箱地址", actionEmail{
		SiteName:  siteName,
		Username:  username,
		Heading:   fmt.Sprintf("欢迎来到 %s！", siteName),
		Intro:     "感谢注册，请点击下面的按钮验证你的邮箱地址：",
		Button:    "验证邮箱",
		ActionURL: verificationURL,
		ExpiresIn: humanizeTTL(ttl),
		Footer:    "如果你没有注册账号，请忽略这封邮件。",
	})
}

// PasswordResetMessage 构造密码重置邮件。
func PasswordResetMessage(siteName, to, username, resetURL string, ttl time.Duration) (Message, error) {
	return buildActionMessage(to, "重置你的密码", actionEmail{
		SiteName:  siteName,
		Username:  username,
		Heading:   "密码重置请求",
		Intro:     "你申请了重置密码，请点击下面的按钮设置新密码：",
		Button:    "重置密码",
		ActionURL: resetURL,
		ExpiresIn: humanizeTTL(ttl),
		Footer:    "如果这不是你本人的操作，请忽略这封邮件，你的密码不会被修改。",
	})
}

func buildActionMessage(to, subject string, data actionEmail) (Message, error) {
	var htmlBody bytes.Buffer
	if err := actionHTMLTemplate.Execute(&htmlBody, data); err != nil {
		return Message{}, fmt.Errorf("render html email: %w", err)
	}
	var textBody bytes.Buffer
	if err := actionTextTemplate.Execute(&textBody, data); err != nil {
		return Message{}, fmt.Errorf("render text email: %w", err)
	}
	return Message{
		To:      to,
		Subject: subject,
		HTML:    htmlBody.String(),
		Text:    strings.TrimSpace(textBody.String()),
	}, nil
}

// humanizeTTL 把有效期格式化为“24 小时”“30 分钟”这样的文案。
func humanizeTTL(ttl time.Duration) string {
	switch {
	case ttl <= 0:
		return "短时间"
	case ttl%time.Hour == 0:
		return fmt.Sprintf("%d 小时", int(ttl/time.Hour))
	default:
		minutes := int(ttl / time.Minute)
		if minutes < 1 {
			minutes = 1
		}
		return fmt.Sprintf("%d 分钟", minutes)
	}
}
