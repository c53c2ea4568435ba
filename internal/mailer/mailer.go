// Package mailer 发送事务邮件（邮箱验证、密码重置）。
package mailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrDelivery 标记所有投递失败，调用方用 errors.Is 判断。
var ErrDelivery = errors.New("mail delivery failed")

// DeliveryError 描述一次失败的投递：HTTP 非 200 或请求本身失败。
type DeliveryError struct {
	To         string
	StatusCode int
	Body       string
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("send email to %s: %v", e.To, e.Err)
	}
	return fmt.Sprintf("send email to %s: mailgun api error %d - %s", e.To, e.StatusCode, e.Body)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Is 让所有 DeliveryError 都匹配 ErrDelivery。
func (e *DeliveryError) Is(target error) bool {
	return target == ErrDelivery
}

// Message 是一封待发送的邮件，Text 可为空。
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender 发送邮件，失败时返回 *DeliveryError。
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// MailgunSender 通过 Mailgun HTTP API 发送邮件。
type MailgunSender struct {
	http    httpDoer
	baseURL string
	domain  string
	apiKey  string
	from    string
}

// NewMailgunSender 创建 MailgunSender，连接与读取超时固定为 10 秒。
func NewMailgunSender(baseURL, domain, apiKey, from string) *MailgunSender {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = "https://api.mailgun.net/v3"
	}
	return &MailgunSender{
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: base,
		domain:  strings.TrimSpace(domain),
		apiKey:  strings.TrimSpace(apiKey),
		from:    strings.TrimSpace(from),
	}
}

// SetHTTPClient 替换底层 HTTP 客户端，传入 nil 时恢复默认客户端。
func (s *MailgunSender) SetHTTPClient(client httpDoer) {
	if client == nil {
		s.http = &http.Client{Timeout: 10 * time.Second}
		return
	}
	s.http = client
}

// Send 实现 Sender。
func (s *MailgunSender) Send(ctx context.Context, msg Message) error {
	form := url.Values{}
	form.Set("from", s.from)
	form.Set("to", msg.To)
	form.Set("subject", msg.Subject)
	form.Set("html", msg.HTML)
	if msg.Text != "" {
		form.Set("text", msg.Text)
	}

	endpoint := fmt.Sprintf("%s/%s/messages", s.baseURL, s.domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return &DeliveryError{To: msg.To, Err: err}
	}
	req.SetBasicAuth("api", s.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		log.Printf("[mail] request error sending email to %s: %v", msg.To, err)
		return &DeliveryError{To: msg.To, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		deliveryErr := &DeliveryError{To: msg.To, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		log.Printf("[mail] %v", deliveryErr)
		return deliveryErr
	}

	log.Printf("[mail] email sent successfully to %s", msg.To)
	return nil
}

// LogSender 只把邮件写入日志，用于未配置 Mailgun 的开发环境。
type LogSender struct{}

// Send 实现 Sender。
func (LogSender) Send(_ context.Context, msg Message) error {
	log.Printf("[mail] (log only) to=%s subject=%q\n%s", msg.To, msg.Subject, msg.Text)
	return nil
}

// NewSender 在配置齐全时返回 MailgunSender，否则退回 LogSender。
func NewSender(baseURL, domain, apiKey, from string) Sender {
	if strings.TrimSpace(apiKey) == "" || strings.TrimSpace(domain) == "" {
		log.Printf("[mail] MAILGUN_API_KEY or MAILGUN_DOMAIN not set, emails will only be logged")
		return LogSender{}
	}
	return NewMailgunSender(baseURL, domain, apiKey, from)
}
