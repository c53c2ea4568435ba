package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quillnote/internal/db"
	"github.com/quillnote/internal/handler"
	"github.com/quillnote/internal/mailer"
	"github.com/quillnote/internal/router"
	"github.com/quillnote/internal/storage"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type e2eSuite struct {
	handler   http.Handler
	db        *gorm.DB
	outbox    *outbox
	reader    *localClient
	admin     *localClient
	baseURL   string
	adminPass string
	published db.Post
	draft     db.Post
}

type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type localClient struct {
	handler http.Handler
	jar     http.CookieJar
	ip      string
}

func newLocalClient(handler http.Handler, ip string) *localClient {
	jar, _ := cookiejar.New(nil)
	return &localClient{handler: handler, jar: jar, ip: ip}
}

func (c *localClient) Do(req *http.Request) (*http.Response, error) {
	for _, cookie := range c.jar.Cookies(req.URL) {
		req.AddCookie(cookie)
	}
	req.RemoteAddr = c.ip + ":40000"
	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)
	resp := w.Result()
	c.jar.SetCookies(req.URL, resp.Cookies())
	return resp, nil
}

// outbox 收集发出的邮件，供测试读取验证链接。
type outbox struct {
	mu       sync.Mutex
	messages []mailer.Message
}

func (o *outbox) Send(_ context.Context, msg mailer.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, msg)
	return nil
}

func (o *outbox) lastLink(t *testing.T, marker string) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.messages) - 1; i >= 0; i-- {
		for _, field := range strings.Fields(o.messages[i].Text) {
			if strings.Contains(field, marker) {
				return field
			}
		}
	}
	t.Fatalf("no email containing %q", marker)
	return ""
}

func TestE2E_ReaderJourney(t *testing.T) {
	suite := newE2ESuite(t)

	t.Run("public pages", suite.testPublicPages)
	t.Run("anonymous like survives signup", suite.testSignupReconcilesLikes)
	t.Run("admin apis", suite.testAdminAPIs)
}

func newE2ESuite(t *testing.T) *e2eSuite {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:e2e-%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	adminPass := "e2e-secret-password"
	if err := db.EnsureSuperuser(gdb, "root@example.test", "root", adminPass); err != nil {
		t.Fatalf("failed to seed superuser: %v", err)
	}

	published := db.Post{Title: "已发布文章", Text: "# 已发布文章\n这是**正文**内容。", IsVisible: true}
	draft := db.Post{Title: "草稿文章", Text: "待发布的内容。"}
	for _, post := range []*db.Post{&published, &draft} {
		if err := gdb.Create(post).Error; err != nil {
			t.Fatalf("failed to seed post: %v", err)
		}
	}

	box := &outbox{}
	uploadDir := t.TempDir()
	baseURL := "http://example.test"
	api := handler.NewAPI(gdb, handler.Options{
		SiteBaseURL:   baseURL,
		SessionSecret: "test-session-secret",
		Mailer:        box,
		Storage:       storage.NewLocalStorage(uploadDir, "/static/uploads"),
	})
	engine := router.SetupRouter(api, router.Options{
		SessionSecret: "test-session-secret",
		TemplateGlob:  "../../web/template/*.html",
		UploadDir:     uploadDir,
		UploadURLPath: "/static/uploads",
	})

	return &e2eSuite{
		handler:   engine,
		db:        gdb,
		outbox:    box,
		reader:    newLocalClient(engine, "203.0.113.5"),
		admin:     newLocalClient(engine, "198.51.100.9"),
		baseURL:   baseURL,
		adminPass: adminPass,
		published: published,
		draft:     draft,
	}
}

func (s *e2eSuite) testPublicPages(t *testing.T) {
	checkHTML := func(name, path, expect string, code int) {
		t.Helper()
		resp := s.mustRequest(t, s.reader, http.MethodGet, path, nil, nil)
		defer resp.Body.Close()
		if resp.StatusCode != code {
			t.Fatalf("%s: expected status %d, got %d", name, code, resp.StatusCode)
		}
		body := readBody(t, resp)
		if expect != "" && !strings.Contains(body, expect) {
			t.Fatalf("%s: response does not contain %q", name, expect)
		}
	}

	checkHTML("home", "/", "已发布文章", http.StatusOK)
	checkHTML("post detail", "/posts/"+s.published.ID.String(), "<strong>正文</strong>", http.StatusOK)
	checkHTML("draft hidden", "/posts/"+s.draft.ID.String(), "", http.StatusNotFound)
	checkHTML("about page", "/about", "关于", http.StatusOK)
	checkHTML("login page", "/accounts/login", "登录", http.StatusOK)
	checkHTML("ping", "/ping", "pong", http.StatusOK)

	resp := s.mustRequest(t, s.reader, http.MethodGet, "/", nil, nil)
	body := readBody(t, resp)
	if strings.Contains(body, "草稿文章") {
		t.Fatalf("draft should not be listed for anonymous readers")
	}
}

func (s *e2eSuite) testSignupReconcilesLikes(t *testing.T) {
	likePath := "/posts/" + s.published.ID.String() + "/like"

	resp := s.mustRequest(t, s.reader, http.MethodPost, likePath, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("anonymous like failed: %d", resp.StatusCode)
	}
	resp.Body.Close()

	form := url.Values{
		"email":     {"reader@example.test"},
		"username":  {"reader"},
		"password1": {"reader-password"},
		"password2": {"reader-password"},
	}
	resp = s.postForm(t, s.reader, "/accounts/register", form)
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("register failed: %d", resp.StatusCode)
	}

	link := s.outbox.lastLink(t, "/accounts/verify/")
	verifyURL, err := url.Parse(link)
	if err != nil {
		t.Fatalf("invalid verification link %q: %v", link, err)
	}
	resp = s.mustRequest(t, s.reader, http.MethodGet, verifyURL.Path, nil, nil)
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/" {
		t.Fatalf("verification failed: %d %s", resp.StatusCode, resp.Header.Get("Location"))
	}

	var user db.User
	if err := s.db.First(&user, "email = ?", "reader@example.test").Error; err != nil {
		t.Fatalf("load reader: %v", err)
	}
	var likes []db.Like
	s.db.Where("post_id = ?", s.published.ID).Find(&likes)
	if len(likes) != 1 || likes[0].UserID == nil || *likes[0].UserID != user.ID {
		t.Fatalf("expected single like owned by reader, got %+v", likes)
	}

	// 再次点赞会取消已合并的点赞
	resp = s.mustRequest(t, s.reader, http.MethodPost, likePath, nil, nil)
	body := readBody(t, resp)
	if !strings.Contains(body, "btn-outline-danger") {
		t.Fatalf("expected unliked button, got %s", body)
	}

	resp = s.postForm(t, s.reader, "/comments/"+s.published.ID.String()+"/add", url.Values{"text": {"<b>写得好</b>"}})
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("comment failed: %d", resp.StatusCode)
	}
	resp = s.mustRequest(t, s.reader, http.MethodGet, "/posts/"+s.published.ID.String(), nil, nil)
	body = readBody(t, resp)
	if !strings.Contains(body, "写得好") || strings.Contains(body, "<b>写得好</b>") {
		t.Fatalf("expected sanitized comment on detail page")
	}
}

func (s *e2eSuite) testAdminAPIs(t *testing.T) {
	resp := s.postForm(t, s.admin, "/accounts/login", url.Values{
		"email":    {"root@example.test"},
		"password": {s.adminPass},
	})
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("admin login failed: %d", resp.StatusCode)
	}

	resp = s.mustRequest(t, s.admin, http.MethodGet, "/admin/posts", nil, nil)
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "草稿文章") {
		t.Fatalf("admin list should include drafts: %d", resp.StatusCode)
	}

	created := s.mustJSON(t, http.MethodPost, "/admin/api/posts", map[string]interface{}{
		"title":      "API 新文章",
		"text":       "```go\nfmt.Println(\"hi\")\n```",
		"is_visible": true,
	}, http.StatusCreated)
	id, _ := created["ID"].(string)
	if id == "" {
		t.Fatalf("expected created post id, got %+v", created)
	}

	resp = s.mustRequest(t, s.reader, http.MethodGet, "/posts/"+id, nil, nil)
	body = readBody(t, resp)
	if !strings.Contains(body, `class="highlight"`) {
		t.Fatalf("expected highlighted code block on new post")
	}

	s.mustJSON(t, http.MethodPut, "/admin/api/posts/"+id, map[string]interface{}{
		"title":      "API 新文章（已更新）",
		"text":       "更新后的正文",
		"is_visible": true,
	}, http.StatusOK)
	resp = s.mustRequest(t, s.reader, http.MethodGet, "/posts/"+id, nil, nil)
	body = readBody(t, resp)
	if !strings.Contains(body, "更新后的正文") {
		t.Fatalf("expected refreshed content after update")
	}

	preview := s.mustJSON(t, http.MethodPost, "/admin/api/preview", map[string]interface{}{
		"text": ":::caption\n*图注*\n:::",
	}, http.StatusOK)
	if html, _ := preview["html"].(string); !strings.Contains(html, `<p class="caption-text"><em>图注</em></p>`) {
		t.Fatalf("unexpected preview html %q", html)
	}

	upload := s.uploadPNG(t)
	if upload["success"] != float64(1) {
		t.Fatalf("upload failed: %+v", upload)
	}
	data, _ := upload["data"].(map[string]interface{})
	fileURL, _ := data["url"].(string)
	resp = s.mustRequest(t, s.reader, http.MethodGet, fileURL, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("uploaded file not served: %d", resp.StatusCode)
	}
	resp.Body.Close()

	s.mustJSON(t, http.MethodDelete, "/admin/api/posts/"+id, nil, http.StatusOK)
	resp = s.mustRequest(t, s.reader, http.MethodGet, "/posts/"+id, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected deleted post to 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// 普通读者不能调用管理接口
	resp = s.mustRequest(t, s.reader, http.MethodGet, "/admin/api/posts", nil, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected reader to be forbidden, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func (s *e2eSuite) mustRequest(t *testing.T, client httpClient, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.baseURL+path, body)
	if err != nil {
		t.Fatalf("failed to build request %s %s: %v", method, path, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	return resp
}

func (s *e2eSuite) postForm(t *testing.T, client httpClient, path string, form url.Values) *http.Response {
	t.Helper()
	resp := s.mustRequest(t, client, http.MethodPost, path, strings.NewReader(form.Encode()), map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
	})
	resp.Body.Close()
	return resp
}

func (s *e2eSuite) mustJSON(t *testing.T, method, path string, payload interface{}, code int) map[string]interface{} {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to encode payload: %v", err)
		}
		body = bytes.NewReader(data)
	}
	resp := s.mustRequest(t, s.admin, method, path, body, map[string]string{"Content-Type": "application/json"})
	defer resp.Body.Close()
	if resp.StatusCode != code {
		t.Fatalf("%s %s: expected status %d, got %d: %s", method, path, code, resp.StatusCode, readBody(t, resp))
	}
	var decoded map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("%s %s: decode response: %v", method, path, err)
	}
	return decoded
}

func (s *e2eSuite) uploadPNG(t *testing.T) map[string]interface{} {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{B: 255, A: 255})
	var encoded bytes.Buffer
	if err := png.Encode(&encoded, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="cover.png"`)
	header.Set("Content-Type", "image/png")
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(encoded.Bytes()); err != nil {
		t.Fatalf("write part: %v", err)
	}
	writer.Close()

	resp := s.mustRequest(t, s.admin, http.MethodPost, "/admin/api/upload", &body, map[string]string{
		"Content-Type": writer.FormDataContentType(),
	})
	defer resp.Body.Close()
	var decoded map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	return decoded
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return string(data)
}
