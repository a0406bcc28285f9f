package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/cppla/scoula/config"
	"github.com/cppla/scoula/models"
	"github.com/cppla/scoula/utils"
)

func TestMain(m *testing.M) {
	tmp, err := os.MkdirTemp("", "scoula-routes")
	if err != nil {
		panic(err)
	}
	os.Setenv("JWT_SECRET", "routes-test-secret")
	os.Setenv("GIN_MODE", "test")
	os.Setenv("GIN_PATH", filepath.Join(tmp, "logs", "gin.log"))
	os.Setenv("UPLOAD_DIR", filepath.Join(tmp, "board"))
	os.Setenv("AVATAR_DIR", filepath.Join(tmp, "avatar"))
	os.Setenv("DEFAULT_AVATAR", filepath.Join(tmp, "missing.png"))
	os.Setenv("RATE_LIMIT_PER_MINUTE", "1000")
	os.Unsetenv("REDIS_HOST")
	utils.PasswordCost = bcrypt.MinCost

	code := m.Run()
	os.RemoveAll(tmp)
	os.Exit(code)
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	db, err := config.OpenDatabase("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()), "silent")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := config.Migrate(db, &models.Post{}, &models.Attachment{}, &models.Member{}, &models.Auth{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return SetupRouter(db)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type formFile struct {
	field, name, content string
}

func multipartBody(t *testing.T, fields map[string]string, files ...formFile) (io.Reader, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		w.WriteField(k, v)
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.field, f.name)
		if err != nil {
			t.Fatal(err)
		}
		part.Write([]byte(f.content))
	}
	w.Close()
	return &body, w.FormDataContentType()
}

func do(r *gin.Engine, method, path, token, contentType string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	if data != nil {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data %s: %v", env.Data, err)
		}
	}
	return env
}

func expect(t *testing.T, w *httptest.ResponseRecorder, status, code int) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, status, w.Body.String())
	}
	if env := decode(t, w, nil); env.Code != code {
		t.Fatalf("code = %d, want %d (body %s)", env.Code, code, w.Body.String())
	}
}

func join(t *testing.T, r *gin.Engine, username, password string) {
	t.Helper()
	body, ct := multipartBody(t, map[string]string{"username": username, "password": password, "email": username + "@example.com"})
	expect(t, do(r, http.MethodPost, "/api/member", "", ct, body), http.StatusOK, 0)
}

func login(t *testing.T, r *gin.Engine, username, password string) string {
	t.Helper()
	payload := fmt.Sprintf(`{"username":%q,"password":%q}`, username, password)
	w := do(r, http.MethodPost, "/api/auth/login", "", "application/json", strings.NewReader(payload))
	expect(t, w, http.StatusOK, 0)

	var data struct {
		Token string `json:"token"`
		User  struct {
			Username string   `json:"username"`
			Roles    []string `json:"roles"`
		} `json:"user"`
	}
	decode(t, w, &data)
	if data.Token == "" || data.User.Username != username {
		t.Fatalf("unexpected login response %s", w.Body.String())
	}
	return data.Token
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t)
	expect(t, do(r, http.MethodGet, "/health", "", "", nil), http.StatusOK, 0)
}

func TestMemberFlow(t *testing.T) {
	r := newTestRouter(t)
	join(t, r, "alice", "s3cret")

	body, ct := multipartBody(t, map[string]string{"username": "alice", "password": "other1"})
	expect(t, do(r, http.MethodPost, "/api/member", "", ct, body), http.StatusBadRequest, 40002)

	w := do(r, http.MethodGet, "/api/member/checkusername/alice", "", "", nil)
	var taken bool
	decode(t, w, &taken)
	if !taken {
		t.Error("expected alice to be reported as taken")
	}

	w = do(r, http.MethodGet, "/api/member/alice", "", "", nil)
	expect(t, w, http.StatusOK, 0)
	if strings.Contains(w.Body.String(), "password") {
		t.Errorf("profile leaks password field: %s", w.Body.String())
	}

	expect(t, do(r, http.MethodGet, "/api/member/ghost", "", "", nil), http.StatusNotFound, 40401)
	expect(t, do(r, http.MethodGet, "/api/member/alice/avatar", "", "", nil), http.StatusNotFound, 40403)

	bad := `{"username":"alice","password":"wrong"}`
	expect(t, do(r, http.MethodPost, "/api/auth/login", "", "application/json", strings.NewReader(bad)), http.StatusUnauthorized, 40106)

	token := login(t, r, "alice", "s3cret")

	body, ct = multipartBody(t, map[string]string{"password": "s3cret", "email": "bob@example.com"})
	expect(t, do(r, http.MethodPut, "/api/member/bob", token, ct, body), http.StatusForbidden, 40302)

	body, ct = multipartBody(t, map[string]string{"password": "wrong", "email": "new@example.com"})
	expect(t, do(r, http.MethodPut, "/api/member/alice", token, ct, body), http.StatusUnauthorized, 40120)

	body, ct = multipartBody(t, map[string]string{"password": "s3cret", "email": "new@example.com"},
		formFile{"avatar", "me.png", "avatar-bytes"})
	expect(t, do(r, http.MethodPut, "/api/member/alice", token, ct, body), http.StatusOK, 0)

	w = do(r, http.MethodGet, "/api/member/alice/avatar", "", "", nil)
	if w.Code != http.StatusOK || w.Body.String() != "avatar-bytes" {
		t.Errorf("avatar = %d %q", w.Code, w.Body.String())
	}

	change := `{"oldPassword":"s3cret","newPassword":"n3wpass"}`
	expect(t, do(r, http.MethodPut, "/api/member/alice/changepassword", token, "application/json", strings.NewReader(change)), http.StatusOK, 0)
	login(t, r, "alice", "n3wpass")
}

func TestBoardFlow(t *testing.T) {
	r := newTestRouter(t)
	join(t, r, "alice", "s3cret")
	token := login(t, r, "alice", "s3cret")

	body, ct := multipartBody(t, map[string]string{"title": "hello", "content": "first"},
		formFile{"files", "hello.txt", "hello world"})
	expect(t, do(r, http.MethodPost, "/api/board", "", ct, body), http.StatusUnauthorized, 40101)

	body, ct = multipartBody(t, map[string]string{"title": "hello", "content": "first"},
		formFile{"files", "hello.txt", "hello world"})
	w := do(r, http.MethodPost, "/api/board", token, ct, body)
	expect(t, w, http.StatusOK, 0)

	var post struct {
		No       uint   `json:"no"`
		Writer   string `json:"writer"`
		Attaches []struct {
			No       uint   `json:"no"`
			Filename string `json:"filename"`
			FileSize string `json:"fileSize"`
		} `json:"attaches"`
	}
	decode(t, w, &post)
	if post.Writer != "alice" {
		t.Errorf("writer = %q, want the authenticated member", post.Writer)
	}
	if len(post.Attaches) != 1 || post.Attaches[0].FileSize != "11 Bytes" {
		t.Fatalf("unexpected attachments %+v", post.Attaches)
	}
	if strings.Contains(w.Body.String(), `"path"`) {
		t.Errorf("response leaks stored path: %s", w.Body.String())
	}
	attNo := post.Attaches[0].No

	var page struct {
		TotalCount int `json:"totalCount"`
	}
	decode(t, do(r, http.MethodGet, "/api/board?page=1&amount=5", "", "", nil), &page)
	if page.TotalCount != 1 {
		t.Errorf("totalCount = %d", page.TotalCount)
	}
	expect(t, do(r, http.MethodGet, "/api/board?page=x", "", "", nil), http.StatusBadRequest, 40010)

	w = do(r, http.MethodGet, fmt.Sprintf("/api/board/download/%d", attNo), "", "", nil)
	if w.Code != http.StatusOK || w.Body.String() != "hello world" {
		t.Fatalf("download = %d %q", w.Code, w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "hello.txt") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	update := "title=changed&content=second"
	w = do(r, http.MethodPut, fmt.Sprintf("/api/board/%d", post.No), token, "application/x-www-form-urlencoded", strings.NewReader(update))
	expect(t, w, http.StatusOK, 0)

	expect(t, do(r, http.MethodGet, "/api/board/999", "", "", nil), http.StatusNotFound, 40401)
	expect(t, do(r, http.MethodGet, "/api/board/abc", "", "", nil), http.StatusBadRequest, 40011)

	path := fmt.Sprintf("/api/board/deleteAttachment/%d", attNo)
	expect(t, do(r, http.MethodDelete, path, token, "", nil), http.StatusOK, 0)
	expect(t, do(r, http.MethodDelete, path, token, "", nil), http.StatusNotFound, 40401)

	expect(t, do(r, http.MethodDelete, fmt.Sprintf("/api/board/%d", post.No), token, "", nil), http.StatusOK, 0)
	expect(t, do(r, http.MethodDelete, fmt.Sprintf("/api/board/%d", post.No), token, "", nil), http.StatusNotFound, 40401)
}

func TestLogoutRevokesToken(t *testing.T) {
	r := newTestRouter(t)
	join(t, r, "alice", "s3cret")
	token := login(t, r, "alice", "s3cret")

	expect(t, do(r, http.MethodPost, "/api/auth/logout", "", "", nil), http.StatusUnauthorized, 40101)
	expect(t, do(r, http.MethodPost, "/api/auth/logout", token, "", nil), http.StatusOK, 0)

	body, ct := multipartBody(t, map[string]string{"title": "t", "content": "c"})
	expect(t, do(r, http.MethodPost, "/api/board", token, ct, body), http.StatusUnauthorized, 40104)
}

func TestUnknownRoute(t *testing.T) {
	r := newTestRouter(t)
	expect(t, do(r, http.MethodGet, "/api/nope", "", "", nil), http.StatusNotFound, 40400)
}
