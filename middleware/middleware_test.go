package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/scoula/utils"
)

func TestMain(m *testing.M) {
	os.Setenv("JWT_SECRET", "middleware-test-secret")
	os.Unsetenv("REDIS_HOST")
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"/**", "/", true},
		{"/**", "/api/board/1", true},
		{"/api/board/**", "/api/board", true},
		{"/api/board/**", "/api/board/", true},
		{"/api/board/**", "/api/board/download/3", true},
		{"/api/board/**", "/api/boards", false},
		{"/api/member", "/api/member", true},
		{"/api/member", "/api/member/alice", false},
		{"/api/member/*/avatar", "/api/member/alice/avatar", true},
		{"/api/member/*/avatar", "/api/member/avatar", false},
		{"/api/member/*/avatar", "/api/member/a/b/avatar", false},
		{"/api/member/checkusername/**", "/api/member/checkusername/alice", true},
		{"/api/**/avatar", "/api/member/alice/avatar", true},
	}
	for _, tt := range tests {
		if got := MatchPattern(tt.pattern, tt.path); got != tt.want {
			t.Errorf("MatchPattern(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
		}
	}
}

// newSecuredEngine answers 200 on every route behind the security chain.
func newSecuredEngine(rules []Rule) *gin.Engine {
	r := gin.New()
	r.Use(Authenticate(), Authorize(rules))
	r.NoRoute(func(ctx *gin.Context) {
		name, _ := CurrentUsername(ctx)
		ctx.String(http.StatusOK, name)
	})
	return r
}

func token(t *testing.T, username string, roles ...string) string {
	t.Helper()
	tok, err := utils.GenerateToken(username, roles, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return tok
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) int {
	t.Helper()
	var body utils.JSONResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return body.Code
}

func TestAuthorizeDefaultRules(t *testing.T) {
	r := newSecuredEngine(DefaultRules())
	member := "Bearer " + token(t, "alice", "ROLE_MEMBER")

	tests := []struct {
		name   string
		method string
		path   string
		auth   string
		status int
		code   int
	}{
		{"list is public", http.MethodGet, "/api/board", "", http.StatusOK, 0},
		{"detail is public", http.MethodGet, "/api/board/1", "", http.StatusOK, 0},
		{"download is public", http.MethodGet, "/api/board/download/1", "", http.StatusOK, 0},
		{"preflight is public", http.MethodOptions, "/api/board", "", http.StatusOK, 0},
		{"join is public", http.MethodPost, "/api/member", "", http.StatusOK, 0},
		{"username check is public", http.MethodGet, "/api/member/checkusername/alice", "", http.StatusOK, 0},
		{"avatar is public", http.MethodGet, "/api/member/alice/avatar", "", http.StatusOK, 0},
		{"unlisted route is permitted", http.MethodPost, "/api/auth/login", "", http.StatusOK, 0},
		{"create needs a token", http.MethodPost, "/api/board", "", http.StatusUnauthorized, 40101},
		{"update needs a token", http.MethodPut, "/api/board/1", "", http.StatusUnauthorized, 40101},
		{"delete needs a token", http.MethodDelete, "/api/board/deleteAttachment/1", "", http.StatusUnauthorized, 40101},
		{"member update needs a token", http.MethodPut, "/api/member/alice", "", http.StatusUnauthorized, 40101},
		{"create with token", http.MethodPost, "/api/board", member, http.StatusOK, 0},
		{"member update with token", http.MethodPut, "/api/member/alice/changepassword", member, http.StatusOK, 0},
		{"malformed header", http.MethodGet, "/api/board", "Token abc", http.StatusUnauthorized, 40102},
		{"empty bearer", http.MethodGet, "/api/board", "Bearer  ", http.StatusUnauthorized, 40103},
		{"invalid token on public route", http.MethodGet, "/api/board", "Bearer not-a-jwt", http.StatusUnauthorized, 40105},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
			if tt.status == http.StatusUnauthorized {
				if got := errorCode(t, w); got != tt.code {
					t.Errorf("code = %d, want %d", got, tt.code)
				}
				if w.Header().Get("WWW-Authenticate") == "" {
					t.Error("missing WWW-Authenticate header")
				}
			}
		})
	}
}

func TestAuthenticateSetsPrincipal(t *testing.T) {
	r := newSecuredEngine(DefaultRules())
	req := httptest.NewRequest(http.MethodGet, "/api/board", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, "alice", "ROLE_MEMBER"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK || w.Body.String() != "alice" {
		t.Fatalf("got %d %q, want 200 alice", w.Code, w.Body.String())
	}
}

func TestAuthenticateRejectsRevokedToken(t *testing.T) {
	r := newSecuredEngine(DefaultRules())
	tok := token(t, "alice", "ROLE_MEMBER")
	utils.BlacklistToken(tok, time.Now().Add(time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/api/board", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized || errorCode(t, w) != 40104 {
		t.Fatalf("got %d %s, want 401 with code 40104", w.Code, w.Body.String())
	}
}

func TestAuthorizeRole(t *testing.T) {
	r := newSecuredEngine([]Rule{{Pattern: "/admin/**", Access: HasRole, Role: "ROLE_ADMIN"}})

	tests := []struct {
		name   string
		auth   string
		status int
		code   int
	}{
		{"anonymous", "", http.StatusUnauthorized, 40101},
		{"member", "Bearer " + token(t, "alice", "ROLE_MEMBER"), http.StatusForbidden, 40301},
		{"admin", "Bearer " + token(t, "root", "ROLE_MEMBER", "ROLE_ADMIN"), http.StatusOK, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			if tt.code != 0 && errorCode(t, w) != tt.code {
				t.Errorf("code = %d, want %d", errorCode(t, w), tt.code)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.POST("/limited", RateLimit(2), func(ctx *gin.Context) { ctx.Status(http.StatusNoContent) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/limited", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	// burst of one for two requests per minute
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
}
