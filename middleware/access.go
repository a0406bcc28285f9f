package middleware

import (
	"path"
	"strings"

	"github.com/gin-gonic/gin"
)

// Access is the requirement a matched rule places on the request.
type Access int

const (
	PermitAll Access = iota
	Authenticated
	HasRole
)

// Rule binds a method and an ant-style path pattern ("*" one segment, "**" any number of
// segments) to an access requirement. An empty Method matches every method.
type Rule struct {
	Method  string
	Pattern string
	Access  Access
	Role    string
}

func (r Rule) matches(method, p string) bool {
	if r.Method != "" && !strings.EqualFold(r.Method, method) {
		return false
	}
	return MatchPattern(r.Pattern, p)
}

// DefaultRules is the route table of the API. Anything it does not list is open.
func DefaultRules() []Rule {
	return []Rule{
		{Method: "OPTIONS", Pattern: "/**", Access: PermitAll},
		{Method: "GET", Pattern: "/api/member/checkusername/**", Access: PermitAll},
		{Method: "POST", Pattern: "/api/member", Access: PermitAll},
		{Method: "GET", Pattern: "/api/member/*/avatar", Access: PermitAll},
		{Method: "PUT", Pattern: "/api/member/**", Access: Authenticated},
		{Method: "POST", Pattern: "/api/board/**", Access: Authenticated},
		{Method: "PUT", Pattern: "/api/board/**", Access: Authenticated},
		{Method: "DELETE", Pattern: "/api/board/**", Access: Authenticated},
	}
}

// Authorize evaluates rules in order; the first match decides. A request matching no rule is
// let through (default-permit), which keeps unlisted routes public.
func Authorize(rules []Rule) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		method, p := ctx.Request.Method, ctx.Request.URL.Path
		for _, rule := range rules {
			if !rule.matches(method, p) {
				continue
			}
			switch rule.Access {
			case Authenticated:
				if _, ok := CurrentUsername(ctx); !ok {
					EntryPoint(ctx, 40101, "authentication required")
					return
				}
			case HasRole:
				if _, ok := CurrentUsername(ctx); !ok {
					EntryPoint(ctx, 40101, "authentication required")
					return
				}
				if !hasRole(CurrentRoles(ctx), rule.Role) {
					AccessDenied(ctx)
					return
				}
			}
			ctx.Next()
			return
		}
		ctx.Next()
	}
}

// MatchPattern reports whether an URL path matches an ant-style pattern.
func MatchPattern(pattern, p string) bool {
	return matchSegments(splitPath(pattern), splitPath(p))
}

func matchSegments(pattern, segs []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			rest := pattern[1:]
			for i := 0; i <= len(segs); i++ {
				if matchSegments(rest, segs[i:]) {
					return true
				}
			}
			return false
		}
		if len(segs) == 0 {
			return false
		}
		if ok, err := path.Match(pattern[0], segs[0]); err != nil || !ok {
			return false
		}
		pattern, segs = pattern[1:], segs[1:]
	}
	return len(segs) == 0
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func hasRole(roles []string, want string) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}
