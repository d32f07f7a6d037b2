package davtest

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

const digestRealm = "davtest"

// digestAuth checks MD5 digest credentials with qop=auth. Every challenge
// issues a fresh nonce; only the latest nonce is accepted.
type digestAuth struct {
	user     string
	password string
	nonce    string
	issued   int
	revoked  bool
}

// RequireDigest makes the server demand digest authentication.
func (s *Server) RequireDigest(user, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.digest = &digestAuth{user: user, password: password}
}

// RevokeSession rejects all credentials, including freshly signed ones, until
// a client starts a new exchange with an unauthenticated request.
func (s *Server) RevokeSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.digest != nil {
		s.digest.revoked = true
	}
}

// Challenges returns how many digest challenges have been sent.
func (s *Server) Challenges() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.digest == nil {
		return 0
	}
	return s.digest.issued
}

func (d *digestAuth) challenge(w http.ResponseWriter) {
	d.issued++
	d.nonce = fmt.Sprintf("%x", md5.Sum([]byte(fmt.Sprintf("nonce-%d", d.issued))))
	w.Header().Set("WWW-Authenticate",
		fmt.Sprintf(`Digest realm="%s", nonce="%s", qop="auth", algorithm=MD5`, digestRealm, d.nonce))
	w.WriteHeader(http.StatusUnauthorized)
}

func (d *digestAuth) authorize(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	if header == "" {
		d.revoked = false
		return false
	}
	if d.revoked || d.nonce == "" {
		return false
	}
	scheme, rest, _ := strings.Cut(header, " ")
	if !strings.EqualFold(scheme, "Digest") {
		return false
	}
	p := parseDigestParams(rest)
	if p["username"] != d.user || p["realm"] != digestRealm || p["nonce"] != d.nonce {
		return false
	}
	ha1 := md5hex(d.user + ":" + digestRealm + ":" + d.password)
	ha2 := md5hex(r.Method + ":" + p["uri"])
	var want string
	if p["qop"] == "" {
		want = md5hex(ha1 + ":" + d.nonce + ":" + ha2)
	} else {
		want = md5hex(strings.Join([]string{ha1, d.nonce, p["nc"], p["cnonce"], p["qop"], ha2}, ":"))
	}
	return p["response"] == want
}

// parseDigestParams splits `k=v, k2="v, 2"` into a map.
func parseDigestParams(s string) map[string]string {
	params := make(map[string]string)
	for {
		s = strings.TrimLeft(s, " ,")
		if s == "" {
			return params
		}
		key, rest, ok := strings.Cut(s, "=")
		if !ok {
			return params
		}
		key = strings.ToLower(strings.TrimSpace(key))
		var val string
		if strings.HasPrefix(rest, `"`) {
			end := strings.Index(rest[1:], `"`)
			if end < 0 {
				return params
			}
			val, s = rest[1:end+1], rest[end+2:]
		} else if i := strings.Index(rest, ","); i >= 0 {
			val, s = rest[:i], rest[i:]
		} else {
			val, s = rest, ""
		}
		params[key] = strings.TrimSpace(val)
	}
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
