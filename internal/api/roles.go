package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
)

func (s *Server) rolesFromJWT(r *http.Request) (string, []string, error) {
	raw := bearerToken(r.Header.Get("Authorization"))
	if raw == "" {
		return "", nil, errors.New("missing bearer token")
	}
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unsupported jwt signing algorithm: %s", token.Method.Alg())
		}
		secret := strings.TrimSpace(s.auth.JWT.HS256Secret)
		if secret == "" {
			return nil, fmt.Errorf("hs256 secret not configured")
		}
		return []byte(secret), nil
	})
	if err != nil || token == nil || !token.Valid {
		return "", nil, errors.New("invalid jwt token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", nil, errors.New("invalid jwt claims")
	}
	if !claims.VerifyIssuer(s.auth.JWT.Issuer, true) {
		return "", nil, errors.New("invalid jwt issuer")
	}
	if !claims.VerifyAudience(s.auth.JWT.Audience, true) {
		return "", nil, errors.New("invalid jwt audience")
	}
	if !claims.VerifyExpiresAt(time.Now().Unix(), true) {
		return "", nil, errors.New("jwt token expired")
	}
	roles := extractClaimRoles(claims, s.auth.JWT.RolesClaim)
	if len(roles) == 0 {
		return "", nil, errors.New("missing jwt roles")
	}
	subject := ""
	if rawSub, ok := claims["sub"].(string); ok {
		subject = strings.TrimSpace(rawSub)
	}
	return subject, roles, nil
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func extractClaimRoles(claims jwt.MapClaims, claimName string) []string {
	claimName = strings.TrimSpace(claimName)
	if claimName == "" {
		claimName = "roles"
	}
	raw, ok := claims[claimName]
	if !ok {
		return nil
	}
	seen := make(map[string]struct{})
	out := make([]string, 0, 4)
	appendRole := func(v string) {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			return
		}
		if _, exists := seen[v]; exists {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	switch vv := raw.(type) {
	case string:
		for _, part := range strings.FieldsFunc(vv, func(r rune) bool { return r == ',' || r == ' ' }) {
			appendRole(part)
		}
	case []string:
		for _, item := range vv {
			appendRole(item)
		}
	case []interface{}:
		for _, item := range vv {
			if s, ok := item.(string); ok {
				appendRole(s)
			}
		}
	}
	return out
}
