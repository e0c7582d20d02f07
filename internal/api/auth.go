package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var (
	errRateLimited  = errors.New("rate limited")
	errInvalidToken = errors.New("missing or invalid bearer token")
)

// eventRoles may post domain events when JWT authentication is enabled.
var eventRoles = []string{"events", "admin"}

func (s *Server) authorizeEvents(r *http.Request) error {
	if s.rateLimiter != nil && !s.rateLimiter.Allow(r, actionEvents) {
		s.auditAuth(r, "deny", "rate_limit", "", nil, "events rate limit exceeded")
		return errRateLimited
	}
	if s.auth.JWT.Enabled {
		if err := s.authorizeRoles(r, eventRoles...); err != nil {
			s.auditAuth(r, "deny", "jwt", "", nil, err.Error())
			return err
		}
		return nil
	}
	token := strings.TrimSpace(s.auth.Events.Token)
	if token == "" {
		s.auditAuth(r, "allow", "none", "", nil, "")
		return nil
	}
	if !matchBearer(r.Header.Get("Authorization"), token) {
		s.auditAuth(r, "deny", "bearer", "", nil, errInvalidToken.Error())
		return errInvalidToken
	}
	s.auditAuth(r, "allow", "bearer", "static-token", nil, "")
	return nil
}

func withAuthDefaults(in AuthConfig) AuthConfig {
	if strings.TrimSpace(in.JWT.RolesClaim) == "" {
		in.JWT.RolesClaim = "roles"
	}
	if in.Rate.WebhookPerMinute <= 0 {
		in.Rate.WebhookPerMinute = 600
	}
	if in.Rate.EventsPerMinute <= 0 {
		in.Rate.EventsPerMinute = 240
	}
	return in
}

func matchBearer(header, expected string) bool {
	token := bearerToken(header)
	return token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1
}

func (s *Server) authorizeRoles(r *http.Request, allowed ...string) error {
	subject, roles, err := s.rolesFromJWT(r)
	if err != nil {
		return err
	}
	roleSet := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		roleSet[strings.ToLower(strings.TrimSpace(role))] = struct{}{}
	}
	for _, needed := range allowed {
		if _, ok := roleSet[strings.ToLower(strings.TrimSpace(needed))]; ok {
			s.auditAuth(r, "allow", "jwt", subject, roles, "")
			return nil
		}
	}
	return errors.New("insufficient role")
}
