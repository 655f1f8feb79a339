// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// Server exposes /metrics on its own listener, separate from the API port.
// Access can be restricted with "user:bcrypt-hash" pairs.
type Server struct {
	host  string
	port  int
	users map[string]string

	srv *http.Server
}

func NewServer(host string, port int, basicAuthUsers string) *Server {
	return &Server{
		host:  host,
		port:  port,
		users: parseBasicAuthUsers(basicAuthUsers),
	}
}

func (s *Server) ListenAndServe() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.basicAuth(promhttp.Handler()))

	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Info().Str("addr", addr).Bool("auth", len(s.users) > 0).Msg("Starting metrics server")

	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) basicAuth(next http.Handler) http.Handler {
	if len(s.users) == 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			unauthorized(w)
			return
		}

		hash, found := s.users[username]
		if !found || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
			unauthorized(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="metrics"`)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

// parseBasicAuthUsers splits "user1:hash1,user2:hash2" into a lookup map.
// Malformed pairs are skipped with a warning rather than rejected outright.
func parseBasicAuthUsers(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	users := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			log.Warn().Str("pair", pair).Msg("Skipping malformed metrics basic auth pair")
			continue
		}
		users[parts[0]] = parts[1]
	}

	if len(users) == 0 {
		return nil
	}
	return users
}
