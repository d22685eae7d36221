package main

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// sessionTokenDuration mirrors spec.md §6.2's session token lifetime: short
// enough that the reauth-before-expiry path in room/session.go gets
// exercised during any reasonably long demo session.
const sessionTokenDuration = 10 * time.Minute

type authServerConfig struct {
	addr string
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Actor int    `json:"actor"`
	Room  string `json:"room"`
}

type authorizeRequest struct {
	Room         string `json:"room"`
	PublicAPIKey string `json:"publicApiKey"`
}

type authorizeResponse struct {
	Token string `json:"token"`
}

// newAuthServerCmd mints disposable session tokens for connect to
// authenticate against. Unlike the teacher's JWTManager, which signs with
// RS256 over a long-lived key pair meant for a multi-instance deployment,
// this server exists only to unblock a single local demo session, so it
// generates a throwaway HMAC secret at startup and signs with HS256 —
// there is no second instance that would ever need to verify these tokens
// independently.
func newAuthServerCmd() *cobra.Command {
	cfg := &authServerConfig{}

	cmd := &cobra.Command{
		Use:   "auth-server",
		Short: "Run a disposable HTTP server that mints room session tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthServer(cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.addr, "addr", envOrDefault("LIVEBLOCKS_AUTH_ADDR", ":8787"), "address to listen on")

	return cmd
}

func runAuthServer(cfg *authServerConfig) error {
	logger, err := buildLogger(envOrDefault("LIVEBLOCKS_LOG_LEVEL", "info"))
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return fmt.Errorf("generating signing secret: %w", err)
	}

	srv := &authServer{secret: secret, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Post("/authorize", srv.handleAuthorize)

	logger.Info("auth-server listening", zap.String("addr", cfg.addr))
	return http.ListenAndServe(cfg.addr, r)
}

type authServer struct {
	secret []byte
	logger *zap.Logger

	nextActor int
}

// handleAuthorize mints one session token per request, each claiming the
// next sequential actor id — this demo server tracks no real identities,
// so every connection is simply "the next participant to show up."
func (s *authServer) handleAuthorize(w http.ResponseWriter, req *http.Request) {
	var body authorizeRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if body.Room == "" {
		http.Error(w, "room is required", http.StatusBadRequest)
		return
	}

	s.nextActor++
	actor := s.nextActor

	now := time.Now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "liveblocks-demo-auth-server",
			Subject:   fmt.Sprintf("actor-%d", actor),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTokenDuration)),
			ID:        uuid.NewString(),
		},
		Actor: actor,
		Room:  body.Room,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		s.logger.Error("signing session token failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(authorizeResponse{Token: signed})
}
