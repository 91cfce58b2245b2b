package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/thruflo/bfi/internal/auth"
	"github.com/thruflo/bfi/internal/config"
	"github.com/thruflo/bfi/internal/logging"
	"github.com/thruflo/bfi/internal/runner"
	"github.com/thruflo/bfi/web"
)

// Server is the HTTP front end for remote runs.
type Server struct {
	port         int
	passwordHash string
	dataDir      string
	ownsDataDir  bool
	log          *logging.Logger

	runner   *runner.Runner
	registry *runner.Registry
	limiter  *rateLimiter
	submits  *rateLimiter
	assets   fs.FS

	longPollTimeout time.Duration
	runRetention    time.Duration

	// Runs are bound to this context and cancelled by Stop
	ctx    context.Context
	cancel context.CancelFunc

	// recorders tracks goroutines appending run events to their logs
	recorders sync.WaitGroup

	// HTTP server
	server   *http.Server
	listener net.Listener

	// Token management
	mu     sync.RWMutex
	tokens map[string]time.Time // token -> expiry time

	// Lifecycle
	started bool
}

// Config holds server configuration options.
type Config struct {
	Port         int
	PasswordHash string

	// DataDir holds one NDJSON event log per run. If empty, a temporary
	// directory is used and removed on Stop.
	DataDir string

	Engine    config.Engine
	Logger    *logging.Logger
	RateLimit RateLimitConfig

	// SubmitLimit bounds run submissions per client. Zero fields take the
	// values of DefaultSubmitLimitConfig.
	SubmitLimit RateLimitConfig

	// Assets overrides the embedded web playground.
	Assets fs.FS

	// LongPollTimeout bounds how long GET /runs/{id}/events?wait=1 blocks.
	LongPollTimeout time.Duration

	// RunRetention is how long finished runs stay queryable.
	RunRetention time.Duration
}

// Defaults for Config.
const (
	DefaultLongPollTimeout = 30 * time.Second
	DefaultRunRetention    = time.Hour
)

// NewServer creates a new Server instance.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.PasswordHash == "" {
		return nil, errors.New("password hash is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	dataDir := cfg.DataDir
	ownsDataDir := false
	if dataDir == "" {
		dir, err := os.MkdirTemp("", "bfi-runs-")
		if err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		dataDir = dir
		ownsDataDir = true
	} else if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	assets := cfg.Assets
	if assets == nil {
		assets = web.GetAssets("")
	}

	longPoll := cfg.LongPollTimeout
	if longPoll <= 0 {
		longPoll = DefaultLongPollTimeout
	}
	retention := cfg.RunRetention
	if retention <= 0 {
		retention = DefaultRunRetention
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		port:            cfg.Port,
		passwordHash:    cfg.PasswordHash,
		dataDir:         dataDir,
		ownsDataDir:     ownsDataDir,
		log:             logger.With("component", "server"),
		runner:          runner.New(cfg.Engine, logger),
		registry:        runner.NewRegistry(),
		limiter:         newRateLimiter(cfg.RateLimit, logger.With("component", "ratelimit")),
		submits:         newSubmitLimiter(cfg.SubmitLimit, logger.With("component", "ratelimit")),
		assets:          assets,
		longPollTimeout: longPoll,
		runRetention:    retention,
		ctx:             ctx,
		cancel:          cancel,
		tokens:          make(map[string]time.Time),
	}, nil
}

// NewServerFromConfig creates a new Server from a loaded config.
func NewServerFromConfig(cfg *config.Config, dataDir string, logger *logging.Logger) (*Server, error) {
	if cfg == nil || cfg.Server == nil {
		return nil, errors.New("server config is required")
	}
	return NewServer(&Config{
		Port:         cfg.Server.Port,
		PasswordHash: cfg.Server.PasswordHash,
		DataDir:      dataDir,
		Engine:       cfg.Engine,
		Logger:       logger,
	})
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Registry returns the registry of runs started by this server.
func (s *Server) Registry() *runner.Registry {
	return s.registry
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.setupRoutes(mux)
	return mux
}

// Start starts the HTTP server.
// The server runs until ctx is cancelled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("server already started")
	}

	// Create listener
	addr := fmt.Sprintf(":%d", s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	// No WriteTimeout: long polls and websockets manage their own deadlines
	s.server = &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	s.started = true
	s.mu.Unlock()

	s.log.Info("listening", "addr", listener.Addr().String(), "data_dir", s.dataDir)

	// Start cleanup goroutine for expired tokens and finished runs
	go s.cleanup(ctx)

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop()
		case <-s.ctx.Done():
		}
	}()

	// Run server (blocks until error or server closed)
	err = s.server.Serve(listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Stop cancels all runs and gracefully shuts down the server.
func (s *Server) Stop() error {
	s.cancel()
	s.registry.CancelAll()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started && s.server != nil {
		// Shutdown with timeout
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		s.started = false
	}

	for _, entry := range s.registry.List() {
		<-entry.Run.Done()
	}
	s.recorders.Wait()
	s.registry.CloseAll()

	if s.ownsDataDir {
		if err := os.RemoveAll(s.dataDir); err != nil {
			return fmt.Errorf("failed to remove data directory: %w", err)
		}
	}
	return nil
}

// ListenAddr returns the actual address the server is listening on.
// Useful when port 0 is used to get an available port.
// Returns empty string if not started.
func (s *Server) ListenAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// setupRoutes configures the HTTP routes.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Public endpoint
	mux.HandleFunc("POST /auth", s.handleAuth)

	// Protected endpoints
	mux.HandleFunc("GET /runs", s.withAuth(s.handleListRuns))
	mux.HandleFunc("POST /runs", s.withAuth(s.handleCreateRun))
	mux.HandleFunc("GET /runs/{id}/events", s.withAuth(s.handleEvents))
	mux.HandleFunc("POST /runs/{id}/cancel", s.withAuth(s.handleCancel))
	mux.HandleFunc("GET /runs/{id}/ws", s.withQueryAuth(s.handleWebSocket))

	// Static assets are public for initial page load
	mux.Handle("GET /", http.FileServerFS(s.assets))
}

// withAuth wraps a handler with authentication middleware.
func (s *Server) withAuth(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Extract token from Authorization header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "authorization required", http.StatusUnauthorized)
			return
		}

		// Expect "Bearer <token>" format
		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			http.Error(w, "invalid authorization format", http.StatusUnauthorized)
			return
		}

		token := strings.TrimPrefix(authHeader, bearerPrefix)
		if !s.ValidateToken(token) {
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}

		handler(w, r)
	}
}

// withQueryAuth accepts the token from the token query parameter, for
// clients such as browsers that cannot set headers on websocket requests.
// The Authorization header is honoured as well.
func (s *Server) withQueryAuth(handler http.HandlerFunc) http.HandlerFunc {
	withHeader := s.withAuth(handler)
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			withHeader(w, r)
			return
		}
		if !s.ValidateToken(token) {
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}
		handler(w, r)
	}
}

// VerifyPassword checks if the provided password matches the stored hash.
func (s *Server) VerifyPassword(password string) (bool, error) {
	return auth.VerifyPassword(password, s.passwordHash)
}

// tokenExpiry is how long tokens are valid.
const tokenExpiry = 24 * time.Hour

// GenerateToken creates a new authentication token.
func (s *Server) GenerateToken() (string, error) {
	// Generate 32 bytes of random data (256 bits)
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	token := hex.EncodeToString(bytes)

	// Store token with expiry
	s.mu.Lock()
	s.tokens[token] = time.Now().Add(tokenExpiry)
	s.mu.Unlock()

	return token, nil
}

// ValidateToken checks if a token is valid and not expired.
func (s *Server) ValidateToken(token string) bool {
	if token == "" {
		return false
	}

	s.mu.RLock()
	expiry, exists := s.tokens[token]
	s.mu.RUnlock()

	if !exists {
		return false
	}

	return time.Now().Before(expiry)
}

// RevokeToken removes a token from the valid tokens map.
func (s *Server) RevokeToken(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

// cleanup periodically removes expired tokens, stale rate limiter entries
// and finished runs past their retention.
func (s *Server) cleanup(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweep(time.Now())
		}
	}
}

// sweep performs one cleanup pass as of now.
func (s *Server) sweep(now time.Time) {
	s.mu.Lock()
	for token, expiry := range s.tokens {
		if now.After(expiry) {
			delete(s.tokens, token)
		}
	}
	s.mu.Unlock()

	s.limiter.cleanup()
	s.submits.cleanup()

	if n := s.registry.Prune(now.Add(-s.runRetention)); n > 0 {
		s.log.Info("pruned finished runs", "count", n)
	}
}

// handleAuth handles POST /auth for password authentication. The password
// is read from a JSON body or form data.
func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	ip, ok := s.limiter.allow(w, r)
	if !ok {
		return
	}

	password, err := readPassword(w, r)
	if err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if password == "" {
		http.Error(w, "password required", http.StatusBadRequest)
		return
	}

	// Verify password
	valid, err := s.VerifyPassword(password)
	if err != nil {
		s.log.Error("failed to verify password", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !valid {
		s.limiter.recordFailure(ip)
		http.Error(w, "invalid password", http.StatusUnauthorized)
		return
	}
	s.limiter.recordSuccess(ip)

	// Generate token
	token, err := s.GenerateToken()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// readPassword extracts the password from a JSON or form request body.
func readPassword(w http.ResponseWriter, r *http.Request) (string, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			Password string `json:"password"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&body); err != nil {
			return "", err
		}
		return body.Password, nil
	}

	if err := r.ParseForm(); err != nil {
		return "", err
	}
	return r.FormValue("password"), nil
}

// writeJSON writes v as a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
