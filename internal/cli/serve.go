package cli

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/thruflo/bfi/internal/auth"
	"github.com/thruflo/bfi/internal/config"
	"github.com/thruflo/bfi/internal/server"
	"github.com/thruflo/bfi/web"
)

var (
	servePort        int
	serveSetPassword bool
	serveDataDir     string
	serveAssets      string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the run server",
	Long: `Starts an HTTP server that runs programs on behalf of remote clients.

Clients authenticate with a password, submit programs with POST /runs and
follow their output by long-polling GET /runs/{id}/events or over a
websocket. A browser playground is served at /.

On first use, you'll be prompted to set a password. The argon2id hash is
stored in .bfi/config. Use --password to change it. Run event logs are kept
as NDJSON files in --data-dir and can be inspected with 'bfi replay'.`,
	Example: `  bfi serve
  bfi serve --port 9000
  bfi serve --password`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", config.DefaultServerPort, "port to listen on")
	serveCmd.Flags().BoolVar(&serveSetPassword, "password", false, "prompt to set/change the server password")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "", "directory for run event logs (default .bfi/runs)")
	serveCmd.Flags().StringVar(&serveAssets, "assets", "", "serve the playground from this directory instead of the embedded copy")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, cwd, err := loadConfig()
	if err != nil {
		return err
	}
	if err := handleServerPassword(cmd, cwd, cfg, serveSetPassword); err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}

	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	dataDir := serveDataDir
	if dataDir == "" {
		dataDir = filepath.Join(cwd, config.Dir, "runs")
	}

	srv, err := server.NewServer(&server.Config{
		Port:         cfg.Server.Port,
		PasswordHash: cfg.Server.PasswordHash,
		DataDir:      dataDir,
		Engine:       cfg.Engine,
		Logger:       logger,
		RateLimit:    server.DefaultRateLimitConfig(),
		SubmitLimit:  server.DefaultSubmitLimitConfig(),
		Assets:       web.GetAssets(serveAssets),
	})
	if err != nil {
		return fmt.Errorf("failed to create run server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	// Give the server a moment to start and check for errors
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("run server failed to start: %w", err)
		}
		return nil
	case <-time.After(100 * time.Millisecond):
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Run server listening on %s (Ctrl-C to stop)\n", serverURL(srv))
	return <-errCh
}

func serverURL(srv *server.Server) string {
	addr := srv.ListenAddr()
	if addr == "" {
		return fmt.Sprintf("http://localhost:%d", srv.Port())
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	return "http://localhost:" + port
}

// handleServerPassword ensures cfg has a server section with a password
// hash, prompting for a new password when none is set or setPassword is
// true. A new hash is saved to the config file.
func handleServerPassword(cmd *cobra.Command, basePath string, cfg *config.Config, setPassword bool) error {
	if cfg.Server == nil {
		cfg.Server = config.DefaultServerConfig()
	}
	if !setPassword && cfg.Server.PasswordHash != "" {
		return nil
	}

	prompter := &auth.Prompter{In: cmd.InOrStdin(), Out: cmd.ErrOrStderr()}
	password, err := prompter.PromptAndConfirm()
	if err != nil {
		return fmt.Errorf("password setup failed: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	cfg.Server.PasswordHash = hash

	if err := config.SaveConfig(basePath, cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Password saved to config.")
	return nil
}
