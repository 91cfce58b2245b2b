package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/thruflo/bfi/internal/config"
)

var (
	initForce bool
	initTOML  bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize .bfi/ configuration",
	Long: `Creates the .bfi/ directory with a documented default configuration.

This command writes:
  - config.yaml (or config.toml with --toml) with engine and debug settings
  - .gitignore, since 'bfi serve --password' stores a password hash in the
    config file`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing config file")
	initCmd.Flags().BoolVar(&initTOML, "toml", false, "write config.toml instead of config.yaml")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	bfiDir := filepath.Join(cwd, config.Dir)
	if existing := config.Path(cwd); fileExists(existing) && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", existing)
	}

	if err := os.MkdirAll(bfiDir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", bfiDir, err)
	}

	name, content := config.YAMLFile, configYAMLTemplate
	other := config.TOMLFile
	if initTOML {
		name, content = config.TOMLFile, configTOMLTemplate
		other = config.YAMLFile
	}

	// config.yaml shadows config.toml, so only one may exist
	if err := os.Remove(filepath.Join(bfiDir, other)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", other, err)
	}

	content = fmt.Sprintf(content, config.DefaultOutputBuffer, config.DefaultMaxProgramBytes, config.DefaultMaxMemoryBytes)
	if err := os.WriteFile(filepath.Join(bfiDir, name), []byte(content), 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := writeGitignore(bfiDir); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s/ with %s\n", config.Dir, name)
	return nil
}

// fileExists checks if a regular file exists
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

const configYAMLTemplate = `# bfi configuration

engine:
  # Bytes of output buffered before a chunk is delivered
  output_buffer: %d

  # Largest accepted program, counted in instructions after comments are
  # removed. Larger programs end with "out of memory" without running.
  max_program_bytes: %d

  # Bytes a run may use for its program, tape and output buffer together.
  # 0 disables the limit.
  max_memory_bytes: %d

# Debug logging. interpreter and output only apply when basic is set.
debug:
  basic: false
  interpreter: false
  output: false

# The server section is written by 'bfi serve --password'.
`

const configTOMLTemplate = `# bfi configuration

[engine]
# Bytes of output buffered before a chunk is delivered
output_buffer = %d

# Largest accepted program, counted in instructions after comments are
# removed. Larger programs end with "out of memory" without running.
max_program_bytes = %d

# Bytes a run may use for its program, tape and output buffer together.
# 0 disables the limit.
max_memory_bytes = %d

# Debug logging. interpreter and output only apply when basic is set.
[debug]
basic = false
interpreter = false
output = false

# The [server] table is written by 'bfi serve --password'.
`

func writeGitignore(bfiDir string) error {
	content := `# Holds the run server's password hash
config.yaml
config.toml
`
	if err := os.WriteFile(filepath.Join(bfiDir, ".gitignore"), []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write .gitignore: %w", err)
	}
	return nil
}
