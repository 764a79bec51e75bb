package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ryanmccauley/loop/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create .loop/config.yaml with default settings",
	Long: `Creates the .loop/ directory with a commented config.yaml holding the
default limits, server and agent settings.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing config.yaml")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	path := config.Path(cwd)
	if fileExists(path) && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML()), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s\n", path)
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func defaultConfigYAML() string {
	return fmt.Sprintf(`# loop configuration
# Every value can be overridden by a flag or a LOOP_ environment variable.

limits:
  # Maximum number of agent turns before stopping
  max_iterations: %d

  # Retries of a failed turn before giving up (backoff 0s, 5s, 15s)
  max_retries: %d

server:
  # opencode server to connect to
  url: %s

  # Start "opencode serve" instead of connecting to url
  spawn: false
  binary: %s
  port: %d

agent:
  # provider/model, empty uses the server default
  model: ""
  name: ""

# Tool the agent calls to report complete, blocked or progress
status_tool: %s

log:
  level: warn
  format: %s
`,
		config.DefaultMaxIterations,
		config.DefaultMaxRetries,
		config.DefaultServerURL,
		config.DefaultServerBinary,
		config.DefaultServerPort,
		config.DefaultStatusTool,
		config.LogFormatConsole,
	)
}
