package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mabhi256/heapref/internal/config"
)

const appName = "heapref"

// rootOptions holds the persistent flags
type rootOptions struct {
	configPath string
	logFile    string
	verbose    bool

	closeLog func() error
}

// NewRootCmd builds the full command tree
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   appName,
		Short: "Find what keeps objects alive in Java heap dumps",
		Long: `heapref reads HPROF heap dumps and shows, for chosen objects, every chain of
references that leads to them from a GC root. It also summarizes duplicate
strings and checks dumps for unresolved references.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if skipSetup(cmd) {
				return nil
			}
			if err := opts.setup(cmd); err != nil {
				return err
			}
			firstRun(cmd)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.closeLog != nil {
				return opts.closeLog()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default $"+config.EnvVar+" or ~/.config/heapref/config.toml)")
	root.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "write logs to this file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	_ = root.MarkPersistentFlagFilename("config", "toml")
	_ = root.MarkPersistentFlagFilename("log-file", "log")

	root.AddCommand(newInstallCmd())
	root.AddCommand(newVersionCmd())
	root.AddCommand(newHeapCmd())

	return root
}

// setup loads the config and attaches it and the logger to the command context
func (o *rootOptions) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.logFile != "" {
		cfg.Log.File = o.logFile
	}

	logger, toFile, closeLog, err := setupLogging(cfg, o.verbose)
	if err != nil {
		return err
	}
	o.closeLog = closeLog

	if cfg.Path != "" {
		logger.Debug("config loaded", "path", cfg.Path)
	}

	ctx := withConfig(cmd.Context(), cfg)
	ctx = withLogger(ctx, logger)
	ctx = context.WithValue(ctx, logFileKey, toFile)
	cmd.SetContext(ctx)
	return nil
}

func skipSetup(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "install", "version", "help", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
		return true
	}
	return cmd.Parent() != nil && cmd.Parent().Name() == "completion"
}

// firstRun installs shell completions once, when the binary is on PATH
func firstRun(cmd *cobra.Command) {
	if !isInPath() || !isShellSupported() || completionsExist() {
		return
	}

	out := cmd.ErrOrStderr()
	fmt.Fprintln(out, "🔧 First run detected, setting up heapref...")
	if installCompletions(cmd.Root(), out) == nil {
		fmt.Fprintln(out, "✅ Shell completions installed")
		fmt.Fprintln(out, "💡 Restart your shell to enable tab completion")
	} else {
		fmt.Fprintln(out, "⚠️  Auto-setup failed. Run 'heapref install' to try again.")
	}
}

func newInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install shell completions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if !isInPath() {
				printPathInstructions(out)
				return nil
			}

			if !isShellSupported() {
				return fmt.Errorf("shell completion not supported for %s (supported: bash, zsh, fish, powershell)", detectShell())
			}

			if completionsExist() {
				fmt.Fprintln(out, "✅ Already configured!")
				return nil
			}

			fmt.Fprintln(out, "📦 Installing completions...")
			if err := installCompletions(cmd.Root(), out); err != nil {
				return fmt.Errorf("failed to install completions: %w", err)
			}
			fmt.Fprintln(out, "✅ Done! Restart your shell to enable tab completion.")
			return nil
		},
	}
}

// Execute runs the CLI; Ctrl+C cancels the running command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func completionPaths(home string) map[string]string {
	return map[string]string{
		"bash":       filepath.Join(home, ".local/share/bash-completion/completions", appName),
		"zsh":        filepath.Join(home, ".zsh/completions", "_"+appName),
		"fish":       filepath.Join(home, ".config/fish/completions", appName+".fish"),
		"powershell": filepath.Join(home, appName+"_completion.ps1"),
	}
}

func completionsExist() bool {
	home, _ := os.UserHomeDir()
	path, ok := completionPaths(home)[detectShell()]
	if !ok {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func isShellSupported() bool {
	home, _ := os.UserHomeDir()
	_, ok := completionPaths(home)[detectShell()]
	return ok
}

func detectShell() string {
	if runtime.GOOS == "windows" {
		return "powershell"
	}

	shell := os.Getenv("SHELL")
	if shell == "" {
		return "bash"
	}
	return filepath.Base(shell)
}

func installCompletions(root *cobra.Command, out io.Writer) error {
	home, _ := os.UserHomeDir()
	shell := detectShell()
	path, ok := completionPaths(home)[shell]
	if !ok {
		return fmt.Errorf("unsupported shell: %s", shell)
	}

	var (
		gen      func(io.Writer) error
		activate string
	)
	switch shell {
	case "bash":
		gen = root.GenBashCompletion
		activate = "source " + path
	case "zsh":
		gen = root.GenZshCompletion
		activate = fmt.Sprintf("fpath=(%s $fpath) && autoload -U compinit && compinit", filepath.Dir(path))
	case "fish":
		gen = func(w io.Writer) error { return root.GenFishCompletion(w, true) }
		activate = "complete --do-complete=" + appName
	case "powershell":
		gen = root.GenPowerShellCompletionWithDesc
		activate = ". " + path
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := gen(file); err != nil {
		return err
	}

	fmt.Fprintln(out, "🔄 Run this command to enable completions now:")
	fmt.Fprintf(out, "   %s\n", activate)
	return nil
}

func isInPath() bool {
	execPath, err := os.Executable()
	if err != nil {
		return false
	}

	paths := strings.Split(os.Getenv("PATH"), string(os.PathListSeparator))
	return slices.Contains(paths, filepath.Dir(execPath))
}

func printPathInstructions(out io.Writer) {
	execPath, _ := os.Executable()
	execDir := filepath.Dir(execPath)

	fmt.Fprintf(out, "❌ %s not in PATH. Binary location: %s\n\n", appName, execPath)

	if runtime.GOOS == "windows" {
		fmt.Fprintf(out, "Add to PATH: %s\n", execDir)
	} else {
		fmt.Fprintf(out, "Add to shell profile: export PATH=\"%s:$PATH\"\n", execDir)
		fmt.Fprintln(out, "Or copy to: /usr/local/bin")
	}
}
