// Package cli implements the gemrouter command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lizzyg/gemrouter"
	"github.com/lizzyg/gemrouter/internal/config"
	"github.com/lizzyg/gemrouter/internal/telemetry"
)

const (
	AppName = "gemrouter"
	Version = "0.1.0"
)

// IO bundles the streams and extra client options a command run uses.
type IO struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// ClientOptions are appended to the options derived from flags.
	ClientOptions []gemrouter.Option
}

type app struct {
	io IO

	verbose        bool
	authType       string
	workDir        string
	usageEstimates bool

	logger *slog.Logger
}

// Execute runs the command line with args and returns the process exit code.
// Errors are printed as one red line on stderr.
func Execute(ctx context.Context, args []string, stdio IO) int {
	if stdio.Stdin == nil {
		stdio.Stdin = os.Stdin
	}
	if stdio.Stdout == nil {
		stdio.Stdout = os.Stdout
	}
	if stdio.Stderr == nil {
		stdio.Stderr = os.Stderr
	}
	root := newRootCommand(&app{io: stdio})
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		color.New(color.FgRed).Fprintln(stdio.Stderr, "error: "+singleLine(err.Error()))
		return 1
	}
	return 0
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           AppName,
		Short:         "Route Gemini content-generation calls to the configured provider",
		Long:          `gemrouter resolves the auth mode from the environment and settings, then sends Gemini-style requests to the native Gemini API, Vertex AI, Code Assist, or an OpenAI-compatible gateway such as OpenRouter.`,
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			a.setupLogging()
		},
	}
	root.SetIn(a.io.Stdin)
	root.SetOut(a.io.Stdout)
	root.SetErr(a.io.Stderr)

	pf := root.PersistentFlags()
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose logging, including one record per upstream call")
	pf.StringVar(&a.authType, "auth-type", "", "auth type to use when none is enforced or detected ("+authTypeNames()+")")
	pf.StringVar(&a.workDir, "dir", "", "directory searched for .env and workspace settings (default: current directory)")
	pf.BoolVar(&a.usageEstimates, "estimate-usage", false, "estimate token usage locally when the provider reports none")

	root.AddCommand(newGenerateCommand(a))
	root.AddCommand(newCountTokensCommand(a))
	root.AddCommand(newEmbedCommand(a))
	root.AddCommand(newAuthCommand(a))
	return root
}

func (a *app) setupLogging() {
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(a.io.Stderr, &slog.HandlerOptions{Level: level})
	a.logger = slog.New(telemetry.NewRedactingHandler(handler))
}

func (a *app) client(ctx context.Context) (*gemrouter.Client, error) {
	explicit, err := config.ParseAuthType(a.authType)
	if err != nil {
		return nil, err
	}
	opts := []gemrouter.Option{
		gemrouter.WithLogger(a.logger),
		gemrouter.WithAuthType(explicit),
		gemrouter.WithWorkDir(a.workDir),
	}
	if a.usageEstimates {
		opts = append(opts, gemrouter.WithUsageEstimates())
	}
	opts = append(opts, a.io.ClientOptions...)

	c, err := gemrouter.NewFromEnvironment(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if c.SelectedTypeUpdated() {
		color.New(color.FgYellow).Fprintf(a.io.Stderr, "auth type set to %s\n", c.Config().AuthType)
	}
	return c, nil
}

// promptText joins args, or reads stdin when there are none or the only arg is "-".
func (a *app) promptText(args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	b, err := io.ReadAll(a.io.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	text := strings.TrimSpace(string(b))
	if text == "" {
		return "", fmt.Errorf("no prompt given")
	}
	return text, nil
}

func authTypeNames() string {
	names := make([]string, 0, len(config.AuthTypes()))
	for _, t := range config.AuthTypes() {
		names = append(names, string(t))
	}
	return strings.Join(names, ", ")
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
