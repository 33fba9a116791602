// Package cli implements the ssh-actions command line: an MCP server plus
// one-shot commands that run single actions or a file of steps.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ssh-actions/internal/actions"
)

// Version is set via -ldflags at build time.
var Version = "0.2.0"

// errActionFailed is returned when an action ran and reported failure. The
// result has already been printed.
var errActionFailed = errors.New("action failed")

// exitFunc allows tests to stub process exit.
var exitFunc = os.Exit

type rootOptions struct {
	v          *viper.Viper
	configPath string
	output     string
}

// NewRootCommand builds the command tree. Every call gets its own viper
// instance.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{v: viper.New()}

	root := &cobra.Command{
		Use:   "ssh-actions",
		Short: "Run SSH and SFTP actions over cached sessions",
		Long: "ssh-actions runs commands, shells, tunnels and SFTP transfers over SSH. Each action takes string " +
			"inputs and returns a flat result map with returnResult, returnCode and exception.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML config file")
	flags.StringVarP(&opts.output, "output", "o", "yaml", "Result format: yaml or json")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.String("log-format", "", "Log format: text or json")
	flags.String("log-file", "", "Also write logs to this file")
	flags.String("audit-db", "", "SQLite database for the audit trail")

	_ = opts.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = opts.v.BindPFlag("log.format", flags.Lookup("log-format"))
	_ = opts.v.BindPFlag("log.file", flags.Lookup("log-file"))
	_ = opts.v.BindPFlag("audit.path", flags.Lookup("audit-db"))
	_ = opts.v.BindEnv("password", "SSH_ACTIONS_PASSWORD")
	_ = opts.v.BindEnv("passphrase", "SSH_ACTIONS_PASSPHRASE")

	root.AddCommand(
		newServeCommand(opts),
		newActionCommand(opts, "exec", actions.KindCommand),
		newActionCommand(opts, "shell", actions.KindShell),
		newTunnelCommand(opts),
		newRunCommand(opts),
		newVersionCommand(),
	)
	return root
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := execute(NewRootCommand(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		exitFunc(1)
	}
}

func execute(root *cobra.Command, args []string, stdout, stderr io.Writer) error {
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.Execute()
	if err != nil && !errors.Is(err, errActionFailed) {
		_, _ = fmt.Fprintln(stderr, "Error:", err)
	}
	return err
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "ssh-actions", Version)
		},
	}
}
