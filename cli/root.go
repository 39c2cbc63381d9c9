// Package cli implements the aissign command line.
package cli

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
}

// NewRootCommand returns the aissign command with all subcommands.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "aissign",
		Short: "Sign PDF documents with a remote AIS signing service",
		Long: `aissign prepares PDF documents for signing, has the digest signed by a
Swisscom All-in Signing Service over mutual TLS and embeds the returned
signature, optionally with long-term validation data.

Configuration is read from a TOML file (--config, default ./aissign.toml
when present), a .env file and AISSIGN_* / AIS_* environment variables.`,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "path to the TOML config file")

	cmd.AddCommand(
		newServeCommand(opts),
		newSignCommand(opts),
		newVerifyCommand(),
		newVersionCommand(),
	)
	return cmd
}

func Execute() error {
	return NewRootCommand().Execute()
}
