package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/digitorus/aissign/ais"
	"github.com/digitorus/aissign/internal/config"
	"github.com/digitorus/aissign/staging"
	"github.com/digitorus/aissign/store"
	"github.com/digitorus/aissign/workflow"
)

type signOptions struct {
	outDir   string
	digest   string
	ltv      bool
	name     string
	reason   string
	location string
	contact  string
}

func newSignCommand(root *rootOptions) *cobra.Command {
	opts := &signOptions{}

	cmd := &cobra.Command{
		Use:   "sign [flags] <input.pdf>",
		Short: "Sign a PDF file, or a digest with --digest",
		Example: `  aissign sign --reason "Approved" contract.pdf
  aissign sign --out-dir signed/ --ltv=false contract.pdf
  aissign sign --digest "$(openssl dgst -sha512 -binary file | base64 -w0)"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.digest == "" && len(args) != 1 {
				return errors.New("expected exactly one input file")
			}
			if opts.digest != "" && len(args) != 0 {
				return errors.New("--digest does not take an input file")
			}

			cfg, err := config.Load(root.configFile)
			if err != nil {
				return err
			}
			opts.apply(cmd, &cfg)

			orch, err := newOrchestrator(cfg, opts.outDir, cfg.Logger())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.digest != "" {
				sig, err := orch.SignDigest(cmd.Context(), opts.digest)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, sig)
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrap(err, "failed to read input")
			}
			art, err := orch.SignDocument(cmd.Context(), workflow.Document{Name: filepath.Base(args[0]), Data: data}, cfg.Policy())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, filepath.Join(opts.outDir, art.Name))
			return err
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.outDir, "out-dir", "o", ".", "directory the signed document is written to")
	f.StringVar(&opts.digest, "digest", "", "sign a base64 SHA-512 digest and print the base64 CMS signature")
	f.BoolVar(&opts.ltv, "ltv", true, "add long-term validation data when the service returns revocation evidence")
	f.StringVar(&opts.name, "name", "", "name of the signatory")
	f.StringVar(&opts.reason, "reason", "", "reason for signing")
	f.StringVar(&opts.location, "location", "", "location of the signatory")
	f.StringVar(&opts.contact, "contact", "", "contact information of the signatory")
	return cmd
}

// apply overrides the config with the flags given on the command line.
func (o *signOptions) apply(cmd *cobra.Command, cfg *config.Server) {
	f := cmd.Flags()
	if f.Changed("ltv") {
		cfg.LTV = o.ltv
	}
	if f.Changed("name") {
		cfg.Signature.Name = o.name
	}
	if f.Changed("reason") {
		cfg.Signature.Reason = o.reason
	}
	if f.Changed("location") {
		cfg.Signature.Location = o.location
	}
	if f.Changed("contact") {
		cfg.Signature.Contact = o.contact
	}
}

func newOrchestrator(cfg config.Server, outDir string, logger zerolog.Logger) (*workflow.Orchestrator, error) {
	client, err := ais.New(cfg.AISConfig())
	if err != nil {
		return nil, err
	}
	st, err := store.NewLocal(outDir)
	if err != nil {
		return nil, err
	}
	area, err := staging.New(cfg.StagingDir)
	if err != nil {
		return nil, err
	}
	return workflow.New(client, st, area, cfg.WorkflowConfig(), logger), nil
}
