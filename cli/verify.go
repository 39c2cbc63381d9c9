package cli

import (
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/digitorus/aissign/verify"
)

// ErrInvalid is returned when a document has an invalid signature.
var ErrInvalid = errors.New("document signature is not valid")

type verifyOptions struct {
	caFile             string
	allowEmbeddedRoots bool
	requireNonRepud    bool
	at                 string
	jsonOutput         bool
}

func newVerifyCommand() *cobra.Command {
	opts := &verifyOptions{}

	cmd := &cobra.Command{
		Use:   "verify [flags] <input.pdf>",
		Short: "Verify the signatures of a PDF file",
		Example: `  aissign verify signed-contract.pdf
  aissign verify --ca swisscom-root.pem --json signed-contract-ltv.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vopts, err := opts.options()
			if err != nil {
				return err
			}
			res, err := verify.File(args[0], vopts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				err = writeJSON(out, res)
			} else {
				err = writeTable(out, res)
			}
			if err != nil {
				return err
			}
			if !res.Valid() {
				return ErrInvalid
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.caFile, "ca", "", "PEM file with trusted root certificates; the system pool is used when empty")
	f.BoolVar(&opts.allowEmbeddedRoots, "allow-embedded-roots", false, "accept self-signed roots embedded in the signature (use with caution)")
	f.BoolVar(&opts.requireNonRepud, "require-non-repudiation", false, "require the non-repudiation key usage on signing certificates")
	f.StringVar(&opts.at, "at", "", "validation time in RFC 3339 format")
	f.BoolVar(&opts.jsonOutput, "json", false, "print the report as JSON")
	return cmd
}

func (o *verifyOptions) options() (verify.Options, error) {
	vo := verify.Options{
		AllowEmbeddedRoots:    o.allowEmbeddedRoots,
		RequireNonRepudiation: o.requireNonRepud,
	}
	if o.caFile != "" {
		pem, err := os.ReadFile(o.caFile)
		if err != nil {
			return vo, errors.Wrap(err, "failed to read CA file")
		}
		vo.Roots = x509.NewCertPool()
		if !vo.Roots.AppendCertsFromPEM(pem) {
			return vo, errors.Errorf("no certificates found in %s", o.caFile)
		}
	}
	if o.at != "" {
		t, err := time.Parse(time.RFC3339, o.at)
		if err != nil {
			return vo, errors.Wrap(err, "invalid --at")
		}
		vo.Time = t
	}
	return vo, nil
}

type signerReport struct {
	verify.Signer
	Errors []string `json:"errors,omitempty"`
}

type report struct {
	Valid   bool                `json:"valid"`
	Info    verify.DocumentInfo `json:"info"`
	DSS     bool                `json:"dss"`
	Signers []signerReport      `json:"signers"`
}

func writeJSON(w io.Writer, res *verify.Result) error {
	r := report{Valid: res.Valid(), Info: res.Info, DSS: res.DSS}
	for _, s := range res.Signers {
		sr := signerReport{Signer: s}
		for _, err := range s.ValidationErrors {
			sr.Errors = append(sr.Errors, err.Error())
		}
		r.Signers = append(r.Signers, sr)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func signerName(s verify.Signer) string {
	if s.Name != "" {
		return s.Name
	}
	for _, c := range s.Certificates {
		if c.Certificate != nil {
			return c.Certificate.Subject.CommonName
		}
	}
	return ""
}

func writeTable(w io.Writer, res *verify.Result) error {
	if _, err := fmt.Fprintf(w, "Title: %s\nPages: %d\nLTV store: %s\n\n", res.Info.Title, res.Info.Pages, yesNo(res.DSS)); err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Field", "Signer", "Signed", "Timestamp", "Valid", "Trusted", "Revoked", "VRI", "Whole document"})
	var notes []string
	for _, s := range res.Signers {
		signed, ts := "", ""
		if s.SignatureTime != nil {
			signed = s.SignatureTime.UTC().Format(time.RFC3339)
		}
		if s.TimeStamp != nil {
			ts = s.TimeStamp.Time.UTC().Format(time.RFC3339)
		}
		t.AppendRow(table.Row{
			s.Field, signerName(s), signed, ts,
			yesNo(s.ValidSignature && len(s.ValidationErrors) == 0),
			yesNo(s.TrustedIssuer), yesNo(s.RevokedCertificate), yesNo(s.VRI), yesNo(s.CoversDocument),
		})
		for _, err := range s.ValidationErrors {
			notes = append(notes, fmt.Sprintf("%s: error: %v", s.Field, err))
		}
		for _, warn := range s.Warnings {
			notes = append(notes, fmt.Sprintf("%s: warning: %s", s.Field, warn))
		}
	}
	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	t.Render()

	if len(notes) > 0 {
		_, err := fmt.Fprintf(w, "\n%s\n", strings.Join(notes, "\n"))
		return err
	}
	return nil
}
