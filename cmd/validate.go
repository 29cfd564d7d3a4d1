package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/nanoprobe/internal/config"
	"firestige.xyz/nanoprobe/internal/transport"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Validate the configuration file without starting capture.

Checks the YAML, applies defaults and environment overrides, builds the
signer and checks that the transport type is known.

Examples:
  nanoprobe validate -c /etc/nanoprobe/config.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(configFile, cmd.OutOrStdout())
	},
}

func runValidate(path string, w io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(w, "INVALID: %v\n", err)
		return err
	}
	sig, err := cfg.Signing.Signer()
	if err != nil {
		fmt.Fprintf(w, "INVALID: %v\n", err)
		return err
	}
	known := false
	for _, name := range transport.Names() {
		known = known || name == cfg.Transport.Type
	}
	if !known {
		err := fmt.Errorf("unknown transport type %q", cfg.Transport.Type)
		fmt.Fprintf(w, "INVALID: %v\n", err)
		return err
	}

	signing := "unsigned"
	if sig != nil {
		signing = sig.Algorithm().String()
	}
	fmt.Fprintf(w, "VALID: host %q, %s capture, %s transport, %s\n",
		cfg.Node.Hostname, cfg.Capture.Source, cfg.Transport.Type, signing)
	return nil
}
