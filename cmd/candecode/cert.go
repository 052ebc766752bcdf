package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mscrnt/candecode/pkg/cert"
)

func certCmd() *cobra.Command {
	var (
		dir   string
		hosts []string
		days  int
		force bool
	)

	cmd := &cobra.Command{
		Use:   "cert",
		Short: "Generate a self-signed TLS certificate for the web UI",
		Long: `Generate a self-signed server certificate and key for "candecode serve".

The files are written as server.pem and server-key.pem in the target
directory. Pass them to serve with --cert and --key, or set cert_file and
key_file in the [server] section of the config file.

Examples:
  # Certificate for localhost in ./certs
  candecode cert

  # Certificate for a LAN host, valid for 30 days
  candecode cert --host decoder.local --host 192.168.1.20 --days 30

  # Replace existing files
  candecode cert --force`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days <= 0 {
				return fmt.Errorf("--days must be positive")
			}

			opts := cert.DefaultOptions()
			if len(hosts) > 0 {
				opts.Hosts = hosts
			}
			opts.ValidFor = time.Duration(days) * 24 * time.Hour

			c, err := cert.Generate(opts)
			if err != nil {
				return fmt.Errorf("failed to generate certificate: %w", err)
			}

			certPath, keyPath, err := c.Save(dir, force)
			if err != nil {
				return fmt.Errorf("failed to save certificate: %w", err)
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Certificate: %s\n", certPath)
			_, _ = fmt.Fprintf(out, "Key:         %s\n", keyPath)
			_, _ = fmt.Fprintf(out, "Valid until: %s\n", c.NotAfter.Format(time.RFC3339))
			_, _ = fmt.Fprintf(out, "\nStart the server with:\n  candecode serve --cert %s --key %s\n", certPath, keyPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "certs", "Output directory")
	cmd.Flags().StringSliceVar(&hosts, "host", nil, "Host name or IP for the certificate (repeatable, default localhost and 127.0.0.1)")
	cmd.Flags().IntVar(&days, "days", 365, "Validity in days")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files")

	return cmd
}
