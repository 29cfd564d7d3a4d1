package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/nanoprobe/internal/config"
	"firestige.xyz/nanoprobe/internal/frameset"
	"firestige.xyz/nanoprobe/internal/log"
	"firestige.xyz/nanoprobe/internal/transport"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Receive and validate FrameSets over UDP",
	Long: `Run the collector-side validation endpoint.

Every datagram is parsed and verified against the configured signing
settings. Accepted FrameSets are logged; rejected datagrams are counted by
reason in the metrics.

Examples:
  nanoprobe listen -c /etc/nanoprobe/collector.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runListener(ctx, cfg)
	},
}

func newParser(cfg *config.Config) (*frameset.Parser, error) {
	sig, err := cfg.Signing.Signer()
	if err != nil {
		return nil, err
	}
	opts := []frameset.Option{frameset.WithSkipUnknown(cfg.Listen.SkipUnknown)}
	if sig != nil {
		opts = append(opts, frameset.WithSigner(sig))
	}
	return frameset.NewParser(opts...), nil
}

func logFrameSet(source string, fs *frameset.FrameSet) {
	defer fs.Release()
	l := log.GetLogger()
	if !l.IsInfoEnabled() {
		return
	}
	l.WithField("source", source).WithField("skipped", fs.Skipped()).Info(fs.String())
}

func runListener(ctx context.Context, cfg *config.Config) error {
	parser, err := newParser(cfg)
	if err != nil {
		return err
	}

	stopMetrics, err := startMetrics(ctx, cfg.Metrics)
	if err != nil {
		return err
	}
	defer stopMetrics()

	l, err := transport.Listen(cfg.Listen.Address, parser, cfg.Listen.BufferSize, logFrameSet)
	if err != nil {
		return err
	}
	defer l.Close()
	return l.Serve(ctx)
}
