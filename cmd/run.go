package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/nanoprobe/internal/capture"
	"firestige.xyz/nanoprobe/internal/config"
	"firestige.xyz/nanoprobe/internal/dispatch"
	"firestige.xyz/nanoprobe/internal/log"
	"firestige.xyz/nanoprobe/internal/metrics"
	"firestige.xyz/nanoprobe/internal/transport"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Capture frames and send them to the collector",
	Long: `Run the agent in foreground.

The agent will:
  1. Load configuration and initialise logging
  2. Open the capture source (pcap file or AF_PACKET ring)
  3. Wrap every frame into a FrameSet, signed when signing is configured
  4. Send FrameSets through the configured transport
  5. Stop on SIGINT/SIGTERM, or when a file source is exhausted

Examples:
  nanoprobe run -c /etc/nanoprobe/config.yml
  NANOPROBE_CAPTURE_DEVICE=eth1 nanoprobe run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runAgent(ctx, cfg)
	},
}

func openSource(c config.CaptureConfig) (capture.Source, error) {
	if c.Source == config.SourceFile {
		return capture.OpenFile(c.Path)
	}
	if c.Device == "" {
		return nil, fmt.Errorf("capture.device is required for live capture")
	}
	opts := capture.LiveOptions{
		Device:      c.Device,
		SnapLen:     c.SnapLen,
		BlockSize:   c.BlockSizeKB * 1024,
		NumBlocks:   c.NumBlocks,
		PollTimeout: c.PollTimeout,
	}
	if c.DiscoveryOnly {
		filter, err := capture.DiscoveryFilter(c.SnapLen)
		if err != nil {
			return nil, fmt.Errorf("failed to assemble discovery filter: %w", err)
		}
		opts.Filter = filter
	}
	return capture.OpenLive(opts)
}

func startMetrics(ctx context.Context, c config.MetricsConfig) (func(), error) {
	if !c.Enabled {
		return func() {}, nil
	}
	srv := metrics.NewServer(c.Listen, c.Path)
	if err := srv.Start(ctx); err != nil {
		return nil, err
	}
	return func() {
		if err := srv.Stop(context.Background()); err != nil {
			log.GetLogger().WithError(err).Warn("metrics server stop failed")
		}
	}, nil
}

func runAgent(ctx context.Context, cfg *config.Config) error {
	sig, err := cfg.Signing.Signer()
	if err != nil {
		return err
	}

	stopMetrics, err := startMetrics(ctx, cfg.Metrics)
	if err != nil {
		return err
	}
	defer stopMetrics()

	sender, err := transport.New(cfg.Transport.Type, cfg.Transport.Options)
	if err != nil {
		return fmt.Errorf("failed to create %s sender: %w", cfg.Transport.Type, err)
	}
	defer sender.Close()

	src, err := openSource(cfg.Capture)
	if err != nil {
		return err
	}
	defer src.Close()

	d, err := dispatch.New(src, sender, dispatch.Config{
		Hostname:      cfg.Node.Hostname,
		NodeIP:        net.ParseIP(cfg.Node.IP),
		Signer:        sig,
		DiscoveryOnly: cfg.Capture.DiscoveryOnly,
		DedupTTL:      cfg.Capture.DedupTTL,
		Workers:       cfg.Capture.Workers,
		QueueSize:     cfg.Capture.QueueSize,
		MaxPackets:    cfg.Capture.MaxPackets,
	})
	if err != nil {
		return err
	}

	err = d.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.GetLogger().Info("received shutdown signal")
		return nil
	}
	return err
}
