// Package config handles agent configuration loading using viper.
package config

import (
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/nanoprobe/internal/core"
	"firestige.xyz/nanoprobe/internal/log"
	"firestige.xyz/nanoprobe/internal/signer"
)

// Config represents the agent configuration.
// Maps to the `nanoprobe:` root key in YAML.
type Config struct {
	Node      NodeConfig      `mapstructure:"node"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	Signing   SigningConfig   `mapstructure:"signing"`
	Transport TransportConfig `mapstructure:"transport"`
	Listen    ListenConfig    `mapstructure:"listen"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       log.Config      `mapstructure:"log"`
}

// ─── Node Identity ───

// NodeConfig identifies the host in every FrameSet it sends.
type NodeConfig struct {
	Hostname string `mapstructure:"hostname"` // Empty = os.Hostname()
	IP       string `mapstructure:"ip"`       // Empty = auto-detect, omitted when none found
}

// ─── Capture ───

const (
	SourceFile = "file"
	SourceLive = "live"
)

// CaptureConfig selects the packet source and the dispatch pipeline shape.
type CaptureConfig struct {
	Source        string        `mapstructure:"source"` // file | live
	Path          string        `mapstructure:"path"`   // pcap file for source=file
	Device        string        `mapstructure:"device"` // interface for source=live
	SnapLen       int           `mapstructure:"snap_len"`
	BlockSizeKB   int           `mapstructure:"block_size_kb"`
	NumBlocks     int           `mapstructure:"num_blocks"`
	PollTimeout   time.Duration `mapstructure:"poll_timeout"`
	DiscoveryOnly bool          `mapstructure:"discovery_only"` // forward LLDP/CDP only
	DedupTTL      time.Duration `mapstructure:"dedup_ttl"`      // 0 disables duplicate suppression
	Workers       int           `mapstructure:"workers"`        // 0 = GOMAXPROCS
	QueueSize     int           `mapstructure:"queue_size"`
	MaxPackets    int           `mapstructure:"max_packets"` // 0 = unlimited
}

// ─── Signing ───

// SigningConfig selects the FrameSet signature. An empty algorithm sends and
// accepts unsigned FrameSets.
type SigningConfig struct {
	Algorithm string `mapstructure:"algorithm"` // sha256 | blake2s | blake2b | hmac-sha256 | blake2s-keyed
	Key       string `mapstructure:"key"`       // hex, keyed algorithms only
}

// Signer builds the configured signer, or nil when signing is disabled.
func (c SigningConfig) Signer() (signer.Signer, error) {
	name := strings.TrimSpace(c.Algorithm)
	if name == "" || strings.EqualFold(name, "none") {
		if c.Key != "" {
			return nil, fmt.Errorf("%w: signing.key set without signing.algorithm", core.ErrConfigInvalid)
		}
		return nil, nil
	}
	alg, err := signer.ParseAlgorithm(name)
	if err != nil {
		return nil, err
	}
	var key []byte
	if c.Key != "" {
		if key, err = hex.DecodeString(c.Key); err != nil {
			return nil, fmt.Errorf("%w: signing.key is not hex: %v", core.ErrConfigInvalid, err)
		}
	}
	return signer.New(alg, key)
}

// ─── Transport ───

// TransportConfig selects the sender. Options are decoded by the sender
// itself.
type TransportConfig struct {
	Type    string         `mapstructure:"type"` // udp | kafka
	Options map[string]any `mapstructure:"options"`
}

// ─── Listener ───

// ListenConfig configures the collector-side validation endpoint.
type ListenConfig struct {
	Address     string `mapstructure:"address"`
	SkipUnknown bool   `mapstructure:"skip_unknown"`
	BufferSize  int    `mapstructure:"buffer_size"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `nanoprobe: ...`.
type configRoot struct {
	Nanoprobe Config `mapstructure:"nanoprobe"`
}

// Load loads configuration from file.
// The YAML file uses `nanoprobe:` as root key; env vars use the NANOPROBE_
// prefix (e.g., NANOPROBE_CAPTURE_DEVICE).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return load(v)
}

// Default returns the configuration built from defaults and environment
// only, for commands that run without a file.
func Default() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	// The `nanoprobe.` key prefix maps to `NANOPROBE_` via the replacer.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Nanoprobe

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use the "nanoprobe." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Node defaults
	v.SetDefault("nanoprobe.node.hostname", "")
	v.SetDefault("nanoprobe.node.ip", "")

	// Capture defaults
	v.SetDefault("nanoprobe.capture.source", SourceLive)
	v.SetDefault("nanoprobe.capture.path", "")
	v.SetDefault("nanoprobe.capture.device", "")
	v.SetDefault("nanoprobe.capture.snap_len", 65535)
	v.SetDefault("nanoprobe.capture.block_size_kb", 1024)
	v.SetDefault("nanoprobe.capture.num_blocks", 64)
	v.SetDefault("nanoprobe.capture.poll_timeout", "100ms")
	v.SetDefault("nanoprobe.capture.discovery_only", false)
	v.SetDefault("nanoprobe.capture.dedup_ttl", "0s")
	v.SetDefault("nanoprobe.capture.workers", 0)
	v.SetDefault("nanoprobe.capture.queue_size", 1024)
	v.SetDefault("nanoprobe.capture.max_packets", 0)

	// Signing defaults
	v.SetDefault("nanoprobe.signing.algorithm", "sha256")
	v.SetDefault("nanoprobe.signing.key", "")

	// Transport defaults
	v.SetDefault("nanoprobe.transport.type", "udp")

	// Listener defaults
	v.SetDefault("nanoprobe.listen.address", ":1984")
	v.SetDefault("nanoprobe.listen.skip_unknown", false)
	v.SetDefault("nanoprobe.listen.buffer_size", 65535)

	// Metrics defaults
	v.SetDefault("nanoprobe.metrics.enabled", true)
	v.SetDefault("nanoprobe.metrics.listen", ":9091")
	v.SetDefault("nanoprobe.metrics.path", "/metrics")

	// Log defaults
	v.SetDefault("nanoprobe.log.level", "info")
	v.SetDefault("nanoprobe.log.pattern", log.DefaultPattern)
	v.SetDefault("nanoprobe.log.time", log.DefaultTime)
	v.SetDefault("nanoprobe.log.file.enabled", false)
	v.SetDefault("nanoprobe.log.file.path", "/var/log/nanoprobe/nanoprobe.log")
	v.SetDefault("nanoprobe.log.file.max_size_mb", 100)
	v.SetDefault("nanoprobe.log.file.max_backups", 5)
	v.SetDefault("nanoprobe.log.file.max_age_days", 30)
	v.SetDefault("nanoprobe.log.file.compress", true)
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *Config) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return invalid("invalid log level: %s (must be trace/debug/info/warn/error)", cfg.Log.Level)
	}

	// ── Node hostname auto-detect ──
	if cfg.Node.Hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		cfg.Node.Hostname = hostname
	}
	if cfg.Node.IP == "" {
		cfg.Node.IP = detectNodeIP()
	} else if net.ParseIP(cfg.Node.IP) == nil {
		return invalid("node.ip %q is not an IP address", cfg.Node.IP)
	}

	// ── Capture ──
	c := &cfg.Capture
	switch c.Source {
	case SourceFile:
		if c.Path == "" {
			return invalid("capture.path is required when capture.source=file")
		}
	case SourceLive:
		// The device is only required by `run`; `listen` never opens a source.
	default:
		return invalid("unsupported capture.source: %s (must be file/live)", c.Source)
	}
	if c.SnapLen <= 0 || c.SnapLen > 262144 {
		return invalid("capture.snap_len out of range: %d", c.SnapLen)
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.MaxPackets < 0 || c.DedupTTL < 0 {
		return invalid("capture.max_packets and capture.dedup_ttl must not be negative")
	}

	// ── Signing ──
	if _, err := cfg.Signing.Signer(); err != nil {
		return err
	}

	// ── Transport ──
	if cfg.Transport.Type == "" {
		return invalid("transport.type is required")
	}
	if cfg.Transport.Options == nil {
		cfg.Transport.Options = map[string]any{}
	}

	// ── Listener ──
	if cfg.Listen.BufferSize <= 0 {
		cfg.Listen.BufferSize = 65535
	}

	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{core.ErrConfigInvalid}, args...)...)
}

// detectNodeIP returns the first non-loopback, non-link-local IPv4 address
// of an interface that is up, or "".
func detectNodeIP() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil || ip4.IsLinkLocalUnicast() {
				continue
			}
			return ip4.String()
		}
	}
	return ""
}
