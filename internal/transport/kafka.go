package transport

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"firestige.xyz/nanoprobe/internal/core"
	"firestige.xyz/nanoprobe/internal/log"
)

const (
	defaultBatchSize    = 100
	defaultBatchTimeout = 100 * time.Millisecond
	defaultCompression  = "snappy"
	defaultMaxAttempts  = 3
)

// KafkaOptions configures the kafka sender.
type KafkaOptions struct {
	Brokers      []string      `mapstructure:"brokers"`       // required
	Topic        string        `mapstructure:"topic"`         // required
	BatchSize    int           `mapstructure:"batch_size"`    // default 100
	BatchTimeout time.Duration `mapstructure:"batch_timeout"` // default 100ms
	Compression  string        `mapstructure:"compression"`   // none|gzip|snappy|lz4|zstd, default snappy
	MaxAttempts  int           `mapstructure:"max_attempts"`  // default 3
}

// KafkaSender publishes FrameSets as message values. The key picks the
// partition, so one host's FrameSets stay in order.
type KafkaSender struct {
	writer *kafka.Writer
	opts   KafkaOptions

	sent   atomic.Uint64
	errors atomic.Uint64
}

func newKafkaFromOptions(options map[string]any) (Sender, error) {
	opts := KafkaOptions{
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
		Compression:  defaultCompression,
		MaxAttempts:  defaultMaxAttempts,
	}
	if err := decodeOptions(options, &opts); err != nil {
		return nil, err
	}
	return NewKafka(opts)
}

func compression(name string) (kafka.Compression, error) {
	switch name {
	case "none", "":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	}
	return 0, fmt.Errorf("%w: invalid compression type: %s", core.ErrConfigInvalid, name)
}

// NewKafka builds the writer. Brokers are contacted lazily on first send.
func NewKafka(opts KafkaOptions) (*KafkaSender, error) {
	if len(opts.Brokers) == 0 {
		return nil, fmt.Errorf("%w: kafka sender: brokers is required", core.ErrConfigInvalid)
	}
	if opts.Topic == "" {
		return nil, fmt.Errorf("%w: kafka sender: topic is required", core.ErrConfigInvalid)
	}
	codec, err := compression(opts.Compression)
	if err != nil {
		return nil, err
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(opts.Brokers...),
		Topic:        opts.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    opts.BatchSize,
		BatchTimeout: opts.BatchTimeout,
		MaxAttempts:  opts.MaxAttempts,
		Compression:  codec,
		RequiredAcks: kafka.RequireOne,
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"brokers":     opts.Brokers,
		"topic":       opts.Topic,
		"batch_size":  opts.BatchSize,
		"compression": opts.Compression,
	}).Info("kafka sender ready")

	return &KafkaSender{writer: w, opts: opts}, nil
}

func (s *KafkaSender) Name() string { return "kafka" }

func (s *KafkaSender) Send(ctx context.Context, pkt []byte, key string) error {
	msg := kafka.Message{
		Key:   []byte(key),
		Value: pkt,
		Time:  time.Now(),
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.errors.Add(1)
		return fmt.Errorf("kafka write failed: %w", err)
	}
	s.sent.Add(1)
	return nil
}

func (s *KafkaSender) Close() error {
	if err := s.writer.Close(); err != nil {
		log.GetLogger().WithError(err).Error("error closing kafka writer")
		return err
	}
	log.GetLogger().WithFields(map[string]interface{}{
		"sent":   s.sent.Load(),
		"errors": s.errors.Load(),
	}).Info("kafka sender stopped")
	return nil
}
