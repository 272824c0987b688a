// Package feed exports synthesized records to Kafka.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"chainguard/internal/traffic"
)

// ErrPublisherClosed is returned when starting a closed publisher.
var ErrPublisherClosed = errors.New("feed: publisher is closed")

// Config holds Kafka feed settings.
type Config struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BufferSize   int           `yaml:"buffer_size"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	Compression  string        `yaml:"compression"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Brokers:      []string{"localhost:9092"},
		Topic:        "chainguard-records",
		BufferSize:   256,
		BatchSize:    50,
		BatchTimeout: 500 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		Compression:  "lz4",
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("feed: at least one broker is required")
	}
	if c.Topic == "" {
		return errors.New("feed: topic is required")
	}
	if c.BufferSize <= 0 {
		return errors.New("feed: buffer_size must be positive")
	}
	return nil
}

func (c Config) compression() kafka.Compression {
	switch c.Compression {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "zstd":
		return kafka.Zstd
	case "none", "":
		return 0
	default:
		return kafka.Lz4
	}
}

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Counters observes publisher outcomes.
type Counters interface {
	IncPublished()
	IncDropped()
	IncErrors()
}

type noopCounters struct{}

func (noopCounters) IncPublished() {}
func (noopCounters) IncDropped()   {}
func (noopCounters) IncErrors()    {}

// Publisher buffers records and writes them to Kafka on its own goroutine.
// Offer never blocks; records are dropped when the buffer is full.
type Publisher struct {
	writer   messageWriter
	topic    string
	timeout  time.Duration
	logger   *slog.Logger
	counters Counters
	records  chan traffic.Record

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	stop   sync.Once
}

// NewPublisher creates a Kafka-backed publisher.
func NewPublisher(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		WriteTimeout:           cfg.WriteTimeout,
		RequiredAcks:           kafka.RequireOne,
		Compression:            cfg.compression(),
		AllowAutoTopicCreation: true,
		Async:                  false,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...), "component", "kafka-writer")
		}),
	}

	logger.Info("record feed initialized",
		"brokers", cfg.Brokers,
		"topic", cfg.Topic,
		"compression", cfg.Compression,
	)

	return newPublisher(writer, cfg, logger), nil
}

func newPublisher(w messageWriter, cfg Config, logger *slog.Logger) *Publisher {
	size := cfg.BufferSize
	if size <= 0 {
		size = DefaultConfig().BufferSize
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().WriteTimeout
	}
	return &Publisher{
		writer:   w,
		topic:    cfg.Topic,
		timeout:  timeout,
		logger:   logger.With("component", "feed"),
		counters: noopCounters{},
		records:  make(chan traffic.Record, size),
	}
}

// WithCounters registers outcome counters.
func (p *Publisher) WithCounters(c Counters) *Publisher {
	if c != nil {
		p.counters = c
	}
	return p
}

// Start launches the publishing goroutine. It exits when ctx is done or
// Close is called.
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}
	p.wg.Add(1)
	go p.run(ctx)
	return nil
}

// Offer queues a record for publishing without blocking.
func (p *Publisher) Offer(rec traffic.Record) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.records <- rec:
	default:
		p.counters.IncDropped()
		p.logger.Warn("feed buffer full, dropping record", "record_id", rec.ID)
	}
}

func (p *Publisher) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-p.records:
			if !ok {
				return
			}
			p.publish(ctx, rec)
		}
	}
}

func (p *Publisher) publish(ctx context.Context, rec traffic.Record) {
	value, err := json.Marshal(rec)
	if err != nil {
		p.counters.IncErrors()
		p.logger.Error("failed to marshal record", "record_id", rec.ID, "error", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(rec.ID.String()),
		Value: value,
		Time:  rec.Timestamp,
	})
	if err != nil {
		p.counters.IncErrors()
		p.logger.Warn("feed publish failed", "record_id", rec.ID, "error", err)
		return
	}
	p.counters.IncPublished()
}

// Close stops accepting records, drains the goroutine and closes the writer.
func (p *Publisher) Close() error {
	var err error
	p.stop.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.records)
		p.mu.Unlock()
		p.wg.Wait()
		err = p.writer.Close()
	})
	return err
}
