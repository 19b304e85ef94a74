package kafka

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"

	"FinShock/pkg/logger"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(ctx context.Context, data []byte) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads registered topics and fans messages out to a worker pool.
// Messages of one partition always land on the same worker, so they are
// handled in offset order.
type Consumer struct {
	cfg       *ConsumerConfig
	log       *logger.Logger
	hook      ConsumerHook
	handlers  map[string]MessageHandler
	readers   map[string]messageReader
	newReader func(topic string) messageReader
	dlq       messageWriter
	queues    []chan kafka.Message
	metrics   *clientMetrics

	ctx      context.Context
	cancel   context.CancelFunc
	fetchWG  sync.WaitGroup
	workerWG sync.WaitGroup
	stopOnce sync.Once
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := defaultConsumerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka consumer: brokers are required")
	}

	c := newConsumer(cfg)
	c.newReader = func(topic string) messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    topic,
			GroupID:  cfg.GroupID,
			MinBytes: cfg.MinBytes,
			MaxBytes: cfg.MaxBytes,
		})
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    cfg.DLQTopic,
			Balancer: &kafka.Hash{},
		}
	}
	return c, nil
}

func newConsumer(cfg *ConsumerConfig) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		cfg:      cfg,
		log:      logger.Nop(),
		hook:     NoopHook{},
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]messageReader),
		metrics:  kafkaMetrics(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (c *Consumer) SetLogger(l *logger.Logger) {
	if l != nil {
		c.log = l
	}
}

func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

func (c *Consumer) RegisterHandler(h MessageHandler) {
	if _, ok := c.handlers[h.Topic()]; ok {
		c.log.Warn("kafka consumer: handler already registered", logger.String("topic", h.Topic()))
		return
	}
	c.handlers[h.Topic()] = h
}

// Start launches readers and workers and returns immediately.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("kafka consumer: no handlers registered")
	}
	c.queues = make([]chan kafka.Message, c.cfg.WorkerCount)
	for i := range c.queues {
		c.queues[i] = make(chan kafka.Message, c.cfg.BufferSize)
		c.workerWG.Add(1)
		go c.worker(c.queues[i])
	}
	for topic := range c.handlers {
		r := c.newReader(topic)
		c.readers[topic] = r
		c.fetchWG.Add(1)
		go c.fetch(topic, r)
	}
	c.log.Info("kafka consumer started",
		logger.Int("workers", c.cfg.WorkerCount),
		logger.String("group", c.cfg.GroupID))
	return nil
}

// Stop cancels fetching, lets workers drain and closes readers.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		c.cancel()
		c.fetchWG.Wait()
		for _, q := range c.queues {
			close(q)
		}

		done := make(chan struct{})
		go func() {
			c.workerWG.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("kafka consumer: stop: %w", ctx.Err())
		}

		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.log.Warn("kafka consumer: close reader", logger.String("topic", topic), logger.Error(cerr))
			}
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.log.Warn("kafka consumer: close dlq writer", logger.Error(cerr))
			}
		}
	})
	return err
}

func (c *Consumer) fetch(topic string, r messageReader) {
	defer c.fetchWG.Done()
	for {
		msg, err := r.FetchMessage(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.log.Warn("kafka consumer: fetch", logger.String("topic", topic), logger.Error(err))
			select {
			case <-time.After(c.cfg.BackoffMin):
				continue
			case <-c.ctx.Done():
				return
			}
		}
		if msg.Topic == "" {
			msg.Topic = topic
		}
		q := c.queues[c.route(msg)]
		select {
		case q <- msg:
			c.metrics.queueDepth.WithLabelValues(topic).Set(float64(len(q)))
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Consumer) route(msg kafka.Message) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(msg.Topic))
	_, _ = h.Write([]byte(strconv.Itoa(msg.Partition)))
	return int(h.Sum32() % uint32(len(c.queues)))
}

func (c *Consumer) worker(queue <-chan kafka.Message) {
	defer c.workerWG.Done()
	for msg := range queue {
		c.process(msg)
	}
}

func (c *Consumer) process(msg kafka.Message) {
	handler, ok := c.handlers[msg.Topic]
	if !ok {
		return
	}
	start := time.Now()
	attempts, err := c.handle(handler, msg)
	c.metrics.handleSeconds.WithLabelValues(msg.Topic).Observe(time.Since(start).Seconds())

	if err != nil && c.ctx.Err() != nil {
		// shutting down: leave uncommitted so the message is redelivered
		return
	}

	result := "ok"
	if err != nil {
		result = "error"
		c.hook.OnError(c.ctx, msg, err)
		c.log.Error("kafka consumer: handler failed",
			logger.String("topic", msg.Topic),
			logger.Int("partition", msg.Partition),
			logger.Int64("offset", msg.Offset),
			logger.Int("attempts", attempts),
			logger.Bool("permanent", IsPermanent(err)),
			logger.Error(err))
		if c.dlq == nil {
			c.metrics.consumedTotal.WithLabelValues(msg.Topic, result).Inc()
			return
		}
		if derr := c.deadLetter(msg, err, attempts); derr != nil {
			c.log.Error("kafka consumer: dlq write failed", logger.String("topic", msg.Topic), logger.Error(derr))
			c.metrics.consumedTotal.WithLabelValues(msg.Topic, result).Inc()
			return
		}
	}
	c.metrics.consumedTotal.WithLabelValues(msg.Topic, result).Inc()
	c.commit(msg)
}

// handle runs the handler with exponential backoff. Permanent errors stop the
// retries at once.
func (c *Consumer) handle(h MessageHandler, msg kafka.Message) (int, error) {
	policy := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(c.cfg.BackoffMin),
		backoff.WithMaxInterval(c.cfg.BackoffMax),
		backoff.WithMaxElapsedTime(0),
	)
	retries := uint64(max(c.cfg.RetryMax, 0))
	b := backoff.WithContext(backoff.WithMaxRetries(policy, retries), c.ctx)

	attempts := 0
	op := func() error {
		attempts++
		ctx, km, err := c.hook.BeforeHandle(c.ctx, msg)
		if err == nil {
			err = h.Handle(ctx, km.Value)
		}
		c.hook.AfterHandle(ctx, km, err)
		if IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.log.Warn("kafka consumer: retrying",
			logger.String("topic", msg.Topic),
			logger.Int("attempt", attempts),
			logger.Duration("wait", wait),
			logger.Error(err))
	}
	err := backoff.RetryNotify(op, b, notify)
	return attempts, err
}

func (c *Consumer) deadLetter(msg kafka.Message, cause error, attempts int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	headers := append([]kafka.Header{}, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "source_topic", Value: []byte(msg.Topic)},
		kafka.Header{Key: "error", Value: []byte(cause.Error())},
		kafka.Header{Key: "attempts", Value: []byte(strconv.Itoa(attempts))},
	)
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
		Time:    time.Now().UTC(),
	})
	if err == nil {
		c.metrics.dlqTotal.WithLabelValues(msg.Topic).Inc()
	}
	return err
}

func (c *Consumer) commit(msg kafka.Message) {
	r := c.readers[msg.Topic]
	if r == nil {
		return
	}
	op := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return r.CommitMessages(ctx, msg)
	}
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(50*time.Millisecond),
		backoff.WithMaxInterval(500*time.Millisecond),
	), 2)
	if err := backoff.Retry(op, b); err != nil {
		c.log.Error("kafka consumer: commit failed",
			logger.String("topic", msg.Topic),
			logger.Int64("offset", msg.Offset),
			logger.Error(err))
	}
}
