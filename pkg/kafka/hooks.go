package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// ConsumerHook runs around every handler attempt. BeforeHandle may replace the
// context or the message; an error from it fails the attempt without calling
// the handler.
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, km kafka.Message) (context.Context, kafka.Message, error)
	AfterHandle(ctx context.Context, km kafka.Message, err error)
	OnError(ctx context.Context, km kafka.Message, err error)
}

type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, km kafka.Message) (context.Context, kafka.Message, error) {
	return ctx, km, nil
}
func (NoopHook) AfterHandle(context.Context, kafka.Message, error) {}
func (NoopHook) OnError(context.Context, kafka.Message, error)     {}

// HookChain runs hooks in order before the handler and in reverse order after
// it. A panicking hook is converted into an error and never reaches the worker.
type HookChain struct {
	hooks []ConsumerHook
}

func NewHookChain(hooks ...ConsumerHook) *HookChain {
	c := &HookChain{}
	for _, h := range hooks {
		if h != nil {
			c.hooks = append(c.hooks, h)
		}
	}
	return c
}

func (c *HookChain) BeforeHandle(ctx context.Context, km kafka.Message) (context.Context, kafka.Message, error) {
	for _, h := range c.hooks {
		var err error
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("hook panic: %v", r)
				}
			}()
			ctx, km, err = h.BeforeHandle(ctx, km)
		}()
		if err != nil {
			return ctx, km, err
		}
	}
	return ctx, km, nil
}

func (c *HookChain) AfterHandle(ctx context.Context, km kafka.Message, err error) {
	for i := len(c.hooks) - 1; i >= 0; i-- {
		h := c.hooks[i]
		safely(func() { h.AfterHandle(ctx, km, err) })
	}
}

func (c *HookChain) OnError(ctx context.Context, km kafka.Message, err error) {
	for _, h := range c.hooks {
		h := h
		safely(func() { h.OnError(ctx, km, err) })
	}
}

func safely(fn func()) {
	defer func() { _ = recover() }()
	fn()
}

type ctxKey string

const (
	ctxStartTime ctxKey = "kafka_start_time"
	ctxTraceID   ctxKey = "kafka_trace_id"
)

// TraceHeader is the header carrying a correlation id across services.
const TraceHeader = "trace_id"

// TraceIDFrom returns the correlation id stored by TraceHook, if any.
func TraceIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(ctxTraceID).(string)
	return v
}

// TraceHook copies the trace_id header into the handler context.
type TraceHook struct{ NoopHook }

func (TraceHook) BeforeHandle(ctx context.Context, km kafka.Message) (context.Context, kafka.Message, error) {
	for _, h := range km.Headers {
		if h.Key == TraceHeader && len(h.Value) > 0 {
			return context.WithValue(ctx, ctxTraceID, string(h.Value)), km, nil
		}
	}
	return ctx, km, nil
}

// TimingHook reports how long each handler attempt took.
type TimingHook struct {
	Observe func(topic string, d time.Duration, err error)
}

func (h TimingHook) BeforeHandle(ctx context.Context, km kafka.Message) (context.Context, kafka.Message, error) {
	return context.WithValue(ctx, ctxStartTime, time.Now()), km, nil
}

func (h TimingHook) AfterHandle(ctx context.Context, km kafka.Message, err error) {
	start, ok := ctx.Value(ctxStartTime).(time.Time)
	if !ok || h.Observe == nil {
		return
	}
	h.Observe(km.Topic, time.Since(start), err)
}

func (TimingHook) OnError(context.Context, kafka.Message, error) {}

// PermanentError marks a handler failure that retrying cannot fix. The
// consumer sends such messages straight to the DLQ.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the consumer skips retries. Permanent(nil) is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
