package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducer_EncodesPayloads(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "gzip")

	require.NoError(t, p.Publish(context.Background(), "results", []byte("AAPL"), map[string]int{"n": 1}))
	require.NoError(t, p.PublishMessage(context.Background(), "logs", "plain"))
	require.NoError(t, p.PublishBatch(context.Background(), "results", []Message{
		{Key: []byte("MSFT"), Value: []byte("raw"), Headers: map[string]string{TraceHeader: "t1"}},
	}))

	got := w.written()
	require.Len(t, got, 3)
	assert.Equal(t, "AAPL", string(got[0].Key))
	assert.JSONEq(t, `{"n":1}`, string(got[0].Value))
	assert.Equal(t, "logs", got[1].Topic)
	assert.Equal(t, "plain", string(got[1].Value))
	assert.Equal(t, "raw", string(got[2].Value))
	require.Len(t, got[2].Headers, 1)
	assert.Equal(t, TraceHeader, got[2].Headers[0].Key)
}

func TestProducer_WrapsWriteError(t *testing.T) {
	p := newProducer(&fakeWriter{err: errors.New("down")}, "gzip")
	err := p.Publish(context.Background(), "results", nil, "x")
	assert.ErrorContains(t, err, "results")
	assert.ErrorContains(t, err, "down")
}

func TestProducer_EmptyBatch(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, newProducer(w, "gzip").PublishBatch(context.Background(), "t", nil))
	assert.Empty(t, w.written())
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
}
