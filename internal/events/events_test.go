package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/loglens/internal/core"
)

type message struct {
	subject string
	data    []byte
}

type fakeConn struct {
	sent    []message
	err     error
	drained bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, message{subject, data})
	return nil
}

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

func storedResult() core.NormalizedResult {
	return core.NormalizedResult{
		ID:          uuid.New(),
		SourceName:  "cloudtrail.csv",
		Label:       core.LabelCloud,
		Status:      core.StatusSafe,
		Probability: 4,
		ObservedAt:  time.Date(2024, 6, 2, 8, 0, 0, 0, time.UTC),
		Metrics:     []core.Metric{{Name: "Suspicious Regions", Value: float64(0)}},
		Origin:      core.OriginFallback,
	}
}

func TestNATSPublisher_Publish(t *testing.T) {
	c := &fakeConn{}
	p := newNATSPublisher(c, "", nil)

	r := storedResult()
	require.NoError(t, p.Publish(context.Background(), ResultStored(r)))
	require.Len(t, c.sent, 1)
	assert.Equal(t, DefaultSubject, c.sent[0].subject)

	var got map[string]any
	require.NoError(t, json.Unmarshal(c.sent[0].data, &got))
	assert.Equal(t, "result.stored", got["type"])
	assert.Equal(t, r.ID.String(), got["id"])
	assert.Equal(t, "cloud", got["schema_label"])
	assert.Equal(t, "fallback", got["origin"])

	require.NoError(t, p.Close())
	assert.True(t, c.drained)
}

func TestNATSPublisher_Errors(t *testing.T) {
	p := newNATSPublisher(&fakeConn{err: errors.New("nats: connection closed")}, "custom", nil)
	err := p.Publish(context.Background(), ResultStored(storedResult()))
	assert.ErrorContains(t, err, "connection closed")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, ResultStored(storedResult())), context.Canceled)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), Event{}))
	assert.NoError(t, p.Close())
}
