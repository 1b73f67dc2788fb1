package frames

import (
	"context"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/telemetrylab/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	mu      sync.Mutex
	updates []events.JankPercentUpdate
}

func (c *capture) Publish(ev events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u, ok := ev.(events.JankPercentUpdate); ok {
		c.updates = append(c.updates, u)
	}
}

func (c *capture) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.updates)
}

func TestObserverPublishesFrameUpdates(t *testing.T) {
	out := &capture{}
	o := NewObserver(30*time.Second, out)
	base := time.Unix(1_700_000_000, 0)

	o.RecordFrame(base, 16*time.Millisecond, false)
	o.RecordFrame(base.Add(50*time.Millisecond), 50*time.Millisecond, true)
	o.RecordFrame(base.Add(66*time.Millisecond), 16*time.Millisecond, false)
	o.RecordFrame(base.Add(82*time.Millisecond), 16*time.Millisecond, false)

	require.Len(t, out.updates, 4)
	for _, u := range out.updates {
		assert.Equal(t, events.SourceFrames, u.Source)
	}
	assert.Equal(t, 100.0/2, out.updates[1].Percent)
	assert.Equal(t, 25.0, out.updates[3].Percent)
	assert.Equal(t, 4, out.updates[3].Samples)
	assert.Equal(t, 25.0, o.Percentage())
	assert.Equal(t, uint64(4), o.Frames())
}

func TestPacerJankThreshold(t *testing.T) {
	p := NewPacer(NewObserver(0, nil), 50, 2, nil)

	assert.Equal(t, 20*time.Millisecond, p.Period())
	assert.False(t, p.IsJank(20*time.Millisecond))
	assert.False(t, p.IsJank(40*time.Millisecond))
	assert.True(t, p.IsJank(41*time.Millisecond))
}

func TestPacerDefaults(t *testing.T) {
	p := NewPacer(NewObserver(0, nil), 0, 0, nil)

	assert.Equal(t, time.Second/DefaultRateHz, p.Period())
	assert.Equal(t, DefaultJankFactor, p.factor)
}

func TestPacerFeedsObserver(t *testing.T) {
	out := &capture{}
	o := NewObserver(time.Second, out)
	p := NewPacer(o, 200, 2, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	assert.Eventually(t, func() bool { return out.len() >= 5 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.GreaterOrEqual(t, o.Frames(), uint64(5))
}
