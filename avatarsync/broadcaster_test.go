package avatarsync

import (
	"sync"
	"testing"
	"time"

	"roamlink/clock"
	"roamlink/wire"
)

type captureSender struct {
	mu   sync.Mutex
	msgs []any
}

func (c *captureSender) Send(event string, payload any) {
	c.mu.Lock()
	c.msgs = append(c.msgs, payload)
	c.mu.Unlock()
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func (c *captureSender) last() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.msgs) == 0 {
		return nil
	}
	return c.msgs[len(c.msgs)-1]
}

func TestMovementRateLimited(t *testing.T) {
	clk := clock.NewManual()
	sender := &captureSender{}
	b := NewBroadcaster(sender, clk, 100*time.Millisecond)
	b.SetUserID("u1")

	// first update transmits immediately, the burst after it does not
	for i := 0; i < 10; i++ {
		b.UpdatePosition(wire.Vector3{X: float64(i)}, wire.Vector3{})
	}
	if sender.count() != 1 {
		t.Fatalf("expected one transmit inside the window, got %d", sender.count())
	}

	clk.Advance(100 * time.Millisecond)
	b.Flush()
	if sender.count() != 2 {
		t.Fatalf("expected pending flush after window, got %d", sender.count())
	}
	mv := sender.last().(*wire.MoveUpdate)
	if mv.Position.X != 9 {
		t.Fatalf("expected only the latest position transmitted, got %+v", mv.Position)
	}
}

func TestFlushWithoutPendingIsNoop(t *testing.T) {
	clk := clock.NewManual()
	sender := &captureSender{}
	b := NewBroadcaster(sender, clk, 100*time.Millisecond)
	b.SetUserID("u1")
	b.Flush()
	if sender.count() != 0 {
		t.Fatalf("expected nothing sent, got %d", sender.count())
	}
}

func TestNoTransmitBeforeUserID(t *testing.T) {
	clk := clock.NewManual()
	sender := &captureSender{}
	b := NewBroadcaster(sender, clk, 100*time.Millisecond)

	b.UpdatePosition(wire.Vector3{X: 1}, wire.Vector3{})
	if sender.count() != 0 {
		t.Fatalf("moves before the id is assigned must not transmit")
	}
	if b.Position().X != 1 {
		t.Fatalf("local position should still be recorded")
	}
}

func TestCustomizationUnthrottled(t *testing.T) {
	clk := clock.NewManual()
	sender := &captureSender{}
	b := NewBroadcaster(sender, clk, 100*time.Millisecond)
	b.SetUserID("u1")

	b.UpdateCustomization(map[string]any{"hat": "red"})
	b.UpdateCustomization(map[string]any{"hat": "blue"})
	if sender.count() != 2 {
		t.Fatalf("customization is not rate limited, got %d sends", sender.count())
	}
	up := sender.last().(*wire.AvatarUpdate)
	if up.Customization["hat"] != "blue" {
		t.Fatalf("expected whole-object update, got %+v", up.Customization)
	}
}
