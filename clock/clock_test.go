package clock

import (
	"testing"
	"time"
)

func TestManualAfterFiresOnAdvance(t *testing.T) {
	clk := NewManual()
	ch := clk.After(time.Second)

	select {
	case <-ch:
		t.Fatalf("fired before advance")
	default:
	}

	clk.Advance(999 * time.Millisecond)
	select {
	case <-ch:
		t.Fatalf("fired early")
	default:
	}

	clk.Advance(time.Millisecond)
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatalf("never fired")
	}
}

func TestManualTickerCatchesUp(t *testing.T) {
	clk := NewManual()
	tk := clk.NewTicker(100 * time.Millisecond)
	defer tk.Stop()

	clk.Advance(350 * time.Millisecond)

	fired := 0
	for {
		select {
		case <-tk.C():
			fired++
		default:
			if fired != 3 {
				t.Fatalf("expected 3 ticks, got %d", fired)
			}
			return
		}
	}
}

func TestStoppedTickerStaysQuiet(t *testing.T) {
	clk := NewManual()
	tk := clk.NewTicker(100 * time.Millisecond)
	tk.Stop()
	clk.Advance(time.Second)
	select {
	case <-tk.C():
		t.Fatalf("stopped ticker must not tick")
	default:
	}
}

func TestManualNowAdvances(t *testing.T) {
	clk := NewManual()
	before := clk.Now()
	clk.Advance(time.Minute)
	if got := clk.Now().Sub(before); got != time.Minute {
		t.Fatalf("expected a minute to pass, got %v", got)
	}
}
