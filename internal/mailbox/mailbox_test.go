package mailbox

import (
	"errors"
	"fmt"
	"testing"
)

func TestEnqueueDrainFIFO(t *testing.T) {
	box := New(0)

	var want []string
	for i := 0; i < 25; i++ {
		msg := NewMessage("alice", "bob", fmt.Sprintf("subject-%d", i), "body", ModeAsync)
		want = append(want, msg.ID)
		if err := box.Enqueue(msg); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	if got := box.Len(); got != 25 {
		t.Fatalf("Len() = %d, want 25", got)
	}

	drained := box.Drain()
	if len(drained) != len(want) {
		t.Fatalf("Drain() returned %d messages, want %d", len(drained), len(want))
	}
	for i, m := range drained {
		if m.ID != want[i] {
			t.Errorf("Drain()[%d].ID = %s, want %s", i, m.ID, want[i])
		}
		if m.Status != StatusDelivered {
			t.Errorf("Drain()[%d].Status = %s, want %s", i, m.Status, StatusDelivered)
		}
	}

	if got := box.Len(); got != 0 {
		t.Errorf("Len() after drain = %d, want 0", got)
	}
}

func TestEnqueueCircularBound(t *testing.T) {
	for _, maxHops := range []int{1, 2, 5, 10} {
		t.Run(fmt.Sprintf("maxHops=%d", maxHops), func(t *testing.T) {
			box := New(maxHops)

			for depth := 0; depth < maxHops+3; depth++ {
				msg := NewMessage("a", "b", "relay", "body", ModeAsync)
				msg.ChainDepth = depth

				err := box.Enqueue(msg)
				if depth < maxHops {
					if err != nil {
						t.Errorf("Enqueue(depth=%d) error = %v, want nil", depth, err)
					}
				} else if !errors.Is(err, ErrCircularMail) {
					t.Errorf("Enqueue(depth=%d) error = %v, want ErrCircularMail", depth, err)
				}
			}
		})
	}
}

func TestReplyAndForwardDepth(t *testing.T) {
	orig := NewMessage("alice", "bob", "ping", "hello", ModeSyncSwitch)
	orig.CorrelationID = "corr-1"

	if orig.ChainDepth != 0 {
		t.Fatalf("fresh message ChainDepth = %d, want 0", orig.ChainDepth)
	}

	reply := orig.Reply("pong", "hi back")
	if reply.ChainDepth != 1 {
		t.Errorf("reply ChainDepth = %d, want 1", reply.ChainDepth)
	}
	if reply.From != "bob" || reply.To != "alice" {
		t.Errorf("reply addressing = %s->%s, want bob->alice", reply.From, reply.To)
	}
	if reply.CorrelationID != "corr-1" {
		t.Errorf("reply CorrelationID = %q, want corr-1", reply.CorrelationID)
	}

	fwd := reply.Forward("carol")
	if fwd.ChainDepth != 2 {
		t.Errorf("forward ChainDepth = %d, want 2", fwd.ChainDepth)
	}
	if fwd.From != "alice" || fwd.To != "carol" {
		t.Errorf("forward addressing = %s->%s, want alice->carol", fwd.From, fwd.To)
	}
}

func TestForwardLoopBounded(t *testing.T) {
	// A->B->C->A relay loop must be rejected after maxHops hops.
	box := New(3)

	msg := NewMessage("a", "b", "loop", "body", ModeAsync)
	hops := 0
	for {
		err := box.Enqueue(msg)
		if err != nil {
			if !errors.Is(err, ErrCircularMail) {
				t.Fatalf("unexpected error: %v", err)
			}
			break
		}
		hops++
		if hops > 10 {
			t.Fatal("loop never rejected")
		}
		msg = msg.Forward("next")
	}

	if hops != 3 {
		t.Errorf("loop allowed %d hops, want 3", hops)
	}
}

func TestClear(t *testing.T) {
	box := New(0)
	for i := 0; i < 5; i++ {
		_ = box.Enqueue(NewMessage("a", "b", "s", "b", ModeAsync))
	}
	if dropped := box.Clear(); dropped != 5 {
		t.Errorf("Clear() dropped %d, want 5", dropped)
	}
	if got := box.Len(); got != 0 {
		t.Errorf("Len() after Clear = %d, want 0", got)
	}
	if got := box.Drain(); len(got) != 0 {
		t.Errorf("Drain() after Clear returned %d messages, want 0", len(got))
	}
}
