package ids

import "testing"

func TestGenerateMonotonicUnique(t *testing.T) {
	seen := make(map[int64]struct{})
	prev := int64(0)
	for i := 0; i < 10000; i++ {
		id := Generate()
		if id < prev {
			t.Fatalf("ids must not go backwards: %d after %d", id, prev)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = struct{}{}
		prev = id
	}
}

func TestMessageIDUnique(t *testing.T) {
	a, b := MessageID(), MessageID()
	if a == "" || a == b {
		t.Fatalf("expected distinct non-empty ids, got %q %q", a, b)
	}
}
