package tools

import (
	"testing"
	"time"
)

func TestGetEnvBool(t *testing.T) {
	if GetEnvBool("ROAM_TEST_UNSET", true) != true {
		t.Fatalf("expected default for unset var")
	}
	t.Setenv("ROAM_TEST_BOOL", "yes")
	if !GetEnvBool("ROAM_TEST_BOOL", false) {
		t.Fatalf("expected yes to read as true")
	}
	t.Setenv("ROAM_TEST_BOOL", "0")
	if GetEnvBool("ROAM_TEST_BOOL", true) {
		t.Fatalf("expected 0 to read as false")
	}
}

func TestGetEnvDurationFallsBackOnGarbage(t *testing.T) {
	t.Setenv("ROAM_TEST_DUR", "not-a-duration")
	if got := GetEnvDuration("ROAM_TEST_DUR", time.Second); got != time.Second {
		t.Fatalf("expected default on parse failure, got %v", got)
	}
	t.Setenv("ROAM_TEST_DUR", "250ms")
	if got := GetEnvDuration("ROAM_TEST_DUR", time.Second); got != 250*time.Millisecond {
		t.Fatalf("expected parsed value, got %v", got)
	}
}

func TestParseMeta(t *testing.T) {
	meta := ParseMeta("hat=red, shirt=blue,bad,=nokey")
	if len(meta) != 2 || meta["hat"] != "red" || meta["shirt"] != "blue" {
		t.Fatalf("unexpected meta %v", meta)
	}
	if ParseMeta("") != nil {
		t.Fatalf("expected nil for empty input")
	}
}
