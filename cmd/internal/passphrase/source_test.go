package passphrase

import "testing"

func TestSourceReadsEnvironment(t *testing.T) {
	t.Setenv("LENDCTL_TEST_SECRET", "hunter2")
	src := NewSource("LENDCTL_TEST_SECRET", "signing secret")
	got, err := src.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "hunter2" {
		t.Fatalf("expected hunter2, got %q", got)
	}
}

func TestSourceRejectsBlankEnvironment(t *testing.T) {
	t.Setenv("LENDCTL_TEST_SECRET", "   ")
	if _, err := NewSource("LENDCTL_TEST_SECRET", "").Get(); err == nil {
		t.Fatalf("expected error for blank secret")
	}
}
