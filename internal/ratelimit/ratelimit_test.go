package ratelimit

import "testing"

func TestAllowTenant_Budget(t *testing.T) {
	l := NewMemoryLimiter()

	// Burst of perMinute slots is available immediately; the next call is
	// throttled.
	for i := 0; i < 3; i++ {
		if !l.AllowTenant("tenant-a", 3) {
			t.Fatalf("call %d should be admitted", i+1)
		}
	}
	if l.AllowTenant("tenant-a", 3) {
		t.Fatal("fourth call should be throttled")
	}

	// A different tenant has its own budget.
	if !l.AllowTenant("tenant-b", 3) {
		t.Fatal("other tenant should not share the budget")
	}
}

func TestAllowTenant_Unlimited(t *testing.T) {
	l := NewMemoryLimiter()
	for i := 0; i < 100; i++ {
		if !l.AllowTenant("tenant-a", 0) {
			t.Fatal("zero limit means unlimited")
		}
	}
}

func TestAllowTenant_LimitChangeRebuildsBucket(t *testing.T) {
	l := NewMemoryLimiter()
	if !l.AllowTenant("tenant-a", 1) {
		t.Fatal("first call admitted")
	}
	if l.AllowTenant("tenant-a", 1) {
		t.Fatal("budget exhausted")
	}
	// Policy raised the limit; the bucket is rebuilt with fresh burst.
	if !l.AllowTenant("tenant-a", 5) {
		t.Fatal("raised limit should admit again")
	}
}

func TestAllowRun_Cap(t *testing.T) {
	l := NewMemoryLimiter()
	for i := 0; i < 2; i++ {
		if !l.AllowRun("tenant-a", "run-1", 2) {
			t.Fatalf("call %d within cap should be admitted", i+1)
		}
	}
	if l.AllowRun("tenant-a", "run-1", 2) {
		t.Fatal("cap exceeded, should be denied")
	}
	if !l.AllowRun("tenant-a", "run-2", 2) {
		t.Fatal("different run has its own counter")
	}
	if !l.AllowRun("tenant-b", "run-1", 2) {
		t.Fatal("same run id under a different tenant is a different counter")
	}
}

func TestAllowRun_Unlimited(t *testing.T) {
	l := NewMemoryLimiter()
	for i := 0; i < 50; i++ {
		if !l.AllowRun("tenant-a", "run-1", 0) {
			t.Fatal("zero cap means unlimited")
		}
	}
}
