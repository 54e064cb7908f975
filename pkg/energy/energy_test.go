package energy

import (
	"math/rand"
	"testing"
)

func TestTryDebit_Atomicity(t *testing.T) {
	g := New(Config{Max: 100})

	if !g.TryDebit(30) {
		t.Fatalf("debit of 30 from full should succeed")
	}
	if got := g.Level(); got != 70 {
		t.Fatalf("Level = %v, want 70", got)
	}

	if g.TryDebit(80) {
		t.Fatalf("debit of 80 from 70 should fail")
	}
	if got := g.Level(); got != 70 {
		t.Fatalf("failed debit changed level: %v", got)
	}
}

func TestTick_LinearRefillToMax(t *testing.T) {
	g := New(Config{Max: 10, RefillAmount: 4})
	if !g.TryDebit(10) {
		t.Fatalf("drain failed")
	}

	g.Tick()
	if got := g.Level(); got != 4 {
		t.Fatalf("Level after 1 tick = %v, want 4", got)
	}
	g.Tick()
	g.Tick()
	if got := g.Level(); got != 10 {
		t.Fatalf("Level capped = %v, want 10", got)
	}
	if g.Charging() {
		t.Fatalf("full governor should not report charging")
	}
}

func TestForcePenalty_LockoutAndCountdown(t *testing.T) {
	g := New(Config{Max: 100})
	g.ForcePenalty(0, 2)

	if got := g.Level(); got != 0 {
		t.Fatalf("Level after penalty = %v, want 0", got)
	}
	if g.TryDebit(0) {
		t.Fatalf("debit must be refused during cooldown regardless of cost")
	}

	g.Tick()
	if got := g.Level(); got != 0 {
		t.Fatalf("refill must pause during cooldown, level = %v", got)
	}

	g.CooldownTick()
	if got := g.CooldownRemaining(); got != 1 {
		t.Fatalf("CooldownRemaining = %d, want 1", got)
	}
	g.CooldownTick()
	if got := g.CooldownRemaining(); got != 0 {
		t.Fatalf("CooldownRemaining = %d, want 0", got)
	}

	g.Tick()
	if !g.TryDebit(2) {
		t.Fatalf("debit should succeed after cooldown clears and refill resumes")
	}
}

func TestForcePenalty_FloorClamped(t *testing.T) {
	g := New(Config{Max: 100})

	g.ForcePenalty(-5, 0)
	if got := g.Level(); got != 0 {
		t.Fatalf("negative floor should clamp to 0, got %v", got)
	}
	g.ForcePenalty(500, 0)
	if got := g.Level(); got != 100 {
		t.Fatalf("oversized floor should clamp to Max, got %v", got)
	}
}

func TestLevel_BoundsInvariant(t *testing.T) {
	g := New(Config{Max: 100, RefillAmount: 7})
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 10_000; i++ {
		switch rng.Intn(4) {
		case 0:
			g.TryDebit(float64(rng.Intn(120)))
		case 1:
			g.Tick()
		case 2:
			g.CooldownTick()
		case 3:
			if rng.Intn(20) == 0 {
				g.ForcePenalty(float64(rng.Intn(50)), rng.Intn(3))
			}
		}
		if l := g.Level(); l < 0 || l > 100 {
			t.Fatalf("level out of bounds after %d ops: %v", i, l)
		}
	}
}

func TestClose_Idempotent(t *testing.T) {
	g := New(Config{})
	g.Start()
	g.Close()
	g.Close()
}
