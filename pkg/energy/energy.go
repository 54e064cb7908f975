// Package energy implements the client-side resource budget that paces
// requests to the remote AI service.
//
// The budget is a heuristic throttle, unrelated to the remote service's
// real quotas: each action class debits a fixed cost up front, and the
// level refills linearly over time. A remote rate-limit signal forces
// the level to a penalty floor and starts a cooldown during which every
// debit is refused.
package energy

import (
	"math"
	"sync"
	"time"
)

// Default tuning. Each interaction surface owns its own Governor, so
// these are per-modality budgets, not a shared global one.
const (
	DefaultMax          = 100.0
	DefaultRefillAmount = 2.0
	DefaultTickInterval = 3 * time.Second

	CostChatMessage = 5.0
	CostImageRender = 15.0
	CostVoiceStart  = 25.0
)

// Config tunes a Governor. Zero values fall back to the defaults.
type Config struct {
	Max          float64
	RefillAmount float64
	TickInterval time.Duration
}

// Governor is a decaying/refilling resource budget. All methods are
// safe for concurrent use. Refusal is always a boolean or state signal,
// never an error.
type Governor struct {
	cfg Config

	mu       sync.Mutex
	level    float64
	cooldown int // seconds remaining; > 0 means locked out

	stopOnce sync.Once
	stop     chan struct{}
}

// New creates a Governor starting at full charge. The periodic refill
// and countdown task does not run until Start is called; tests may
// drive Tick and CooldownTick directly instead.
func New(cfg Config) *Governor {
	if cfg.Max <= 0 {
		cfg.Max = DefaultMax
	}
	if cfg.RefillAmount <= 0 {
		cfg.RefillAmount = DefaultRefillAmount
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	return &Governor{
		cfg:   cfg,
		level: cfg.Max,
		stop:  make(chan struct{}),
	}
}

// Level reports the current budget level in [0, Max].
func (g *Governor) Level() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.level
}

// Max reports the budget ceiling.
func (g *Governor) Max() float64 {
	return g.cfg.Max
}

// Charging reports whether the level is still refilling toward Max.
func (g *Governor) Charging() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.level < g.cfg.Max
}

// CooldownRemaining reports the seconds left in a forced cooldown, or
// zero when input is not locked out.
func (g *Governor) CooldownRemaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cooldown
}

// TryDebit atomically deducts cost from the level. It returns false and
// leaves the level unchanged when the budget is insufficient or a
// cooldown is active.
func (g *Governor) TryDebit(cost float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cooldown > 0 {
		return false
	}
	if cost < 0 || g.level < cost {
		return false
	}
	g.level -= cost
	return true
}

// Tick applies one linear refill step toward Max. Refill is paused
// while a cooldown is active.
func (g *Governor) Tick() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cooldown > 0 {
		return
	}
	g.level = math.Min(g.cfg.Max, g.level+g.cfg.RefillAmount)
}

// CooldownTick advances the retry countdown by one second, clearing the
// lockout when it reaches zero.
func (g *Governor) CooldownTick() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cooldown > 0 {
		g.cooldown--
	}
}

// ForcePenalty is invoked when the remote service signals rate
// limiting: the level drops to floor (clamped into [0, Max]) and every
// debit is refused for cooldownSeconds.
func (g *Governor) ForcePenalty(floor float64, cooldownSeconds int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.level = math.Min(g.cfg.Max, math.Max(0, floor))
	if cooldownSeconds < 0 {
		cooldownSeconds = 0
	}
	g.cooldown = cooldownSeconds
}

// Start launches the periodic refill/countdown task. It is stopped by
// Close and must not be started twice.
func (g *Governor) Start() {
	go g.run()
}

func (g *Governor) run() {
	refill := time.NewTicker(g.cfg.TickInterval)
	defer refill.Stop()
	second := time.NewTicker(time.Second)
	defer second.Stop()

	for {
		select {
		case <-g.stop:
			return
		case <-refill.C:
			g.Tick()
		case <-second.C:
			g.CooldownTick()
		}
	}
}

// Close stops the periodic task. Safe to call multiple times.
func (g *Governor) Close() {
	g.stopOnce.Do(func() { close(g.stop) })
}
