// Package ja3 tracks TLS client fingerprints for bot detection and
// per-fingerprint risk scoring.
//
// Every request carrying a fingerprint counts as a hit. Once a fingerprint's
// hit count exceeds the bot threshold it is blocked permanently for the
// process lifetime; there is no decay or unblock path.
package ja3

import (
	"math"
	"sync"
	"time"

	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/metrics"
)

// DefaultBotThreshold is the hit count above which a fingerprint is blocked.
const DefaultBotThreshold = 50

// velocityWindow bounds the trailing window used for the velocity signal.
const velocityWindow = time.Minute

// Normalization ceilings for the risk factors. A fingerprint touching
// fanoutCeiling distinct accounts, or seen velocityCeiling times inside the
// window, saturates that factor at 1.0.
const (
	fanoutCeiling   = 10
	velocityCeiling = 20
)

// Risk factor weights. Hits dominate so that risk is monotone in the hit
// count for a fixed account and request pattern.
const (
	weightHits     = 0.5
	weightFanout   = 0.3
	weightVelocity = 0.2
)

// Assessment is the outcome of evaluating one request's fingerprint.
type Assessment struct {
	JA3      string  `json:"ja3"`
	JA3Risk  float64 `json:"ja3Risk"`
	Velocity int     `json:"velocity"`
	Fanout   int     `json:"fanout"`
	Blocked  bool    `json:"blocked"`
}

// FingerprintStats is a point-in-time snapshot of one tracked fingerprint.
type FingerprintStats struct {
	Hits      int       `json:"hits"`
	Blocked   bool      `json:"blocked"`
	FirstSeen time.Time `json:"firstSeen"`
}

// record holds the mutable state for one fingerprint. Guarded by its own
// mutex so hot fingerprints do not serialize the whole detector.
type record struct {
	mu        sync.Mutex
	hits      int
	blocked   bool
	firstSeen time.Time
	accounts  map[string]struct{}
	window    []time.Time
}

// Detector tracks fingerprints across requests. Safe for concurrent use.
type Detector struct {
	threshold int
	now       func() time.Time
	records   sync.Map // fingerprint -> *record

	hookMu  sync.Mutex
	onBlock func(fingerprint string, hits int)
}

// Option configures a Detector.
type Option func(*Detector)

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// NewDetector creates a detector blocking fingerprints seen more than
// threshold times.
func NewDetector(threshold int, opts ...Option) *Detector {
	if threshold <= 0 {
		threshold = DefaultBotThreshold
	}
	d := &Detector{
		threshold: threshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Threshold returns the configured blocking threshold.
func (d *Detector) Threshold() int { return d.threshold }

// OnBlock registers a hook fired once when a fingerprint crosses the
// threshold and becomes blocked. The hook runs in its own goroutine so a
// slow consumer cannot stall request handling.
func (d *Detector) OnBlock(fn func(fingerprint string, hits int)) {
	d.hookMu.Lock()
	d.onBlock = fn
	d.hookMu.Unlock()
}

func (d *Detector) get(fingerprint string) *record {
	if r, ok := d.records.Load(fingerprint); ok {
		return r.(*record)
	}
	r, _ := d.records.LoadOrStore(fingerprint, &record{
		firstSeen: d.now(),
		accounts:  make(map[string]struct{}),
	})
	return r.(*record)
}

// IsBot records a hit for the fingerprint and reports whether it is blocked.
// An empty fingerprint is never a bot and is not recorded. Blocking happens
// only when the hit count strictly exceeds the threshold, so the first
// threshold hits pass.
func (d *Detector) IsBot(fingerprint string) bool {
	if fingerprint == "" {
		return false
	}
	r := d.get(fingerprint)
	r.mu.Lock()
	defer r.mu.Unlock()

	r.hits++
	if !r.blocked && r.hits > d.threshold {
		r.blocked = true
		metrics.BotsBlocked.Inc()
		d.hookMu.Lock()
		hook := d.onBlock
		d.hookMu.Unlock()
		if hook != nil {
			go hook(fingerprint, r.hits)
		}
	}
	return r.blocked
}

// Evaluate scores a request observation for the fingerprint. The observation
// itself is recorded: the account joins the fanout set and the timestamp
// joins the velocity window. Evaluate does not count as a bot-detection hit
// and never blocks.
func (d *Detector) Evaluate(fingerprint, accountID string) Assessment {
	metrics.JA3Evaluations.Inc()
	if fingerprint == "" {
		return Assessment{}
	}

	r := d.get(fingerprint)
	r.mu.Lock()
	defer r.mu.Unlock()

	now := d.now()
	if accountID != "" {
		r.accounts[accountID] = struct{}{}
	}
	r.window = append(r.window, now)
	r.trimWindowLocked(now)

	velocity := len(r.window)
	fanout := len(r.accounts)

	hitFactor := math.Min(float64(r.hits)/float64(d.threshold), 1)
	fanoutFactor := math.Min(float64(fanout)/fanoutCeiling, 1)
	velocityFactor := math.Min(float64(velocity)/velocityCeiling, 1)

	risk := weightHits*hitFactor + weightFanout*fanoutFactor + weightVelocity*velocityFactor
	risk = math.Round(math.Max(0, math.Min(risk, 1))*1000) / 1000

	return Assessment{
		JA3:      fingerprint,
		JA3Risk:  risk,
		Velocity: velocity,
		Fanout:   fanout,
		Blocked:  r.blocked,
	}
}

// trimWindowLocked drops observations older than the velocity window.
// Caller holds r.mu.
func (r *record) trimWindowLocked(now time.Time) {
	cutoff := now.Add(-velocityWindow)
	i := 0
	for i < len(r.window) && !r.window[i].After(cutoff) {
		i++
	}
	if i > 0 {
		r.window = append(r.window[:0], r.window[i:]...)
	}
}

// Stats returns a snapshot of every tracked fingerprint.
func (d *Detector) Stats() map[string]FingerprintStats {
	out := make(map[string]FingerprintStats)
	d.records.Range(func(key, value any) bool {
		r := value.(*record)
		r.mu.Lock()
		out[key.(string)] = FingerprintStats{
			Hits:      r.hits,
			Blocked:   r.blocked,
			FirstSeen: r.firstSeen,
		}
		r.mu.Unlock()
		return true
	})
	return out
}

// BlockedCount returns the number of currently blocked fingerprints.
func (d *Detector) BlockedCount() int {
	n := 0
	d.records.Range(func(_, value any) bool {
		r := value.(*record)
		r.mu.Lock()
		if r.blocked {
			n++
		}
		r.mu.Unlock()
		return true
	})
	return n
}
