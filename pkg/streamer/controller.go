// Package streamer drives the block streaming loop: fetch from the active
// provider, validate, record health, consult the switch policy, and emit
// accepted blocks downstream in strict sequential order.
package streamer

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/streamx-network/streamx/pkg/config"
	"github.com/streamx-network/streamx/pkg/health"
	"github.com/streamx-network/streamx/pkg/provider"
	"github.com/streamx-network/streamx/pkg/sequence"
)

// Status is a point-in-time view of stream progress for the admin API.
type Status struct {
	ActiveProvider string    `json:"activeProvider"`
	LastBlock      uint64    `json:"lastBlock"`
	LastHash       string    `json:"lastHash,omitempty"`
	Started        bool      `json:"started"`
	Emitted        uint64    `json:"emitted"`
	Gaps           uint64    `json:"gaps"`
	Duplicates     uint64    `json:"duplicates"`
	LastSwitch     time.Time `json:"lastSwitch"`
}

// Controller runs the streaming state machine as one sequential loop:
// FETCHING, VALIDATING, RECORDING, DECIDING, optionally SWITCHING, EMITTING.
// Fetch failures never stop the loop; only context cancellation does.
type Controller struct {
	cfg       *config.Config
	logger    *zap.Logger
	set       *provider.Set
	fetcher   Fetcher
	validator Validator
	sink      Sink
	clock     Clock
	policy    health.Policy
	tracker   *sequence.Tracker

	// lastActive detects switches applied outside the loop (manual
	// failover through the admin API) so the hash-chain anchor resets.
	lastActive string
	// prevHash anchors parent-hash continuity checks; cleared on switch
	// so a different provider's view of the chain is not held against it.
	prevHash string
	// resync makes the next cycle restart at the provider's head instead
	// of draining from the cursor; set after every switch. The resulting
	// jump surfaces as a Gap classification rather than wedging the loop.
	resync bool

	statusMu sync.Mutex
	status   Status
}

// New wires a Controller. A nil clock uses real time.
func New(cfg *config.Config, logger *zap.Logger, set *provider.Set, fetcher Fetcher, validator Validator, sink Sink, clock Clock) *Controller {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Controller{
		cfg:       cfg,
		logger:    logger,
		set:       set,
		fetcher:   fetcher,
		validator: validator,
		sink:      sink,
		clock:     clock,
		policy: health.Policy{
			DefaultProvider:   cfg.DefaultProvider,
			MinSwitchInterval: cfg.MinSwitchInterval,
		},
		tracker:    sequence.NewTracker(),
		lastActive: set.Active().Name,
	}
}

// Run streams blocks until ctx is cancelled. It always returns ctx.Err().
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("Block streaming started",
		zap.String("provider", c.set.Active().Name),
		zap.Strings("providers", c.set.Names()))

	for {
		if err := ctx.Err(); err != nil {
			c.logger.Info("Block streaming stopped")
			return err
		}

		ok := c.cycle(ctx)

		pause := c.cfg.PollInterval
		if !ok {
			pause = c.cfg.ErrorPause
		}
		c.clock.Pause(ctx, pause)
	}
}

// cycle performs one head poll plus a sequential drain up to the head.
// It returns false when the cycle ended on a failure or a provider switch,
// which makes the loop apply the longer error pause.
func (c *Controller) cycle(ctx context.Context) bool {
	active := c.set.Active()
	if active.Name != c.lastActive {
		// Switched outside the loop; drop chain continuity state.
		c.logger.Info("Active provider changed externally",
			zap.String("from", c.lastActive), zap.String("to", active.Name))
		c.lastActive = active.Name
		c.prevHash = ""
		c.resync = true
	}

	head, elapsed, err := c.fetcher.Head(ctx, active)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return false
		}
		c.logger.Warn("Head fetch failed",
			zap.String("provider", active.Name), zap.Error(err))
		c.record(active.Name, health.Observation{ResponseTime: elapsed, Err: true})
		c.decide()
		return false
	}
	c.record(active.Name, health.Observation{ResponseTime: elapsed})

	start := head
	if last, ok := c.tracker.Last(); ok {
		start = last + 1
		if c.resync && head > start {
			// The new provider is further ahead; jump to its head and
			// let the tracker flag the gap.
			start = head
		}
	}
	c.resync = false

	for n := start; n <= head; n++ {
		if ctx.Err() != nil {
			return false
		}
		if !c.processBlock(ctx, n) {
			return false
		}
	}
	return true
}

// processBlock runs one FETCHING..EMITTING pass for block n against the
// active provider. It returns false when the drain must stop: transport
// failure, undecodable block number, or a provider switch.
func (c *Controller) processBlock(ctx context.Context, n uint64) bool {
	active := c.set.Active()

	// FETCHING
	b, elapsed, err := c.fetcher.Block(ctx, active, n)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return false
		}
		c.logger.Warn("Block fetch failed",
			zap.String("provider", active.Name),
			zap.Uint64("block", n),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		c.record(active.Name, health.Observation{ResponseTime: elapsed, Err: true})
		c.decide()
		return false
	}

	// VALIDATING
	valid := c.validator.Validate(b)

	var delay time.Duration
	hasDelay := false
	if ts, tsErr := c.validator.CreationTime(b); tsErr == nil {
		delay = c.clock.Now().Sub(ts)
		hasDelay = true
	}

	if valid && c.prevHash != "" && b.ParentHash != c.prevHash {
		c.logger.Warn("Parent hash mismatch",
			zap.String("provider", active.Name),
			zap.Uint64("block", n),
			zap.String("expected", c.prevHash),
			zap.String("got", b.ParentHash))
		valid = false
	}
	if !valid {
		c.logger.Warn("Block validation failed",
			zap.String("provider", active.Name), zap.Uint64("block", n))
	}

	num, numErr := c.validator.Number(b)
	if numErr != nil {
		// Without a block number the block cannot be sequenced; treat
		// the whole fetch as failed.
		c.record(active.Name, health.Observation{ResponseTime: elapsed, Err: true})
		c.decide()
		return false
	}

	// RECORDING
	c.record(active.Name, health.Observation{
		ResponseTime:     elapsed,
		ValidationFailed: !valid,
		BlockDelay:       delay,
		HasDelay:         hasDelay,
	})

	// DECIDING / SWITCHING
	switched := c.decide()

	// EMITTING
	class := c.tracker.Classify(num)
	if class.Accepted() {
		if class == sequence.Gap {
			c.logger.Warn("Sequence gap accepted",
				zap.Uint64("block", num),
				zap.String("provider", active.Name))
		}
		if emitErr := c.sink.Emit(ctx, b, class); emitErr != nil {
			c.logger.Warn("Sink emit failed",
				zap.Uint64("block", num), zap.Error(emitErr))
		}
		if !switched {
			// A switch just cleared the chain anchor; re-anchoring with
			// this provider's hash would hold the next provider's first
			// block to the old chain view.
			c.prevHash = b.Hash
		}
		c.noteEmitted(num, b.Hash, class)
	} else {
		c.logger.Debug("Duplicate block skipped", zap.Uint64("block", num))
		c.noteDuplicate()
	}

	return !switched
}

// decide evaluates the switch policy against fresh snapshots and applies the
// verdict. Returns true when a switch was actually performed.
func (c *Controller) decide() bool {
	activeName := c.set.Active().Name
	d := c.policy.Evaluate(c.set.ActiveSnapshot(), c.set.Snapshots(), c.set.SinceLastSwitch())
	if d.Suppressed {
		c.logger.Info("Switch suppressed by cool-down",
			zap.String("target", d.Target),
			zap.String("reason", d.Reason),
			zap.Duration("sinceLastSwitch", c.set.SinceLastSwitch()))
		return false
	}
	if !d.Switch {
		return false
	}

	if err := c.set.SwitchTo(d.Target); err != nil {
		// The policy only selects from the set's own snapshots, so this
		// is an internal invariant violation. Stay on the current
		// provider rather than crash.
		c.logger.Error("Switch target not in provider set",
			zap.String("target", d.Target), zap.Error(err))
		return false
	}

	c.logger.Warn("Switched provider",
		zap.String("from", activeName),
		zap.String("to", d.Target),
		zap.String("reason", d.Reason))

	c.lastActive = d.Target
	c.prevHash = ""
	c.resync = true
	return true
}

func (c *Controller) record(providerName string, obs health.Observation) {
	if r := c.set.Recorder(providerName); r != nil {
		r.Record(obs)
	}
}

func (c *Controller) noteEmitted(num uint64, hash string, class sequence.Classification) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	c.status.LastBlock = num
	c.status.LastHash = hash
	c.status.Started = true
	c.status.Emitted++
	if class == sequence.Gap {
		c.status.Gaps++
	}
}

func (c *Controller) noteDuplicate() {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	c.status.Duplicates++
}

// Status returns a snapshot of stream progress. Safe for concurrent use.
func (c *Controller) Status() Status {
	c.statusMu.Lock()
	s := c.status
	c.statusMu.Unlock()
	s.ActiveProvider = c.set.Active().Name
	s.LastSwitch = c.set.LastSwitch()
	return s
}
