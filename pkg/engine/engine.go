// Package engine assembles the full design session behind one facade.
// A Session owns the assembly graph and routes every mutation through
// the tier gate and the command log, so undo, billing, timeline and
// backups stay consistent no matter which entry point the caller uses.
// Derivations (charts, instructions, yarn math, suggestions) hang off
// the same object but never mutate it.
package engine

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Grimnirrrr/keratin/pkg/assembly"
	"github.com/Grimnirrrr/keratin/pkg/command"
	"github.com/Grimnirrrr/keratin/pkg/config"
	"github.com/Grimnirrrr/keratin/pkg/instructions"
	"github.com/Grimnirrrr/keratin/pkg/recovery"
	"github.com/Grimnirrrr/keratin/pkg/script"
	"github.com/Grimnirrrr/keratin/pkg/store"
	"github.com/Grimnirrrr/keratin/pkg/suggest"
	"github.com/Grimnirrrr/keratin/pkg/tier"
	"github.com/Grimnirrrr/keratin/pkg/timeline"
	"github.com/Grimnirrrr/keratin/pkg/yarn"
)

// Config carries the session's collaborators. Zero-value fields fall
// back to defaults: built-in settings, an in-memory store, a nop logger
// and the wall clock.
type Config struct {
	ID       string
	Name     string
	Tier     tier.Tier
	Settings *config.Config
	Store    store.KV
	Payments tier.PaymentPort
	Logger   *zap.Logger
	Now      func() time.Time
	NewID    func() string
	Rand     func() float64
}

// Session is one editing session over one assembly. It is not safe for
// concurrent use; callers serialize access the same way they serialize
// the underlying assembly.
type Session struct {
	log      *zap.Logger
	settings *config.Config
	store    store.KV

	asm      *assembly.Assembly
	history  *command.Log
	gate     *tier.Gate
	gateCfg  tier.Config
	timeline *timeline.Timeline
	backups  *recovery.Manager
	advice   *suggest.Engine
	eval     *script.Evaluator
	calc     *yarn.Calculator
	docs     *instructions.Generator
	rb       *rebuilder

	subs  []Subscriber
	now   func() time.Time
	newID func() string
}

// New builds a session around a fresh assembly.
func New(cfg Config) *Session {
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	st := cfg.Store
	if st == nil {
		st = store.NewMemory()
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = func() string { return uuid.NewString() }
	}
	t := cfg.Tier
	if !t.Valid() {
		t = tier.Freemium
	}
	id := cfg.ID
	if id == "" {
		id = newID()
	}
	name := cfg.Name
	if name == "" {
		name = "untitled"
	}

	asm := assembly.New(id, name, t)
	asm.SetClock(now)

	gateCfg := tier.Config{
		Table:      settings.Tiers,
		Thresholds: settings.Billing,
		Payments:   cfg.Payments,
		Logger:     log.Named("tier"),
		Now:        now,
		NewID:      newID,
	}

	s := &Session{
		log:      log.Named("engine"),
		settings: settings,
		store:    st,
		asm:      asm,
		history:  command.NewLog(settings.History.MaxCommands, log.Named("history")),
		gate:     tier.New(t, gateCfg),
		gateCfg:  gateCfg,
		timeline: timeline.New(timeline.Config{
			IdleThreshold: settings.History.IdleThreshold(),
			GroupWindow:   settings.History.GroupWindow(),
			Milestones:    settings.History.Milestones,
			Now:           now,
			NewID:         newID,
		}),
		backups: recovery.NewManager(recovery.Config{
			Store:      st,
			Logger:     log.Named("recovery"),
			MaxBackups: settings.Backups.MaxBackups,
			MaxLog:     settings.Backups.MaxRecoveryLog,
			Now:        now,
			NewID:      newID,
		}),
		advice: suggest.NewEngine(suggest.Config{
			Logger:    log.Named("suggest"),
			CacheSize: settings.Suggestions.CacheSize,
			TTL:       settings.Suggestions.TTL(),
			Now:       now,
			Rand:      cfg.Rand,
		}),
		eval:  script.NewEvaluator(),
		calc:  yarn.NewCalculator(settings.Yarn),
		docs:  instructions.NewGenerator(instructions.Config{Now: now, NewID: newID}),
		now:   now,
		newID: newID,
	}
	s.rb = &rebuilder{s: s}
	return s
}

// Assembly exposes the live graph for reads. Mutations must go through
// the session or they bypass the log and the gate.
func (s *Session) Assembly() *assembly.Assembly { return s.asm }

// Timeline exposes the action timeline for queries and exports.
func (s *Session) Timeline() *timeline.Timeline { return s.timeline }

// Tier returns the session's current tier.
func (s *Session) Tier() tier.Tier { return s.gate.Tier() }

// commit versions and records a completed mutation, appends it to the
// timeline, and emits its events. Inside a batch the version freezes
// until the batch commits, so child commands carry the same version on
// both sides.
func (s *Session) commit(c *command.Command, e Event, pieceIDs []string) {
	if s.history.InBatch() {
		c.PrevVersion = s.asm.Version
		c.NextVersion = s.asm.Version
	} else {
		c.PrevVersion = s.asm.Version
		c.NextVersion = s.asm.BumpVersion()
	}
	s.history.Record(c)
	_, milestone := s.timeline.Append(string(c.Type), c.Description, pieceIDs)
	if e.Type != "" {
		s.emit(e)
	}
	if !s.history.InBatch() {
		s.emit(Event{Type: EventVersionBumped})
	}
	if milestone > 0 {
		s.emit(Event{Type: EventMilestoneReached, Detail: map[string]any{"count": milestone}})
	}
}
