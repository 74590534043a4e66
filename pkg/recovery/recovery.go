// Package recovery restores assemblies from damaged persistence. A
// manager owns the safety-backup ring for each assembly and walks a
// fixed fallback chain on load: the canonical record, then the newest
// sound backup, then a history replay, then a piece-level salvage, and
// finally a clean slate when the caller permits one.
package recovery

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Grimnirrrr/keratin/pkg/assembly"
	"github.com/Grimnirrrr/keratin/pkg/codec"
	"github.com/Grimnirrrr/keratin/pkg/command"
	"github.com/Grimnirrrr/keratin/pkg/fault"
	"github.com/Grimnirrrr/keratin/pkg/safe"
	"github.com/Grimnirrrr/keratin/pkg/store"
	"github.com/Grimnirrrr/keratin/pkg/tier"
)

// Strategy names, in fallback order.
const (
	StrategyOriginal       = "original"
	StrategyAutoBackup     = "auto_backup"
	StrategyHistoryRebuild = "history_rebuild"
	StrategyPartial        = "partial_restore"
	StrategyCleanSlate     = "clean_slate"
)

const (
	// DefaultMaxBackups is the safety-backup ring size per assembly.
	DefaultMaxBackups = 5
	// DefaultMaxLog bounds the rolling recovery log.
	DefaultMaxLog = 100
)

// Options steer a single Recover call.
type Options struct {
	// SkipOriginal drops the canonical record from the chain, for
	// callers that already know it is bad.
	SkipOriginal bool
	// AllowCleanSlate permits the final empty-assembly fallback.
	AllowCleanSlate bool
	// History is the caller's live command log. When present it is
	// preferred over any log found in storage, so a running session
	// can rebuild even after its persisted records are gone.
	History []command.Record
	// Name and Tier seed rebuilt assemblies when no stored envelope
	// survives to supply them.
	Name string
	Tier tier.Tier
}

// Result is a successful recovery.
type Result struct {
	Assembly  *assembly.Assembly
	Usage     *tier.Ledger
	History   []command.Record
	Info      codec.RecoveryInfo
	BackupKey string
}

// LogEntry is one line of the rolling recovery log.
type LogEntry struct {
	AssemblyID string    `json:"assemblyId"`
	Timestamp  time.Time `json:"timestamp"`
	Strategy   string    `json:"strategy"`
	Attempts   int       `json:"attempts"`
	Success    bool      `json:"success"`
}

// Stats summarizes the rolling log.
type Stats struct {
	Total        int            `json:"total"`
	Successful   int            `json:"successful"`
	Failed       int            `json:"failed"`
	ByStrategy   map[string]int `json:"byStrategy"`
	LastRecovery time.Time      `json:"lastRecovery"`
	LastStrategy string         `json:"lastStrategy"`
}

// Config wires a Manager. Zero values fall back to an in-memory store,
// a no-op logger and the package defaults.
type Config struct {
	Store      store.KV
	Logger     *zap.Logger
	MaxBackups int
	MaxLog     int
	Now        func() time.Time
	NewID      func() string
}

// Manager owns backups and the recovery chain for one store.
type Manager struct {
	store      store.KV
	log        *zap.Logger
	maxBackups int
	maxLog     int
	now        func() time.Time
	newID      func() string

	entries []LogEntry
}

// NewManager builds a Manager from cfg.
func NewManager(cfg Config) *Manager {
	if cfg.Store == nil {
		cfg.Store = store.NewMemory()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = DefaultMaxBackups
	}
	if cfg.MaxLog <= 0 {
		cfg.MaxLog = DefaultMaxLog
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Manager{
		store:      cfg.Store,
		log:        cfg.Logger,
		maxBackups: cfg.MaxBackups,
		maxLog:     cfg.MaxLog,
		now:        cfg.Now,
		newID:      cfg.NewID,
	}
}

// SaveBackup snapshots a into the backup ring and prunes the ring to
// the configured size. It returns the storage key written.
func (m *Manager) SaveBackup(a *assembly.Assembly, usage *tier.Ledger, history []command.Record, reason string) (string, error) {
	env, err := codec.Encode(a, usage, history, nil)
	if err != nil {
		return "", err
	}
	b := &codec.Backup{
		OriginalID: a.ID,
		Timestamp:  m.now(),
		Data:       env,
		Version:    a.Version,
		Reason:     reason,
	}
	data, err := codec.MarshalBackup(b)
	if err != nil {
		return "", err
	}
	key := codec.KeyBackup(a.ID, b.Timestamp)
	if err := m.store.Set(key, data); err != nil {
		return "", err
	}
	if err := m.pruneBackups(a.ID); err != nil {
		m.log.Warn("backup prune failed", zap.String("assembly", a.ID), zap.Error(err))
	}
	m.log.Debug("backup written",
		zap.String("assembly", a.ID),
		zap.String("key", key),
		zap.String("reason", reason))
	return key, nil
}

func (m *Manager) pruneBackups(id string) error {
	keys, err := m.store.Keys(codec.BackupPrefix(id))
	if err != nil {
		return err
	}
	for len(keys) > m.maxBackups {
		if err := m.store.Delete(keys[0]); err != nil {
			return err
		}
		keys = keys[1:]
	}
	return nil
}

// Backups returns the stored backups for id, oldest first. Records that
// no longer parse are skipped.
func (m *Manager) Backups(id string) ([]*codec.Backup, error) {
	keys, err := m.store.Keys(codec.BackupPrefix(id))
	if err != nil {
		return nil, err
	}
	out := make([]*codec.Backup, 0, len(keys))
	for _, key := range keys {
		data, err := m.store.Get(key)
		if err != nil {
			continue
		}
		b, err := codec.UnmarshalBackup(data)
		if err != nil {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

type outcome struct {
	asm     *assembly.Assembly
	usage   *tier.Ledger
	history []command.Record
	partial bool
}

// Recover walks the fallback chain for id and returns the first result
// whose graph passes structural validation. Every recovery writes a
// fresh backup of the recovered state and a line in the rolling log.
func (m *Manager) Recover(id string, opts Options) (*Result, error) {
	chain := []struct {
		name string
		run  func(string, Options) (*outcome, error)
	}{
		{StrategyOriginal, m.fromOriginal},
		{StrategyAutoBackup, m.fromBackup},
		{StrategyHistoryRebuild, m.fromHistory},
		{StrategyPartial, m.fromPartial},
		{StrategyCleanSlate, m.cleanSlate},
	}

	attempts := 0
	for _, s := range chain {
		if s.name == StrategyOriginal && opts.SkipOriginal {
			continue
		}
		if s.name == StrategyCleanSlate && !opts.AllowCleanSlate {
			continue
		}
		attempts++
		out, err := s.run(id, opts)
		if err != nil {
			m.log.Debug("recovery strategy failed",
				zap.String("assembly", id),
				zap.String("strategy", s.name),
				zap.Error(err))
			continue
		}

		info := codec.RecoveryInfo{
			Recovered:     true,
			Timestamp:     m.now(),
			Attempts:      attempts,
			FinalStrategy: s.name,
			Partial:       out.partial,
		}
		key := m.backupRecovered(id, out, info)
		m.record(LogEntry{
			AssemblyID: id,
			Timestamp:  info.Timestamp,
			Strategy:   s.name,
			Attempts:   attempts,
			Success:    true,
		})
		m.log.Info("assembly recovered",
			zap.String("assembly", id),
			zap.String("strategy", s.name),
			zap.Int("attempts", attempts))
		return &Result{
			Assembly:  out.asm,
			Usage:     out.usage,
			History:   out.history,
			Info:      info,
			BackupKey: key,
		}, nil
	}

	m.record(LogEntry{
		AssemblyID: id,
		Timestamp:  m.now(),
		Attempts:   attempts,
		Success:    false,
	})
	return nil, fault.New(fault.RecoveryExhausted,
		"all %d recovery strategies failed for %q", attempts, id)
}

// backupRecovered persists the recovered state. Failure here is logged
// but does not fail the recovery itself.
func (m *Manager) backupRecovered(id string, out *outcome, info codec.RecoveryInfo) string {
	env, err := codec.Encode(out.asm, out.usage, out.history, &info)
	if err != nil {
		m.log.Warn("post-recovery encode failed", zap.String("assembly", id), zap.Error(err))
		return ""
	}
	b := &codec.Backup{
		OriginalID: id,
		Timestamp:  info.Timestamp,
		Data:       env,
		Version:    out.asm.Version,
		Reason:     "recovery",
	}
	data, err := codec.MarshalBackup(b)
	if err != nil {
		m.log.Warn("post-recovery backup failed", zap.String("assembly", id), zap.Error(err))
		return ""
	}
	key := codec.KeyBackup(id, b.Timestamp)
	if err := m.store.Set(key, data); err != nil {
		m.log.Warn("post-recovery backup failed", zap.String("assembly", id), zap.Error(err))
		return ""
	}
	if err := m.pruneBackups(id); err != nil {
		m.log.Warn("backup prune failed", zap.String("assembly", id), zap.Error(err))
	}
	return key
}

func ensureSound(a *assembly.Assembly) error {
	if res := assembly.Validate(a); !res.Valid() {
		return fault.New(fault.ValidationFailed,
			"recovered graph fails validation: %s", res.Errors[0].Message)
	}
	return nil
}

func (m *Manager) fromOriginal(id string, _ Options) (*outcome, error) {
	data, err := m.store.Get(codec.KeyAssembly(id))
	if err != nil {
		return nil, err
	}
	env, err := codec.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	a, err := codec.Decode(env)
	if err != nil {
		return nil, err
	}
	if err := ensureSound(a); err != nil {
		return nil, err
	}
	return &outcome{asm: a, usage: env.Usage, history: env.History}, nil
}

// fromBackup tries backups newest first and keeps the first whose graph
// decodes and validates.
func (m *Manager) fromBackup(id string, _ Options) (*outcome, error) {
	keys, err := m.store.Keys(codec.BackupPrefix(id))
	if err != nil {
		return nil, err
	}
	for i := len(keys) - 1; i >= 0; i-- {
		data, err := m.store.Get(keys[i])
		if err != nil {
			continue
		}
		b, err := codec.UnmarshalBackup(data)
		if err != nil {
			continue
		}
		a, err := codec.Decode(b.Data)
		if err != nil {
			continue
		}
		if err := ensureSound(a); err != nil {
			continue
		}
		return &outcome{asm: a, usage: b.Data.Usage, history: b.Data.History}, nil
	}
	return nil, fault.New(fault.NotFound, "no usable backup for %q", id)
}

// latestEnvelope returns the most recent envelope that still parses,
// regardless of whether its graph decodes.
func (m *Manager) latestEnvelope(id string, skipCanonical bool) (*codec.Envelope, error) {
	if !skipCanonical {
		if data, err := m.store.Get(codec.KeyAssembly(id)); err == nil {
			if env, err := codec.Unmarshal(data); err == nil {
				return env, nil
			}
		}
	}
	keys, err := m.store.Keys(codec.BackupPrefix(id))
	if err != nil {
		return nil, err
	}
	for i := len(keys) - 1; i >= 0; i-- {
		data, err := m.store.Get(keys[i])
		if err != nil {
			continue
		}
		b, err := codec.UnmarshalBackup(data)
		if err != nil || b.Data == nil {
			continue
		}
		return b.Data, nil
	}
	return nil, fault.New(fault.NotFound, "no parseable record for %q", id)
}

// fromHistory replays the newest surviving command log against an empty
// assembly, keeping only commands that still apply. The live log in
// opts wins over anything found in storage.
func (m *Manager) fromHistory(id string, opts Options) (*outcome, error) {
	history := opts.History
	name, t := opts.Name, opts.Tier
	var usage *tier.Ledger
	if env, err := m.latestEnvelope(id, opts.SkipOriginal); err == nil {
		if len(history) == 0 {
			history = env.History
		}
		if name == "" {
			name = env.Name
		}
		if !t.Valid() {
			t = env.Tier
		}
		usage = env.Usage
	}
	if len(history) == 0 {
		return nil, fault.New(fault.NotFound, "no command log for %q", id)
	}
	if !t.Valid() {
		t = tier.Freemium
	}
	a := assembly.New(id, name, t)

	var kept []command.Record
	maxVersion := 0
	for _, r := range history {
		if !applyRecord(a, r) {
			continue
		}
		kept = append(kept, r)
		if r.NextVersion > maxVersion {
			maxVersion = r.NextVersion
		}
	}
	if len(kept) == 0 {
		return nil, fault.New(fault.ValidationFailed, "no replayable commands for %q", id)
	}
	a.SetVersion(maxVersion)
	if err := ensureSound(a); err != nil {
		return nil, err
	}
	return &outcome{asm: a, usage: usage, history: kept}, nil
}

// fromPartial salvages individually valid pieces from the newest
// parseable envelope and drops every connection that no longer resolves.
func (m *Manager) fromPartial(id string, opts Options) (*outcome, error) {
	env, err := m.latestEnvelope(id, opts.SkipOriginal)
	if err != nil {
		return nil, err
	}
	t := env.Tier
	if !t.Valid() {
		t = tier.Freemium
	}
	a := assembly.New(id, env.Name, t)

	salvaged := 0
	for _, p := range env.Pieces {
		if p == nil || p.ID == "" {
			continue
		}
		if !p.Color.Valid() {
			p.Color = safe.Color("")
		}
		if err := a.AddPiece(p); err != nil {
			continue
		}
		salvaged++
	}
	if salvaged == 0 {
		return nil, fault.New(fault.NotFound, "no salvageable pieces for %q", id)
	}
	for _, c := range env.Connections {
		if c == nil {
			continue
		}
		if err := a.RestoreConnection(c); err != nil {
			continue
		}
	}
	a.SetVersion(env.AssemblyVersion)
	if err := ensureSound(a); err != nil {
		return nil, err
	}
	return &outcome{asm: a, usage: env.Usage, history: env.History, partial: true}, nil
}

// cleanSlate builds an empty assembly carrying a single synthetic
// history entry so the loss is visible in the log.
func (m *Manager) cleanSlate(id string, opts Options) (*outcome, error) {
	name, t := opts.Name, opts.Tier
	if env, err := m.latestEnvelope(id, opts.SkipOriginal); err == nil {
		if name == "" {
			name = env.Name
		}
		if !t.Valid() {
			t = env.Tier
		}
	}
	if name == "" {
		name = "Recovered"
	}
	if !t.Valid() {
		t = tier.Freemium
	}
	a := assembly.New(id, name, t)
	rec := command.Record{
		ID:          m.newID(),
		Type:        command.TypeRecovery,
		Description: "clean slate restore",
		Timestamp:   m.now(),
		Data:        map[string]any{"assemblyId": id},
	}
	return &outcome{asm: a, history: []command.Record{rec}}, nil
}

func (m *Manager) record(e LogEntry) {
	m.entries = append(m.entries, e)
	if len(m.entries) > m.maxLog {
		m.entries = m.entries[len(m.entries)-m.maxLog:]
	}
}

// Entries returns a copy of the rolling recovery log, oldest first.
func (m *Manager) Entries() []LogEntry {
	out := make([]LogEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Stats summarizes the rolling log.
func (m *Manager) Stats() Stats {
	s := Stats{ByStrategy: make(map[string]int)}
	for _, e := range m.entries {
		s.Total++
		if e.Success {
			s.Successful++
			s.ByStrategy[e.Strategy]++
			s.LastRecovery = e.Timestamp
			s.LastStrategy = e.Strategy
		} else {
			s.Failed++
		}
	}
	return s
}

// ClearRecoveryData deletes every backup for id and drops its log
// entries. The canonical record is untouched.
func (m *Manager) ClearRecoveryData(id string) error {
	keys, err := m.store.Keys(codec.BackupPrefix(id))
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := m.store.Delete(key); err != nil {
			return err
		}
	}
	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.AssemblyID != id {
			kept = append(kept, e)
		}
	}
	m.entries = kept
	return nil
}

// applyRecord replays one command structurally. It reports whether the
// record still resolved against the rebuilt assembly.
func applyRecord(a *assembly.Assembly, r command.Record) bool {
	switch r.Type {
	case command.TypeAddPiece:
		p, ok := pieceFromPayload(r.Data["piece"])
		if !ok {
			return false
		}
		return a.AddPiece(p) == nil
	case command.TypeRemovePiece:
		id, ok := stringField(r.Data, "pieceId")
		if !ok {
			return false
		}
		_, _, err := a.RemovePiece(id)
		return err == nil
	case command.TypeMovePiece:
		id, ok := stringField(r.Data, "pieceId")
		if !ok {
			return false
		}
		to, ok := vectorField(r.Data, "to")
		if !ok {
			return false
		}
		_, err := a.UpdatePiecePosition(id, to)
		return err == nil
	case command.TypeConnect:
		p1, ok1 := stringField(r.Data, "piece1")
		pt1, ok2 := stringField(r.Data, "point1")
		p2, ok3 := stringField(r.Data, "piece2")
		pt2, ok4 := stringField(r.Data, "point2")
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return false
		}
		_, err := a.Connect(p1, pt1, p2, pt2)
		return err == nil
	case command.TypeDisconnect:
		id, ok := stringField(r.Data, "connectionId")
		if !ok {
			return false
		}
		return a.Disconnect(id) == nil
	case command.TypeModifyPiece:
		id, ok := stringField(r.Data, "pieceId")
		if !ok {
			return false
		}
		mod, ok := modFromPayload(r.Data["changes"])
		if !ok {
			return false
		}
		_, err := a.ModifyPiece(id, mod)
		return err == nil
	case command.TypeBatch:
		applied := 0
		for _, child := range r.Children {
			if child == nil {
				continue
			}
			if applyRecord(a, *child) {
				applied++
			}
		}
		return applied > 0
	default:
		return false
	}
}

// pieceFromPayload rebuilds a piece from a command payload by passing
// it back through its JSON shape.
func pieceFromPayload(v any) (*assembly.Piece, bool) {
	if v == nil {
		return nil, false
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var p assembly.Piece
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false
	}
	if p.ID == "" {
		return nil, false
	}
	return &p, true
}

func modFromPayload(v any) (assembly.PieceMod, bool) {
	if v == nil {
		return assembly.PieceMod{}, false
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return assembly.PieceMod{}, false
	}
	var mod assembly.PieceMod
	if err := json.Unmarshal(raw, &mod); err != nil {
		return assembly.PieceMod{}, false
	}
	return mod, true
}

func stringField(data map[string]any, key string) (string, bool) {
	if data == nil {
		return "", false
	}
	s, ok := data[key].(string)
	return s, ok && s != ""
}

func vectorField(data map[string]any, key string) (safe.Vector, bool) {
	if data == nil || data[key] == nil {
		return safe.Vector{}, false
	}
	raw, err := json.Marshal(data[key])
	if err != nil {
		return safe.Vector{}, false
	}
	var v safe.Vector
	if err := json.Unmarshal(raw, &v); err != nil {
		return safe.Vector{}, false
	}
	return v, true
}
