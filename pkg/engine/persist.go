package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/Grimnirrrr/keratin/pkg/assembly"
	"github.com/Grimnirrrr/keratin/pkg/codec"
	"github.com/Grimnirrrr/keratin/pkg/command"
	"github.com/Grimnirrrr/keratin/pkg/fault"
	"github.com/Grimnirrrr/keratin/pkg/pattern"
	"github.com/Grimnirrrr/keratin/pkg/recovery"
	"github.com/Grimnirrrr/keratin/pkg/safe"
	"github.com/Grimnirrrr/keratin/pkg/script"
	"github.com/Grimnirrrr/keratin/pkg/tier"
)

// Save claims a save slot, takes a safety backup and writes the
// canonical record. The version does not change; saving is not a
// mutation.
func (s *Session) Save() error {
	if err := s.gate.ConsumeSave(); err != nil {
		s.emit(Event{
			Type:   EventTierViolation,
			Detail: map[string]any{"operation": string(tier.OpSave), "reason": err.Error()},
		})
		return err
	}
	if _, err := s.CreateSafetyBackup("save"); err != nil {
		s.log.Warn("pre-save backup failed", zap.Error(err))
	}
	data, err := s.encode()
	if err != nil {
		return err
	}
	if err := s.store.Set(codec.KeyAssembly(s.asm.ID), data); err != nil {
		return fault.Wrap(fault.Internal, err)
	}
	return nil
}

// ToSafeData serializes the session's full state to the versioned wire
// form.
func (s *Session) ToSafeData() ([]byte, error) {
	return s.encode()
}

func (s *Session) encode() ([]byte, error) {
	env, err := codec.Encode(s.asm, s.gate.Ledger(), s.history.Records(), nil)
	if err != nil {
		return nil, err
	}
	return codec.Marshal(env)
}

// FromSafeData replaces the session's state with a decoded envelope.
// The command log is rebuilt from the envelope's history, so undo works
// across the swap.
func (s *Session) FromSafeData(data []byte) error {
	env, err := codec.Unmarshal(data)
	if err != nil {
		return err
	}
	a, err := codec.Decode(env)
	if err != nil {
		return err
	}
	s.adopt(a, env.Usage, env.History)
	s.emit(Event{Type: EventVersionBumped})
	return nil
}

// adopt swaps the session onto a different assembly, gate and history.
func (s *Session) adopt(a *assembly.Assembly, usage *tier.Ledger, records []command.Record) {
	a.SetClock(s.now)
	s.asm = a
	g := tier.New(a.Tier, s.gateCfg)
	if usage != nil {
		g.RestoreLedger(usage)
	}
	s.gate = g
	s.history = command.NewLog(s.settings.History.MaxCommands, s.log.Named("history"))
	if err := s.history.Rebuild(records, s.rb); err != nil {
		s.log.Warn("history rebuild incomplete", zap.Error(err))
	}
}

// Load restores the session from storage, walking the recovery chain
// if the canonical record is missing or corrupt.
func (s *Session) Load() error {
	_, err := s.Recover(recovery.Options{})
	return err
}

// Recover runs the recovery chain for this assembly and adopts the
// result. Empty option fields are filled from the live session, so the
// in-memory history can rebuild state even when storage is gone.
func (s *Session) Recover(opts recovery.Options) (*recovery.Result, error) {
	if opts.History == nil {
		opts.History = s.history.Records()
	}
	if opts.Name == "" {
		opts.Name = s.asm.Name
	}
	if opts.Tier == "" {
		opts.Tier = s.gate.Tier()
	}
	res, err := s.backups.Recover(s.asm.ID, opts)
	if err != nil {
		return nil, err
	}
	s.adopt(res.Assembly, res.Usage, res.History)
	if res.BackupKey != "" {
		s.emit(Event{
			Type:   EventBackupCreated,
			Detail: map[string]any{"key": res.BackupKey, "reason": "recovery"},
		})
	}
	if res.Info.FinalStrategy != recovery.StrategyOriginal || res.Info.Attempts > 1 {
		s.emit(Event{
			Type: EventRecoveryPerformed,
			Detail: map[string]any{
				"strategy": res.Info.FinalStrategy,
				"attempts": res.Info.Attempts,
				"partial":  res.Info.Partial,
			},
		})
	}
	s.emit(Event{Type: EventVersionBumped})
	return res, nil
}

// CreateSafetyBackup snapshots the full session state into the backup
// ring.
func (s *Session) CreateSafetyBackup(reason string) (string, error) {
	key, err := s.backups.SaveBackup(s.asm, s.gate.Ledger(), s.history.Records(), reason)
	if err != nil {
		return "", err
	}
	s.emit(Event{
		Type:   EventBackupCreated,
		Detail: map[string]any{"key": key, "reason": reason},
	})
	return key, nil
}

// RecoveryStats summarizes past recovery runs.
func (s *Session) RecoveryStats() recovery.Stats {
	return s.backups.Stats()
}

// ClearRecoveryData deletes this assembly's backups and recovery log.
func (s *Session) ClearRecoveryData() error {
	return s.backups.ClearRecoveryData(s.asm.ID)
}

// ImportScript evaluates design source and replays the resulting
// manifest through the session's gated operations inside one batch, so
// the whole import is a single undo step. A safety backup is taken
// first. Script errors surface as a validation fault naming the first
// one.
func (s *Session) ImportScript(ctx context.Context, source string) (*script.Manifest, error) {
	m, errs, err := s.eval.Evaluate(source)
	if err != nil {
		return nil, fault.Wrap(fault.Internal, err)
	}
	if len(errs) > 0 {
		return nil, fault.New(fault.ValidationFailed, "script: %s", errs[0].Error())
	}
	if m.Tier != "" && m.Tier != s.gate.Tier() {
		if err := s.SetTier(m.Tier); err != nil {
			return nil, err
		}
	}
	if m.Name != "" {
		s.asm.Name = m.Name
	}
	if len(m.Pieces) == 0 {
		return m, nil
	}
	if _, err := s.CreateSafetyBackup("bulk_import"); err != nil {
		s.log.Warn("pre-import backup failed", zap.Error(err))
	}
	byName := make(map[string]string, len(m.Pieces))
	_, err = s.RunBatch(ctx, "import "+importName(m), func() error {
		for i := range m.Pieces {
			spec := &m.Pieces[i]
			added, err := s.AddPiece(s.pieceFromSpec(spec))
			if err != nil {
				return err
			}
			byName[spec.Name] = added.ID
		}
		for _, j := range m.Joins {
			if err := s.connectJoin(byName, j); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func importName(m *script.Manifest) string {
	if m.Name != "" {
		return m.Name
	}
	return "script"
}

// pieceFromSpec materializes one manifest piece.
func (s *Session) pieceFromSpec(spec *script.PieceSpec) *assembly.Piece {
	p := assembly.NewPiece(s.newID(), spec.Name, spec.Type)
	if spec.Color != "" {
		p.Color = safe.Color(spec.Color)
	}
	p.Position = spec.At
	if spec.Pattern != "" {
		p.Pattern = pattern.Parse(spec.Pattern)
	}
	p.Custom = spec.Custom
	p.Meta.Side = assembly.Side(spec.Side)
	for _, pt := range spec.Points {
		p.AddPoint(&assembly.ConnectionPoint{
			Name:       pt.Name,
			Position:   pt.At,
			Compatible: pt.Compatible,
			Type:       pt.Type,
			Size:       pt.Size,
		})
	}
	p.RefreshMeta()
	return p
}

// connectJoin resolves a manifest join's point names to ids and
// connects them.
func (s *Session) connectJoin(byName map[string]string, j script.JoinSpec) error {
	fromID, ok := byName[j.FromPiece]
	if !ok {
		return fault.New(fault.NotFound, "join references unknown piece %q", j.FromPiece)
	}
	toID, ok := byName[j.ToPiece]
	if !ok {
		return fault.New(fault.NotFound, "join references unknown piece %q", j.ToPiece)
	}
	from := s.asm.Piece(fromID).PointByName(j.FromPoint)
	if from == nil {
		return fault.New(fault.NotFound, "piece %q has no point %q", j.FromPiece, j.FromPoint)
	}
	to := s.asm.Piece(toID).PointByName(j.ToPoint)
	if to == nil {
		return fault.New(fault.NotFound, "piece %q has no point %q", j.ToPiece, j.ToPoint)
	}
	_, err := s.Connect(fromID, from.ID, toID, to.ID)
	return err
}
