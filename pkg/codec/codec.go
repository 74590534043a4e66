// Package codec defines the canonical persisted form of an assembly and
// the round-trip between it and the live graph. Unknown top-level fields
// survive a load/save cycle verbatim, so newer files degrade gracefully
// through older builds.
package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Grimnirrrr/keratin/pkg/assembly"
	"github.com/Grimnirrrr/keratin/pkg/command"
	"github.com/Grimnirrrr/keratin/pkg/fault"
	"github.com/Grimnirrrr/keratin/pkg/safe"
	"github.com/Grimnirrrr/keratin/pkg/tier"
)

// FormatVersion is the newest file format this codec writes and reads.
// Files with a larger version are refused rather than silently mangled.
const FormatVersion = 1

// validate checks envelope-level structure on decode.
var validate = validator.New()

// RecoveryInfo annotates data that came back through the fallback chain.
type RecoveryInfo struct {
	Recovered     bool      `json:"recovered"`
	Timestamp     time.Time `json:"timestamp"`
	Attempts      int       `json:"attempts"`
	FinalStrategy string    `json:"finalStrategy"`
	Partial       bool      `json:"partial,omitempty"`
}

// Envelope is the persisted top-level document.
type Envelope struct {
	Version         int                    `json:"version" validate:"required,min=1"`
	Type            string                 `json:"type" validate:"required,eq=assembly"`
	ID              string                 `json:"id" validate:"required"`
	Name            string                 `json:"name"`
	Tier            tier.Tier              `json:"tier" validate:"required,oneof=freemium pro studio"`
	Pieces          []*assembly.Piece      `json:"pieces"`
	Connections     []*assembly.Connection `json:"connections"`
	Usage           *tier.Ledger           `json:"usage,omitempty"`
	History         []command.Record       `json:"history,omitempty"`
	Locked          []string               `json:"locked,omitempty"`
	AssemblyVersion int                    `json:"assemblyVersion"`
	MaxVersion      int                    `json:"maxVersion"`
	RecoveryInfo    *RecoveryInfo          `json:"recoveryInfo,omitempty"`

	// Extra carries unknown top-level fields through a load/save cycle.
	Extra map[string]json.RawMessage `json:"-"`
}

// envelopeKeys are the JSON keys the struct owns; everything else lands
// in Extra.
var envelopeKeys = []string{
	"version", "type", "id", "name", "tier", "pieces", "connections",
	"usage", "history", "locked", "assemblyVersion", "maxVersion",
	"recoveryInfo",
}

// envelopeAlias breaks the MarshalJSON/UnmarshalJSON recursion.
type envelopeAlias Envelope

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var a envelopeAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range envelopeKeys {
		delete(raw, k)
	}
	if len(raw) > 0 {
		a.Extra = raw
	}
	*e = Envelope(a)
	return nil
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(envelopeAlias(e))
	if err != nil {
		return nil, err
	}
	if len(e.Extra) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range e.Extra {
		if _, owned := merged[k]; !owned {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// Encode projects a live assembly into its persisted form. Command
// payloads are re-checked against the safe-value rules here so renderer
// objects can never reach disk.
func Encode(a *assembly.Assembly, usage *tier.Ledger, history []command.Record, info *RecoveryInfo) (*Envelope, error) {
	for _, r := range history {
		if r.Data != nil {
			if err := safe.Check(r.Data); err != nil {
				return nil, fault.Wrap(fault.UnsafeObjectRefused, err)
			}
		}
	}
	for _, p := range a.PieceList() {
		if p.Color != "" && !p.Color.Valid() {
			return nil, fault.New(fault.ValidationFailed,
				"piece %q has invalid color %q", p.ID, p.Color)
		}
	}
	return &Envelope{
		Version:         FormatVersion,
		Type:            "assembly",
		ID:              a.ID,
		Name:            a.Name,
		Tier:            a.Tier,
		Pieces:          a.PieceList(),
		Connections:     a.ConnectionList(),
		Usage:           usage,
		History:         history,
		Locked:          a.LockedIDs(),
		AssemblyVersion: a.Version,
		MaxVersion:      a.MaxVersion,
		RecoveryInfo:    info,
	}, nil
}

// Marshal serializes an envelope to canonical JSON.
func Marshal(env *Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

// Unmarshal parses and structurally validates an envelope. Newer format
// versions are refused with version_unsupported.
func Unmarshal(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fault.Wrap(fault.ValidationFailed, err)
	}
	if env.Version > FormatVersion {
		return nil, fault.New(fault.VersionUnsupported,
			"file format version %d exceeds supported %d", env.Version, FormatVersion)
	}
	if err := validate.Struct(&env); err != nil {
		return nil, fault.Wrap(fault.ValidationFailed, err)
	}
	return &env, nil
}

// Decode rebuilds a live assembly from an envelope. Connections re-run
// the full connection validation, so files describing an inconsistent
// graph are refused here; occupancy flags are recomputed rather than
// trusted. Usage and history are left for the caller, who owns the gate
// and the command log.
func Decode(env *Envelope) (*assembly.Assembly, error) {
	a := assembly.New(env.ID, env.Name, env.Tier)
	for _, p := range env.Pieces {
		if err := a.AddPiece(p); err != nil {
			return nil, err
		}
	}
	for _, c := range env.Connections {
		if err := a.RestoreConnection(c); err != nil {
			return nil, err
		}
	}
	for _, id := range env.Locked {
		if err := a.Lock(id); err != nil {
			return nil, err
		}
	}
	a.Version = env.AssemblyVersion
	a.MaxVersion = env.MaxVersion
	if a.MaxVersion < a.Version {
		a.MaxVersion = a.Version
	}
	return a, nil
}

// KeyAssembly is the storage key for an assembly's canonical record.
func KeyAssembly(id string) string { return "assembly_" + id }

// KeyBackup is the storage key for one safety snapshot. The zero-padded
// millisecond timestamp keeps backup keys sorted oldest-first.
func KeyBackup(id string, ts time.Time) string {
	return fmt.Sprintf("backup_%s_%013d", id, ts.UnixMilli())
}

// BackupPrefix scans all backups for one assembly.
func BackupPrefix(id string) string { return "backup_" + id + "_" }

// Backup is one safety snapshot as stored.
type Backup struct {
	OriginalID string    `json:"originalId"`
	Timestamp  time.Time `json:"timestamp"`
	Data       *Envelope `json:"data"`
	Version    int       `json:"version"`
	Reason     string    `json:"reason"`
}

// MarshalBackup serializes a backup record.
func MarshalBackup(b *Backup) ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal backup: %w", err)
	}
	return data, nil
}

// UnmarshalBackup parses a backup record.
func UnmarshalBackup(data []byte) (*Backup, error) {
	var b Backup
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fault.Wrap(fault.ValidationFailed, err)
	}
	if b.Data == nil {
		return nil, fault.New(fault.ValidationFailed, "backup record has no data")
	}
	return &b, nil
}
