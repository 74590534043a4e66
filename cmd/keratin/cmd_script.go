package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Grimnirrrr/keratin/pkg/codec"
	"github.com/Grimnirrrr/keratin/pkg/engine"
	"github.com/Grimnirrrr/keratin/pkg/recovery"
	"github.com/Grimnirrrr/keratin/pkg/store"
	"github.com/Grimnirrrr/keratin/pkg/tier"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// runScript evaluates a design script and writes the built assembly.
func runScript(cmd *cobra.Command, args []string) error {
	source, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	t := tier.Tier(scriptTier)
	if !t.Valid() {
		return fmt.Errorf("unknown tier %q (freemium|pro|studio)", scriptTier)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s := engine.New(engine.Config{
		Name:     fileStem(args[0]),
		Tier:     t,
		Settings: settings,
		Logger:   logger,
	})
	m, err := s.ImportScript(ctx, string(source))
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	logger.Info("script evaluated",
		zap.String("design", m.Name),
		zap.Int("pieces", len(m.Pieces)),
		zap.Int("joins", len(m.Joins)))

	data, err := s.ToSafeData()
	if err != nil {
		return err
	}
	if err := writeOutput(scriptOut, data); err != nil {
		return err
	}
	if scriptOut != "" {
		fmt.Printf("built %q: %d pieces, %d joins, wrote %s\n",
			s.Assembly().Name, len(m.Pieces), len(m.Joins), scriptOut)
	}
	return nil
}

// runRecover pushes the file through the recovery chain and writes the
// repaired assembly.
func runRecover(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	// Best-effort id sniff; a corrupt file falls back to the file name.
	var header struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(data, &header)
	id := header.ID
	if id == "" {
		id = fileStem(args[0])
	}

	st := store.NewMemory()
	if err := st.Set(codec.KeyAssembly(id), data); err != nil {
		return err
	}

	s := engine.New(engine.Config{
		ID:       id,
		Name:     fileStem(args[0]),
		Tier:     tier.Studio,
		Settings: settings,
		Store:    st,
		Logger:   logger,
	})
	res, err := s.Recover(recovery.Options{AllowCleanSlate: recoverCleanSlate})
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	a := s.Assembly()
	note := ""
	if res.Info.Partial {
		note = " (partial)"
	}
	fmt.Fprintf(os.Stderr, "recovered %q via %s after %d attempts%s: %d pieces, %d connections\n",
		a.Name, res.Info.FinalStrategy, res.Info.Attempts, note,
		len(a.Pieces), len(a.ConnectionList()))

	out, err := s.ToSafeData()
	if err != nil {
		return err
	}
	return writeOutput(recoverOut, out)
}
