package engine

import (
	"github.com/Grimnirrrr/keratin/pkg/fault"
	"github.com/Grimnirrrr/keratin/pkg/tier"
)

// CheckOperationLimit runs the tier gate read-only against the live
// counts, for pre-flight checks. It never mutates the ledger.
func (s *Session) CheckOperationLimit(op tier.Op) tier.Verdict {
	return s.gate.CheckOperation(op, s.currentFor(op))
}

// currentFor supplies the count the gate compares against a limit.
func (s *Session) currentFor(op tier.Op) int {
	switch op {
	case tier.OpAddPiece:
		return len(s.asm.Pieces)
	case tier.OpAddCustom:
		return s.asm.CustomCount()
	default:
		return 0
	}
}

// UsageStats reports the ledger joined with the live graph counts.
func (s *Session) UsageStats() tier.UsageStats {
	st := s.gate.Stats()
	st.PiecesUsed = len(s.asm.Pieces)
	st.CustomUsed = s.asm.CustomCount()
	return st
}

// TrackExtraPiece accrues one overage charge for a piece accepted past
// the quota and announces it.
func (s *Session) TrackExtraPiece(pieceID string) (tier.Transaction, error) {
	tx, err := s.gate.TrackExtraPiece(pieceID)
	if err != nil {
		return tx, err
	}
	s.emit(Event{
		Type:    EventOverageCharged,
		PieceID: pieceID,
		Detail: map[string]any{
			"cost":    tx.Cost,
			"pending": s.gate.Ledger().PendingCharges,
		},
	})
	return tx, nil
}

// ProcessManualPayment settles pending charges with a manual payment.
// Returns the amount actually covered.
func (s *Session) ProcessManualPayment(amount float64) (float64, error) {
	return s.gate.ProcessManualPayment(amount)
}

// ToggleAutoPay switches automatic settlement on or off.
func (s *Session) ToggleAutoPay(enabled bool) { s.gate.ToggleAutoPay(enabled) }

// SetPaymentMethod records whether a payment method is on file.
func (s *Session) SetPaymentMethod(has bool) { s.gate.SetPaymentMethod(has) }

// ResetPeriod archives the current billing period and opens the next.
func (s *Session) ResetPeriod() { s.gate.ResetPeriod() }

// BillingHistory returns the archived billing periods.
func (s *Session) BillingHistory() map[string]tier.PeriodRecord {
	return s.gate.BillingHistory()
}

// SetTier switches the session to another tier. A safety backup is
// taken first; the ledger carries over so pending charges survive the
// switch.
func (s *Session) SetTier(t tier.Tier) error {
	if !t.Valid() {
		return fault.New(fault.ValidationFailed, "unknown tier %q", t)
	}
	if t == s.gate.Tier() {
		return nil
	}
	if _, err := s.CreateSafetyBackup("tier_change"); err != nil {
		return err
	}
	g := tier.New(t, s.gateCfg)
	g.RestoreLedger(s.gate.Ledger())
	s.gate = g
	s.asm.Tier = t
	s.asm.BumpVersion()
	s.emit(Event{Type: EventVersionBumped})
	return nil
}
