package tier

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Grimnirrrr/keratin/pkg/fault"
)

// Op identifies a gated operation.
type Op string

const (
	OpAddPiece      Op = "add_piece"
	OpAddCustom     Op = "add_custom"
	OpSave          Op = "save"
	OpConnectCustom Op = "connect_custom"
)

// Verdict is the outcome of a read-only limit check.
type Verdict struct {
	Allowed bool       `json:"allowed"`
	Kind    fault.Kind `json:"kind,omitempty"`
	Detail  string     `json:"detail,omitempty"`
	Overage float64    `json:"overage,omitempty"`
}

func allowed() Verdict                 { return Verdict{Allowed: true} }
func overage(rate float64) Verdict     { return Verdict{Allowed: true, Overage: rate} }
func refused(k fault.Kind, detail string) Verdict {
	return Verdict{Kind: k, Detail: detail}
}

// PaymentPort submits a charge to an external payment processor. A nil
// return means the charge was accepted.
type PaymentPort interface {
	Charge(amount float64, period string) error
}

// UsageStats is a read-only snapshot of the gate's accounting. The gate
// does not see the graph, so PiecesUsed and CustomUsed are filled by the
// engine before the snapshot is handed out.
type UsageStats struct {
	Tier           Tier    `json:"tier"`
	MaxPieces      int     `json:"maxPieces"`
	PiecesUsed     int     `json:"piecesUsed"`
	MaxSaves       int     `json:"maxSaves"`
	SavesUsed      int     `json:"savesUsed"`
	CustomUsed     int     `json:"customUsed"`
	ExtraPieces    int     `json:"extraPieces"`
	PendingCharges float64 `json:"pendingCharges"`
	TotalCost      float64 `json:"totalCost"`
	Period         string  `json:"period"`
	AutoPayEnabled bool    `json:"autoPayEnabled"`
}

// Config carries the gate's collaborators. Zero-value fields fall back to
// defaults; a nil Payments port disables settlement.
type Config struct {
	Table      Table
	Thresholds Thresholds
	Payments   PaymentPort
	Logger     *zap.Logger
	Now        func() time.Time
	NewID      func() string
}

// Gate enforces one assembly's tier limits and owns its ledger.
type Gate struct {
	tier       Tier
	limits     Limits
	thresholds Thresholds
	ledger     *Ledger
	payments   PaymentPort
	log        *zap.Logger
	now        func() time.Time
	newID      func() string
	warned     bool
}

// New builds a gate for the given tier.
func New(t Tier, cfg Config) *Gate {
	table := cfg.Table
	if table == nil {
		table = DefaultTable()
	}
	th := cfg.Thresholds
	if th == (Thresholds{}) {
		th = DefaultThresholds()
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
	return &Gate{
		tier:       t,
		limits:     table[t],
		thresholds: th,
		ledger:     NewLedger(PeriodKey(now())),
		payments:   cfg.Payments,
		log:        log,
		now:        now,
		newID:      newID,
	}
}

// Tier returns the gate's tier.
func (g *Gate) Tier() Tier { return g.tier }

// Limits returns the active limits row.
func (g *Gate) Limits() Limits { return g.limits }

// Ledger exposes the live ledger for persistence.
func (g *Gate) Ledger() *Ledger { return g.ledger }

// RestoreLedger replaces the ledger wholesale, e.g. after loading.
func (g *Gate) RestoreLedger(l *Ledger) {
	if l == nil {
		return
	}
	if l.History == nil {
		l.History = make(map[string]PeriodRecord)
	}
	g.ledger = l
}

// CheckOperation performs the limit gate read-only. current is the count
// the operation would exceed: live pieces for OpAddPiece, custom pieces for
// OpAddCustom. Saves are counted on the ledger.
func (g *Gate) CheckOperation(op Op, current int) Verdict {
	switch op {
	case OpAddPiece:
		if current < g.limits.MaxPieces {
			return allowed()
		}
		if !g.limits.PayPerUse() {
			return refused(fault.TierLimitExceeded,
				fmt.Sprintf("%s tier allows %d pieces", g.tier, g.limits.MaxPieces))
		}
		return overage(g.limits.OverageRate)
	case OpAddCustom:
		if g.limits.MaxCustomPieces == 0 {
			return refused(fault.TierRestrictedCustomPiece,
				fmt.Sprintf("%s tier does not allow custom pieces", g.tier))
		}
		if g.limits.MaxCustomPieces != Unlimited && current >= g.limits.MaxCustomPieces {
			return refused(fault.TierLimitExceeded,
				fmt.Sprintf("%s tier allows %d custom pieces", g.tier, g.limits.MaxCustomPieces))
		}
		return allowed()
	case OpSave:
		if g.ledger.SavesUsed >= g.limits.MaxSaves {
			return refused(fault.SaveLimitExceeded,
				fmt.Sprintf("%s tier allows %d saves", g.tier, g.limits.MaxSaves))
		}
		return allowed()
	case OpConnectCustom:
		if g.tier == Freemium {
			return refused(fault.TierRestrictedCustomPiece,
				"freemium tier cannot connect custom pieces")
		}
		return allowed()
	}
	return refused(fault.Internal, fmt.Sprintf("unknown operation %q", op))
}

// ConsumeSave claims one save slot or refuses.
func (g *Gate) ConsumeSave() error {
	g.rolloverIfDue()
	if v := g.CheckOperation(OpSave, 0); !v.Allowed {
		return fault.New(v.Kind, "%s", v.Detail)
	}
	g.ledger.SavesUsed++
	return nil
}

// TrackExtraPiece accrues one pending overage transaction for a piece
// accepted beyond the quota, then applies the billing thresholds. The
// returned transaction is a copy of the appended record.
func (g *Gate) TrackExtraPiece(pieceID string) (Transaction, error) {
	g.rolloverIfDue()
	if !g.limits.PayPerUse() {
		return Transaction{}, fault.New(fault.TierLimitExceeded,
			"%s tier has no pay-per-use", g.tier)
	}
	tx := Transaction{
		ID:        g.newID(),
		Type:      "overage",
		PieceID:   pieceID,
		Cost:      roundCents(g.limits.OverageRate),
		Timestamp: g.now(),
		Period:    g.ledger.Period,
		Status:    TxPending,
	}
	g.ledger.append(tx)

	if !g.warned && g.ledger.PendingCharges >= g.thresholds.WarningLevel {
		g.warned = true
		g.log.Warn("pending charges crossed warning level",
			zap.Float64("pending", g.ledger.PendingCharges),
			zap.Float64("warningLevel", g.thresholds.WarningLevel))
	}
	if g.ledger.PendingCharges >= g.thresholds.AutoBillLevel &&
		g.ledger.AutoPayEnabled && g.ledger.HasPaymentMethod {
		if _, err := g.settle(g.ledger.PendingCharges); err != nil {
			g.log.Warn("automatic billing failed", zap.Error(err))
		}
	}
	return tx, nil
}

// ProcessManualPayment settles pending charges up to amount.
func (g *Gate) ProcessManualPayment(amount float64) (float64, error) {
	g.rolloverIfDue()
	if amount < g.thresholds.PaymentMinimum {
		return 0, fault.New(fault.PaymentBelowMinimum,
			"payment %.2f below minimum %.2f", amount, g.thresholds.PaymentMinimum)
	}
	if g.ledger.PendingCharges == 0 {
		return 0, nil
	}
	if amount > g.ledger.PendingCharges {
		amount = g.ledger.PendingCharges
	}
	return g.settle(amount)
}

// settle runs one charge through the payment port, flipping the covered
// transactions to paid or failed.
func (g *Gate) settle(amount float64) (float64, error) {
	if g.payments == nil {
		return 0, fault.New(fault.PaymentFailed, "no payment method configured")
	}
	if err := g.payments.Charge(amount, g.ledger.Period); err != nil {
		g.ledger.settle(amount, TxFailed)
		return 0, fault.Wrap(fault.PaymentFailed, err)
	}
	covered := g.ledger.settle(amount, TxPaid)
	g.ledger.LastBillingDate = g.now()
	if g.ledger.PendingCharges < g.thresholds.WarningLevel {
		g.warned = false
	}
	g.log.Info("charges settled",
		zap.Float64("amount", covered),
		zap.Float64("remaining", g.ledger.PendingCharges))
	return covered, nil
}

// ToggleAutoPay flips automatic settlement on or off.
func (g *Gate) ToggleAutoPay(enabled bool) { g.ledger.AutoPayEnabled = enabled }

// SetPaymentMethod records whether a payment method is on file.
func (g *Gate) SetPaymentMethod(has bool) { g.ledger.HasPaymentMethod = has }

// ResetPeriod archives the current period immediately.
func (g *Gate) ResetPeriod() { g.ledger.rollover(PeriodKey(g.now())) }

// rolloverIfDue archives the ledger when the billing month has changed.
func (g *Gate) rolloverIfDue() {
	if key := PeriodKey(g.now()); key != g.ledger.Period {
		g.log.Info("billing period rollover",
			zap.String("from", g.ledger.Period), zap.String("to", key))
		g.ledger.rollover(key)
	}
}

// Stats returns a usage snapshot.
func (g *Gate) Stats() UsageStats {
	return UsageStats{
		Tier:           g.tier,
		MaxPieces:      g.limits.MaxPieces,
		MaxSaves:       g.limits.MaxSaves,
		SavesUsed:      g.ledger.SavesUsed,
		ExtraPieces:    g.ledger.ExtraPieces,
		PendingCharges: g.ledger.PendingCharges,
		TotalCost:      g.ledger.TotalCost,
		Period:         g.ledger.Period,
		AutoPayEnabled: g.ledger.AutoPayEnabled,
	}
}

// BillingHistory returns the archived periods.
func (g *Gate) BillingHistory() map[string]PeriodRecord { return g.ledger.History }
