package tier

import (
	"math"
	"time"
)

// TxStatus is the settlement state of a transaction.
type TxStatus string

const (
	TxPending TxStatus = "pending"
	TxPaid    TxStatus = "paid"
	TxFailed  TxStatus = "failed"
)

// Transaction is one append-only overage charge.
type Transaction struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	PieceID   string    `json:"pieceId,omitempty"`
	Cost      float64   `json:"cost"`
	Timestamp time.Time `json:"timestamp"`
	Period    string    `json:"period"`
	Status    TxStatus  `json:"status"`
}

// PeriodRecord is an archived billing period.
type PeriodRecord struct {
	Pieces       int           `json:"pieces"`
	Cost         float64       `json:"cost"`
	Transactions []Transaction `json:"transactions"`
}

// Ledger is the per-assembly usage and billing state. Transactions are
// append-only; period rollover archives them under their period key.
// Unsettled charges carry forward across periods.
type Ledger struct {
	ExtraPieces      int                     `json:"extraPieces"`
	TotalCost        float64                 `json:"totalCost"`
	PendingCharges   float64                 `json:"pendingCharges"`
	Transactions     []Transaction           `json:"transactions"`
	SavesUsed        int                     `json:"savesUsed"`
	CustomPieces     int                     `json:"customPieces"`
	Period           string                  `json:"currentBillingPeriod"`
	LastBillingDate  time.Time               `json:"lastBillingDate"`
	AutoPayEnabled   bool                    `json:"autoPayEnabled"`
	HasPaymentMethod bool                    `json:"hasPaymentMethod"`
	History          map[string]PeriodRecord `json:"history,omitempty"`
}

// NewLedger returns an empty ledger opened on the given period.
func NewLedger(period string) *Ledger {
	return &Ledger{Period: period, History: make(map[string]PeriodRecord)}
}

// roundCents rounds a dollar amount to whole cents.
func roundCents(x float64) float64 { return math.Round(x*100) / 100 }

// unpaid returns the sum of transactions not yet settled.
func (l *Ledger) unpaid() float64 {
	sum := 0.0
	for _, tx := range l.Transactions {
		if tx.Status != TxPaid {
			sum += tx.Cost
		}
	}
	return roundCents(sum)
}

// append records a fresh pending transaction and updates the totals.
func (l *Ledger) append(tx Transaction) {
	l.Transactions = append(l.Transactions, tx)
	l.ExtraPieces++
	l.TotalCost = roundCents(l.TotalCost + tx.Cost)
	l.PendingCharges = l.unpaid()
}

// settle flips unsettled transactions whose cumulative cost fits within
// amount to the given terminal status, oldest first, and recomputes
// PendingCharges. It returns the amount actually covered.
func (l *Ledger) settle(amount float64, status TxStatus) float64 {
	covered := 0.0
	for i := range l.Transactions {
		tx := &l.Transactions[i]
		if tx.Status == TxPaid {
			continue
		}
		if roundCents(covered+tx.Cost) > roundCents(amount) {
			break
		}
		covered = roundCents(covered + tx.Cost)
		tx.Status = status
	}
	l.PendingCharges = l.unpaid()
	return covered
}

// rollover archives the current period under its key and opens a new one.
// Unsettled transactions move into the new period so debt survives.
func (l *Ledger) rollover(period string) {
	if l.History == nil {
		l.History = make(map[string]PeriodRecord)
	}
	var settled, carried []Transaction
	for _, tx := range l.Transactions {
		if tx.Status == TxPaid {
			settled = append(settled, tx)
		} else {
			carried = append(carried, tx)
		}
	}
	// Merge so a second rollover within the same period cannot clobber
	// an earlier archive.
	rec := l.History[l.Period]
	rec.Pieces += l.ExtraPieces
	rec.Cost = roundCents(rec.Cost + l.TotalCost)
	rec.Transactions = append(rec.Transactions, settled...)
	l.History[l.Period] = rec
	l.Period = period
	l.ExtraPieces = 0
	l.TotalCost = 0
	l.Transactions = carried
	l.PendingCharges = l.unpaid()
}
