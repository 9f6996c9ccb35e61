package economy

import (
	"fmt"
	"log/slog"
)

// Loan is one entry of the bank's loan ledger.
type Loan struct {
	Borrower  *Household
	Weeks     int
	Principal float64
}

// Deposit is one entry of the bank's deposit ledger. There is at most one per household.
type Deposit struct {
	Holder   AgentID
	Balance  float64
	OpenedAt uint64
}

// Default records a loan the borrower could not fully repay. The bank absorbs the shortfall.
type Default struct {
	Tick      uint64
	Borrower  AgentID
	Owed      float64
	Recovered float64
	Shortfall float64
}

// Entry is a notable, non-fatal occurrence recorded while stepping.
type Entry struct {
	Tick        uint64 `json:"tick"`
	Category    string `json:"category"` // "default", "housing", "labor"
	Description string `json:"description"`
}

// Journal collects entries until the scheduler drains them.
type Journal struct {
	entries []Entry
}

// Record appends an entry and mirrors it to the log.
func (j *Journal) Record(tick uint64, category, format string, args ...any) {
	e := Entry{Tick: tick, Category: category, Description: fmt.Sprintf(format, args...)}
	if j != nil {
		j.entries = append(j.entries, e)
	}
	slog.Debug("journal", "tick", tick, "category", category, "description", e.Description)
}

// Drain returns and clears the pending entries.
func (j *Journal) Drain() []Entry {
	if j == nil {
		return nil
	}
	out := j.entries
	j.entries = nil
	return out
}
