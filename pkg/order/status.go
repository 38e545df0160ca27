package order

import (
	"database/sql/driver"
	"fmt"
)

// Status is the cross-chain lifecycle position of an order.
type Status string

const (
	StatusUnmatched                  Status = "unmatched"
	StatusSourceFilled               Status = "source_filled"
	StatusDestinationFilled          Status = "destination_filled"
	StatusFinalityConfirmed          Status = "finality_confirmed"
	StatusSourceWithdrawPending      Status = "source_withdraw_pending"
	StatusDestinationWithdrawPending Status = "destination_withdraw_pending"
	StatusSourceSettled              Status = "source_settled"
	StatusDestinationSettled         Status = "destination_settled"
	StatusFulfilled                  Status = "fulfilled"

	StatusExpired             Status = "expired"
	StatusSourceRefunded      Status = "source_refunded"
	StatusDestinationRefunded Status = "destination_refunded"
	StatusSourceCanceled      Status = "source_canceled"
	StatusDestinationCanceled Status = "destination_canceled"
)

var allStatuses = []Status{
	StatusUnmatched,
	StatusSourceFilled,
	StatusDestinationFilled,
	StatusFinalityConfirmed,
	StatusSourceWithdrawPending,
	StatusDestinationWithdrawPending,
	StatusSourceSettled,
	StatusDestinationSettled,
	StatusFulfilled,
	StatusExpired,
	StatusSourceRefunded,
	StatusDestinationRefunded,
	StatusSourceCanceled,
	StatusDestinationCanceled,
}

// failureStatuses are reachable from every non-terminal status.
var failureStatuses = []Status{
	StatusExpired,
	StatusSourceRefunded,
	StatusDestinationRefunded,
	StatusSourceCanceled,
	StatusDestinationCanceled,
}

// forward lists the successful-path edges of the status lattice.
var forward = map[Status][]Status{
	StatusUnmatched:    {StatusSourceFilled},
	StatusSourceFilled: {StatusDestinationFilled},
	StatusDestinationFilled: {
		StatusFinalityConfirmed,
		StatusSourceWithdrawPending,
		StatusDestinationWithdrawPending,
		StatusSourceSettled,
		StatusDestinationSettled,
	},
	StatusFinalityConfirmed: {
		StatusSourceWithdrawPending,
		StatusDestinationWithdrawPending,
		StatusSourceSettled,
		StatusDestinationSettled,
	},
	StatusSourceWithdrawPending:      {StatusSourceSettled, StatusFulfilled},
	StatusSourceSettled:              {StatusDestinationWithdrawPending, StatusFulfilled},
	StatusDestinationWithdrawPending: {StatusDestinationSettled, StatusFulfilled},
	StatusDestinationSettled:         {StatusFulfilled},
}

// AllStatuses returns every status in lattice order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts s into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", fmt.Errorf("unknown order status %q", s)
	}
	return st, nil
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	for _, st := range allStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusFulfilled || s.IsFailure()
}

// IsFailure reports whether s is one of the off-path terminal states.
func (s Status) IsFailure() bool {
	for _, st := range failureStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// Next returns the statuses s may legally move to.
func (s Status) Next() []Status {
	if s.IsTerminal() || !s.IsValid() {
		return nil
	}
	next := append([]Status(nil), forward[s]...)
	return append(next, failureStatuses...)
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	for _, st := range from.Next() {
		if st == to {
			return true
		}
	}
	return false
}

// Value implements driver.Valuer.
func (s Status) Value() (driver.Value, error) {
	return string(s), nil
}

// Scan implements sql.Scanner.
func (s *Status) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("cannot scan %T into order status", src)
	}
	st, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// UnmarshalText rejects unknown statuses at decode time.
func (s *Status) UnmarshalText(text []byte) error {
	st, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = st
	return nil
}
