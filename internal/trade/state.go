package trade

import "fmt"

// Status represents the state of a trade.
type Status string

const (
	StatusWaitingPayment Status = "WAITING_PAYMENT" // Created, seller funds locked
	StatusPaid           Status = "PAID"            // Buyer says fiat was sent
	StatusCompleted      Status = "COMPLETED"       // Locked funds went to the buyer
	StatusCancelled      Status = "CANCELLED"       // Locked funds went back to the seller
	StatusDisputed       Status = "DISPUTED"        // Waiting for an admin verdict
)

// Event is an input to the state machine.
type Event string

const (
	EventPay           Event = "pay"
	EventRelease       Event = "release"
	EventCancel        Event = "cancel"
	EventDispute       Event = "dispute"
	EventResolveBuyer  Event = "resolve_buyer"
	EventResolveSeller Event = "resolve_seller"
)

// Next returns the status reached by applying ev in from. Every pair not
// listed here is illegal.
func Next(from Status, ev Event) (Status, error) {
	switch from {
	case StatusWaitingPayment:
		switch ev {
		case EventPay:
			return StatusPaid, nil
		case EventCancel:
			return StatusCancelled, nil
		case EventDispute:
			return StatusDisputed, nil
		}
	case StatusPaid:
		switch ev {
		case EventRelease:
			return StatusCompleted, nil
		case EventDispute:
			return StatusDisputed, nil
		}
	case StatusDisputed:
		switch ev {
		case EventResolveBuyer:
			return StatusCompleted, nil
		case EventResolveSeller:
			return StatusCancelled, nil
		}
	case StatusCompleted, StatusCancelled:
	}
	return from, fmt.Errorf("%w: %s on %s", ErrInvalidStateTransition, ev, from)
}

// IsTerminal returns true if no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// HoldsEscrow reports whether a trade in this status still has the seller's
// funds locked.
func (s Status) HoldsEscrow() bool {
	switch s {
	case StatusWaitingPayment, StatusPaid, StatusDisputed:
		return true
	}
	return false
}
