package booking

import "github.com/warp/stay-engine/core"

// Booking state machine:
//
//	PENDING ──confirm payment──▶ CONFIRMED ──check-in──▶ CHECKED_IN ──check-out──▶ CHECKED_OUT
//	   │                            │
//	   └──cancel──▶ CANCELLED ◀──cancel
//	                                └──no-show──▶ NO_SHOW
//
// CHECKED_OUT, CANCELLED and NO_SHOW are terminal.
var transitions = map[core.BookingStatus][]core.BookingStatus{
	core.StatusPending:   {core.StatusConfirmed, core.StatusCancelled},
	core.StatusConfirmed: {core.StatusCheckedIn, core.StatusCancelled, core.StatusNoShow},
	core.StatusCheckedIn: {core.StatusCheckedOut},
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to core.BookingStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Editable reports whether edits and deletes are allowed.
func Editable(s core.BookingStatus) bool {
	return s == core.StatusPending || s == core.StatusConfirmed
}

// AcceptsCharges reports whether charges may be added or voided.
func AcceptsCharges(s core.BookingStatus) bool {
	return s == core.StatusPending || s == core.StatusConfirmed || s == core.StatusCheckedIn
}

// AcceptsPayments reports whether new payments may be recorded or confirmed.
// Money for cancelled and no-show bookings is handled out of band.
func AcceptsPayments(s core.BookingStatus) bool {
	return s != core.StatusCancelled && s != core.StatusNoShow
}
