package ride_test

import (
	"errors"
	"testing"

	"github.com/xraph/hail"
	"github.com/xraph/hail/ride"
)

func TestNext_LegalTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from  ride.Status
		event ride.Event
		want  ride.Status
	}{
		{ride.StatusCreated, ride.EventBroadcast, ride.StatusSent},
		{ride.StatusCreated, ride.EventClaim, ride.StatusLocked},
		{ride.StatusSent, ride.EventClaim, ride.StatusLocked},
		{ride.StatusSent, ride.EventBroadcast, ride.StatusSent},
		{ride.StatusLocked, ride.EventConfirm, ride.StatusAssigned},
		{ride.StatusLocked, ride.EventUnlock, ride.StatusSent},
		{ride.StatusAssigned, ride.EventAdvance, ride.StatusEnroute},
		{ride.StatusEnroute, ride.EventAdvance, ride.StatusArrived},
		{ride.StatusArrived, ride.EventAdvance, ride.StatusFinished},
		{ride.StatusFinished, ride.EventPayCommission, ride.StatusCommissionPaid},
		{ride.StatusCreated, ride.EventUndeliverable, ride.StatusUndeliverable},
		{ride.StatusUndeliverable, ride.EventBroadcast, ride.StatusSent},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.event), func(t *testing.T) {
			got, err := ride.Next(tt.from, tt.event)
			if err != nil {
				t.Fatalf("Next(%s, %s) error: %v", tt.from, tt.event, err)
			}
			if got != tt.want {
				t.Errorf("Next(%s, %s) = %s, want %s", tt.from, tt.event, got, tt.want)
			}
		})
	}
}

func TestNext_RejectsIllegalTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from  ride.Status
		event ride.Event
	}{
		{ride.StatusLocked, ride.EventClaim},   // already locked
		{ride.StatusAssigned, ride.EventClaim}, // already assigned
		{ride.StatusCreated, ride.EventAdvance},
		{ride.StatusSent, ride.EventConfirm},
		{ride.StatusFinished, ride.EventCancel}, // finished is not cancellable
		{ride.StatusCancelled, ride.EventClaim},
		{ride.StatusCancelled, ride.EventCancel},
		{ride.StatusCommissionPaid, ride.EventAdvance},
		{ride.StatusCommissionPaid, ride.EventCancel},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.event), func(t *testing.T) {
			_, err := ride.Next(tt.from, tt.event)
			if !errors.Is(err, hail.ErrInvalidTransition) {
				t.Errorf("Next(%s, %s) = %v, want ErrInvalidTransition", tt.from, tt.event, err)
			}
		})
	}
}

func TestCancellable_EveryNonTerminalStatus(t *testing.T) {
	t.Parallel()

	// Cancel is legal from every status except finished and the two
	// terminal ones.
	for _, s := range ride.All() {
		want := s != ride.StatusFinished &&
			s != ride.StatusCommissionPaid &&
			s != ride.StatusCancelled
		if got := ride.Cancellable(s); got != want {
			t.Errorf("Cancellable(%s) = %v, want %v", s, got, want)
		}
	}
}

func TestClaimedOrLater(t *testing.T) {
	t.Parallel()

	claimed := map[ride.Status]bool{
		ride.StatusLocked:         true,
		ride.StatusAssigned:       true,
		ride.StatusEnroute:        true,
		ride.StatusArrived:        true,
		ride.StatusFinished:       true,
		ride.StatusCommissionPaid: true,
	}

	for _, s := range ride.All() {
		if got := ride.ClaimedOrLater(s); got != claimed[s] {
			t.Errorf("ClaimedOrLater(%s) = %v, want %v", s, got, claimed[s])
		}
	}
}

func TestClaimableStatuses(t *testing.T) {
	t.Parallel()

	for _, s := range ride.ClaimableStatuses() {
		if !ride.Allowed(s, ride.EventClaim) {
			t.Errorf("claimable status %s does not accept claim", s)
		}
		if ride.ClaimedOrLater(s) {
			t.Errorf("claimable status %s already implies a claimant", s)
		}
	}
}

func TestValid_CoversExactlyTheEnum(t *testing.T) {
	t.Parallel()

	for _, s := range ride.All() {
		if !ride.Valid(s) {
			t.Errorf("Valid(%s) = false for enum member", s)
		}
	}
	if ride.Valid("limbo") {
		t.Error("Valid accepted a status outside the enum")
	}
}

func TestNewClaimToken_Unique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for range 100 {
		tok := ride.NewClaimToken()
		if len(tok) != 32 {
			t.Fatalf("token length = %d, want 32 hex chars", len(tok))
		}
		if seen[tok] {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = true
	}
}
