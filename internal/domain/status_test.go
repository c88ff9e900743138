package domain

import "testing"

func TestCanTransition_FullMatrix(t *testing.T) {
	t.Parallel()

	legal := map[Status]map[Status]bool{
		StatusActive:    {StatusInactive: true, StatusSuspended: true, StatusPending: true},
		StatusInactive:  {StatusActive: true, StatusSuspended: true, StatusPending: true},
		StatusSuspended: {StatusActive: true, StatusInactive: true, StatusPending: true},
		StatusExpired:   {StatusActive: true, StatusPending: true},
		StatusPending:   {StatusActive: true, StatusInactive: true, StatusSuspended: true},
	}

	for _, from := range Statuses {
		for _, to := range Statuses {
			want := legal[from][to]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s)=%v, want %v", from, to, got, want)
			}
		}
	}
}

func TestCanTransition_SelfTransitionsIllegal(t *testing.T) {
	t.Parallel()

	for _, s := range Statuses {
		if CanTransition(s, s) {
			t.Errorf("CanTransition(%s, %s)=true, want false", s, s)
		}
	}
}

func TestAllowedTransitions_ExpiredCannotSuspend(t *testing.T) {
	t.Parallel()

	if AllowedTransitions(StatusExpired)[StatusSuspended] {
		t.Fatalf("expired->suspended must be illegal")
	}
}

func TestAllowedTransitions_ReturnsCopy(t *testing.T) {
	t.Parallel()

	a := AllowedTransitions(StatusActive)
	a[StatusExpired] = true
	if AllowedTransitions(StatusActive)[StatusExpired] {
		t.Fatalf("mutating the returned set must not affect the table")
	}
}

func TestRequiresConfirmation(t *testing.T) {
	t.Parallel()

	for _, from := range Statuses {
		for _, to := range Statuses {
			if !CanTransition(from, to) {
				if RequiresConfirmation(from, to) {
					t.Errorf("RequiresConfirmation(%s, %s)=true for illegal transition", from, to)
				}
				continue
			}
			want := to == StatusSuspended
			if got := RequiresConfirmation(from, to); got != want {
				t.Errorf("RequiresConfirmation(%s, %s)=%v, want %v", from, to, got, want)
			}
		}
	}
}
