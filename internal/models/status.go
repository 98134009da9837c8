package models

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusPickedUp  Status = "picked_up"
	StatusWashing   Status = "washing"
	StatusReady     Status = "ready"
	StatusDelivered Status = "delivered"
	StatusCompleted Status = "completed"
)

var lifecycle = []Status{
	StatusPending,
	StatusAccepted,
	StatusPickedUp,
	StatusWashing,
	StatusReady,
	StatusDelivered,
	StatusCompleted,
}

// Lifecycle returns the statuses in the only order a request may pass through them.
func Lifecycle() []Status {
	return append([]Status(nil), lifecycle...)
}

func (s Status) index() int {
	for i, st := range lifecycle {
		if st == s {
			return i
		}
	}
	return -1
}

func (s Status) Valid() bool {
	return s.index() >= 0
}

// Next reports the single legal successor of s. Completed and unknown statuses have none.
func (s Status) Next() (Status, bool) {
	i := s.index()
	if i < 0 || i == len(lifecycle)-1 {
		return "", false
	}
	return lifecycle[i+1], true
}

func (s Status) Terminal() bool {
	return s == StatusCompleted
}

// Accept claims a pending request for provider.
func (r *Request) Accept(provider User, now time.Time) error {
	if r.Status != StatusPending {
		return &InvalidTransitionError{RequestID: r.ID, From: r.Status, To: StatusAccepted}
	}
	p := provider.Clone()
	r.ProviderID = provider.ID
	r.Provider = &p
	r.Status = StatusAccepted
	r.LastStateChange = now
	return nil
}

// MoveTo fires the transition to target only when target is the direct successor of the
// current status. Accepting goes through Accept because it also assigns the provider.
func (r *Request) MoveTo(target Status, now time.Time) error {
	next, ok := r.Status.Next()
	if !ok || next != target || target == StatusAccepted {
		return &InvalidTransitionError{RequestID: r.ID, From: r.Status, To: target}
	}
	r.Status = target
	r.LastStateChange = now
	return nil
}
