package models

// Status is the lifecycle state of a discussion topic.
//
// Transitions form a DAG:
//
//	pending → discussing → concluded | error | cancelled
//
// Once a terminal status is reached the topic never changes status again.
type Status string

const (
	StatusPending    Status = "pending"
	StatusDiscussing Status = "discussing"
	StatusConcluded  Status = "concluded"
	StatusError      Status = "error"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the status is a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusConcluded, StatusError, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the DAG permits moving from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case StatusPending:
		// A topic that never started discussing may still be cancelled or errored
		// (e.g. shutdown before the driver ran its first step).
		return next == StatusDiscussing || next.Terminal()
	case StatusDiscussing:
		return next.Terminal()
	}
	return false
}
