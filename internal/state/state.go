// Package state tracks the lifecycle of one asynchronous operation.
//
// A Slot moves idle -> loading -> success|error and may re-enter loading
// from any settled status. Every Begin hands out a generation token; a
// resolution carrying an older token is discarded so that the most recent
// invocation, not the most recent response, owns the slot.
package state

type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Policy decides whether a failure is shown to the user.
type Policy int

const (
	// Surface exposes the failure message to the user.
	Surface Policy = iota
	// Absorb records the failure but keeps it out of the user's view.
	Absorb
)

func (p Policy) String() string {
	if p == Absorb {
		return "absorb"
	}
	return "surface"
}

// RequestState is a point-in-time copy of a slot. Value is meaningful only
// when Status is success; Err only when Status is error.
type RequestState[T any] struct {
	Status     Status
	Value      T
	Err        string
	Policy     Policy
	Generation uint64
}

// Get returns the value and whether the slot holds one.
func (s RequestState[T]) Get() (T, bool) {
	return s.Value, s.Status == StatusSuccess
}

// Loading reports whether a request is in flight.
func (s RequestState[T]) Loading() bool {
	return s.Status == StatusLoading
}

// VisibleErr is the message a user should see, empty under Absorb.
func (s RequestState[T]) VisibleErr() string {
	if s.Status != StatusError || s.Policy == Absorb {
		return ""
	}
	return s.Err
}

// Slot is not safe for concurrent use; the owner serializes access.
type Slot[T any] struct {
	cur RequestState[T]
}

func NewSlot[T any](policy Policy) *Slot[T] {
	return &Slot[T]{cur: RequestState[T]{Status: StatusIdle, Policy: policy}}
}

// Begin moves the slot to loading, clears value and error, and returns the
// token the eventual resolution must present.
func (s *Slot[T]) Begin() uint64 {
	var zero T
	s.cur.Generation++
	s.cur.Status = StatusLoading
	s.cur.Value = zero
	s.cur.Err = ""
	return s.cur.Generation
}

// Current reports whether gen is still the newest invocation.
func (s *Slot[T]) Current(gen uint64) bool {
	return gen == s.cur.Generation
}

// Succeed settles the slot with v. It returns false and changes nothing when
// gen has been superseded.
func (s *Slot[T]) Succeed(gen uint64, v T) bool {
	if !s.Current(gen) {
		return false
	}
	s.cur.Status = StatusSuccess
	s.cur.Value = v
	s.cur.Err = ""
	return true
}

// Fail settles the slot with msg under the same staleness rule as Succeed.
func (s *Slot[T]) Fail(gen uint64, msg string) bool {
	if !s.Current(gen) {
		return false
	}
	var zero T
	s.cur.Status = StatusError
	s.cur.Value = zero
	s.cur.Err = msg
	return true
}

func (s *Slot[T]) State() RequestState[T] {
	return s.cur
}
