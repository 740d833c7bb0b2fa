// Package action defines the lifecycle every multi-frame behavior follows:
// a Start call, zero or more Step calls while ongoing, and exactly one End
// call once a terminal status is reached. The Slot type drives an action
// through that lifecycle and enforces its ordering invariants.
package action

// Status is the outcome state of an action. Ongoing is the only non-terminal
// value; once an action reaches any other status it never changes again.
type Status int

// The closed status set.
const (
	Ongoing Status = iota
	Success
	Failure
	FailedToMove
	FailedToTurn
	Collision
	Tipping
	CannotReach
	FailedToReach
	FailedToGrasp
	NotHolding
	FailedToBend
	ClampedCameraRotation
	HeldByOther
	CannotResetPosition
)

var statusNames = map[Status]string{
	Ongoing:               "ongoing",
	Success:               "success",
	Failure:               "failure",
	FailedToMove:          "failed_to_move",
	FailedToTurn:          "failed_to_turn",
	Collision:             "collision",
	Tipping:               "tipping",
	CannotReach:           "cannot_reach",
	FailedToReach:         "failed_to_reach",
	FailedToGrasp:         "failed_to_grasp",
	NotHolding:            "not_holding",
	FailedToBend:          "failed_to_bend",
	ClampedCameraRotation: "clamped_camera_rotation",
	HeldByOther:           "held_by_other",
	CannotResetPosition:   "cannot_reset_position",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether the status ends an action.
func (s Status) Terminal() bool { return s != Ongoing }

// Recoverable reports whether retrying after this status can help without
// changing parameters. CannotReach and NotHolding are structural: the same
// call will fail the same way every time.
func (s Status) Recoverable() bool {
	switch s {
	case CannotReach, NotHolding, HeldByOther, CannotResetPosition:
		return false
	}
	return true
}
