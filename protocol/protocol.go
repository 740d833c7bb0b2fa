// Package protocol defines the wire model exchanged with the external physics
// engine: outbound directives and the inbound per-frame telemetry snapshot.
// Messages are JSON, tagged unions keyed on a type field.
package protocol

import "github.com/golang/geo/r3"

// DirectiveType discriminates the outbound command union.
type DirectiveType string

// The closed set of directive types the engine accepts.
const (
	DirectiveJointTarget  DirectiveType = "set_joint_target"
	DirectiveWheelTarget  DirectiveType = "set_wheel_target"
	DirectiveStopAt       DirectiveType = "stop_at_current"
	DirectiveAttach       DirectiveType = "attach"
	DirectiveDetach       DirectiveType = "detach"
	DirectiveTeleport     DirectiveType = "teleport"
	DirectiveRaycast      DirectiveType = "raycast"
	DirectiveSetImmovable DirectiveType = "set_immovable"
	DirectiveCameraRotate DirectiveType = "rotate_camera"
)

// Directive is one outbound low-level command. Exactly the fields relevant to
// its Type are populated; the rest are zero and omitted on the wire.
type Directive struct {
	Type DirectiveType `json:"type"`

	// Joint or wheel commands.
	JointID int       `json:"joint_id,omitempty"`
	Target  []float64 `json:"target,omitempty"` // 1 value for revolute/prismatic, 3 for spherical

	// Attach/detach.
	MagnetID int `json:"magnet_id,omitempty"`
	ObjectID int `json:"object_id,omitempty"`

	// Teleport.
	Position *r3.Vector `json:"position,omitempty"`
	YawDeg   float64    `json:"yaw_deg,omitempty"`

	// Raycast probe; answered in the next frame's telemetry.
	RayFrom *r3.Vector `json:"ray_from,omitempty"`
	RayTo   *r3.Vector `json:"ray_to,omitempty"`

	// Base mobility toggle.
	Immovable bool `json:"immovable,omitempty"`

	// Camera rotation, degrees per axis.
	CameraPitch float64 `json:"camera_pitch,omitempty"`
	CameraYaw   float64 `json:"camera_yaw,omitempty"`
	CameraRoll  float64 `json:"camera_roll,omitempty"`
}

// JointTarget builds a joint target directive.
func JointTarget(jointID int, target ...float64) Directive {
	return Directive{Type: DirectiveJointTarget, JointID: jointID, Target: target}
}

// WheelTarget builds a wheel spin target directive, in degrees of rotation.
func WheelTarget(wheelID int, angleDeg float64) Directive {
	return Directive{Type: DirectiveWheelTarget, JointID: wheelID, Target: []float64{angleDeg}}
}

// StopAtCurrent tells the engine to hold a joint or wheel at its present
// angle, canceling any in-flight target.
func StopAtCurrent(jointID int) Directive {
	return Directive{Type: DirectiveStopAt, JointID: jointID}
}

// Attach parents an object to a magnet.
func Attach(magnetID, objectID int) Directive {
	return Directive{Type: DirectiveAttach, MagnetID: magnetID, ObjectID: objectID}
}

// Detach releases an object from a magnet.
func Detach(magnetID, objectID int) Directive {
	return Directive{Type: DirectiveDetach, MagnetID: magnetID, ObjectID: objectID}
}

// Teleport moves the agent root without physics.
func Teleport(position r3.Vector, yawDeg float64) Directive {
	p := position
	return Directive{Type: DirectiveTeleport, Position: &p, YawDeg: yawDeg}
}

// Raycast requests a line-of-sight probe between two world points.
func Raycast(from, to r3.Vector) Directive {
	f, t := from, to
	return Directive{Type: DirectiveRaycast, RayFrom: &f, RayTo: &t}
}

// SetImmovable locks or unlocks the agent base in place.
func SetImmovable(immovable bool) Directive {
	return Directive{Type: DirectiveSetImmovable, Immovable: immovable}
}

// RotateCamera rotates the sensor camera by the given per-axis deltas.
func RotateCamera(pitch, yaw, roll float64) Directive {
	return Directive{Type: DirectiveCameraRotate, CameraPitch: pitch, CameraYaw: yaw, CameraRoll: roll}
}

// CollisionCategory classifies what a body part collided with.
type CollisionCategory string

// Collision categories reported by the engine.
const (
	CollisionSelf        CollisionCategory = "self"
	CollisionOtherAgent  CollisionCategory = "agent"
	CollisionEnvironment CollisionCategory = "environment"
)

// CollisionEvent is one contact reported since the previous frame.
type CollisionEvent struct {
	BodyPartID int               `json:"body_part_id"`
	OtherID    int               `json:"other_id"`
	Category   CollisionCategory `json:"category"`
	IsWall     bool              `json:"is_wall,omitempty"`
	IsFloor    bool              `json:"is_floor,omitempty"`
}

// JointTelemetry is the per-frame reading for one joint or wheel.
type JointTelemetry struct {
	JointID int       `json:"joint_id"`
	Angles  []float64 `json:"angles"` // degrees; 1 or 3 entries matching drive DOF
	Eff     r3.Vector `json:"position"`
}

// ObjectTelemetry describes one scene object the engine considers nearby.
type ObjectTelemetry struct {
	ObjectID int       `json:"object_id"`
	Position r3.Vector `json:"position"`
	Centroid r3.Vector `json:"centroid"`
	Extents  r3.Vector `json:"extents"` // half-size per axis
	Mass     float64   `json:"mass"`
	Velocity r3.Vector `json:"velocity"`
	HeldBy   []int     `json:"held_by,omitempty"` // magnet ids, possibly other agents'
}

// RaycastResult answers a Raycast directive from the prior frame.
type RaycastResult struct {
	Hit      bool      `json:"hit"`
	ObjectID int       `json:"object_id,omitempty"`
	Point    r3.Vector `json:"point"`
}

// Telemetry is the full inbound snapshot for one frame.
type Telemetry struct {
	Frame    uint64    `json:"frame"`
	Position r3.Vector `json:"position"`
	YawDeg   float64   `json:"yaw_deg"`
	Up       r3.Vector `json:"up"`

	Joints     []JointTelemetry  `json:"joints"`
	Magnets    map[int]r3.Vector `json:"magnets"` // magnet id -> world position
	Held       map[int][]int     `json:"held"`    // magnet id -> attached object ids
	Collisions []CollisionEvent  `json:"collisions"`
	Objects    []ObjectTelemetry `json:"objects"`
	Raycasts   []RaycastResult   `json:"raycasts,omitempty"`
	Camera     CameraTelemetry   `json:"camera"`
}

// CameraTelemetry reports the camera's accumulated rotation per axis.
type CameraTelemetry struct {
	PitchDeg float64 `json:"pitch_deg"`
	YawDeg   float64 `json:"yaw_deg"`
	RollDeg  float64 `json:"roll_deg"`
}

// Object returns the telemetry entry for an object id, if present.
func (t *Telemetry) Object(objectID int) (ObjectTelemetry, bool) {
	for _, o := range t.Objects {
		if o.ObjectID == objectID {
			return o, true
		}
	}
	return ObjectTelemetry{}, false
}

// Joint returns the telemetry entry for a joint id, if present.
func (t *Telemetry) Joint(jointID int) (JointTelemetry, bool) {
	for _, j := range t.Joints {
		if j.JointID == jointID {
			return j, true
		}
	}
	return JointTelemetry{}, false
}
