// Package bodyframe models the agent's body: the static joint topology of the
// wheeled base and its two arms, and the per-frame dynamic state derived from
// engine telemetry.
package bodyframe

import "github.com/golang/geo/r3"

// Arm identifies one of the two manipulator arms.
type Arm string

// The two arms.
const (
	LeftArm  Arm = "left"
	RightArm Arm = "right"
)

// Opposite returns the other arm.
func (a Arm) Opposite() Arm {
	if a == LeftArm {
		return RightArm
	}
	return LeftArm
}

// JointStatic is the immutable description of one joint, wheel, or magnet
// attachment point. Built once at agent construction and never mutated.
type JointStatic struct {
	ID   int
	Name string
	Mass float64
	// DOF is 1 for revolute and prismatic drives, 3 for spherical.
	DOF int
	// Neutral is the joint's home target, one entry per DOF. Degrees for
	// revolute/spherical, meters for prismatic.
	Neutral []float64
}

// Well-known joint ids. The engine uses the same numbering.
const (
	JointColumn = 1 // column rotation, revolute
	JointTorso  = 2 // torso slide, prismatic

	JointLeftShoulder = 10 // spherical
	JointLeftElbow    = 11 // revolute
	JointLeftWrist    = 12 // spherical
	MagnetLeft        = 13

	JointRightShoulder = 20
	JointRightElbow    = 21
	JointRightWrist    = 22
	MagnetRight        = 23

	WheelFrontLeft  = 30
	WheelFrontRight = 31
	WheelBackLeft   = 32
	WheelBackRight  = 33
)

// Physical dimensions of the kinematic chain, in meters. The orientation
// solution table's geometry fingerprint is derived from these.
const (
	UpperArmLength = 0.235
	ForearmLength  = 0.235
	HandLength     = 0.076

	TorsoMinHeight     = 0.21
	TorsoMaxHeight     = 1.07
	TorsoNeutralHeight = 0.737

	// ShoulderHalfSpan is the lateral offset of each shoulder from the
	// torso centerline; negative X for the left arm.
	ShoulderHalfSpan = 0.215

	WheelRadius = 0.1
	TrackWidth  = 0.39
)

// Topology is the full static body description for one agent.
type Topology struct {
	Column JointStatic
	Torso  JointStatic
	Arms   map[Arm]ArmChain
	Wheels []JointStatic
}

// ArmChain is the ordered joint chain of one arm, shoulder to magnet.
type ArmChain struct {
	Arm      Arm
	Shoulder JointStatic
	Elbow    JointStatic
	Wrist    JointStatic
	MagnetID int
}

// Joints returns the chain's articulated joints in drive order.
func (c ArmChain) Joints() []JointStatic {
	return []JointStatic{c.Shoulder, c.Elbow, c.Wrist}
}

// NewTopology constructs the standard dual-arm body.
func NewTopology() *Topology {
	leftChain := ArmChain{
		Arm:      LeftArm,
		Shoulder: JointStatic{ID: JointLeftShoulder, Name: "shoulder_left", Mass: 4.0, DOF: 3, Neutral: []float64{0, 0, 0}},
		Elbow:    JointStatic{ID: JointLeftElbow, Name: "elbow_left", Mass: 2.2, DOF: 1, Neutral: []float64{0}},
		Wrist:    JointStatic{ID: JointLeftWrist, Name: "wrist_left", Mass: 1.0, DOF: 3, Neutral: []float64{0, 0, 0}},
		MagnetID: MagnetLeft,
	}
	rightChain := ArmChain{
		Arm:      RightArm,
		Shoulder: JointStatic{ID: JointRightShoulder, Name: "shoulder_right", Mass: 4.0, DOF: 3, Neutral: []float64{0, 0, 0}},
		Elbow:    JointStatic{ID: JointRightElbow, Name: "elbow_right", Mass: 2.2, DOF: 1, Neutral: []float64{0}},
		Wrist:    JointStatic{ID: JointRightWrist, Name: "wrist_right", Mass: 1.0, DOF: 3, Neutral: []float64{0, 0, 0}},
		MagnetID: MagnetRight,
	}
	return &Topology{
		Column: JointStatic{ID: JointColumn, Name: "column", Mass: 12.0, DOF: 1, Neutral: []float64{0}},
		Torso:  JointStatic{ID: JointTorso, Name: "torso", Mass: 8.0, DOF: 1, Neutral: []float64{TorsoNeutralHeight}},
		Arms: map[Arm]ArmChain{
			LeftArm:  leftChain,
			RightArm: rightChain,
		},
		Wheels: []JointStatic{
			{ID: WheelFrontLeft, Name: "wheel_front_left", Mass: 0.9, DOF: 1, Neutral: []float64{0}},
			{ID: WheelFrontRight, Name: "wheel_front_right", Mass: 0.9, DOF: 1, Neutral: []float64{0}},
			{ID: WheelBackLeft, Name: "wheel_back_left", Mass: 0.9, DOF: 1, Neutral: []float64{0}},
			{ID: WheelBackRight, Name: "wheel_back_right", Mass: 0.9, DOF: 1, Neutral: []float64{0}},
		},
	}
}

// Chain returns the joint chain for an arm.
func (t *Topology) Chain(arm Arm) ArmChain {
	return t.Arms[arm]
}

// MagnetID returns the magnet id for an arm.
func (t *Topology) MagnetID(arm Arm) int {
	return t.Arms[arm].MagnetID
}

// LeftWheels returns the ids of the left-side wheel pair.
func (t *Topology) LeftWheels() []int {
	return []int{WheelFrontLeft, WheelBackLeft}
}

// RightWheels returns the ids of the right-side wheel pair.
func (t *Topology) RightWheels() []int {
	return []int{WheelFrontRight, WheelBackRight}
}

// WheelIDs returns all wheel ids.
func (t *Topology) WheelIDs() []int {
	ids := make([]int, 0, len(t.Wheels))
	for _, w := range t.Wheels {
		ids = append(ids, w.ID)
	}
	return ids
}

// ArmJointIDs returns the articulated joint ids of one arm, chain order.
func (t *Topology) ArmJointIDs(arm Arm) []int {
	c := t.Arms[arm]
	return []int{c.Shoulder.ID, c.Elbow.ID, c.Wrist.ID}
}

// AllArticulatedIDs returns column, torso, and both arms' joint ids.
func (t *Topology) AllArticulatedIDs() []int {
	ids := []int{t.Column.ID, t.Torso.ID}
	ids = append(ids, t.ArmJointIDs(LeftArm)...)
	ids = append(ids, t.ArmJointIDs(RightArm)...)
	return ids
}

// ShoulderOffset returns the shoulder position relative to the base origin at
// a given torso height, in the agent frame.
func (t *Topology) ShoulderOffset(arm Arm, torsoHeight float64) r3.Vector {
	x := ShoulderHalfSpan
	if arm == LeftArm {
		x = -ShoulderHalfSpan
	}
	return r3.Vector{X: x, Y: torsoHeight, Z: 0}
}

// MaxReach is the fully extended length of one arm from the shoulder.
func MaxReach() float64 {
	return UpperArmLength + ForearmLength + HandLength
}
