package kinematics

import (
	"github.com/golang/geo/r3"

	"github.com/magbot-sim/magbot/bodyframe"
)

// Arm chain degree-of-freedom indices into a solved joint vector.
const (
	QColumn = iota
	QShoulderPitch
	QShoulderRoll
	QElbowPitch
	QWristPitch
	ArmDOF
)

// NewArmChain builds the solvable chain for one arm at a fixed torso height:
// column rotation, shoulder pitch and roll, elbow pitch, wrist pitch. The
// torso's prismatic slide is not part of the chain; reaching above the
// current slide height is handled as a separate motion phase before the
// chain is articulated.
func NewArmChain(topo *bodyframe.Topology, arm bodyframe.Arm, torsoHeight float64) *Chain {
	return &Chain{
		Root: r3.Vector{},
		Joints: []Joint{
			{
				Name:   "column",
				Axis:   r3.Vector{Y: 1},
				MinDeg: -179, MaxDeg: 179,
				Offset: topo.ShoulderOffset(arm, torsoHeight),
			},
			{
				Name:   "shoulder_pitch",
				Axis:   r3.Vector{X: 1},
				MinDeg: -160, MaxDeg: 65,
			},
			{
				Name:   "shoulder_roll",
				Axis:   r3.Vector{Z: 1},
				MinDeg: -90, MaxDeg: 90,
				Offset: r3.Vector{Y: -bodyframe.UpperArmLength},
			},
			{
				Name:   "elbow_pitch",
				Axis:   r3.Vector{X: 1},
				MinDeg: 0, MaxDeg: 145,
				Offset: r3.Vector{Y: -bodyframe.ForearmLength},
			},
			{
				Name:   "wrist_pitch",
				Axis:   r3.Vector{X: 1},
				MinDeg: -90, MaxDeg: 90,
				Offset: r3.Vector{Y: -bodyframe.HandLength},
			},
		},
	}
}
