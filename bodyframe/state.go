package bodyframe

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/magbot-sim/magbot/protocol"
)

// Motion epsilons. A joint whose reading changed by less than these between
// consecutive frames is considered stopped.
const (
	nonMovingAngleDeg = 0.08
	nonMovingMeters   = 0.001
)

// JointDynamic is one joint's per-frame reading plus its derived moving flag.
// Replaced wholesale every frame.
type JointDynamic struct {
	JointID int
	Angles  []float64
	Eff     r3.Vector
	Moving  bool
}

// CollisionSet maps a body-part id to the ids it is currently touching,
// split by category. Replaced every frame.
type CollisionSet struct {
	Self        map[int][]int
	OtherAgents map[int][]int
	Environment map[int][]int
	// Walls and Floor flag contacts with the named static geometry.
	Walls bool
	Floor map[int]bool // body part id -> touching floor
}

// Contains reports whether any monitored body part touches the given id in
// any category.
func (cs *CollisionSet) Contains(otherID int) bool {
	for _, m := range []map[int][]int{cs.Self, cs.OtherAgents, cs.Environment} {
		for _, others := range m {
			for _, id := range others {
				if id == otherID {
					return true
				}
			}
		}
	}
	return false
}

// State is the per-frame dynamic view of one agent's body. It retains the
// previous frame's joint readings so moving flags can be derived.
type State struct {
	topo *Topology

	frame   uint64
	current *protocol.Telemetry

	joints map[int]JointDynamic
	prev   map[int]JointDynamic

	collisions CollisionSet
	held       map[int][]int
}

// NewState makes an empty state for the given topology. It reports nothing
// as moving until two frames of telemetry have been observed.
func NewState(topo *Topology) *State {
	return &State{
		topo:   topo,
		joints: map[int]JointDynamic{},
		held:   map[int][]int{},
	}
}

// Topology returns the static body description.
func (s *State) Topology() *Topology { return s.topo }

// Update ingests one frame of telemetry, replacing all dynamic values and
// recomputing moving flags against the prior frame.
func (s *State) Update(t *protocol.Telemetry) {
	s.prev = s.joints
	s.joints = make(map[int]JointDynamic, len(t.Joints))
	for _, jt := range t.Joints {
		jd := JointDynamic{JointID: jt.JointID, Angles: jt.Angles, Eff: jt.Eff}
		if old, ok := s.prev[jt.JointID]; ok {
			// The torso slide is prismatic: its reading is meters, not
			// degrees, and needs the tighter epsilon.
			eps := nonMovingAngleDeg
			if jt.JointID == s.topo.Torso.ID {
				eps = nonMovingMeters
			}
			jd.Moving = jointMoved(old, jd, eps)
		}
		s.joints[jt.JointID] = jd
	}

	s.collisions = CollisionSet{
		Self:        map[int][]int{},
		OtherAgents: map[int][]int{},
		Environment: map[int][]int{},
		Floor:       map[int]bool{},
	}
	for _, ev := range t.Collisions {
		switch {
		case ev.IsFloor:
			s.collisions.Floor[ev.BodyPartID] = true
		case ev.IsWall:
			s.collisions.Walls = true
			s.collisions.Environment[ev.BodyPartID] = append(s.collisions.Environment[ev.BodyPartID], ev.OtherID)
		case ev.Category == protocol.CollisionSelf:
			s.collisions.Self[ev.BodyPartID] = append(s.collisions.Self[ev.BodyPartID], ev.OtherID)
		case ev.Category == protocol.CollisionOtherAgent:
			s.collisions.OtherAgents[ev.BodyPartID] = append(s.collisions.OtherAgents[ev.BodyPartID], ev.OtherID)
		default:
			s.collisions.Environment[ev.BodyPartID] = append(s.collisions.Environment[ev.BodyPartID], ev.OtherID)
		}
	}

	s.held = make(map[int][]int, len(t.Held))
	for magnet, objs := range t.Held {
		s.held[magnet] = append([]int(nil), objs...)
	}

	s.frame = t.Frame
	s.current = t
}

func jointMoved(old, cur JointDynamic, eps float64) bool {
	for i := range cur.Angles {
		if i >= len(old.Angles) {
			return true
		}
		if math.Abs(cur.Angles[i]-old.Angles[i]) > eps {
			return true
		}
	}
	return old.Eff.Sub(cur.Eff).Norm() > nonMovingMeters
}

// Frame returns the most recent frame number.
func (s *State) Frame() uint64 { return s.frame }

// Telemetry returns the raw snapshot of the most recent frame.
func (s *State) Telemetry() *protocol.Telemetry { return s.current }

// Position returns the agent root's world position.
func (s *State) Position() r3.Vector {
	if s.current == nil {
		return r3.Vector{}
	}
	return s.current.Position
}

// Yaw returns the agent root's yaw in degrees.
func (s *State) Yaw() float64 {
	if s.current == nil {
		return 0
	}
	return s.current.YawDeg
}

// Up returns the base's up vector.
func (s *State) Up() r3.Vector {
	if s.current == nil {
		return r3.Vector{Y: 1}
	}
	return s.current.Up
}

// Joint returns the dynamic reading for a joint id.
func (s *State) Joint(jointID int) (JointDynamic, bool) {
	jd, ok := s.joints[jointID]
	return jd, ok
}

// JointAngle returns the first drive angle of a joint, or 0 if unknown.
func (s *State) JointAngle(jointID int) float64 {
	jd, ok := s.joints[jointID]
	if !ok || len(jd.Angles) == 0 {
		return 0
	}
	return jd.Angles[0]
}

// Moving reports whether the given joint moved since the prior frame.
func (s *State) Moving(jointID int) bool {
	return s.joints[jointID].Moving
}

// AnyMoving reports whether any of the given joints moved since the prior
// frame.
func (s *State) AnyMoving(jointIDs ...int) bool {
	for _, id := range jointIDs {
		if s.joints[id].Moving {
			return true
		}
	}
	return false
}

// ChainMoving reports whether any articulated joint of the arm, the column,
// or the torso is still moving.
func (s *State) ChainMoving(arm Arm) bool {
	ids := append([]int{s.topo.Column.ID, s.topo.Torso.ID}, s.topo.ArmJointIDs(arm)...)
	return s.AnyMoving(ids...)
}

// MagnetPosition returns the world position of an arm's magnet.
func (s *State) MagnetPosition(arm Arm) r3.Vector {
	if s.current == nil {
		return r3.Vector{}
	}
	return s.current.Magnets[s.topo.MagnetID(arm)]
}

// Collisions returns the current frame's collision set.
func (s *State) Collisions() *CollisionSet { return &s.collisions }

// Held returns the object ids attached to an arm's magnet.
func (s *State) Held(arm Arm) []int {
	return s.held[s.topo.MagnetID(arm)]
}

// Holding reports whether an arm's magnet currently holds the object.
func (s *State) Holding(arm Arm, objectID int) bool {
	for _, id := range s.held[s.topo.MagnetID(arm)] {
		if id == objectID {
			return true
		}
	}
	return false
}

// HeldByOther reports whether the object is attached to any magnet other
// than the given arm's, including other agents' magnets.
func (s *State) HeldByOther(arm Arm, objectID int) bool {
	if s.current == nil {
		return false
	}
	obj, ok := s.current.Object(objectID)
	if !ok {
		return false
	}
	own := s.topo.MagnetID(arm)
	for _, magnet := range obj.HeldBy {
		if magnet != own {
			return true
		}
	}
	return false
}

// AllHeld returns every held object id across both magnets.
func (s *State) AllHeld() map[Arm][]int {
	out := map[Arm][]int{}
	for _, arm := range []Arm{LeftArm, RightArm} {
		if objs := s.held[s.topo.MagnetID(arm)]; len(objs) > 0 {
			out[arm] = append([]int(nil), objs...)
		}
	}
	return out
}

// TorsoHeight returns the torso slide's current height in meters.
func (s *State) TorsoHeight() float64 {
	return s.JointAngle(s.topo.Torso.ID)
}
