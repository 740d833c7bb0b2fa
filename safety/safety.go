// Package safety evaluates whether an in-flight action must abort, given the
// current frame's body state and the agent's detection configuration. All
// evaluation is pure; the package holds no state of its own.
package safety

import (
	"github.com/golang/geo/r3"

	"github.com/magbot-sim/magbot/bodyframe"
	"github.com/magbot-sim/magbot/spatialmath"
)

// DetectionConfig controls which contacts abort a movement action. The agent
// owns one of these; callers may swap it between actions.
type DetectionConfig struct {
	StopOnWall    bool
	StopOnFloor   bool
	StopOnObjects bool
	// MassThreshold is the minimum mass, in kilograms, at which an object
	// contact aborts. Lighter objects are pushed through.
	MassThreshold float64
	// IncludeIDs always abort on contact regardless of mass.
	IncludeIDs map[int]struct{}
	// ExcludeIDs never abort on contact regardless of mass.
	ExcludeIDs map[int]struct{}
	// AbortOnPreviousSameDirection short-circuits a new movement before it
	// starts when the previous movement in the same direction ended in a
	// collision.
	AbortOnPreviousSameDirection bool
}

// DefaultDetectionConfig returns the stock policy: stop on walls and on
// objects of at least 1 kg, and refuse to repeat a collided movement.
func DefaultDetectionConfig() *DetectionConfig {
	return &DetectionConfig{
		StopOnWall:                   true,
		StopOnObjects:                true,
		MassThreshold:                1.0,
		AbortOnPreviousSameDirection: true,
	}
}

// Thresholds are the empirically tuned tilt limits. They are configuration,
// not constants: scenes with ramps need looser values.
type Thresholds struct {
	// TippingDeg is the base tilt at which an action aborts.
	TippingDeg float64
	// NearTippingDeg is the informational warning tilt.
	NearTippingDeg float64
	// EmergencyDropMass is the held-object mass above which a tipping abort
	// releases the object, on the assumption the payload caused the tip.
	EmergencyDropMass float64
}

// DefaultThresholds returns the stock tilt limits.
func DefaultThresholds() Thresholds {
	return Thresholds{TippingDeg: 12, NearTippingDeg: 7, EmergencyDropMass: 3.0}
}

// TiltStatus classifies base tilt.
type TiltStatus int

// Tilt classifications, in increasing severity.
const (
	Upright TiltStatus = iota
	NearTipping
	Tipping
)

// Verdict is the outcome of one policy evaluation.
type Verdict int

// Possible verdicts. Tipping outranks collision when both conditions hold on
// the same frame.
const (
	Continue Verdict = iota
	AbortCollision
	AbortTipping
)

// MoveKind categorizes movement actions for the same-direction-repeat rule.
type MoveKind int

// Movement categories.
const (
	KindMove MoveKind = iota
	KindTurn
)

// MoveRecord summarizes the previous movement action for the repeat rule.
type MoveRecord struct {
	Kind     MoveKind
	Positive bool
	Collided bool
}

// ClassifyTilt evaluates the base's up vector against the thresholds.
func ClassifyTilt(up r3.Vector, th Thresholds) TiltStatus {
	tilt := spatialmath.MaxTiltDeg(up)
	switch {
	case tilt > th.TippingDeg:
		return Tipping
	case tilt > th.NearTippingDeg:
		return NearTipping
	default:
		return Upright
	}
}

// CollisionAborts reports whether the current frame's contacts require a
// collision abort under cfg.
func CollisionAborts(state *bodyframe.State, cfg *DetectionConfig) bool {
	cs := state.Collisions()
	if cfg.StopOnWall && cs.Walls {
		return true
	}
	if cfg.StopOnFloor && len(cs.Floor) > 0 {
		return true
	}
	if !cfg.StopOnObjects {
		return false
	}
	for _, contacts := range []map[int][]int{cs.Environment, cs.OtherAgents} {
		for _, others := range contacts {
			for _, id := range others {
				if objectAborts(state, cfg, id) {
					return true
				}
			}
		}
	}
	return false
}

func objectAborts(state *bodyframe.State, cfg *DetectionConfig, objectID int) bool {
	if _, excluded := cfg.ExcludeIDs[objectID]; excluded {
		return false
	}
	if _, included := cfg.IncludeIDs[objectID]; included {
		return true
	}
	obj, ok := state.Telemetry().Object(objectID)
	if !ok {
		// No metadata for the contact; assume it is heavy enough to matter.
		return true
	}
	return obj.Mass >= cfg.MassThreshold
}

// Check evaluates tipping then collision for the current frame. Tipping wins
// when both hold.
func Check(state *bodyframe.State, cfg *DetectionConfig, th Thresholds) Verdict {
	if ClassifyTilt(state.Up(), th) == Tipping {
		return AbortTipping
	}
	if CollisionAborts(state, cfg) {
		return AbortCollision
	}
	return Continue
}

// RefuseRepeat reports whether a new movement of the given kind and direction
// must be refused before its first frame, per the same-direction-repeat rule.
// A refusal is a did-not-try failure: no directives are ever issued.
func RefuseRepeat(prev *MoveRecord, kind MoveKind, positive bool, cfg *DetectionConfig) bool {
	if prev == nil || !cfg.AbortOnPreviousSameDirection {
		return false
	}
	return prev.Collided && prev.Kind == kind && prev.Positive == positive
}

// EmergencyDrops returns the held objects that must be released on a tipping
// abort: those heavier than the emergency drop mass.
func EmergencyDrops(state *bodyframe.State, th Thresholds) map[bodyframe.Arm][]int {
	out := map[bodyframe.Arm][]int{}
	for arm, objs := range state.AllHeld() {
		for _, id := range objs {
			obj, ok := state.Telemetry().Object(id)
			if ok && obj.Mass <= th.EmergencyDropMass {
				continue
			}
			out[arm] = append(out[arm], id)
		}
	}
	return out
}
