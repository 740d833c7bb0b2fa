package articulation

import (
	"math"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"

	"github.com/magbot-sim/magbot/action"
	"github.com/magbot-sim/magbot/bodyframe"
	"github.com/magbot-sim/magbot/protocol"
)

// Grasp reaches for an object and succeeds the moment the object attaches to
// the arm's magnet, even mid-motion. The reach target is computed, not
// given: the object's nearest bounding-box face, refined by a line-of-sight
// probe from the magnet.
type Grasp struct {
	ReachFor

	objectID  int
	probed    bool
	facePoint r3.Vector
}

// NewGrasp builds a grasp action for one object.
func NewGrasp(
	topo *bodyframe.Topology,
	table *Table,
	arm bodyframe.Arm,
	objectID int,
	logger golog.Logger,
) *Grasp {
	g := &Grasp{
		ReachFor: *NewReachFor(topo, table, arm, r3.Vector{}, DefaultArrivedAt,
			OrientationAuto, AutoOrientation, logger),
		objectID: objectID,
	}
	g.Base = action.NewBase("grasp", logger)
	g.exhaustedStatus = action.FailedToGrasp
	g.succeedWhen = func(s *bodyframe.State) bool { return s.Holding(arm, objectID) }
	return g
}

// ObjectID returns the grasp target's id.
func (g *Grasp) ObjectID() int { return g.objectID }

// Start validates the target object and fires the line-of-sight probe. The
// magnet is armed for the object up front so attachment can happen on any
// later frame's contact.
func (g *Grasp) Start(state *bodyframe.State) []protocol.Directive {
	if state.Holding(g.arm, g.objectID) {
		g.SetStatus(action.Success)
		return nil
	}
	if state.HeldByOther(g.arm, g.objectID) {
		g.SetStatus(action.HeldByOther)
		return nil
	}
	obj, ok := state.Telemetry().Object(g.objectID)
	if !ok {
		g.SetStatus(action.CannotReach)
		return nil
	}

	magnet := state.MagnetPosition(g.arm)
	g.facePoint = nearestFace(obj, magnet)

	return []protocol.Directive{
		protocol.SetImmovable(true),
		protocol.Attach(g.topo.MagnetID(g.arm), g.objectID),
		protocol.Raycast(magnet, g.facePoint),
	}
}

// Step first checks attachment, then finishes the probe phase, then defers
// to the reach machinery.
func (g *Grasp) Step(state *bodyframe.State) []protocol.Directive {
	if state.Holding(g.arm, g.objectID) {
		g.SetStatus(action.Success)
		return nil
	}

	if !g.probed {
		g.probed = true
		g.target = g.probeTarget(state)
		return g.beginReach(state)
	}

	return g.ReachFor.Step(state)
}

// probeTarget resolves the raycast answer: an unobstructed probe's hit point
// gives a tighter fit than the raw bounding face.
func (g *Grasp) probeTarget(state *bodyframe.State) r3.Vector {
	tel := state.Telemetry()
	for _, rc := range tel.Raycasts {
		if rc.Hit && rc.ObjectID == g.objectID {
			return rc.Point
		}
	}
	return g.facePoint
}

// nearestFace returns the center of the object's bounding-box face closest
// to the magnet. The bottom face is excluded whenever the object's centroid
// sits above the magnet, since that face is normally unreachable.
func nearestFace(obj protocol.ObjectTelemetry, magnet r3.Vector) r3.Vector {
	c, e := obj.Centroid, obj.Extents
	faces := []r3.Vector{
		{X: c.X + e.X, Y: c.Y, Z: c.Z},
		{X: c.X - e.X, Y: c.Y, Z: c.Z},
		{X: c.X, Y: c.Y + e.Y, Z: c.Z},
		{X: c.X, Y: c.Y, Z: c.Z + e.Z},
		{X: c.X, Y: c.Y, Z: c.Z - e.Z},
	}
	if c.Y <= magnet.Y {
		faces = append(faces, r3.Vector{X: c.X, Y: c.Y - e.Y, Z: c.Z})
	}

	best := faces[0]
	bestDist := math.Inf(1)
	for _, f := range faces {
		if d := f.Sub(magnet).Norm(); d < bestDist {
			bestDist, best = d, f
		}
	}
	return best
}
