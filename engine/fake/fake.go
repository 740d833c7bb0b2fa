// Package fake provides a deterministic in-process physics engine for tests.
// It integrates wheel spin into base motion, settles joints toward their
// targets at fixed per-frame rates, keeps attached objects glued to their
// magnets, and reports wall contacts against a rectangular room.
package fake

import (
	"context"
	"math"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"

	"github.com/magbot-sim/magbot/bodyframe"
	"github.com/magbot-sim/magbot/kinematics"
	"github.com/magbot-sim/magbot/protocol"
	"github.com/magbot-sim/magbot/spatialmath"
)

// Per-frame integration rates.
const (
	wheelRateDeg   = 8.0
	jointRateDeg   = 4.0
	torsoRateM     = 0.02
	grabRadius     = 0.25
	wallMargin     = 0.3
	baseRadius     = 0.4
	objectTouchPad = 0.05
)

type drive struct {
	current []float64
	target  []float64
}

// Object is one scene object the fake engine simulates.
type Object struct {
	ID       int
	Position r3.Vector
	Extents  r3.Vector
	Mass     float64

	velocity r3.Vector
	heldBy   []int
}

// Engine implements engine.Stepper entirely in memory.
type Engine struct {
	logger golog.Logger
	topo   *bodyframe.Topology

	frame uint64
	pos   r3.Vector
	yaw   float64
	up    r3.Vector

	immovable bool
	drives    map[int]*drive

	camera protocol.CameraTelemetry

	roomMin r3.Vector
	roomMax r3.Vector

	objects map[int]*Object
	armed   map[int]int   // magnet id -> object id it will attach to on contact
	held    map[int][]int // magnet id -> attached object ids

	pendingRays []protocol.Directive
	lastEvents  []protocol.CollisionEvent
}

// New makes a fake engine with the agent at the origin facing +Z inside a
// 20x20 meter room.
func New(topo *bodyframe.Topology, logger golog.Logger) *Engine {
	e := &Engine{
		logger:  logger,
		topo:    topo,
		up:      r3.Vector{Y: 1},
		roomMin: r3.Vector{X: -10, Z: -10},
		roomMax: r3.Vector{X: 10, Z: 10},
		drives:  map[int]*drive{},
		objects: map[int]*Object{},
		armed:   map[int]int{},
		held:    map[int][]int{},
	}
	for _, id := range topo.WheelIDs() {
		e.drives[id] = &drive{current: []float64{0}, target: []float64{0}}
	}
	e.drives[topo.Column.ID] = &drive{current: []float64{0}, target: []float64{0}}
	e.drives[topo.Torso.ID] = &drive{
		current: []float64{bodyframe.TorsoNeutralHeight},
		target:  []float64{bodyframe.TorsoNeutralHeight},
	}
	for _, arm := range []bodyframe.Arm{bodyframe.LeftArm, bodyframe.RightArm} {
		for _, j := range topo.Chain(arm).Joints() {
			zero := make([]float64, j.DOF)
			e.drives[j.ID] = &drive{current: append([]float64(nil), zero...), target: zero}
		}
	}
	return e
}

// SetRoomBounds overrides the room rectangle.
func (e *Engine) SetRoomBounds(min, max r3.Vector) { e.roomMin, e.roomMax = min, max }

// SetPose teleports the agent for test setup.
func (e *Engine) SetPose(pos r3.Vector, yawDeg float64) { e.pos, e.yaw = pos, yawDeg }

// SetTilt overrides the base's up vector; use it to script tipping.
func (e *Engine) SetTilt(up r3.Vector) { e.up = up }

// Position returns the agent's current world position.
func (e *Engine) Position() r3.Vector { return e.pos }

// Yaw returns the agent's current heading.
func (e *Engine) Yaw() float64 { return e.yaw }

// PlaceObject adds or replaces a scene object.
func (e *Engine) PlaceObject(obj Object) {
	o := obj
	e.objects[obj.ID] = &o
}

// Held reports the ids attached to a magnet.
func (e *Engine) Held(magnetID int) []int { return e.held[magnetID] }

// Step applies one frame of directives and integrates the world.
func (e *Engine) Step(ctx context.Context, directives []protocol.Directive) (*protocol.Telemetry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rays []protocol.Directive
	for _, d := range directives {
		switch d.Type {
		case protocol.DirectiveJointTarget, protocol.DirectiveWheelTarget:
			if dr, ok := e.drives[d.JointID]; ok {
				t := append([]float64(nil), d.Target...)
				for len(t) < len(dr.current) {
					t = append(t, dr.current[len(t)])
				}
				dr.target = t
			}
		case protocol.DirectiveStopAt:
			if dr, ok := e.drives[d.JointID]; ok {
				dr.target = append([]float64(nil), dr.current...)
			}
		case protocol.DirectiveAttach:
			e.armed[d.MagnetID] = d.ObjectID
		case protocol.DirectiveDetach:
			e.detach(d.MagnetID, d.ObjectID)
		case protocol.DirectiveTeleport:
			if d.Position != nil {
				e.pos = *d.Position
			}
			e.yaw = d.YawDeg
			e.up = r3.Vector{Y: 1}
		case protocol.DirectiveSetImmovable:
			e.immovable = d.Immovable
		case protocol.DirectiveCameraRotate:
			e.camera.PitchDeg += d.CameraPitch
			e.camera.YawDeg += d.CameraYaw
			e.camera.RollDeg += d.CameraRoll
		case protocol.DirectiveRaycast:
			rays = append(rays, d)
		}
	}

	e.integrate()
	tel := e.snapshot(rays)
	e.frame++
	return tel, nil
}

// Close is a no-op for the in-memory engine.
func (e *Engine) Close() error { return nil }

func (e *Engine) integrate() {
	e.lastEvents = nil

	// Wheels first: their per-frame deltas drive the base.
	leftDelta := e.advanceWheels(e.topo.LeftWheels())
	rightDelta := e.advanceWheels(e.topo.RightWheels())

	if !e.immovable {
		rad := math.Pi / 180
		travel := (leftDelta + rightDelta) / 2 * rad * bodyframe.WheelRadius
		spin := (leftDelta - rightDelta) / 2 * rad * bodyframe.WheelRadius / (bodyframe.TrackWidth / 2)

		e.yaw = spatialmath.NormalizeDeg(e.yaw + spin*180/math.Pi)
		next := e.pos.Add(spatialmath.ForwardFromYaw(e.yaw).Mul(travel))
		if e.hitsWall(next) {
			// The base stays put and every wheel is pinned where it is,
			// mirroring a real engine's contact response.
			e.lastEvents = append(e.lastEvents, protocol.CollisionEvent{
				BodyPartID: e.topo.WheelIDs()[0],
				OtherID:    -1,
				Category:   protocol.CollisionEnvironment,
				IsWall:     true,
			})
			for _, id := range e.topo.WheelIDs() {
				dr := e.drives[id]
				dr.target = append([]float64(nil), dr.current...)
			}
		} else {
			e.pos = next
			e.objectContacts(next)
		}
	}

	// Articulated joints settle toward their targets.
	for id, dr := range e.drives {
		if isWheel(e.topo, id) {
			continue
		}
		rate := jointRateDeg
		if id == e.topo.Torso.ID {
			rate = torsoRateM
		}
		for i := range dr.current {
			dr.current[i] = approach(dr.current[i], dr.target[i], rate)
		}
	}

	// Attached objects ride their magnets; armed magnets latch on contact.
	for _, arm := range []bodyframe.Arm{bodyframe.LeftArm, bodyframe.RightArm} {
		magnetID := e.topo.MagnetID(arm)
		magnet := e.magnetWorld(arm)
		for _, objID := range e.held[magnetID] {
			if obj, ok := e.objects[objID]; ok {
				obj.Position = magnet
				obj.velocity = r3.Vector{}
			}
		}
		if wantID, ok := e.armed[magnetID]; ok {
			if obj, exists := e.objects[wantID]; exists && len(obj.heldBy) == 0 {
				if magnet.Sub(obj.Position).Norm() <= grabRadius+obj.Extents.Norm() {
					e.held[magnetID] = append(e.held[magnetID], wantID)
					obj.heldBy = append(obj.heldBy, magnetID)
					delete(e.armed, magnetID)
				}
			}
		}
	}
}

// advanceWheels steps a wheel pair toward target and returns the applied
// delta of the pair (all wheels in a pair share targets in practice).
func (e *Engine) advanceWheels(ids []int) float64 {
	var applied float64
	for _, id := range ids {
		dr := e.drives[id]
		next := approach(dr.current[0], dr.target[0], wheelRateDeg)
		applied = next - dr.current[0]
		dr.current[0] = next
	}
	return applied
}

func (e *Engine) hitsWall(pos r3.Vector) bool {
	return pos.X < e.roomMin.X+wallMargin || pos.X > e.roomMax.X-wallMargin ||
		pos.Z < e.roomMin.Z+wallMargin || pos.Z > e.roomMax.Z-wallMargin
}

// objectContacts reports contact events for free objects the base presses
// against.
func (e *Engine) objectContacts(pos r3.Vector) {
	for id, obj := range e.objects {
		if len(obj.heldBy) > 0 {
			continue
		}
		reach := baseRadius + math.Max(obj.Extents.X, obj.Extents.Z) + objectTouchPad
		if spatialmath.FlatDistance(pos, obj.Position) <= reach {
			e.lastEvents = append(e.lastEvents, protocol.CollisionEvent{
				BodyPartID: e.topo.WheelIDs()[0],
				OtherID:    id,
				Category:   protocol.CollisionEnvironment,
			})
		}
	}
}

func (e *Engine) detach(magnetID, objectID int) {
	kept := e.held[magnetID][:0]
	for _, id := range e.held[magnetID] {
		if id != objectID {
			kept = append(kept, id)
		}
	}
	if len(kept) == 0 {
		delete(e.held, magnetID)
	} else {
		e.held[magnetID] = kept
	}
	if obj, ok := e.objects[objectID]; ok {
		var owners []int
		for _, m := range obj.heldBy {
			if m != magnetID {
				owners = append(owners, m)
			}
		}
		obj.heldBy = owners
		obj.velocity = r3.Vector{}
	}
}

// magnetWorld computes a magnet's world position from the current joint
// readings through the same chain the controller solves against.
func (e *Engine) magnetWorld(arm bodyframe.Arm) r3.Vector {
	torso := e.drives[e.topo.Torso.ID].current[0]
	chain := kinematics.NewArmChain(e.topo, arm, torso)
	c := e.topo.Chain(arm)
	q := []float64{
		e.drives[e.topo.Column.ID].current[0],
		e.drives[c.Shoulder.ID].current[0],
		e.drives[c.Shoulder.ID].current[1],
		e.drives[c.Elbow.ID].current[0],
		e.drives[c.Wrist.ID].current[0],
	}
	return spatialmath.AgentToWorld(chain.Forward(q), e.pos, e.yaw)
}

func (e *Engine) snapshot(rays []protocol.Directive) *protocol.Telemetry {
	tel := &protocol.Telemetry{
		Frame:    e.frame,
		Position: e.pos,
		YawDeg:   e.yaw,
		Up:       e.up,
		Magnets:  map[int]r3.Vector{},
		Held:     map[int][]int{},
		Camera:   e.camera,
	}

	for id, dr := range e.drives {
		tel.Joints = append(tel.Joints, protocol.JointTelemetry{
			JointID: id,
			Angles:  append([]float64(nil), dr.current...),
		})
	}
	for _, arm := range []bodyframe.Arm{bodyframe.LeftArm, bodyframe.RightArm} {
		tel.Magnets[e.topo.MagnetID(arm)] = e.magnetWorld(arm)
	}
	for magnet, objs := range e.held {
		tel.Held[magnet] = append([]int(nil), objs...)
	}
	for _, obj := range e.objects {
		tel.Objects = append(tel.Objects, protocol.ObjectTelemetry{
			ObjectID: obj.ID,
			Position: obj.Position,
			Centroid: obj.Position,
			Extents:  obj.Extents,
			Mass:     obj.Mass,
			Velocity: obj.velocity,
			HeldBy:   append([]int(nil), obj.heldBy...),
		})
	}
	tel.Collisions = append([]protocol.CollisionEvent(nil), e.lastEvents...)

	for _, ray := range rays {
		tel.Raycasts = append(tel.Raycasts, e.castRay(*ray.RayFrom, *ray.RayTo))
	}
	return tel
}

// castRay answers a line-of-sight probe: the first object whose bounding box
// the segment enters, with the entry point.
func (e *Engine) castRay(from, to r3.Vector) protocol.RaycastResult {
	dir := to.Sub(from)
	length := dir.Norm()
	if length == 0 {
		return protocol.RaycastResult{}
	}
	dir = dir.Mul(1 / length)

	best := protocol.RaycastResult{}
	bestT := math.Inf(1)
	for id, obj := range e.objects {
		t, ok := raySlab(from, dir, obj.Position, obj.Extents)
		if ok && t <= length && t < bestT {
			bestT = t
			best = protocol.RaycastResult{Hit: true, ObjectID: id, Point: from.Add(dir.Mul(t))}
		}
	}
	return best
}

// raySlab intersects a ray with an axis-aligned box, returning the entry
// distance.
func raySlab(origin, dir, center, extents r3.Vector) (float64, bool) {
	tmin, tmax := 0.0, math.Inf(1)
	o := [3]float64{origin.X, origin.Y, origin.Z}
	d := [3]float64{dir.X, dir.Y, dir.Z}
	lo := [3]float64{center.X - extents.X, center.Y - extents.Y, center.Z - extents.Z}
	hi := [3]float64{center.X + extents.X, center.Y + extents.Y, center.Z + extents.Z}
	for i := 0; i < 3; i++ {
		if math.Abs(d[i]) < 1e-12 {
			if o[i] < lo[i] || o[i] > hi[i] {
				return 0, false
			}
			continue
		}
		t1 := (lo[i] - o[i]) / d[i]
		t2 := (hi[i] - o[i]) / d[i]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return 0, false
		}
	}
	return tmin, true
}

func approach(current, target, rate float64) float64 {
	diff := target - current
	if math.Abs(diff) <= rate {
		return target
	}
	if diff > 0 {
		return current + rate
	}
	return current - rate
}

func isWheel(topo *bodyframe.Topology, id int) bool {
	for _, w := range topo.WheelIDs() {
		if w == id {
			return true
		}
	}
	return false
}
