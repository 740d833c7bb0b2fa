// Package kinematics models an articulated joint chain and solves inverse
// kinematics for it numerically. The solver is a damped least squares
// iteration over a finite-difference Jacobian; it trades speed for having no
// native dependencies and is bounded in iteration count so worst-case cost
// per solve attempt is fixed.
package kinematics

import (
	"math"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/utils"
)

// Joint is one revolute degree of freedom: a rotation about Axis, limited to
// [MinDeg, MaxDeg], followed by a translation of Offset in the rotated frame.
type Joint struct {
	Name   string
	Axis   r3.Vector
	MinDeg float64
	MaxDeg float64
	Offset r3.Vector
}

// Chain is an ordered sequence of revolute joints rooted at a fixed point.
type Chain struct {
	Root   r3.Vector
	Joints []Joint
}

// DOF returns the number of degrees of freedom.
func (c *Chain) DOF() int { return len(c.Joints) }

// Clamp limits each entry of q to its joint's range, in place.
func (c *Chain) Clamp(q []float64) {
	for i := range q {
		if i >= len(c.Joints) {
			return
		}
		j := c.Joints[i]
		q[i] = math.Max(j.MinDeg, math.Min(j.MaxDeg, q[i]))
	}
}

// rotate applies Rodrigues' rotation of v about unit axis k by deg degrees.
func rotate(v, k r3.Vector, deg float64) r3.Vector {
	rad := utils.DegToRad(deg)
	sin, cos := math.Sin(rad), math.Cos(rad)
	return v.Mul(cos).Add(k.Cross(v).Mul(sin)).Add(k.Mul(k.Dot(v) * (1 - cos)))
}

// Forward computes the end effector position for joint angles q, given in
// degrees. Panics if len(q) != DOF.
func (c *Chain) Forward(q []float64) r3.Vector {
	if len(q) != len(c.Joints) {
		panic("kinematics: joint vector length does not match chain")
	}
	pos := c.Root
	// Accumulated rotation applied to each successive local frame, kept as
	// the images of the three basis vectors.
	bx := r3.Vector{X: 1}
	by := r3.Vector{Y: 1}
	bz := r3.Vector{Z: 1}
	for i, j := range c.Joints {
		axis := bx.Mul(j.Axis.X).Add(by.Mul(j.Axis.Y)).Add(bz.Mul(j.Axis.Z)).Normalize()
		bx = rotate(bx, axis, q[i])
		by = rotate(by, axis, q[i])
		bz = rotate(bz, axis, q[i])
		pos = pos.Add(bx.Mul(j.Offset.X)).Add(by.Mul(j.Offset.Y)).Add(bz.Mul(j.Offset.Z))
	}
	return pos
}

// MaxExtent returns an upper bound on how far the end effector can be from
// the chain root, the sum of all offset lengths.
func (c *Chain) MaxExtent() float64 {
	var sum float64
	for _, j := range c.Joints {
		sum += j.Offset.Norm()
	}
	return sum
}
