package kinematics

import (
	"context"
	"math"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrNoSolution is returned when the solver exhausts its iteration budget
// without converging.
var ErrNoSolution = errors.New("no inverse kinematics solution within iteration budget")

const (
	defaultIterations = 400
	defaultEpsilon    = 0.02 // meters
	jacobianDeltaDeg  = 0.25
	dampingLambda     = 0.4
	// After this many iterations without convergence the seed is jittered,
	// one joint at a time, to escape local minima.
	restartInterval = 80
	jitterDeg       = 8.0
)

// Solver performs damped least squares inverse kinematics over a Chain.
type Solver struct {
	chain      *Chain
	iterations int
	epsilon    float64
	logger     golog.Logger
}

// NewSolver makes a solver with the default budget and tolerance.
func NewSolver(chain *Chain, logger golog.Logger) *Solver {
	return &Solver{
		chain:      chain,
		iterations: defaultIterations,
		epsilon:    defaultEpsilon,
		logger:     logger,
	}
}

// Epsilon returns the solver's convergence tolerance in meters.
func (s *Solver) Epsilon() float64 { return s.epsilon }

// Solve searches for joint angles placing the end effector at goal, starting
// from seed. Angles are degrees. The seed is not mutated. Returns
// ErrNoSolution when the budget runs out; ctx cancellation aborts early.
func (s *Solver) Solve(ctx context.Context, goal r3.Vector, seed []float64) ([]float64, error) {
	n := s.chain.DOF()
	if len(seed) != n {
		return nil, errors.Errorf("seed has %d angles, chain has %d joints", len(seed), n)
	}
	if goal.Sub(s.chain.Root).Norm() > s.chain.MaxExtent()+s.epsilon {
		return nil, errors.Wrap(ErrNoSolution, "goal beyond chain extent")
	}

	q := append([]float64(nil), seed...)
	s.chain.Clamp(q)
	best := append([]float64(nil), q...)
	bestErr := math.Inf(1)
	jitterJoint := 0

	jac := mat.NewDense(3, n, nil)
	for iter := 0; iter < s.iterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cur := s.chain.Forward(q)
		dx := goal.Sub(cur)
		dist := dx.Norm()
		if dist < bestErr {
			bestErr = dist
			copy(best, q)
		}
		if dist <= s.epsilon {
			return q, nil
		}

		s.numericJacobian(q, cur, jac)
		dq, ok := dampedStep(jac, dx)
		if !ok {
			break
		}
		for i := 0; i < n; i++ {
			q[i] += dq[i]
		}
		s.chain.Clamp(q)

		if (iter+1)%restartInterval == 0 {
			// Stuck; nudge one joint off the best-so-far configuration.
			copy(q, best)
			q[jitterJoint%n] += jitterDeg
			jitterJoint++
			s.chain.Clamp(q)
		}
	}

	if s.logger != nil {
		s.logger.Debugw("ik solve failed", "goal", goal, "residual", bestErr)
	}
	return nil, ErrNoSolution
}

// numericJacobian fills jac with the forward difference of the effector
// position with respect to each joint angle, in meters per radian so the
// damped step stays well conditioned.
func (s *Solver) numericJacobian(q []float64, cur r3.Vector, jac *mat.Dense) {
	n := s.chain.DOF()
	deltaRad := jacobianDeltaDeg * math.Pi / 180
	probe := append([]float64(nil), q...)
	for i := 0; i < n; i++ {
		orig := probe[i]
		probe[i] = orig + jacobianDeltaDeg
		p := s.chain.Forward(probe)
		probe[i] = orig
		jac.Set(0, i, (p.X-cur.X)/deltaRad)
		jac.Set(1, i, (p.Y-cur.Y)/deltaRad)
		jac.Set(2, i, (p.Z-cur.Z)/deltaRad)
	}
}

// dampedStep computes dq = J^T (J J^T + lambda^2 I)^-1 dx, returning joint
// deltas in degrees.
func dampedStep(jac *mat.Dense, dx r3.Vector) ([]float64, bool) {
	_, n := jac.Dims()

	var jjt mat.Dense
	jjt.Mul(jac, jac.T())
	for i := 0; i < 3; i++ {
		jjt.Set(i, i, jjt.At(i, i)+dampingLambda*dampingLambda)
	}

	rhs := mat.NewVecDense(3, []float64{dx.X, dx.Y, dx.Z})
	var scaled mat.VecDense
	if err := scaled.SolveVec(&jjt, rhs); err != nil {
		return nil, false
	}

	var dq mat.VecDense
	dq.MulVec(jac.T(), &scaled)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = dq.AtVec(i) * 180 / math.Pi
	}
	return out, true
}
