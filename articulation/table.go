// Package articulation implements the arm actions: reaching, grasping,
// dropping, and arm/torso resets. Target orientation selection is driven by a
// precomputed solution table mapping arm-relative positions to the
// orientation parameters most likely to reach them.
package articulation

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/magbot-sim/magbot/bodyframe"
)

// OrientationMode selects which axis the magnet approaches its target along.
type OrientationMode string

// Orientation modes. Auto defers to the solution table; None leaves the
// wrist free.
const (
	OrientationAuto OrientationMode = "auto"
	OrientationNone OrientationMode = "none"
	OrientationX    OrientationMode = "x"
	OrientationY    OrientationMode = "y"
	OrientationZ    OrientationMode = "z"
)

// AutoOrientation is the sentinel target-orientation value meaning "let the
// table decide".
var AutoOrientation = r3.Vector{}

// TableVersion is the solution table file format this build reads.
const TableVersion = 1

// ChainFingerprint identifies the kinematic geometry a table was generated
// for. A table generated against different link lengths is rejected at load.
func ChainFingerprint() string {
	return fmt.Sprintf("arm:%.3f:%.3f:%.3f:%.3f",
		bodyframe.UpperArmLength, bodyframe.ForearmLength,
		bodyframe.HandLength, bodyframe.ShoulderHalfSpan)
}

// Cell is one precomputed grid entry: the orientation parameters known to
// maximize reach success for targets near Pos (right-arm frame), or a
// known-unreachable marker.
type Cell struct {
	Pos         [3]float64      `json:"pos"`
	Mode        OrientationMode `json:"mode"`
	Orientation [3]float64      `json:"orientation"`
	Reachable   bool            `json:"reachable"`
}

// Candidate is one (mode, orientation) pair to attempt, best first.
type Candidate struct {
	Mode        OrientationMode
	Orientation r3.Vector
}

type tableFile struct {
	Version     int     `json:"version"`
	Fingerprint string  `json:"fingerprint"`
	Resolution  float64 `json:"resolution"`
	Cells       []Cell  `json:"cells"`
}

// Table is the immutable orientation solution table. Cells are stored for
// the right arm; left-arm queries are answered by mirroring across the
// agent's sagittal plane. Safe for concurrent use after load.
type Table struct {
	resolution float64
	cells      map[[3]int]Cell
}

// MaxReachAttempts bounds the orientation retry loop: the best cell plus its
// nearest fallback neighbors.
const MaxReachAttempts = 4

// LoadTable reads a solution table from path. Files ending in .gz are
// decompressed. Version and geometry fingerprint must match this build.
func LoadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open orientation table")
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "orientation table gzip header")
		}
		defer gz.Close()
		r = gz
	}
	return ReadTable(r)
}

// ReadTable parses an uncompressed solution table stream.
func ReadTable(r io.Reader) (*Table, error) {
	var file tableFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, errors.Wrap(err, "decode orientation table")
	}
	if file.Version != TableVersion {
		return nil, errors.Errorf("orientation table version %d, want %d", file.Version, TableVersion)
	}
	if file.Fingerprint != ChainFingerprint() {
		return nil, errors.Errorf("orientation table was generated for chain %q, this build is %q",
			file.Fingerprint, ChainFingerprint())
	}
	if file.Resolution <= 0 {
		return nil, errors.New("orientation table resolution must be positive")
	}

	t := &Table{resolution: file.Resolution, cells: make(map[[3]int]Cell, len(file.Cells))}
	for _, c := range file.Cells {
		t.cells[t.key(r3.Vector{X: c.Pos[0], Y: c.Pos[1], Z: c.Pos[2]})] = c
	}
	if len(t.cells) == 0 {
		return nil, errors.New("orientation table has no cells")
	}
	return t, nil
}

func (t *Table) key(p r3.Vector) [3]int {
	return [3]int{
		int(math.Round(p.X / t.resolution)),
		int(math.Round(p.Y / t.resolution)),
		int(math.Round(p.Z / t.resolution)),
	}
}

// mirror flips a right-arm-frame query for left-arm use.
func mirror(p r3.Vector) r3.Vector { return r3.Vector{X: -p.X, Y: p.Y, Z: p.Z} }

// lookup returns the cell covering target, which must already be in the
// right-arm frame. Falls back to a scan when the rounded key is not present.
func (t *Table) lookup(target r3.Vector) (Cell, bool) {
	if c, ok := t.cells[t.key(target)]; ok {
		return c, true
	}
	var best Cell
	bestDist := math.Inf(1)
	for _, c := range t.cells {
		d := r3.Vector{X: c.Pos[0], Y: c.Pos[1], Z: c.Pos[2]}.Sub(target).Norm()
		if d < bestDist {
			bestDist, best = d, c
		}
	}
	// Beyond one full cell from any sample the table has nothing to say.
	if bestDist > 2*t.resolution {
		return Cell{}, false
	}
	return best, true
}

// Reachable reports whether the table believes the arm-relative target can
// be reached at all. An unreachable verdict lets a reach fail before any
// joint moves.
func (t *Table) Reachable(arm bodyframe.Arm, target r3.Vector) bool {
	if arm == bodyframe.LeftArm {
		target = mirror(target)
	}
	cell, ok := t.lookup(target)
	return ok && cell.Reachable
}

// Candidates returns the ordered orientation attempts for an arm-relative
// target: the covering cell's parameters first, then the nearest reachable
// neighbor cells, at most MaxReachAttempts total.
func (t *Table) Candidates(arm bodyframe.Arm, target r3.Vector) []Candidate {
	q := target
	if arm == bodyframe.LeftArm {
		q = mirror(target)
	}

	type scored struct {
		cell Cell
		dist float64
	}
	var all []scored
	for _, c := range t.cells {
		if !c.Reachable {
			continue
		}
		d := r3.Vector{X: c.Pos[0], Y: c.Pos[1], Z: c.Pos[2]}.Sub(q).Norm()
		if d > 2*t.resolution {
			continue
		}
		all = append(all, scored{c, d})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].dist < all[j].dist })

	out := make([]Candidate, 0, MaxReachAttempts)
	seen := map[[4]string]struct{}{}
	for _, s := range all {
		if len(out) == MaxReachAttempts {
			break
		}
		o := r3.Vector{X: s.cell.Orientation[0], Y: s.cell.Orientation[1], Z: s.cell.Orientation[2]}
		if arm == bodyframe.LeftArm {
			o = mirror(o)
		}
		k := [4]string{string(s.cell.Mode),
			fmt.Sprintf("%.2f", o.X), fmt.Sprintf("%.2f", o.Y), fmt.Sprintf("%.2f", o.Z)}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, Candidate{Mode: s.cell.Mode, Orientation: o})
	}
	return out
}
