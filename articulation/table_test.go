package articulation

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/klauspost/compress/gzip"
	"go.viam.com/test"

	"github.com/magbot-sim/magbot/bodyframe"
)

func tableBytes(t *testing.T, file tableFile) []byte {
	t.Helper()
	data, err := json.Marshal(file)
	test.That(t, err, test.ShouldBeNil)
	return data
}

func simpleTable(t *testing.T, cells []Cell) *Table {
	t.Helper()
	data := tableBytes(t, tableFile{
		Version:     TableVersion,
		Fingerprint: ChainFingerprint(),
		Resolution:  0.25,
		Cells:       cells,
	})
	tbl, err := ReadTable(bytes.NewReader(data))
	test.That(t, err, test.ShouldBeNil)
	return tbl
}

func TestReadTableRejectsMismatches(t *testing.T) {
	cells := []Cell{{Pos: [3]float64{0, 0.5, 0.25}, Mode: OrientationZ, Reachable: true}}

	for _, tc := range []struct {
		name string
		file tableFile
		want string
	}{
		{
			"wrong version",
			tableFile{Version: 99, Fingerprint: ChainFingerprint(), Resolution: 0.25, Cells: cells},
			"version",
		},
		{
			"wrong fingerprint",
			tableFile{Version: TableVersion, Fingerprint: "arm:1:2:3:4", Resolution: 0.25, Cells: cells},
			"chain",
		},
		{
			"bad resolution",
			tableFile{Version: TableVersion, Fingerprint: ChainFingerprint(), Cells: cells},
			"resolution",
		},
		{
			"no cells",
			tableFile{Version: TableVersion, Fingerprint: ChainFingerprint(), Resolution: 0.25},
			"cells",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadTable(bytes.NewReader(tableBytes(t, tc.file)))
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.want)
		})
	}
}

func TestLoadTableGzip(t *testing.T) {
	data := tableBytes(t, tableFile{
		Version:     TableVersion,
		Fingerprint: ChainFingerprint(),
		Resolution:  0.25,
		Cells:       []Cell{{Pos: [3]float64{0, 0.5, 0.25}, Mode: OrientationZ, Reachable: true}},
	})

	dir := t.TempDir()
	plain := filepath.Join(dir, "table.json")
	test.That(t, os.WriteFile(plain, data, 0o644), test.ShouldBeNil)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write(data)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, gz.Close(), test.ShouldBeNil)
	compressed := filepath.Join(dir, "table.json.gz")
	test.That(t, os.WriteFile(compressed, buf.Bytes(), 0o644), test.ShouldBeNil)

	for _, path := range []string{plain, compressed} {
		tbl, err := LoadTable(path)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, tbl.Reachable(bodyframe.RightArm, r3.Vector{Y: 0.5, Z: 0.25}), test.ShouldBeTrue)
	}

	_, err = LoadTable(filepath.Join(dir, "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestReachable(t *testing.T) {
	tbl := simpleTable(t, []Cell{
		{Pos: [3]float64{0.25, 0.5, 0.25}, Mode: OrientationZ, Reachable: true},
		{Pos: [3]float64{0.25, 1.0, 0.25}, Mode: OrientationZ, Reachable: false},
	})

	// Exact cell and a nearby query both resolve to the reachable cell.
	test.That(t, tbl.Reachable(bodyframe.RightArm, r3.Vector{X: 0.25, Y: 0.5, Z: 0.25}), test.ShouldBeTrue)
	test.That(t, tbl.Reachable(bodyframe.RightArm, r3.Vector{X: 0.3, Y: 0.45, Z: 0.2}), test.ShouldBeTrue)

	// The unreachable marker wins for its own cell.
	test.That(t, tbl.Reachable(bodyframe.RightArm, r3.Vector{X: 0.25, Y: 1.0, Z: 0.25}), test.ShouldBeFalse)

	// Far outside every sample the table has no answer.
	test.That(t, tbl.Reachable(bodyframe.RightArm, r3.Vector{X: 4, Y: 0.5, Z: 4}), test.ShouldBeFalse)
}

func TestCandidatesMirrorLeftArm(t *testing.T) {
	tbl := simpleTable(t, []Cell{
		{
			Pos:         [3]float64{0.3, 0.5, 0.3},
			Mode:        OrientationX,
			Orientation: [3]float64{1, 0, 0},
			Reachable:   true,
		},
	})

	right := tbl.Candidates(bodyframe.RightArm, r3.Vector{X: 0.3, Y: 0.5, Z: 0.3})
	test.That(t, len(right), test.ShouldEqual, 1)
	test.That(t, right[0].Orientation.X, test.ShouldEqual, 1.0)

	// The same target mirrored across the sagittal plane answers for the
	// left arm, with the orientation mirrored back.
	left := tbl.Candidates(bodyframe.LeftArm, r3.Vector{X: -0.3, Y: 0.5, Z: 0.3})
	test.That(t, len(left), test.ShouldEqual, 1)
	test.That(t, left[0].Mode, test.ShouldEqual, OrientationX)
	test.That(t, left[0].Orientation.X, test.ShouldEqual, -1.0)

	// Reachability mirrors the same way.
	test.That(t, tbl.Reachable(bodyframe.LeftArm, r3.Vector{X: -0.3, Y: 0.5, Z: 0.3}), test.ShouldBeTrue)
}

func TestCandidatesOrderingAndCap(t *testing.T) {
	cells := []Cell{
		{Pos: [3]float64{0.25, 0.5, 0.25}, Mode: OrientationZ, Orientation: [3]float64{0, 0, 1}, Reachable: true},
		{Pos: [3]float64{0.5, 0.5, 0.25}, Mode: OrientationX, Orientation: [3]float64{1, 0, 0}, Reachable: true},
		{Pos: [3]float64{0.25, 0.75, 0.25}, Mode: OrientationY, Orientation: [3]float64{0, 1, 0}, Reachable: true},
		{Pos: [3]float64{0.25, 0.5, 0.5}, Mode: OrientationZ, Orientation: [3]float64{0, 0, -1}, Reachable: true},
		{Pos: [3]float64{0.5, 0.75, 0.25}, Mode: OrientationY, Orientation: [3]float64{0, -1, 0}, Reachable: true},
		// Duplicate parameters collapse to one candidate.
		{Pos: [3]float64{0.25, 0.25, 0.25}, Mode: OrientationZ, Orientation: [3]float64{0, 0, 1}, Reachable: true},
		// Unreachable cells never become candidates.
		{Pos: [3]float64{0.5, 0.5, 0.5}, Mode: OrientationNone, Reachable: false},
	}
	tbl := simpleTable(t, cells)

	got := tbl.Candidates(bodyframe.RightArm, r3.Vector{X: 0.25, Y: 0.5, Z: 0.25})
	test.That(t, len(got), test.ShouldEqual, MaxReachAttempts)
	// The covering cell's parameters come first.
	test.That(t, got[0].Mode, test.ShouldEqual, OrientationZ)
	test.That(t, got[0].Orientation.Z, test.ShouldEqual, 1.0)
	for _, c := range got {
		test.That(t, c.Mode, test.ShouldNotEqual, OrientationNone)
	}
}

func TestDefaultTable(t *testing.T) {
	tbl, err := DefaultTable()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tbl, test.ShouldNotBeNil)
	// The shipped table covers the space in front of the shoulders.
	test.That(t, len(tbl.cells), test.ShouldBeGreaterThan, 0)
}
