package articulation

import (
	"bytes"
	_ "embed"
)

//go:embed data/orientation_table.json
var defaultTableData []byte

// DefaultTable returns the solution table shipped with this build. It is
// parsed once per call; callers should hold on to the result.
func DefaultTable() (*Table, error) {
	return ReadTable(bytes.NewReader(defaultTableData))
}
