package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.viam.com/test"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "magbot.yaml")
	test.That(t, os.WriteFile(path, []byte(body), 0o644), test.ShouldBeNil)
	return path
}

func TestReadDefaults(t *testing.T) {
	path := writeConfig(t, "engine:\n  address: ws://localhost:7788\n")
	cfg, err := Read(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Engine.Address, test.ShouldEqual, "ws://localhost:7788")

	th := cfg.Thresholds()
	test.That(t, th.TippingDeg, test.ShouldEqual, 12.0)
	test.That(t, th.NearTippingDeg, test.ShouldEqual, 7.0)

	det := cfg.Detection()
	test.That(t, det.StopOnWall, test.ShouldBeTrue)
	test.That(t, det.StopOnFloor, test.ShouldBeFalse)
	test.That(t, det.AbortOnPreviousSameDirection, test.ShouldBeTrue)
	test.That(t, cfg.FrameInterval(), test.ShouldEqual, time.Duration(0))
}

func TestReadOverrides(t *testing.T) {
	path := writeConfig(t, `
engine:
  address: ws://sim:9
safety:
  tipping_deg: 20
  near_tipping_deg: 10
  mass_threshold: 2.5
  stop_on_wall: false
  abort_if_previous_same_direction_collided: false
  exclude_ids: [7, 8]
frame_rate_hz: 50
`)
	cfg, err := Read(path)
	test.That(t, err, test.ShouldBeNil)

	th := cfg.Thresholds()
	test.That(t, th.TippingDeg, test.ShouldEqual, 20.0)
	test.That(t, th.NearTippingDeg, test.ShouldEqual, 10.0)

	det := cfg.Detection()
	test.That(t, det.StopOnWall, test.ShouldBeFalse)
	test.That(t, det.MassThreshold, test.ShouldEqual, 2.5)
	test.That(t, det.AbortOnPreviousSameDirection, test.ShouldBeFalse)
	_, excluded := det.ExcludeIDs[7]
	test.That(t, excluded, test.ShouldBeTrue)

	test.That(t, cfg.FrameInterval(), test.ShouldEqual, 20*time.Millisecond)
}

func TestValidate(t *testing.T) {
	path := writeConfig(t, "safety:\n  tipping_deg: 5\n")
	_, err := Read(path)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "engine.address")

	path = writeConfig(t, "engine:\n  address: ws://x\nsafety:\n  tipping_deg: 5\n  near_tipping_deg: 9\n")
	_, err = Read(path)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "near_tipping_deg")
}
