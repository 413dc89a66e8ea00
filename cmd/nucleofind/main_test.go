package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nucleofind/pkg/errors"
)

// run executes the CLI with a config path inside a fresh temp dir.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "nucleofind.yaml")
	return runWithConfig(t, cfgPath, args...)
}

func runWithConfig(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"-c", cfgPath, "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestPlanText(t *testing.T) {
	out, err := run(t, "plan", "--cell", "10,10,10")
	require.NoError(t, err)
	assert.Contains(t, out, "Space group:   P 1")
	assert.Contains(t, out, "Working grid:  [14 14 14] at 0.7 Å")
	assert.Contains(t, out, "Tiles:         1 ([1 1 1], size 32, stride 16, (0,0,0)..(0,0,0))")
	assert.Contains(t, out, "Buffers:       [48 48 48] (valid [32 32 32])")
	assert.Contains(t, out, "Output grid:   [15 15 15]")
}

func TestPlanJSONWithSymmetry(t *testing.T) {
	out, err := run(t, "plan", "--cell", "20,20,20,90,90,90", "--spacegroup", "P212121", "--json")
	require.NoError(t, err)

	var report planReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "P 21 21 21", report.SpaceGroup)
	assert.Equal(t, [3]int{14, 14, 28}, report.WorkingShape)
	assert.Equal(t, 2, report.Tiles)
	assert.Equal(t, "(0,0,16)", report.LastTile)
	assert.Equal(t, [3]int{30, 30, 30}, report.OutputShape)
	assert.InDelta(t, 10, report.BoxMaximum[0], 1e-9)
}

func TestPlanFlagOverrides(t *testing.T) {
	out, err := run(t, "plan", "--cell", "10,10,10", "--overlap", "8", "--json")
	require.NoError(t, err)
	var report planReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 8, report.Tiles)
	assert.Equal(t, 8, report.Overlap)

	_, err = run(t, "plan", "--cell", "10,10,10", "--overlap", "20")
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestPlanEnvironmentOverrides(t *testing.T) {
	t.Setenv("NUCLEOFIND_SAMPLING_FULLCELL", "true")
	t.Setenv("NUCLEOFIND_TILING_OVERLAP", "32")

	out, err := run(t, "plan", "--cell", "20,20,20", "--spacegroup", "P 21 21 21", "--json")
	require.NoError(t, err)
	var report planReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, [3]int{28, 28, 28}, report.WorkingShape)
	assert.Equal(t, 32, report.Overlap)
	assert.Equal(t, 1, report.Tiles)

	// Flags win over the environment.
	out, err = run(t, "plan", "--cell", "20,20,20", "--overlap", "16", "--json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 16, report.Overlap)
}

func TestPlanRejectsBadInput(t *testing.T) {
	_, err := run(t, "plan", "--cell", "10,10")
	assert.Error(t, err)

	_, err = run(t, "plan", "--cell", "10,10,x")
	assert.Error(t, err)

	_, err = run(t, "plan", "--cell", "10,10,10", "--spacegroup", "P 63")
	assert.ErrorContains(t, err, "P 21 21 21")

	_, err = run(t, "plan")
	assert.Error(t, err)
}

func TestConfigInitAndShow(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "conf", "nucleofind.yaml")

	out, err := runWithConfig(t, cfgPath, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote default configuration")
	_, err = os.Stat(cfgPath)
	require.NoError(t, err)

	_, err = runWithConfig(t, cfgPath, "config", "init")
	assert.ErrorContains(t, err, "already exists")
	_, err = runWithConfig(t, cfgPath, "config", "init", "--force")
	assert.NoError(t, err)

	out, err = runWithConfig(t, cfgPath, "config", "show", "--output-mode", "argmax")
	require.NoError(t, err)
	assert.Contains(t, out, "outputMode: argmax")
	assert.Contains(t, out, "tileSize: 32")
}

func TestSpaceGroupsAndVersion(t *testing.T) {
	out, err := run(t, "spacegroups")
	require.NoError(t, err)
	assert.Contains(t, out, "P 43 21 2")
	assert.Contains(t, out, " 8 ops")

	out, err = run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "nucleofind dev")
}
