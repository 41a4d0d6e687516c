// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.19
//

package main

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "github.com/mkhts/rtkalign"
	"github.com/mkhts/rtkalign/internal/store"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "rtkalign", cmd.Use)
	assert.Contains(t, cmd.Long, "LocaltoWGS84")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"align", "origin", "georef", "runs"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err, "Command %s should exist", name)
			require.NotNil(t, sub)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	assert.Equal(t, "false", verbose.DefValue)

	debug := cmd.PersistentFlags().Lookup("debug")
	require.NotNil(t, debug)
	assert.Equal(t, "x", debug.Shorthand)
	assert.Equal(t, "0", debug.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestAlignCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	align, _, err := cmd.Find([]string{"align"})
	require.NoError(t, err)

	output := align.Flags().Lookup("output")
	require.NotNil(t, output)
	assert.Equal(t, "o", output.Shorthand)
	for _, name := range []string{"format", "origin", "plot", "db", "workers", "weighted"} {
		assert.NotNil(t, align.Flags().Lookup(name), "flag %s", name)
	}
	assert.Equal(t, "latlon", align.Flags().Lookup("origin").Value.Type())
}

// Run the root command with args, returning stdout
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

const (
	testShift = 0.3
	testT0    = 1709732800.0
)

var (
	testOrigin = *m.NewPosLLHDeg(40, 116, 0)
	testYaw    = m.ToRad(30)
	testT      = r3.Vector{X: 10, Y: -5, Z: 50}
)

func testTrajectory(t float64) r3.Vector {
	return r3.Vector{X: 3 * math.Cos(0.5*t), Y: 0.5 * t, Z: 2 * math.Sin(0.3*t)}
}

// Local model point to (east, north, height) with the test transform
func testToENH(p r3.Vector) r3.Vector {
	q := m.LOCAL_TO_COMPARISON.Apply(p)
	c, s := math.Cos(testYaw), math.Sin(testYaw)
	return r3.Vector{X: c*q.X - s*q.Y, Y: s*q.X + c*q.Y, Z: q.Z}.Add(testT)
}

// Write pose and RTK record directories. Fixes are taken at pose samples
// so the truth is exact under linear interpolation.
func writeDataset(t *testing.T) (rtkDir, poseDir string) {
	t.Helper()
	root := t.TempDir()
	rtkDir = filepath.Join(root, "rtk")
	poseDir = filepath.Join(root, "pose")
	require.NoError(t, os.Mkdir(rtkDir, 0755))
	require.NoError(t, os.Mkdir(poseDir, 0755))

	for i := 0; i <= 200; i++ {
		ts := testT0 + 0.1*float64(i)
		p := testTrajectory(0.1 * float64(i))
		body := fmt.Sprintf(`{"globaltimestamp": %v,
"t_00": 1, "t_01": 0, "t_02": 0, "t_03": %v,
"t_10": 0, "t_11": 1, "t_12": 0, "t_13": %v,
"t_20": 0, "t_21": 0, "t_22": 1, "t_23": %v,
"t_30": 0, "t_31": 0, "t_32": 0, "t_33": 1}`, ts, p.X, p.Y, p.Z)
		require.NoError(t, os.WriteFile(filepath.Join(poseDir, fmt.Sprintf("%06d.json", i)), []byte(body), 0644))
	}

	entries := [2][]string{}
	for k := 0; k <= 36; k++ {
		// Pose sample 7+5k at fix time minus the shift
		i := 7 + 5*k
		q := testToENH(testTrajectory(0.1 * float64(i)))
		llh := m.FromLocalCartesian(testOrigin, q.X, q.Y)
		lat, lon := llh.Deg()
		ts := testT0 + 0.1*float64(i) + testShift
		entries[k%2] = append(entries[k%2], fmt.Sprintf(
			`{"timeStamp": %v, "latitude": %v, "longitude": %v, "height": %v, "diffStatus": "固定解", "horizontalAccuracy": 0.014, "verticalAccuracy": 0.02}`,
			ts, lat, lon, q.Z))
	}
	for n, e := range entries {
		body := `{"rtkData": [` + strings.Join(e, ",\n") + `]}`
		require.NoError(t, os.WriteFile(filepath.Join(rtkDir, fmt.Sprintf("rtk%d.json", n)), []byte(body), 0644))
	}
	return rtkDir, poseDir
}

func parseFields(t *testing.T, s string) []float64 {
	t.Helper()
	var v []float64
	for _, f := range strings.Fields(s) {
		x, err := strconv.ParseFloat(f, 64)
		require.NoError(t, err)
		v = append(v, x)
	}
	return v
}

func TestAlignEndToEnd(t *testing.T) {
	rtkDir, poseDir := writeDataset(t)
	dir := t.TempDir()
	result := filepath.Join(dir, "result.json")
	db := filepath.Join(dir, "runs.db")

	out, err := execute(t, "align", rtkDir, poseDir, "-o", result, "--origin", "40 116", "--db", db, "--workers", "4")
	require.NoError(t, err)
	assert.Empty(t, out)

	f, err := os.Open(result)
	require.NoError(t, err)
	defer f.Close()
	res, err := m.ReadGeoResult(f)
	require.NoError(t, err)
	assert.Equal(t, "WGS84", res.CoordinateSystem)
	assert.InDelta(t, 40, res.Origin[0], 1e-9)
	assert.InDelta(t, 116, res.Origin[1], 1e-9)
	assert.InDelta(t, 0, res.Quaternion[0], 1e-6)
	assert.InDelta(t, 0, res.Quaternion[1], 1e-6)
	assert.InDelta(t, math.Sin(testYaw/2), res.Quaternion[2], 1e-6)
	assert.InDelta(t, math.Cos(testYaw/2), res.Quaternion[3], 1e-6)
	assert.InDelta(t, testT.X, res.Translation[0], 1e-3)
	assert.InDelta(t, testT.Y, res.Translation[1], 1e-3)
	assert.InDelta(t, testT.Z, res.Translation[2], 1e-3)

	// Pose sample 7 maps onto the first fix
	p := testTrajectory(0.7)
	out, err = execute(t, "georef", result, "--", fmt.Sprint(p.X), fmt.Sprint(p.Y), fmt.Sprint(p.Z))
	require.NoError(t, err)
	got := parseFields(t, out)
	require.Len(t, got, 3)
	q := testToENH(p)
	want := m.FromLocalCartesian(testOrigin, q.X, q.Y)
	lat, lon := want.Deg()
	assert.InDelta(t, lat, got[0], 1e-8)
	assert.InDelta(t, lon, got[1], 1e-8)
	assert.InDelta(t, q.Z, got[2], 1e-3)

	// Recorded run
	st, err := store.Open(db)
	require.NoError(t, err)
	runs, err := st.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.NoError(t, st.Close())
	require.Len(t, runs, 1)
	assert.InDelta(t, testShift, runs[0].FineShift, 1e-9)
	assert.Equal(t, 201, runs[0].NumPoses)
	assert.Equal(t, 37, runs[0].NumFixes)

	out, err = execute(t, "runs", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, runs[0].ID)
	assert.Contains(t, out, "shift=0.3000")

	out, err = execute(t, "runs", "--db", db, "--curve", runs[0].ID)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 41)
	assert.True(t, strings.HasPrefix(lines[0], "coarse"))
	assert.True(t, strings.HasPrefix(lines[40], "fine"))
}

func TestAlignGeoJSONAndConfig(t *testing.T) {
	rtkDir, poseDir := writeDataset(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "rtkalign.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`search:
  weighted: true
output:
  format: geojson
`), 0644))
	plotPath := filepath.Join(dir, "curve.png")

	out, err := execute(t, "--config", cfgPath, "align", rtkDir, poseDir, "--plot", plotPath)
	require.NoError(t, err)
	assert.Contains(t, out, `"type":"Feature"`)
	assert.Contains(t, out, `"LocaltoWGS84"`)
	_, err = os.Stat(plotPath)
	assert.NoError(t, err)

	// --format overrides the config
	out, err = execute(t, "--config", cfgPath, "align", rtkDir, poseDir, "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"coordinateSystem": "WGS84"`)
}

func TestAlignErrors(t *testing.T) {
	rtkDir, poseDir := writeDataset(t)

	_, err := execute(t, "align", rtkDir)
	assert.Error(t, err)

	_, err = execute(t, "align", rtkDir, filepath.Join(t.TempDir(), "missing"))
	assert.ErrorContains(t, err, "failed to read poses")

	_, err = execute(t, "align", filepath.Join(t.TempDir(), "rtk.txt"), poseDir)
	assert.Error(t, err)

	_, err = execute(t, "align", rtkDir, poseDir, "--format", "xml")
	assert.ErrorContains(t, err, "invalid option")

	_, err = execute(t, "-x", "9", "align", rtkDir, poseDir)
	assert.ErrorContains(t, err, "invalid debug level")

	// Poses an hour away from every fix
	farDir := t.TempDir()
	body := func(ts float64) string {
		return fmt.Sprintf(`{"globaltimestamp": %v, "t_00": 1, "t_01": 0, "t_02": 0, "t_03": 0, "t_10": 0, "t_11": 1, "t_12": 0, "t_13": 0, "t_20": 0, "t_21": 0, "t_22": 1, "t_23": 0}`, ts)
	}
	require.NoError(t, os.WriteFile(filepath.Join(farDir, "a.json"), []byte(body(testT0-3600)), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(farDir, "b.json"), []byte(body(testT0-3599)), 0644))
	_, err = execute(t, "align", rtkDir, farDir)
	var afe *m.AlignmentFailedError
	assert.ErrorAs(t, err, &afe)
	assert.ErrorContains(t, err, "no alignment found")
}

func TestOriginCommand(t *testing.T) {
	rtkDir, _ := writeDataset(t)
	out, err := execute(t, "origin", rtkDir)
	require.NoError(t, err)
	got := parseFields(t, out)
	require.Len(t, got, 3)

	// First fix in time order
	q := testToENH(testTrajectory(0.7))
	want := m.FromLocalCartesian(testOrigin, q.X, q.Y)
	lat, lon := want.Deg()
	assert.InDelta(t, lat, got[0], 1e-8)
	assert.InDelta(t, lon, got[1], 1e-8)
	assert.InDelta(t, q.Z, got[2], 1e-3)

	_, err = execute(t, "origin", t.TempDir())
	assert.Error(t, err)
}

func TestRunsRequiresDB(t *testing.T) {
	_, err := execute(t, "runs")
	assert.Error(t, err)
}

func TestGeorefInvalid(t *testing.T) {
	_, err := execute(t, "georef", filepath.Join(t.TempDir(), "none.json"), "1", "2", "3")
	assert.Error(t, err)
	_, err = execute(t, "georef", "result.json", "1", "y", "3")
	assert.ErrorContains(t, err, "invalid coordinate")
}
