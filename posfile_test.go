// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.19
//

package rtkalign

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const posGPST = `% program   : gortk
% inp file  : rover.obs
%
%  GPST                  latitude(deg) longitude(deg)  height(m)   Q  ns   sdn(m)   sde(m)   sdu(m)  sdne(m)  sdeu(m)  sdun(m) age(s)  ratio
2024/03/06 13:47:08.000   35.681236800  139.767125000    40.1234   2   9   0.0300   0.0400   0.0500   0.0000   0.0000   0.0000   0.00    0.0
2024/03/06 13:47:07.000   35.681236000  139.767125100    40.1200   1   9   0.0030   0.0040   0.0100   0.0000   0.0000   0.0000   0.00   12.3

2024/03/06 13:47:09.500   35.681237000  139.767125200    40.1300   3   9   0.5000   0.5000   1.0000   0.0000   0.0000   0.0000   0.00    0.0
`

func TestReadPosFile(t *testing.T) {
	recs, err := ReadPosFile("sol.pos", strings.NewReader(posGPST), nil)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	t0 := TimeToStamp(time.Date(2024, 3, 6, 13, 47, 7, 0, time.UTC))
	assert.InDelta(t, t0-18, recs[0].Time, 1e-6, "GPST converted to UTC")
	assert.InDelta(t, t0-17, recs[1].Time, 1e-6)
	assert.InDelta(t, t0-15.5, recs[2].Time, 1e-6)

	r := recs[0]
	assert.Equal(t, "sol.pos", r.File)
	assert.Equal(t, QualityFixed, r.Quality)
	assert.Equal(t, 1, r.FixStatus)
	lat, lon := r.LLH.Deg()
	assert.InDelta(t, 35.681236, lat, 1e-12)
	assert.InDelta(t, 139.7671251, lon, 1e-12)
	assert.Equal(t, 40.12, r.LLH.Hei)
	assert.InDelta(t, 0.005, r.HAcc, 1e-12)
	assert.Equal(t, 0.01, r.VAcc)

	assert.Equal(t, QualityFloat, recs[1].Quality)
	assert.InDelta(t, 0.05, recs[1].HAcc, 1e-12)
	assert.Equal(t, QualityUnknown, recs[2].Quality, "SBAS is not used")
}

func TestReadPosFileKeepGPST(t *testing.T) {
	opt := NewPosFileOpt()
	opt.ToUTC = false
	recs, err := ReadPosFile("sol.pos", strings.NewReader(posGPST), opt)
	require.NoError(t, err)
	t0 := TimeToStamp(time.Date(2024, 3, 6, 13, 47, 7, 0, time.UTC))
	assert.InDelta(t, t0, recs[0].Time, 1e-6)
}

func TestReadPosFileUTCAndWeekSec(t *testing.T) {
	utc := `%  UTC                   latitude(deg) longitude(deg)  height(m)   Q  ns
2024/03/06 13:47:07.250   35.0   139.0   10.0   5   6
`
	recs, err := ReadPosFile("utc.pos", strings.NewReader(utc), nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.InDelta(t, TimeToStamp(time.Date(2024, 3, 6, 13, 47, 7, 250000000, time.UTC)), recs[0].Time, 1e-6)
	assert.Equal(t, QualitySingle, recs[0].Quality)
	assert.Equal(t, 0.0, recs[0].HAcc, "no sd columns")
	assert.Equal(t, 0.0, recs[0].VAcc)

	ws := `%  GPST          latitude(deg) longitude(deg)  height(m)   Q  ns   sdn(m)   sde(m)   sdu(m)
 2304 308827.000   35.0   139.0   10.0   4   6   0.3   0.4   0.9
`
	opt := NewPosFileOpt()
	opt.ToUTC = false
	recs, err = ReadPosFile("ws.pos", strings.NewReader(ws), opt)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	g := GTime{Week: 2304, Sec: 308827}
	assert.InDelta(t, g.ToStamp(), recs[0].Time, 1e-6)
	assert.Equal(t, QualityCodeDiff, recs[0].Quality)
	assert.InDelta(t, 0.5, recs[0].HAcc, 1e-12)
	assert.Equal(t, 0.9, recs[0].VAcc)
}

func TestReadPosFileMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
		file string
	}{
		{"bad latitude", "%  GPST latitude(deg) longitude(deg) height(m) Q ns\n2024/03/06 13:47:07.000 abc 139.0 10.0 1 6\n", "bad.pos:2"},
		{"bad time", "2024/13/06 13:47:07.000 35.0 139.0 10.0 1 6\n", "bad.pos:1"},
		{"short line", "\n\n2024/03/06 13:47:07.000 35.0 139.0\n", "bad.pos:3"},
		{"out of range", "2024/03/06 13:47:07.000 95.0 139.0 10.0 1 6\n", "bad.pos:1"},
		{"bad quality", "2024/03/06 13:47:07.000 35.0 139.0 10.0 x 6\n", "bad.pos:1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadPosFile("bad.pos", strings.NewReader(tt.body), nil)
			var mre *MalformedRecordError
			require.True(t, errors.As(err, &mre), "got %v", err)
			assert.Equal(t, tt.file, mre.File)
		})
	}
}

func TestReadPosPath(t *testing.T) {
	path := writeFile(t, t.TempDir(), "sol.pos", posGPST)
	recs, err := ReadPosPath(path, nil)
	require.NoError(t, err)
	assert.Len(t, recs, 3)
	assert.Equal(t, path, recs[0].File)

	_, err = ReadPosPath(filepath.Join(t.TempDir(), "none.pos"), nil)
	assert.Error(t, err)
}
