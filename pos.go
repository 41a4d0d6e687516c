// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.19
//

package rtkalign

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

//-------------------------------------------------------------------
// PosLLH
//-------------------------------------------------------------------

// Geodetic position. Lat/Lon in radians, Hei is the ellipsoidal height [m].
type PosLLH struct {
	Lat float64
	Lon float64
	Hei float64
}

func NewPosLLH(lat, lon, hei float64) *PosLLH {
	return &PosLLH{
		Lat: lat,
		Lon: lon,
		Hei: hei,
	}
}

// Construct from latitude/longitude in degrees
func NewPosLLHDeg(latDeg, lonDeg, hei float64) *PosLLH {
	return NewPosLLH(ToRad(latDeg), ToRad(lonDeg), hei)
}

// Latitude and longitude in degrees
func (llh *PosLLH) Deg() (lat, lon float64) {
	return ToDeg(llh.Lat), ToDeg(llh.Lon)
}

func (llh *PosLLH) ToXYZ() PosXYZ {
	// Ellipsoid parameters
	f := Fe                     // Flattening
	a := Re                     // Semi-major axis
	e := math.Sqrt(f * (2 - f)) // Eccentricity

	// Conversion to Cartesian coordinates
	n := a / math.Sqrt(1-e*e*math.Sin(llh.Lat)*math.Sin(llh.Lat))
	return PosXYZ{
		X: (n + llh.Hei) * math.Cos(llh.Lat) * math.Cos(llh.Lon),
		Y: (n + llh.Hei) * math.Cos(llh.Lat) * math.Sin(llh.Lon),
		Z: (n*(1-e*e) + llh.Hei) * math.Sin(llh.Lat),
	}
}

// Read from string "lat lon [hei]" in degrees (flag.Value)
func (llh *PosLLH) Set(s string) error {
	f := strings.Fields(strings.ReplaceAll(s, ",", " "))
	if len(f) < 2 || len(f) > 3 {
		return fmt.Errorf("expected \"lat lon [height]\", got %q", s)
	}
	v := [3]float64{}
	for i, a := range f {
		x, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return err
		}
		v[i] = x
	}
	if v[0] < -90 || v[0] > 90 || v[1] < -180 || v[1] > 180 {
		return fmt.Errorf("lat/lon out of range: %f %f", v[0], v[1])
	}
	*llh = *NewPosLLHDeg(v[0], v[1], v[2])
	return nil
}

// Convert to string (degrees)
func (llh *PosLLH) String() string {
	lat, lon := llh.Deg()
	return fmt.Sprintf("%.9f %.9f %.4f", lat, lon, llh.Hei)
}

// Type name for pflag.Value
func (llh *PosLLH) Type() string {
	return "latlon"
}

//-------------------------------------------------------------------
// PosXYZ
//-------------------------------------------------------------------

// ECEF position [m]
type PosXYZ struct {
	X float64
	Y float64
	Z float64
}

func (pos *PosXYZ) ToLLH() PosLLH {
	// In case of origin
	if pos.X == 0 && pos.Y == 0 && pos.Z == 0 {
		return PosLLH{Lat: 0, Lon: 0, Hei: -Re}
	}

	// Ellipsoid parameters
	f := Fe                     // Flattening
	a := Re                     // Semi-major axis
	b := a * (1 - f)            // Semi-minor axis
	e := math.Sqrt(f * (2 - f)) // Eccentricity

	// Parameters for coordinate transformation
	h := a*a - b*b
	p := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y)
	t := math.Atan2(pos.Z*a, p*b)
	sint := math.Sin(t)
	cost := math.Cos(t)

	// Conversion to latitude and longitude
	lat := math.Atan2(pos.Z+h/b*sint*sint*sint, p-h/a*cost*cost*cost)
	lon := math.Atan2(pos.Y, pos.X)
	n := a / math.Sqrt(1-e*e*math.Sin(lat)*math.Sin(lat)) // Radius of curvature in the prime vertical
	hei := p/math.Cos(lat) - n
	return PosLLH{Lat: lat, Lon: lon, Hei: hei}
}

func rotateToENU(x, y, z float64, ref PosLLH) PosENU {
	s1 := math.Sin(ref.Lon)
	c1 := math.Cos(ref.Lon)
	s2 := math.Sin(ref.Lat)
	c2 := math.Cos(ref.Lat)

	// Rotate the relative position to convert to ENU coordinates
	return PosENU{
		E: -x*s1 + y*c1,
		N: -x*c1*s2 - y*s1*s2 + z*c2,
		U: x*c1*c2 + y*s1*c2 + z*s2,
	}
}

//-------------------------------------------------------------------
// PosENU
//-------------------------------------------------------------------

// Local tangent plane position [m]
type PosENU struct {
	E float64
	N float64
	U float64
}

// Convert to ECEF around the reference given in geodetic coordinates
func (enu *PosENU) ToXYZ(ref PosLLH) PosXYZ {
	s1 := math.Sin(ref.Lon)
	c1 := math.Cos(ref.Lon)
	s2 := math.Sin(ref.Lat)
	c2 := math.Cos(ref.Lat)

	// Rotate the ENU coordinates to convert to relative position
	x := -enu.E*s1 - enu.N*c1*s2 + enu.U*c1*c2
	y := enu.E*c1 - enu.N*s1*s2 + enu.U*s1*c2
	z := enu.N*c2 + enu.U*s2

	// Add to the reference location
	base := ref.ToXYZ()
	return PosXYZ{
		X: x + base.X,
		Y: y + base.Y,
		Z: z + base.Z,
	}
}

//-------------------------------------------------------------------
// Local Cartesian projection
//-------------------------------------------------------------------

// ToLocalCartesian projects target onto the tangent plane centered at ref.
// Heights of both points are ignored (taken as 0 on the ellipsoid).
func ToLocalCartesian(ref, target PosLLH) (east, north float64) {
	r := PosLLH{Lat: ref.Lat, Lon: ref.Lon}
	t := PosLLH{Lat: target.Lat, Lon: target.Lon}
	base := r.ToXYZ()
	xyz := t.ToXYZ()
	enu := rotateToENU(xyz.X-base.X, xyz.Y-base.Y, xyz.Z-base.Z, r)
	return enu.E, enu.N
}

// FromLocalCartesian is the inverse of ToLocalCartesian (zero up component).
// The returned height is that of the tangent plane point, not 0.
func FromLocalCartesian(ref PosLLH, east, north float64) PosLLH {
	r := PosLLH{Lat: ref.Lat, Lon: ref.Lon}
	enu := PosENU{E: east, N: north}
	xyz := enu.ToXYZ(r)
	return xyz.ToLLH()
}
