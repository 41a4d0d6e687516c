// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.19
//

// Reads pose and RTK records written by the capture app (one JSON file per record).

package rtkalign

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/golang/geo/r3"
	"golang.org/x/exp/slices"
)

// Record file that is missing a field or has a field of the wrong type
type MalformedRecordError struct {
	File  string
	Field string
	Err   error
}

func (e *MalformedRecordError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed record %s: %v", e.File, e.Err)
	}
	return fmt.Sprintf("malformed record %s: field %q: %v", e.File, e.Field, e.Err)
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Err
}

// Number that may be written either as a JSON number or as a numeric string
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return &json.UnmarshalTypeError{Value: "string " + strconv.Quote(s), Type: reflect.TypeOf(float64(0))}
		}
		*f = FlexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return &json.UnmarshalTypeError{Value: string(b), Type: reflect.TypeOf(float64(0))}
	}
	*f = FlexFloat(v)
	return nil
}

func (f *FlexFloat) Float() float64 {
	return float64(*f)
}

var recordValidator = newRecordValidator()

func newRecordValidator() *validator.Validate {
	v := validator.New()
	// Report JSON names instead of Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Decode one JSON record and check required fields
func decodeRecord(file string, r io.Reader, dst any) error {
	dec := json.NewDecoder(r)
	if err := dec.Decode(dst); err != nil {
		var ute *json.UnmarshalTypeError
		if errors.As(err, &ute) {
			return &MalformedRecordError{File: file, Field: ute.Field, Err: err}
		}
		return &MalformedRecordError{File: file, Err: err}
	}
	if err := recordValidator.Struct(dst); err != nil {
		var ves validator.ValidationErrors
		if errors.As(err, &ves) && len(ves) > 0 {
			fe := ves[0]
			field := fe.Namespace()
			if i := strings.Index(field, "."); i >= 0 {
				field = field[i+1:]
			}
			return &MalformedRecordError{File: file, Field: field, Err: fmt.Errorf("failed %q check", fe.Tag())}
		}
		return &MalformedRecordError{File: file, Err: err}
	}
	return nil
}

// List *.json regular files in dir
func listJSON(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := []string{}
	for _, e := range ents {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".json") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

//-------------------------------------------------------------------
// Pose records
//-------------------------------------------------------------------

type poseJSON struct {
	GlobalTimestamp *FlexFloat `json:"globaltimestamp" validate:"required"`
	T00             *FlexFloat `json:"t_00" validate:"required"`
	T01             *FlexFloat `json:"t_01" validate:"required"`
	T02             *FlexFloat `json:"t_02" validate:"required"`
	T03             *FlexFloat `json:"t_03" validate:"required"`
	T10             *FlexFloat `json:"t_10" validate:"required"`
	T11             *FlexFloat `json:"t_11" validate:"required"`
	T12             *FlexFloat `json:"t_12" validate:"required"`
	T13             *FlexFloat `json:"t_13" validate:"required"`
	T20             *FlexFloat `json:"t_20" validate:"required"`
	T21             *FlexFloat `json:"t_21" validate:"required"`
	T22             *FlexFloat `json:"t_22" validate:"required"`
	T23             *FlexFloat `json:"t_23" validate:"required"`
}

// Camera pose record
type PoseRecord struct {
	File string      // Source file
	Time float64     // Global timestamp [s]
	T    [16]float64 // Homogeneous camera-to-local transform, row-major
}

// Translation part of the pose
func (p *PoseRecord) Position() r3.Vector {
	return r3.Vector{X: p.T[3], Y: p.T[7], Z: p.T[11]}
}

func (p *PoseRecord) ToSample() PoseSample {
	return PoseSample{Time: p.Time, Pos: p.Position()}
}

// Read a pose record from r. name is used in error messages.
func DecodePose(name string, r io.Reader) (*PoseRecord, error) {
	var j poseJSON
	if err := decodeRecord(name, r, &j); err != nil {
		return nil, err
	}
	return &PoseRecord{
		File: name,
		Time: j.GlobalTimestamp.Float(),
		T: [16]float64{
			j.T00.Float(), j.T01.Float(), j.T02.Float(), j.T03.Float(),
			j.T10.Float(), j.T11.Float(), j.T12.Float(), j.T13.Float(),
			j.T20.Float(), j.T21.Float(), j.T22.Float(), j.T23.Float(),
			0, 0, 0, 1,
		},
	}, nil
}

// Read a pose record file
func ReadPose(path string) (*PoseRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodePose(path, f)
}

// Read all pose records in dir, sorted by time
func ReadPoseDir(dir string) ([]*PoseRecord, error) {
	files, err := listJSON(dir)
	if err != nil {
		return nil, err
	}
	recs := make([]*PoseRecord, 0, len(files))
	for _, fn := range files {
		p, err := ReadPose(fn)
		if err != nil {
			return nil, err
		}
		recs = append(recs, p)
	}
	slices.SortStableFunc(recs, func(a, b *PoseRecord) int {
		return cmp.Compare(a.Time, b.Time)
	})
	return recs, nil
}

// Load pose samples (positions only) from dir, sorted by time
func LoadPoses(dir string) ([]PoseSample, error) {
	recs, err := ReadPoseDir(dir)
	if err != nil {
		return nil, err
	}
	poses := make([]PoseSample, len(recs))
	for i, p := range recs {
		poses[i] = p.ToSample()
	}
	return poses, nil
}

//-------------------------------------------------------------------
// RTK records
//-------------------------------------------------------------------

type rtkFileJSON struct {
	RtkData []rtkJSON `json:"rtkData" validate:"required,min=1,dive"`
}

type rtkJSON struct {
	TimeStamp          *FlexFloat `json:"timeStamp" validate:"required"`
	CreateTime         *FlexFloat `json:"createTime"`
	FixStatus          *FlexFloat `json:"fixStatus"`
	Latitude           *FlexFloat `json:"latitude" validate:"required"`
	Longitude          *FlexFloat `json:"longitude" validate:"required"`
	Height             *FlexFloat `json:"height" validate:"required"`
	DiffStatus         *string    `json:"diffStatus" validate:"required"`
	HorizontalAccuracy *FlexFloat `json:"horizontalAccuracy" validate:"required"`
	VerticalAccuracy   *FlexFloat `json:"verticalAccuracy" validate:"required"`
}

// RTK fix record as written by the receiver app
type FixRecord struct {
	File       string
	Time       float64 // Timestamp [s]
	CreateTime float64 // Record creation time [s], 0 if absent
	FixStatus  int     // Receiver fix status code, 0 if absent
	LLH        PosLLH  // Geodetic position (radians, height in m)
	DiffStatus string  // Raw status string
	Quality    Quality // Parsed from DiffStatus
	HAcc       float64 // Horizontal accuracy [m]
	VAcc       float64 // Vertical accuracy [m]
}

// Read all fix entries from r. name is used in error messages.
func DecodeFixes(name string, r io.Reader) ([]*FixRecord, error) {
	var j rtkFileJSON
	if err := decodeRecord(name, r, &j); err != nil {
		return nil, err
	}
	recs := make([]*FixRecord, 0, len(j.RtkData))
	for _, d := range j.RtkData {
		lat := d.Latitude.Float()
		lon := d.Longitude.Float()
		if math.Abs(lat) > 90 || math.Abs(lon) > 180 {
			return nil, &MalformedRecordError{File: name, Field: "latitude/longitude", Err: fmt.Errorf("out of range: %f %f", lat, lon)}
		}
		q, err := ParseQuality(*d.DiffStatus)
		if err != nil {
			PrintD(1, "%s: %s\n", name, err.Error())
		}
		rec := &FixRecord{
			File:       name,
			Time:       d.TimeStamp.Float(),
			LLH:        *NewPosLLHDeg(lat, lon, d.Height.Float()),
			DiffStatus: *d.DiffStatus,
			Quality:    q,
			HAcc:       d.HorizontalAccuracy.Float(),
			VAcc:       d.VerticalAccuracy.Float(),
		}
		if d.CreateTime != nil {
			rec.CreateTime = d.CreateTime.Float()
		}
		if d.FixStatus != nil {
			rec.FixStatus = int(d.FixStatus.Float())
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Read an RTK record file
func ReadFix(path string) ([]*FixRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeFixes(path, f)
}

// Read all RTK records in dir, sorted by time
func ReadFixDir(dir string) ([]*FixRecord, error) {
	files, err := listJSON(dir)
	if err != nil {
		return nil, err
	}
	recs := []*FixRecord{}
	for _, fn := range files {
		r, err := ReadFix(fn)
		if err != nil {
			return nil, err
		}
		recs = append(recs, r...)
	}
	SortFixRecords(recs)
	return recs, nil
}

func SortFixRecords(recs []*FixRecord) {
	slices.SortStableFunc(recs, func(a, b *FixRecord) int {
		return cmp.Compare(a.Time, b.Time)
	})
}

// FindOrigin returns the first fixed record in time order, or failing that,
// the record with the smallest max(horizontal, vertical) accuracy.
func FindOrigin(recs []*FixRecord) (PosLLH, error) {
	if len(recs) == 0 {
		return PosLLH{}, fmt.Errorf("no RTK records to select an origin from")
	}
	best := math.Inf(1)
	var origin *FixRecord
	for _, r := range recs {
		if r.Quality == QualityFixed {
			return r.LLH, nil
		}
		acc := math.Max(r.HAcc, r.VAcc)
		if acc < best {
			best = acc
			origin = r
		}
	}
	if origin == nil {
		origin = recs[0]
	}
	return origin.LLH, nil
}

// FixOpt controls conversion of fix records into alignment samples
type FixOpt struct {
	Variances VarianceTable // Quality to variance lookup
	Accept    []Quality     // Qualities kept for alignment
	Origin    *PosLLH       // Fixed origin. If nil, chosen by FindOrigin
}

// NewFixOpt creates a new FixOpt with default values
func NewFixOpt() *FixOpt {
	return &FixOpt{
		Variances: DefaultVarianceTable(),  // 0.01/1/5/10
		Accept:    []Quality{QualityFixed}, // RTK fixed only
		Origin:    nil,                     // Automatic
	}
}

// Project records around origin, dropping qualities not accepted by opt
func FixesToLocal(recs []*FixRecord, origin PosLLH, opt *FixOpt) []GeoFixSample {
	if opt == nil {
		opt = NewFixOpt()
	}
	fixes := make([]GeoFixSample, 0, len(recs))
	for _, r := range recs {
		if !slices.Contains(opt.Accept, r.Quality) {
			continue
		}
		e, n := ToLocalCartesian(origin, r.LLH)
		fixes = append(fixes, GeoFixSample{
			Time:     r.Time,
			Pos:      r3.Vector{X: e, Y: n, Z: r.LLH.Hei},
			HAcc:     r.HAcc,
			VAcc:     r.VAcc,
			Quality:  r.Quality,
			Variance: opt.Variances.Lookup(r.Quality),
		})
	}
	return fixes
}

// Load RTK samples from dir. Returns the samples (sorted by time) and the origin used.
func LoadFixes(dir string, opt *FixOpt) ([]GeoFixSample, PosLLH, error) {
	recs, err := ReadFixDir(dir)
	if err != nil {
		return nil, PosLLH{}, err
	}
	return FixRecordsToSamples(recs, opt)
}

// Select the origin (unless given in opt) and project the records
func FixRecordsToSamples(recs []*FixRecord, opt *FixOpt) ([]GeoFixSample, PosLLH, error) {
	if opt == nil {
		opt = NewFixOpt()
	}
	var origin PosLLH
	if opt.Origin != nil {
		origin = *opt.Origin
	} else {
		o, err := FindOrigin(recs)
		if err != nil {
			return nil, PosLLH{}, err
		}
		origin = o
	}
	return FixesToLocal(recs, origin, opt), origin, nil
}
