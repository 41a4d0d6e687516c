// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.19
//

package rtkalign

import (
	"fmt"
	"strings"
)

// Solution quality of a GNSS fix. Values follow the Q column of pos files.
type Quality int

const (
	QualityUnknown  Quality = 0
	QualityFixed    Quality = 1 // RTK fixed solution
	QualityFloat    Quality = 2 // RTK float solution
	QualityCodeDiff Quality = 4 // Code differential (DGPS)
	QualitySingle   Quality = 5 // Single point positioning
)

// Variance assigned to qualities missing from a VarianceTable
const UNKNOWN_VARIANCE = 100.0

// Names accepted for each quality, including the status strings written by the recorder app
var QUALITY_NAMES = map[string]Quality{
	"固定解":               QualityFixed,
	"浮点解":               QualityFloat,
	"码差分":               QualityCodeDiff,
	"单点解":               QualitySingle,
	"fixed":             QualityFixed,
	"fix":               QualityFixed,
	"float":             QualityFloat,
	"code_differential": QualityCodeDiff,
	"codediff":          QualityCodeDiff,
	"dgps":              QualityCodeDiff,
	"single":            QualitySingle,
	"spp":               QualitySingle,
}

// Parse quality from a status string. Unrecognised strings yield QualityUnknown and an error.
func ParseQuality(s string) (Quality, error) {
	k := strings.TrimSpace(s)
	if q, ok := QUALITY_NAMES[k]; ok {
		return q, nil
	}
	if q, ok := QUALITY_NAMES[strings.ToLower(k)]; ok {
		return q, nil
	}
	return QualityUnknown, fmt.Errorf("unknown quality %q", s)
}

func (q Quality) String() string {
	switch q {
	case QualityFixed:
		return "FIXED"
	case QualityFloat:
		return "FLOAT"
	case QualityCodeDiff:
		return "CODE_DIFFERENTIAL"
	case QualitySingle:
		return "SINGLE"
	default:
		return "UNKNOWN"
	}
}

// Quality class to numeric variance lookup
type VarianceTable map[Quality]float64

func DefaultVarianceTable() VarianceTable {
	return VarianceTable{
		QualityFixed:    0.01,
		QualityFloat:    1.0,
		QualityCodeDiff: 5.0,
		QualitySingle:   10.0,
	}
}

// Return the variance for q, UNKNOWN_VARIANCE if not listed
func (t VarianceTable) Lookup(q Quality) float64 {
	if v, ok := t[q]; ok {
		return v
	}
	return UNKNOWN_VARIANCE
}
