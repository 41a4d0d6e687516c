// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.19
//

package rtkalign

import (
	"fmt"
	"io"
	"os"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// ------------------------------------
// Mini functions
// ------------------------------------

func SQ(x float64) float64 {
	return x * x
}

func ToDeg(rad float64) float64 {
	return rad / PI * 180.0
}

func ToRad(deg float64) float64 {
	return deg / 180.0 * PI
}

// ------------------------------------
// Debug print function
// ------------------------------------

// Destination of debug output. Replaced in tests.
var DebugOut io.Writer = os.Stderr

// Serializes writes to DebugOut (search workers print concurrently)
var debugMu sync.Mutex

func PrintMat(X mat.Matrix) {
	r, c := X.Dims()
	fa := mat.Formatted(X, mat.Prefix(""), mat.Squeeze())
	debugMu.Lock()
	defer debugMu.Unlock()
	fmt.Fprintf(DebugOut, "(%d x %d)\n", r, c)
	fmt.Fprintf(DebugOut, "%v\n", fa)
}

func PrintA(format string, a ...any) {
	debugMu.Lock()
	defer debugMu.Unlock()
	fmt.Fprintf(DebugOut, format, a...)
}

func PrintAIf(cond bool, format string, a ...any) {
	if cond {
		PrintA(format, a...)
	}
}

// Debug display level
var DBG_ int

// Debug display
func PrintD(v int, format string, a ...any) {
	PrintAIf(DBG_ >= v, format, a...)
}

// Matrix display at debug level v
func PrintMatD(v int, X mat.Matrix) {
	if DBG_ >= v {
		PrintMat(X)
	}
}

func PrintE(err error) {
	PrintA("err=%s\n", err.Error())
}
