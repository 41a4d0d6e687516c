// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.19
//

package rtkalign

const (
	PI = 3.1415926535897932  // Pi
	Re = 6378137.0           // Earth's radius [m]
	Fe = 1.0 / 298.257223563 // Earth's flattening
	LS = 18                  // Leap seconds (GPST - UTC)
)

// Default search parameters
const (
	DEFAULT_SHIFT_LOW   = -1.0 // Lower bound of time shift search [s]
	DEFAULT_SHIFT_HIGH  = 1.0  // Upper bound of time shift search [s]
	DEFAULT_COARSE_STEP = 0.1  // Coarse search step [s]
	DEFAULT_FINE_STEP   = 0.01 // Fine search step [s]
	MIN_PAIRS           = 2    // Minimum number of matched pairs for alignment
	GRID_EPS            = 1e-9 // Tolerance when counting grid candidates (in steps)
)
