// Package volume converts between delivered water volume and pump runtime
// for a dripper calibrated in milliseconds per liter.
package volume

import "math"

// MaxMsPerLiter is the largest calibration the conversions accept. Larger
// values are clamped so per-milliliter products stay within 32 bits.
const MaxMsPerLiter = 4294967

// MaxMl is the saturation value returned by MsToMl.
const MaxMl = math.MaxUint16

// MlToMs returns the pump runtime needed to deliver volumeMl. A zero volume
// or zero calibration yields 0; any other volume yields at least 1 ms.
// Results that do not fit in 32 bits saturate at math.MaxUint32.
func MlToMs(volumeMl uint16, msPerLiter uint32) uint32 {
	if volumeMl == 0 || msPerLiter == 0 {
		return 0
	}
	if msPerLiter > MaxMsPerLiter {
		msPerLiter = MaxMsPerLiter
	}

	perMl := msPerLiter / 1000
	rem := msPerLiter % 1000
	v := uint32(volumeMl)

	var ms uint32
	if perMl != 0 {
		if v > math.MaxUint32/perMl {
			return math.MaxUint32
		}
		ms = v * perMl
	}

	if rem != 0 {
		extra := v * rem / 1000
		if ms > math.MaxUint32-extra {
			return math.MaxUint32
		}
		ms += extra
	}

	if ms == 0 {
		ms = 1
	}
	return ms
}

// MsToMl returns the volume delivered by millis of pump runtime, saturating
// at MaxMl.
func MsToMl(millis uint32, msPerLiter uint32) uint16 {
	if millis == 0 || msPerLiter == 0 {
		return 0
	}
	if msPerLiter > MaxMsPerLiter {
		msPerLiter = MaxMsPerLiter
	}

	q := millis / msPerLiter
	if q >= 66 {
		return MaxMl
	}
	r := millis % msPerLiter

	ml := q * 1000
	if r != 0 {
		ml += r * 1000 / msPerLiter
	}
	if ml > MaxMl {
		return MaxMl
	}
	return uint16(ml)
}

// MsPerLiter derives a calibration from a measured run: elapsedMs of pump
// time delivered measuredMl. It returns 0 when either input is zero.
func MsPerLiter(elapsedMs uint32, measuredMl uint16) uint32 {
	if elapsedMs == 0 || measuredMl == 0 {
		return 0
	}
	v := uint64(elapsedMs) * 1000 / uint64(measuredMl)
	if v > MaxMsPerLiter {
		return MaxMsPerLiter
	}
	return uint32(v)
}
