package volume

import (
	"math"
	"testing"
)

func TestMlToMs(t *testing.T) {
	tests := []struct {
		name       string
		volumeMl   uint16
		msPerLiter uint32
		expected   uint32
	}{
		{name: "zero volume", volumeMl: 0, msPerLiter: 600000, expected: 0},
		{name: "zero calibration", volumeMl: 500, msPerLiter: 0, expected: 0},
		{name: "whole ms per ml", volumeMl: 500, msPerLiter: 600000, expected: 300000},
		{name: "fractional ms per ml", volumeMl: 3, msPerLiter: 1500, expected: 4},
		{name: "tiny volume floors at one ms", volumeMl: 1, msPerLiter: 500, expected: 1},
		{name: "calibration clamped", volumeMl: 1, msPerLiter: math.MaxUint32, expected: 4294},
		{name: "largest volume at largest calibration", volumeMl: math.MaxUint16, msPerLiter: MaxMsPerLiter, expected: 281470662},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MlToMs(tt.volumeMl, tt.msPerLiter)
			if got != tt.expected {
				t.Errorf("MlToMs(%d, %d) = %d, expected %d", tt.volumeMl, tt.msPerLiter, got, tt.expected)
			}
		})
	}
}

func TestMsToMl(t *testing.T) {
	tests := []struct {
		name       string
		millis     uint32
		msPerLiter uint32
		expected   uint16
	}{
		{name: "zero millis", millis: 0, msPerLiter: 600000, expected: 0},
		{name: "zero calibration", millis: 1000, msPerLiter: 0, expected: 0},
		{name: "half liter", millis: 300000, msPerLiter: 600000, expected: 500},
		{name: "one and a half liters", millis: 900000, msPerLiter: 600000, expected: 1500},
		{name: "saturates on quotient", millis: math.MaxUint32, msPerLiter: 100000, expected: MaxMl},
		{name: "saturates just below quotient limit", millis: 65999999, msPerLiter: 1000000, expected: MaxMl},
		{name: "quotient 65 fits", millis: 65000000, msPerLiter: 1000000, expected: 65000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MsToMl(tt.millis, tt.msPerLiter)
			if got != tt.expected {
				t.Errorf("MsToMl(%d, %d) = %d, expected %d", tt.millis, tt.msPerLiter, got, tt.expected)
			}
		})
	}
}

func TestRoundTripWithinOneMl(t *testing.T) {
	for _, rate := range []uint32{100000, 600000, 4000000} {
		ms := MlToMs(500, rate)
		got := MsToMl(ms, rate)
		diff := int(got) - 500
		if diff < -1 || diff > 1 {
			t.Errorf("rate %d: round trip of 500 ml returned %d ml", rate, got)
		}
		if MlToMs(0, rate) != 0 {
			t.Errorf("rate %d: MlToMs(0) should be 0", rate)
		}
	}
}

func TestMsPerLiter(t *testing.T) {
	if got := MsPerLiter(300000, 500); got != 600000 {
		t.Errorf("MsPerLiter(300000, 500) = %d, expected 600000", got)
	}
	if got := MsPerLiter(0, 500); got != 0 {
		t.Errorf("MsPerLiter(0, 500) = %d, expected 0", got)
	}
	if got := MsPerLiter(math.MaxUint32, 1); got != MaxMsPerLiter {
		t.Errorf("MsPerLiter should clamp, got %d", got)
	}
}
