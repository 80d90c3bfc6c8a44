package utils

import "testing"

func TestIsLarge(t *testing.T) {
	tests := []struct {
		size, threshold int64
		want            bool
	}{
		{0, StreamThresholdBytes, false},
		{StreamThresholdBytes, StreamThresholdBytes, false},
		{StreamThresholdBytes + 1, StreamThresholdBytes, true},
		{-1, StreamThresholdBytes, true},
	}
	for _, tt := range tests {
		if got := IsLarge(tt.size, tt.threshold); got != tt.want {
			t.Errorf("IsLarge(%d, %d) = %v, want %v", tt.size, tt.threshold, got, tt.want)
		}
	}
}
