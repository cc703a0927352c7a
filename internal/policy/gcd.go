package policy

import (
	"math/big"
	"time"
)

// gcdInterval reduces a set of check intervals to the single tick period
// a Checker goroutine can use to serve all of them, via an exact
// integer-second gcd (spec.md leaves the precise algorithm unspecified;
// truncating to seconds and reducing through math/big avoids the drift a
// float computation would accumulate over a long-running process).
func gcdInterval(intervals []time.Duration) time.Duration {
	if len(intervals) == 0 {
		return time.Minute
	}
	acc := big.NewInt(int64(intervals[0] / time.Second))
	if acc.Sign() == 0 {
		acc.SetInt64(1)
	}
	for _, iv := range intervals[1:] {
		secs := int64(iv / time.Second)
		if secs == 0 {
			secs = 1
		}
		acc.GCD(nil, nil, acc, big.NewInt(secs))
	}
	if acc.Sign() == 0 {
		return time.Second
	}
	return time.Duration(acc.Int64()) * time.Second
}
