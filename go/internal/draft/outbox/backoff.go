package outbox

import (
	rand "math/rand/v2"
	"time"
)

// jitterBackoff returns the delay before retry number failures (1-based):
// base doubled per failure, capped, then spread by up to +/-20%.
func jitterBackoff(failures int, base, capDur time.Duration) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	if failures < 1 {
		failures = 1
	}

	d := base
	for i := 1; i < failures; i++ {
		d *= 2
		if capDur > 0 && d >= capDur {
			d = capDur
			break
		}
	}
	if capDur > 0 && d > capDur {
		d = capDur
	}

	spread := int64(d) / 5
	if spread <= 0 {
		return d
	}
	return d - time.Duration(spread) + time.Duration(rand.Int64N(2*spread+1)) //nolint:gosec // non-crypto backoff jitter
}
