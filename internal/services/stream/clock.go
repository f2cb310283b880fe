package stream

import "time"

// Clock supplies the ledger's notion of now, in unix seconds. The ledger
// treats it as an opaque monotonic counter; tests substitute a fixed clock.
type Clock interface {
	Now() int64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() int64 { return time.Now().Unix() }
