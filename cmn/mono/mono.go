// Package mono provides a monotonic nanosecond clock used by the actor's
// open-epoch timing.
/*
 * Copyright (c) 2024, Flowcore authors.
 */
package mono

import "time"

// NanoTime returns a monotonic nanosecond reading. The teacher's own
// cmn/mono links directly against runtime.nanotime via go:linkname, an
// unsupported compiler hack not worth reproducing here; time.Now() carries
// a monotonic reading internally on every supported Go release, so taking
// differences of two NanoTime() values is monotonic in practice.
func NanoTime() int64 { return time.Now().UnixNano() }

// Since returns the duration elapsed since a prior NanoTime() reading.
func Since(t int64) time.Duration { return time.Duration(NanoTime() - t) }
