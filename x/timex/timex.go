package timex

import "time"

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// NowMicros returns Unix microseconds as int64. Used where a cheap
// time-based entropy source is wanted (e.g. port randomisation seeds).
func NowMicros() int64 { return time.Now().UnixMicro() }
