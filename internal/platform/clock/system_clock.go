package clock

import "time"

// SystemClock provides the real wall-clock time.
type SystemClock struct{}

func NewSystemClock() *SystemClock { return &SystemClock{} }

func (*SystemClock) Now() time.Time { return time.Now() }
