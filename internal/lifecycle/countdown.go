package lifecycle

import (
	"fmt"
	"time"
)

const (
	msPerSecond = int64(1000)
	msPerMinute = 60 * msPerSecond
	msPerHour   = 60 * msPerMinute
	msPerDay    = 24 * msPerHour
)

// Countdown is the time left to pay, derived from now and the payment expiry.
type Countdown struct {
	Hours   int
	Minutes int
	Seconds int
	Expired bool
}

// Compute derives the countdown. Hours wrap at 24; there is no days field.
func Compute(expiresAt, now time.Time) Countdown {
	diff := expiresAt.Sub(now).Milliseconds()
	if diff <= 0 {
		return Countdown{Expired: true}
	}
	return Countdown{
		Hours:   int((diff % msPerDay) / msPerHour),
		Minutes: int((diff % msPerHour) / msPerMinute),
		Seconds: int((diff % msPerMinute) / msPerSecond),
	}
}

// String renders the clock as HH:MM:SS.
func (c Countdown) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", c.Hours, c.Minutes, c.Seconds)
}
