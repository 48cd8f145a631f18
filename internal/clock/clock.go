// ABOUTME: Master playback clock shared by the render pipeline and its owner
// ABOUTME: Tracks stream time in microseconds with speed, pause and error feedback
package clock

import (
	"log"
	"math"
	"sync"
	"time"
)

// PlaySpeedNormal is the integer speed for 1x playback
const PlaySpeedNormal = 1000

// PlaySpeedPause is the integer speed for a paused stream
const PlaySpeedPause = 0

// errorAdjustDeadband is ignored while a speed adjustment is active
const errorAdjustDeadband = 100 * 1000 // 100ms

// PlaybackClock is the master clock the pipeline is synchronized to.
//
// The clock advances with wall time scaled by speed and any speed adjustment.
// Audio feeds back its sync error through ErrorAdjust, which steps the clock.
type PlaybackClock struct {
	mu sync.RWMutex

	now func() time.Time

	// clock value at systemRef
	clockRef  float64
	systemRef time.Time

	speed          int
	paused         bool
	speedAdjust    float64 // percent
	maxSpeedAdjust float64 // percent

	adjustCount int
}

// NewPlaybackClock creates a clock at zero running at normal speed
func NewPlaybackClock() *PlaybackClock {
	return newPlaybackClock(time.Now)
}

func newPlaybackClock(now func() time.Time) *PlaybackClock {
	return &PlaybackClock{
		now:       now,
		systemRef: now(),
		speed:     PlaySpeedNormal,
	}
}

// GetClock returns the current clock value in microseconds
func (c *PlaybackClock) GetClock() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.valueAt(c.now())
}

func (c *PlaybackClock) valueAt(t time.Time) float64 {
	if c.paused || c.speed == PlaySpeedPause {
		return c.clockRef
	}
	elapsed := float64(t.Sub(c.systemRef).Microseconds())
	factor := float64(c.speed) / PlaySpeedNormal * (1 + c.speedAdjust/100)
	return c.clockRef + elapsed*factor
}

// rebase folds elapsed time into clockRef; callers hold c.mu
func (c *PlaybackClock) rebase() {
	now := c.now()
	c.clockRef = c.valueAt(now)
	c.systemRef = now
}

// Discontinuity jumps the clock to value
func (c *PlaybackClock) Discontinuity(value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clockRef = value
	c.systemRef = c.now()
}

// SetSpeed changes the playback speed (PlaySpeedNormal is 1x)
func (c *PlaybackClock) SetSpeed(speed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rebase()
	c.speed = speed
}

// Speed returns the playback speed
func (c *PlaybackClock) Speed() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.speed
}

// Pause freezes or releases the clock
func (c *PlaybackClock) Pause(paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rebase()
	c.paused = paused
}

// SetMaxSpeedAdjust sets how far, in percent, the clock may be sped up or
// slowed down to follow a resampling sink. Zero disables speed adjustment.
func (c *PlaybackClock) SetMaxSpeedAdjust(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v != c.maxSpeedAdjust {
		log.Printf("Clock max speed adjust: %.1f%%", v)
	}
	c.maxSpeedAdjust = v
	if math.Abs(c.speedAdjust) > v {
		c.rebase()
		c.speedAdjust = math.Copysign(v, c.speedAdjust)
	}
}

// MaxSpeedAdjust returns the speed adjustment limit in percent
func (c *PlaybackClock) MaxSpeedAdjust() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxSpeedAdjust
}

// SetSpeedAdjust applies a speed adjustment in percent, clamped to the limit
func (c *PlaybackClock) SetSpeedAdjust(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rebase()
	c.speedAdjust = math.Max(-c.maxSpeedAdjust, math.Min(c.maxSpeedAdjust, v))
}

// SpeedAdjust returns the active speed adjustment in percent
func (c *PlaybackClock) SpeedAdjust() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.speedAdjust
}

// ErrorAdjust steps the clock by a measured sync error and returns the
// correction applied. Small errors are left alone while a speed adjustment
// is already steering the clock.
func (c *PlaybackClock) ErrorAdjust(err float64, tag string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.speedAdjust != 0 && err < errorAdjustDeadband {
		return 0
	}
	if err == 0 {
		return 0
	}

	c.rebase()
	c.clockRef += err

	if c.adjustCount < 5 {
		log.Printf("Clock error adjust (%s): error=%.0fµs", tag, err)
	}
	c.adjustCount++
	return err
}
