package icon

import (
	"math"
	"strconv"

	"github.com/siteray/siteray-agent/models"
)

// Palette.
var (
	Green   = RGB{34, 197, 94}
	Yellow  = RGB{234, 179, 8}
	Red     = RGB{239, 68, 68}
	Gray    = RGB{107, 114, 128}
	Primary = RGB{99, 102, 241}
	White   = RGB{255, 255, 255}
	Black   = RGB{0, 0, 0}
)

// SpinnerFrames is the number of distinct loading-animation frames.
const SpinnerFrames = 12

// RiskColor returns the badge color for a risk level, gray for anything
// unrecognised.
func RiskColor(level models.RiskLevel) RGB {
	switch level {
	case models.RiskGreen:
		return Green
	case models.RiskYellow:
		return Yellow
	case models.RiskRed:
		return Red
	}
	return Gray
}

// Neutral draws the gray crosshair shown for unscanned or local pages.
func Neutral(size int) *Canvas {
	c := NewCanvas(size)
	s := float64(size) / 24
	cx, cy := float64(size)/2, float64(size)/2

	c.Ring(cx, cy, 10*s, math.Max(2.2, 2.5*s), Gray, 1)
	c.Ring(cx, cy, 6*s, math.Max(1.8, 2*s), Gray, 0.8)
	c.Disc(cx, cy, math.Max(1.5, 2.2*s), Gray, 1)

	t := math.Max(1.8, 2*s)
	c.Line(cx, 1.5*s, cx, 5*s, t, Gray, 1)
	c.Line(cx, 19*s, cx, 22.5*s, t, Gray, 1)
	c.Line(1.5*s, cy, 5*s, cy, t, Gray, 1)
	c.Line(19*s, cy, 22.5*s, cy, t, Gray, 1)
	return c
}

// Score draws the trust score in the risk color on a transparent background.
// The score is clamped to 0..100.
func Score(size, score int, level models.RiskLevel) *Canvas {
	score = max(0, min(100, score))
	c := NewCanvas(size)
	c.Digits(strconv.Itoa(score), RiskColor(level))
	return c
}

// Symbol draws the shape associated with a risk level: a check disc for
// green, a warning triangle for yellow and a stop octagon for red. Unknown
// levels fall back to the neutral icon.
func Symbol(size int, level models.RiskLevel) *Canvas {
	switch level {
	case models.RiskGreen:
		return check(size)
	case models.RiskYellow:
		return warning(size)
	case models.RiskRed:
		return stop(size)
	}
	return Neutral(size)
}

func check(size int) *Canvas {
	c := NewCanvas(size)
	s := float64(size) / 24
	half := float64(size) / 2
	c.Disc(half, half, float64(size)*0.42, Green, 1)

	t := math.Max(2, 2.5*s)
	c.Line(7*s, 12.5*s, 10.5*s, 16*s, t, White, 1)
	c.Line(10.5*s, 16*s, 17.5*s, 8.5*s, t, White, 1)
	return c
}

func warning(size int) *Canvas {
	c := NewCanvas(size)
	s := float64(size) / 24
	c.Triangle(12*s, 2.5*s, 1.5*s, 21.5*s, 22.5*s, 21.5*s, Yellow, 1)
	c.Line(12*s, 8.5*s, 12*s, 15.5*s, math.Max(2, 2.2*s), Black, 1)
	c.Disc(12*s, 18.5*s, math.Max(1.2, 1.4*s), Black, 1)
	return c
}

func stop(size int) *Canvas {
	c := NewCanvas(size)
	s := float64(size) / 24
	c.Octagon(12*s, 12*s, 10.5*s, Red, 1)
	c.Line(7*s, 12*s, 17*s, 12*s, math.Max(2, 2.5*s), White, 1)
	return c
}

// Failed draws a red ring with an exclamation mark, shown when the latest
// scan of the site failed.
func Failed(size int) *Canvas {
	c := NewCanvas(size)
	s := float64(size) / 24
	half := float64(size) / 2
	c.Ring(half, half, 10*s, math.Max(2, 2*s), Red, 1)
	c.Line(12*s, 7*s, 12*s, 13.5*s, math.Max(2, 2.2*s), Red, 1)
	c.Disc(12*s, 17*s, math.Max(1.2, 1.4*s), Red, 1)
	return c
}

// SpinnerAngle returns the rotation of the given animation frame. Frame 0
// starts at twelve o'clock.
func SpinnerAngle(frame int) float64 {
	frame = ((frame % SpinnerFrames) + SpinnerFrames) % SpinnerFrames
	return float64(frame)/SpinnerFrames*2*math.Pi - math.Pi/2
}

// Spinner draws a 270 degree arc starting at angle whose first 15% fades in
// from transparent.
func Spinner(size int, angle float64) *Canvas {
	c := NewCanvas(size)
	half := float64(size) / 2
	r := float64(size) * 0.38
	t := math.Max(2, float64(size)*0.14)
	const arc = 1.5 * math.Pi
	steps := int(math.Ceil(r * arc * 2))
	for i := 0; i <= steps; i++ {
		f := float64(i) / float64(steps)
		a := angle + f*arc
		alpha := 1.0
		if f < 0.15 {
			alpha = f / 0.15
		}
		// Quantise like an 8-bit alpha channel so frames are reproducible.
		alpha = math.Floor(alpha*255+0.5) / 255
		c.Disc(half+r*math.Cos(a), half+r*math.Sin(a), t/2, Primary, alpha)
	}
	return c
}
