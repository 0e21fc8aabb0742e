package gaze

import "time"

// Certainty heuristic constants. These were chosen empirically; they are
// tunables, not physical quantities.
const (
	// ActiveWinkSimilarityFloor is the minimum window agreement for an active
	// wink to be reported with full certainty.
	ActiveWinkSimilarityFloor = 0.1

	// MinCertaintySamples is the window size below which certainty is 0.
	MinCertaintySamples = 3
)

// FallbackFunc returns the focus point used when the eye rays are parallel.
type FallbackFunc func(right, left Ray) Vec3

// CertaintyFunc scores a wink classification from window statistics.
// similarity and center are both in [0,1].
type CertaintyFunc func(state WinkState, similarity, center float64) float64

// Config holds all tunable parameters for gaze processing.
type Config struct {
	// Retention is how long samples stay in the openness window.
	Retention time.Duration

	// WinkThreshold is the openness difference above which one eye counts as winking.
	WinkThreshold float64

	// OriginScale converts tracker origin units to scene units.
	OriginScale float64

	// Handedness maps tracker vectors into the scene's coordinate system.
	Handedness func(Vec3) Vec3

	// Fallback is the degenerate-ray policy.
	Fallback FallbackFunc

	// Certainty is the wink certainty policy.
	Certainty CertaintyFunc

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// DefaultConfig returns the configuration used for recording sessions.
func DefaultConfig() Config {
	return Config{
		Retention:     500 * time.Millisecond,
		WinkThreshold: 0.3,
		OriginScale:   0.001, // tracker reports millimetres
		Handedness:    MirrorX,
		Fallback:      ZeroFallback,
		Certainty:     DefaultCertainty,
		Now:           time.Now,
	}
}

// ResponsiveConfig shortens the window so wink certainty reacts faster.
func ResponsiveConfig() Config {
	cfg := DefaultConfig()
	cfg.Retention = 250 * time.Millisecond
	return cfg
}

// StrictConfig demands a larger asymmetry and a longer history before a wink counts.
func StrictConfig() Config {
	cfg := DefaultConfig()
	cfg.Retention = 800 * time.Millisecond
	cfg.WinkThreshold = 0.45
	return cfg
}

// withDefaults fills unset policy fields.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Retention <= 0 {
		c.Retention = d.Retention
	}
	if c.OriginScale == 0 {
		c.OriginScale = d.OriginScale
	}
	if c.Handedness == nil {
		c.Handedness = d.Handedness
	}
	if c.Fallback == nil {
		c.Fallback = d.Fallback
	}
	if c.Certainty == nil {
		c.Certainty = d.Certainty
	}
	if c.Now == nil {
		c.Now = d.Now
	}
	return c
}

// MirrorX converts between right- and left-handed frames by flipping X.
func MirrorX(v Vec3) Vec3 {
	return Vec3{-v.X, v.Y, v.Z}
}

// Identity leaves vectors unchanged.
func Identity(v Vec3) Vec3 {
	return v
}

// ZeroFallback reports the origin when rays are parallel.
func ZeroFallback(_, _ Ray) Vec3 {
	return Vec3{}
}

// FixedDistanceFallback places the focus point at dist along the mean of the
// two rays, which matches looking at infinity with parallel eyes.
func FixedDistanceFallback(dist float64) FallbackFunc {
	return func(right, left Ray) Vec3 {
		origin := right.Origin.Midpoint(left.Origin)
		dir := right.Direction.Add(left.Direction).Normalize()
		return origin.Add(dir.Scale(dist))
	}
}

// DefaultCertainty keeps an active wink at full certainty while any
// meaningful part of the window agrees with it, and otherwise discounts
// similarity by how recent the classification changes were.
func DefaultCertainty(state WinkState, similarity, center float64) float64 {
	if state != WinkNone && similarity > ActiveWinkSimilarityFloor {
		return 1.0
	}
	return clamp01(similarity - center)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
