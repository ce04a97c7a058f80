// Package animation plays skeletal clips on a character: keyframe sampling, weighted
// actions with crossfades, and the mood-driven clip selection on top of them.
package animation

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

// Path is the node property a channel animates.
type Path int

const (
	PathTranslation Path = iota
	PathRotation
	PathScale
)

func (p Path) width() int {
	if p == PathRotation {
		return 4
	}
	return 3
}

// Interpolation selects how values between keyframes are computed.
type Interpolation int

const (
	InterpolationLinear Interpolation = iota
	InterpolationStep
	InterpolationCubicSpline
)

// Channel animates one property of one node. Values holds width() floats per keyframe,
// or three times that for cubic splines (in-tangent, value, out-tangent). Rotations
// are stored x, y, z, w.
type Channel struct {
	Node          int
	Path          Path
	Interpolation Interpolation
	Times         []float32
	Values        []float32
}

// Clip is a named set of channels.
type Clip struct {
	Name     string
	Index    int // position in the source asset
	Duration float32
	Channels []Channel
}

// NewClip builds a clip and derives its duration from the last keyframe of any channel.
func NewClip(name string, index int, channels []Channel) *Clip {
	c := &Clip{Name: name, Index: index, Channels: channels}
	for _, ch := range channels {
		if n := len(ch.Times); n > 0 && ch.Times[n-1] > c.Duration {
			c.Duration = ch.Times[n-1]
		}
	}
	return c
}

// Valid reports whether the channel's arrays agree with each other.
func (ch *Channel) Valid() bool {
	n := len(ch.Times)
	if n == 0 {
		return false
	}
	stride := ch.Path.width()
	if ch.Interpolation == InterpolationCubicSpline {
		stride *= 3
	}
	return len(ch.Values) >= n*stride
}

// key returns the keyframe value k (the middle element for cubic splines).
func (ch *Channel) key(k int) []float32 {
	w := ch.Path.width()
	if ch.Interpolation == InterpolationCubicSpline {
		off := (k*3 + 1) * w
		return ch.Values[off : off+w]
	}
	return ch.Values[k*w : k*w+w]
}

func (ch *Channel) tangent(k, which int) []float32 {
	w := ch.Path.width()
	off := (k*3 + which) * w
	return ch.Values[off : off+w]
}

// Sample evaluates the channel at time t into out, which must hold width() floats.
func (ch *Channel) Sample(t float32, out []float32) {
	n := len(ch.Times)
	if t <= ch.Times[0] || n == 1 {
		copy(out, ch.key(0))
		return
	}
	if t >= ch.Times[n-1] {
		copy(out, ch.key(n-1))
		return
	}

	// first keyframe strictly after t
	i := sort.Search(n, func(i int) bool { return ch.Times[i] > t })
	k0, k1 := i-1, i
	t0, t1 := ch.Times[k0], ch.Times[k1]
	span := t1 - t0
	u := float32(0)
	if span > 0 {
		u = (t - t0) / span
	}

	switch ch.Interpolation {
	case InterpolationStep:
		copy(out, ch.key(k0))
	case InterpolationCubicSpline:
		p0, p1 := ch.key(k0), ch.key(k1)
		m0, m1 := ch.tangent(k0, 2), ch.tangent(k1, 0)
		u2 := u * u
		u3 := u2 * u
		h00 := 2*u3 - 3*u2 + 1
		h10 := u3 - 2*u2 + u
		h01 := -2*u3 + 3*u2
		h11 := u3 - u2
		for j := range out[:ch.Path.width()] {
			out[j] = h00*p0[j] + h10*span*m0[j] + h01*p1[j] + h11*span*m1[j]
		}
		if ch.Path == PathRotation {
			normalize4(out)
		}
	default:
		a, b := ch.key(k0), ch.key(k1)
		if ch.Path == PathRotation {
			qa, qb := quat(a), quat(b)
			if qa.Dot(qb) < 0 {
				qb = qb.Scale(-1)
			}
			q := mgl32.QuatSlerp(qa, qb, u)
			out[0], out[1], out[2], out[3] = q.V[0], q.V[1], q.V[2], q.W
			return
		}
		for j := range out[:3] {
			out[j] = a[j] + (b[j]-a[j])*u
		}
	}
}

func quat(v []float32) mgl32.Quat {
	return mgl32.Quat{W: v[3], V: mgl32.Vec3{v[0], v[1], v[2]}}
}

func normalize4(v []float32) {
	l := float32(math.Sqrt(float64(v[0]*v[0] + v[1]*v[1] + v[2]*v[2] + v[3]*v[3])))
	if l == 0 {
		v[3] = 1
		return
	}
	for i := range v[:4] {
		v[i] /= l
	}
}
