package animation

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/normanking/posteravatar/internal/scene"
)

// Action is the playback state of one clip on one mixer.
type Action struct {
	mixer *Mixer
	clip  *Clip

	TimeScale float32
	Loop      bool

	time    float32
	weight  float32
	running bool

	fading      bool
	fadeFrom    float32
	fadeTo      float32
	fadeElapsed float32
	fadeDur     float32
}

// Clip returns the clip this action plays.
func (a *Action) Clip() *Clip { return a.clip }

// Time returns the local playback time in seconds.
func (a *Action) Time() float32 { return a.time }

// Weight returns the current blend weight.
func (a *Action) Weight() float32 { return a.weight }

// IsRunning reports whether the action is scheduled on its mixer.
func (a *Action) IsRunning() bool { return a.running }

// IsFading reports whether a fade is in progress.
func (a *Action) IsFading() bool { return a.fading }

// Reset rewinds to the start at full weight and cancels any fade.
func (a *Action) Reset() *Action {
	a.time = 0
	a.weight = 1
	a.fading = false
	return a
}

// Play schedules the action on its mixer.
func (a *Action) Play() *Action {
	if !a.running {
		a.running = true
		a.mixer.activate(a)
	}
	return a
}

// Stop removes the action from its mixer immediately.
func (a *Action) Stop() *Action {
	a.running = false
	a.fading = false
	return a
}

// FadeIn ramps the weight from zero to one over d seconds.
func (a *Action) FadeIn(d float32) *Action {
	a.weight = 0
	return a.fadeTowards(1, d)
}

// FadeOut ramps the weight from its current value to zero over d seconds; the action
// stops when the fade completes.
func (a *Action) FadeOut(d float32) *Action {
	return a.fadeTowards(0, d)
}

func (a *Action) fadeTowards(target, d float32) *Action {
	if d <= 0 {
		a.weight = target
		a.fading = false
		if target == 0 {
			a.running = false
		}
		return a
	}
	a.fading = true
	a.fadeFrom = a.weight
	a.fadeTo = target
	a.fadeElapsed = 0
	a.fadeDur = d
	return a
}

func (a *Action) advance(dt float32) {
	if !a.running {
		return
	}

	a.time += dt * a.TimeScale
	if d := a.clip.Duration; d > 0 {
		if a.Loop {
			a.time = float32(math.Mod(float64(a.time), float64(d)))
			if a.time < 0 {
				a.time += d
			}
		} else if a.time > d {
			a.time = d
		}
	}

	if a.fading {
		a.fadeElapsed += dt
		k := a.fadeElapsed / a.fadeDur
		if k >= 1 {
			k = 1
			a.fading = false
		}
		a.weight = a.fadeFrom + (a.fadeTo-a.fadeFrom)*k
		if !a.fading && a.fadeTo == 0 {
			a.running = false
		}
	}
}

type accum struct {
	t, s       mgl32.Vec3
	r          [4]float32
	tw, rw, sw float32
	seen       bool
}

// Mixer blends the running actions of one character into a pose. It is not safe for
// concurrent use; the viewer drives it from its render loop.
type Mixer struct {
	actions map[*Clip]*Action
	active  []*Action

	rest    scene.Pose
	pose    scene.Pose
	acc     []accum
	touched []int
	sample  [4]float32
}

// NewMixer creates a mixer over a character's rest pose.
func NewMixer(rest scene.Pose) *Mixer {
	return &Mixer{
		actions: make(map[*Clip]*Action),
		rest:    rest,
		pose:    make(scene.Pose, len(rest)),
		acc:     make([]accum, len(rest)),
	}
}

// ClipAction returns the mixer's action for clip, creating it on first use. The same
// clip always yields the same action.
func (m *Mixer) ClipAction(clip *Clip) *Action {
	if a, ok := m.actions[clip]; ok {
		return a
	}
	a := &Action{mixer: m, clip: clip, TimeScale: 1, Loop: true, weight: 1}
	m.actions[clip] = a
	return a
}

func (m *Mixer) activate(a *Action) {
	for _, x := range m.active {
		if x == a {
			return
		}
	}
	m.active = append(m.active, a)
}

// ActiveCount returns the number of scheduled actions.
func (m *Mixer) ActiveCount() int {
	n := 0
	for _, a := range m.active {
		if a.running {
			n++
		}
	}
	return n
}

// StopAll stops every action.
func (m *Mixer) StopAll() {
	for _, a := range m.active {
		a.Stop()
	}
	m.active = m.active[:0]
}

// Pose returns the pose computed by the last Update.
func (m *Mixer) Pose() scene.Pose {
	return m.pose
}

// Update advances every running action by dt seconds and blends them into a pose.
// Work is proportional to the running actions and their channels.
func (m *Mixer) Update(dt float32) scene.Pose {
	live := m.active[:0]
	for _, a := range m.active {
		a.advance(dt)
		if a.running {
			live = append(live, a)
		}
	}
	for i := len(live); i < len(m.active); i++ {
		m.active[i] = nil
	}
	m.active = live

	for _, n := range m.touched {
		m.acc[n] = accum{}
	}
	m.touched = m.touched[:0]

	for _, a := range m.active {
		if a.weight <= 0 {
			continue
		}
		for i := range a.clip.Channels {
			ch := &a.clip.Channels[i]
			if ch.Node < 0 || ch.Node >= len(m.acc) || !ch.Valid() {
				continue
			}
			m.accumulate(ch, a.time, a.weight)
		}
	}

	copy(m.pose, m.rest)
	for _, n := range m.touched {
		m.pose[n] = m.blend(n)
	}
	return m.pose
}

func (m *Mixer) accumulate(ch *Channel, t, w float32) {
	acc := &m.acc[ch.Node]
	if !acc.seen {
		acc.seen = true
		m.touched = append(m.touched, ch.Node)
	}

	v := m.sample[:ch.Path.width()]
	ch.Sample(t, v)

	switch ch.Path {
	case PathTranslation:
		acc.t = acc.t.Add(mgl32.Vec3{v[0], v[1], v[2]}.Mul(w))
		acc.tw += w
	case PathScale:
		acc.s = acc.s.Add(mgl32.Vec3{v[0], v[1], v[2]}.Mul(w))
		acc.sw += w
	case PathRotation:
		addQuat(&acc.r, acc.rw > 0, v, w)
		acc.rw += w
	}
}

// addQuat adds w*q to sum, flipping q into the hemisphere of sum when sum is set.
func addQuat(sum *[4]float32, hasRef bool, q []float32, w float32) {
	if hasRef && sum[0]*q[0]+sum[1]*q[1]+sum[2]*q[2]+sum[3]*q[3] < 0 {
		w = -w
	}
	for i := 0; i < 4; i++ {
		sum[i] += q[i] * w
	}
}

func (m *Mixer) blend(n int) scene.Transform {
	acc := &m.acc[n]
	rest := m.rest[n]
	out := rest

	if acc.tw > 0 {
		out.Translation = fill(acc.t, acc.tw, rest.Translation)
	}
	if acc.sw > 0 {
		out.Scale = fill(acc.s, acc.sw, rest.Scale)
	}
	if acc.rw > 0 {
		r := acc.r
		if acc.rw < 1 {
			rq := []float32{rest.Rotation.V[0], rest.Rotation.V[1], rest.Rotation.V[2], rest.Rotation.W}
			addQuat(&r, true, rq, 1-acc.rw)
		}
		normalize4(r[:])
		out.Rotation = mgl32.Quat{W: r[3], V: mgl32.Vec3{r[0], r[1], r[2]}}
	}
	return out
}

// fill tops a partial weighted sum up with the rest value, or renormalizes an overfull one.
func fill(sum mgl32.Vec3, w float32, rest mgl32.Vec3) mgl32.Vec3 {
	if w >= 1 {
		return sum.Mul(1 / w)
	}
	return sum.Add(rest.Mul(1 - w))
}
