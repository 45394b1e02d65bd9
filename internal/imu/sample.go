package imu

import "io"

// Sample is one inertial reading, body frame, plus the optional absolute
// fix available at the same instant. A nil fix channel is absent, so a
// Sample built as a literal carries no fix unless one is set explicitly.
type Sample struct {
	T float64 `json:"t"` // s

	AccX float64 `json:"acc_x"` // m/s²
	AccY float64 `json:"acc_y"`
	AccZ float64 `json:"acc_z"`

	OmegaX float64 `json:"omega_x"` // rad/s
	OmegaY float64 `json:"omega_y"`
	OmegaZ float64 `json:"omega_z"`

	FixX *float64 `json:"fix_x"` // m, world frame; null when absent
	FixY *float64 `json:"fix_y"`
}

// HasFix reports whether either fix channel carries a reading.
func (s Sample) HasFix() bool {
	return s.FixX != nil || s.FixY != nil
}

// Source is anything that can provide samples over time.
// Finite sources return io.EOF once exhausted.
type Source interface {
	Next() (Sample, error)
}

type replaySource struct {
	samples []Sample
	pos     int
	loop    bool
}

// NewReplaySource plays back pre-loaded samples in order. With loop set it
// starts over after the last sample, shifting time so T keeps increasing.
func NewReplaySource(samples []Sample, loop bool) Source {
	return &replaySource{samples: samples, loop: loop}
}

func (r *replaySource) Next() (Sample, error) {
	n := len(r.samples)
	if n == 0 || (!r.loop && r.pos >= n) {
		return Sample{}, io.EOF
	}

	lap := r.pos / n
	s := r.samples[r.pos%n]
	if lap > 0 {
		span := r.samples[n-1].T - r.samples[0].T
		if n > 1 {
			span += (r.samples[n-1].T - r.samples[0].T) / float64(n-1)
		}
		s.T += float64(lap) * span
	}
	r.pos++
	return s, nil
}
