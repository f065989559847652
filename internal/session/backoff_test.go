package session

import (
	"testing"
	"time"
)

func TestReconnectPolicyDelaySequence(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		base       time.Duration
		multiplier float64
		cap        time.Duration
		want       []time.Duration
	}{
		{
			name:       "doubling capped at five seconds",
			base:       300 * time.Millisecond,
			multiplier: 2,
			cap:        5 * time.Second,
			want: []time.Duration{
				600 * time.Millisecond,
				1200 * time.Millisecond,
				2400 * time.Millisecond,
				4800 * time.Millisecond,
				5 * time.Second,
				5 * time.Second,
			},
		},
		{
			name:       "gentle multiplier",
			base:       400 * time.Millisecond,
			multiplier: 1.5,
			cap:        10 * time.Second,
			want: []time.Duration{
				600 * time.Millisecond,
				900 * time.Millisecond,
				1350 * time.Millisecond,
			},
		},
		{
			name:       "first delay already above the cap",
			base:       4 * time.Second,
			multiplier: 3,
			cap:        5 * time.Second,
			want:       []time.Duration{5 * time.Second, 5 * time.Second},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			policy := newReconnectPolicy(tc.base, tc.multiplier, tc.cap)
			for i, want := range tc.want {
				if got := policy.next(); got != want {
					t.Fatalf("delay[%d] = %s, want %s", i, got, want)
				}
			}
		})
	}
}

func TestReconnectPolicyReset(t *testing.T) {
	t.Parallel()
	policy := newReconnectPolicy(300*time.Millisecond, 2, 5*time.Second)
	for i := 0; i < 3; i++ {
		policy.next()
	}
	policy.reset()
	if got, want := policy.next(), 600*time.Millisecond; got != want {
		t.Fatalf("delay after reset = %s, want %s", got, want)
	}
}
