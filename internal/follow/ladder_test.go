package follow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bits(b ...bool) AlertState { return AlertState(b) }

func TestNewLadder(t *testing.T) {
	tests := []struct {
		name    string
		values  []int
		wantErr bool
	}{
		{name: "default", values: []int{-1, 60, 30, 10, 1}},
		{name: "minimal", values: []int{-1, 5}},
		{name: "too short", values: []int{-1}, wantErr: true},
		{name: "missing sentinel", values: []int{60, 30, 10}, wantErr: true},
		{name: "not descending", values: []int{-1, 30, 60}, wantErr: true},
		{name: "duplicate", values: []int{-1, 30, 30}, wantErr: true},
		{name: "negative threshold", values: []int{-1, 10, -5}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewLadder(tt.values)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidLadder)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, Ladder(tt.values), l)
		})
	}
}

func TestEvaluate(t *testing.T) {
	ladder := DefaultLadder()
	tests := []struct {
		name    string
		state   AlertState
		eta     float64
		want    AlertState
		outcome Outcome
	}{
		{
			name:    "first sample pre-sets coarse thresholds",
			state:   ladder.NewState(),
			eta:     45,
			want:    bits(true, true, false, false, false),
			outcome: OutcomeStarted,
		},
		{
			name:    "first sample with long eta sets only the sentinel",
			state:   ladder.NewState(),
			eta:     120,
			want:    bits(true, false, false, false, false),
			outcome: OutcomeStarted,
		},
		{
			name:    "first sample at destination",
			state:   ladder.NewState(),
			eta:     0.4,
			want:    bits(true, true, true, true, true),
			outcome: OutcomeAlreadyArrived,
		},
		{
			name:    "several thresholds in one evaluation",
			state:   bits(true, true, false, false, false),
			eta:     8,
			want:    bits(true, true, true, true, false),
			outcome: OutcomeProgress,
		},
		{
			name:    "threshold not met",
			state:   bits(true, true, false, false, false),
			eta:     31,
			want:    bits(true, true, false, false, false),
			outcome: OutcomeNone,
		},
		{
			name:    "eta equal to threshold meets it",
			state:   bits(true, true, false, false, false),
			eta:     30,
			want:    bits(true, true, true, false, false),
			outcome: OutcomeProgress,
		},
		{
			name:    "eta rounds down onto threshold",
			state:   bits(true, true, false, false, false),
			eta:     30.4,
			want:    bits(true, true, true, false, false),
			outcome: OutcomeProgress,
		},
		{
			name:    "eta rounds up past threshold",
			state:   bits(true, true, false, false, false),
			eta:     30.6,
			want:    bits(true, true, false, false, false),
			outcome: OutcomeNone,
		},
		{
			name:    "rising eta never clears bits",
			state:   bits(true, true, true, false, false),
			eta:     90,
			want:    bits(true, true, true, false, false),
			outcome: OutcomeNone,
		},
		{
			name:    "last threshold is arrival",
			state:   bits(true, true, true, true, false),
			eta:     1,
			want:    bits(true, true, true, true, true),
			outcome: OutcomeArrived,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.state.Clone()
			got, outcome := ladder.Evaluate(tt.state, tt.eta)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.outcome, outcome)
			assert.Equal(t, before, tt.state, "input state must not change")
		})
	}
}

func TestEvaluateKeepsPrefixInvariant(t *testing.T) {
	ladder := Ladder{-1, 120, 60, 45, 30, 15, 5, 1}
	state := ladder.NewState()
	for _, eta := range []float64{200, 150, 100, 58, 61, 44, 20, 16, 3, 7, 0} {
		var next AlertState
		next, _ = ladder.Evaluate(state, eta)
		for i := range next {
			if state[i] {
				assert.True(t, next[i], "bit %d cleared at eta %v", i, eta)
			}
			if next[i] && i > 0 {
				assert.True(t, next[i-1], "bit %d set before %d at eta %v", i, i-1, eta)
			}
		}
		state = next
	}
	assert.True(t, state.Complete())
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		minutes float64
		want    string
	}{
		{0.2, "less than a minute"},
		{1, "1 min"},
		{12.4, "12 min"},
		{59.6, "1 h 00 min"},
		{65, "1 h 05 min"},
		{185, "3 h 05 min"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.minutes))
	}
}

func TestFormatDistance(t *testing.T) {
	assert.Equal(t, "450 m", FormatDistance(0.45))
	assert.Equal(t, "12.5 km", FormatDistance(12.46))
}
