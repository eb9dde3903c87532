package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalNumericComparators(t *testing.T) {
	state := map[string]any{"score": float64(5)}

	tests := []struct {
		expr string
		want bool
	}{
		{"user_state.score == 5", true},
		{"user_state.score != 5", false},
		{"user_state.score < 10", true},
		{"user_state.score <= 5", true},
		{"user_state.score > 10", false},
		{"user_state.score >= 5", true},
		{"user_state.score > 4.5", true},
	}
	for _, tt := range tests {
		got, err := Eval(tt.expr, state)
		require.NoError(t, err, tt.expr)
		assert.Equal(t, tt.want, got, tt.expr)
	}
}

func TestEvalStringAndBoolLiterals(t *testing.T) {
	state := map[string]any{"group": "A", "done": true}

	got, err := Eval(`user_state.group == "A"`, state)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = Eval(`user_state.group == 'B'`, state)
	require.NoError(t, err)
	assert.False(t, got)

	got, err = Eval("user_state.done == true", state)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvalNestedPath(t *testing.T) {
	state := map[string]any{
		"profile": map[string]any{"age": float64(30)},
	}
	got, err := Eval("user_state.profile.age >= 18", state)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvalUndefinedLeftHandSide(t *testing.T) {
	state := map[string]any{}

	// P9: missing keys are "undefined", which equals nothing and makes
	// every ordering comparator false.
	got, err := Eval("user_state.missing == 1", state)
	require.NoError(t, err)
	assert.False(t, got)

	got, err = Eval("user_state.missing != 1", state)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = Eval("user_state.missing > 1", state)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestEvalOrderingAgainstNonNumericIsFalse(t *testing.T) {
	state := map[string]any{"label": "hello"}
	got, err := Eval(`user_state.label > "a"`, state)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("not an expression")
	assert.Error(t, err)

	_, err = Parse("user_state.x ~~ 1")
	assert.Error(t, err)
}

func TestResolveBranchPicksFirstMatch(t *testing.T) {
	state := map[string]any{"score": float64(3)}
	branches := []Branch{
		{When: "user_state.score > 10", Target: "high"},
		{When: "user_state.score > 0", Target: "mid"},
		{Target: "default"},
	}
	target, ok := ResolveBranch(branches, state)
	require.True(t, ok)
	assert.Equal(t, "mid", target)
}

func TestResolveBranchFallsBackToDefault(t *testing.T) {
	state := map[string]any{"score": float64(-1)}
	branches := []Branch{
		{When: "user_state.score > 10", Target: "high"},
		{Target: "default"},
	}
	target, ok := ResolveBranch(branches, state)
	require.True(t, ok)
	assert.Equal(t, "default", target)
}

func TestResolveBranchNoMatchNoDefault(t *testing.T) {
	branches := []Branch{{When: "user_state.x == 1", Target: "a"}}
	_, ok := ResolveBranch(branches, map[string]any{})
	assert.False(t, ok)
}
