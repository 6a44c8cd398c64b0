package eval

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want any
	}{
		{"int int", int64(2), int64(3), int64(5)},
		{"int float", int64(2), 3.0, 5.0},
		{"float int", 0.5, int64(1), 1.5},
		{"plain int widened", 2, int64(3), int64(5)},
		{"string string", "a", "b", "ab"},
		{"string int", "a", int64(1), "a1"},
		{"float string", 2.0, "x", "2.0x"},
		{"bool string", true, "!", "true!"},
		{"null left", nil, int64(1), nil},
		{"null right", "a", nil, nil},
		{"list list", []any{int64(1)}, []any{int64(2), int64(3)}, []any{int64(1), int64(2), int64(3)}},
		{"list append", []any{int64(1)}, "x", []any{int64(1), "x"}},
		{"list prepend", "x", []any{int64(1)}, []any{"x", int64(1)}},
		{"list append null", []any{int64(1)}, nil, []any{int64(1), nil}},
		{"typed list", []string{"a"}, []string{"b"}, []any{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Add(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("list concat does not alias operands", func(t *testing.T) {
		left := make([]any, 1, 4)
		left[0] = int64(1)
		_, err := Add(left, int64(2))
		require.NoError(t, err)
		out, err := Add(left, int64(3))
		require.NoError(t, err)
		assert.Equal(t, []any{int64(1), int64(3)}, out)
	})

	t.Run("incompatible", func(t *testing.T) {
		_, err := Add(NodeRef{ID: "n1"}, int64(1))
		assert.ErrorIs(t, err, ErrIncompatibleTypes)
		assert.Contains(t, err.Error(), "NODE")

		_, err = Add(map[string]any{}, "a")
		assert.ErrorIs(t, err, ErrIncompatibleTypes)

		_, err = Add(true, int64(1))
		assert.ErrorIs(t, err, ErrIncompatibleTypes)
	})
}

func TestSubtract(t *testing.T) {
	got, err := Subtract(int64(5), int64(3))
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)

	got, err = Subtract(int64(5), 0.5)
	require.NoError(t, err)
	assert.Equal(t, 4.5, got)

	got, err = Subtract(nil, int64(1))
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = Subtract("a", "b")
	assert.ErrorIs(t, err, ErrIncompatibleTypes)

	_, err = Subtract([]any{int64(1)}, int64(1))
	assert.ErrorIs(t, err, ErrIncompatibleTypes)
}

func TestText(t *testing.T) {
	assert.Equal(t, "", Text(nil))
	assert.Equal(t, "42", Text(int64(42)))
	assert.Equal(t, "3.0", Text(3.0))
	assert.Equal(t, "0.25", Text(0.25))
	assert.Equal(t, "NaN", Text(math.NaN()))
	assert.Equal(t, "-Infinity", Text(math.Inf(-1)))
	assert.Equal(t, "false", Text(false))
	assert.Equal(t, "[1 2]", Text([]any{1, 2}))
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "NULL", TypeName(nil))
	assert.Equal(t, "INTEGER", TypeName(int64(1)))
	assert.Equal(t, "LIST", TypeName([]any{}))
	assert.Equal(t, "RELATIONSHIP", TypeName(RelationshipRef{}))
	assert.Equal(t, "struct {}", TypeName(struct{}{}))
}
