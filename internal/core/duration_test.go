package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   Delay
		want int64
	}{
		{"5s", 5000},
		{"2m", 120000},
		{"1h", 3600000},
		{"3d", 259200000},
		{"250ms", 250},
		{"42", 42},
		{" 7s ", 7000},
		{Millis(42), 42},
	}

	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDuration_Rejects(t *testing.T) {
	for _, in := range []Delay{"bogus", "", "5w", "-5s", "1.5h", "s",
		"9223372036854775807s", "106751991167301d", "99999999999999999999"} {
		_, err := ParseDuration(in)
		require.Error(t, err, "input %q", in)
		assert.True(t, errors.Is(err, &DomainError{Category: ErrCatValidation, Code: CodeDurationParse}))
	}
}

func TestDelay_Duration(t *testing.T) {
	d, err := Delay("2m").Duration()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, d)
}

func TestDelay_Duration_RejectsOverflow(t *testing.T) {
	for _, in := range []Delay{"200000d", "9223372036854775807"} {
		ms, err := ParseDuration(in)
		require.NoError(t, err, "input %q", in)
		assert.Positive(t, ms)

		_, err = in.Duration()
		require.Error(t, err, "input %q", in)
		assert.True(t, errors.Is(err, &DomainError{Category: ErrCatValidation, Code: CodeDurationParse}))
	}

	d, err := Delay("106751d").Duration()
	require.NoError(t, err)
	assert.Equal(t, 106751*24*time.Hour, d)
}

func TestDelay_UnmarshalJSON(t *testing.T) {
	var body struct {
		A Delay `json:"a"`
		B Delay `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"5s","b":1500}`), &body))
	assert.Equal(t, Delay("5s"), body.A)
	assert.Equal(t, Delay("1500"), body.B)

	ms, err := ParseDuration(body.B)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), ms)
}
