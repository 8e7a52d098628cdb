// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gesture

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCode(t *testing.T) {
	tests := []struct {
		in   string
		want Code
	}{
		{"UP", Up},
		{"down", Down},
		{"APDS9960_LEFT", Left},
		{" right ", Right},
		{"NONE", None},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseCode("NEAR")
	assert.Error(t, err)
}

func TestNewSOS(t *testing.T) {
	at := time.Unix(100, 0)
	a := NewSOS(at)
	b := NewSOS(at)

	assert.Equal(t, KindSOS, a.Kind)
	assert.Equal(t, at, a.Timestamp)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Nil(t, a.Location)
}

func TestCode_JSON(t *testing.T) {
	data, err := json.Marshal(Sample{Code: Down, Valid: true})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"gesture":"DOWN"`)

	var s Sample
	require.NoError(t, json.Unmarshal([]byte(`{"gesture":"APDS9960_UP"}`), &s))
	assert.Equal(t, Up, s.Code)
}
