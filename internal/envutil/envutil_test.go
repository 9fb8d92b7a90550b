package envutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDev(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"", false},
		{"dev", true},
		{"Development", true},
		{"production", false},
	}

	for _, tt := range tests {
		t.Run("env_"+tt.value, func(t *testing.T) {
			t.Setenv(EnvVar, tt.value)
			assert.Equal(t, tt.want, IsDev())
		})
	}
}
