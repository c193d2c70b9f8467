package otp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_FixedWidthNumeric(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := New()
		require.NoError(t, err)
		assert.Len(t, code, Digits)
		for _, c := range code {
			assert.True(t, c >= '0' && c <= '9', "non-digit in OTP: %q", code)
		}
	}
}
