package dispatch_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesbroker/funnelbroker/pkg/dispatch"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"whatsapp:+15551234567", "+15551234567"},
		{"+1 (555) 123-4567", "+15551234567"},
		{"15551234567", "+15551234567"},
	}
	for _, tc := range cases {
		got, err := dispatch.NormalizePhone(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestNormalizePhone_RejectsImplausibleInput(t *testing.T) {
	_, err := dispatch.NormalizePhone("whatsapp:abc")
	assert.Error(t, err)
}
