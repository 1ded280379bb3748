package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSupport_CaseAndDiacriticInsensitive(t *testing.T) {
	cases := []string{"CANCELAR", "cancelar", "cancelár", "I want to cancelar my plan"}
	for _, text := range cases {
		assert.True(t, IsSupport(text), "expected %q to classify as support", text)
	}
}

func TestIsSupport_TechnicalAndBillingMarkers(t *testing.T) {
	assert.True(t, IsSupport("I can't log into the app"))
	assert.True(t, IsSupport("I was charged twice this month"))
	assert.True(t, IsSupport("the app keeps showing an error"))
}

func TestIsSupport_NoMarkersIsNotSupport(t *testing.T) {
	assert.False(t, IsSupport("I want to know about the product"))
	assert.False(t, IsSupport("how much does the monthly plan cost?"))
}
