package masking_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/salesbroker/funnelbroker/pkg/config"
	"github.com/salesbroker/funnelbroker/pkg/masking"
)

func newTestService() *masking.Service {
	builtin := config.GetBuiltinConfig()
	return masking.NewService(builtin.MaskingPatterns, builtin.PatternGroups)
}

func TestService_Redact_MasksPhoneAndEmail(t *testing.T) {
	svc := newTestService()

	out := svc.Redact("contact +15551234567 or jane.doe@example.com about the order")
	assert.NotContains(t, out, "+15551234567")
	assert.NotContains(t, out, "jane.doe@example.com")
	assert.Contains(t, out, "[MASKED_PHONE]")
	assert.Contains(t, out, "[MASKED_EMAIL]")
}

func TestService_RedactGroup_UnknownGroupReturnsUnchanged(t *testing.T) {
	svc := newTestService()

	in := "call +15551234567"
	out := svc.RedactGroup(in, "nonexistent")
	assert.Equal(t, in, out)
}

func TestService_Redact_LeavesNonPIITextAlone(t *testing.T) {
	svc := newTestService()
	in := "I want to know about the product"
	assert.Equal(t, in, svc.Redact(in))
}
