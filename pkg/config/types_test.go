package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFunnelConfigStageIDs(t *testing.T) {
	f := FunnelConfig{
		Stages: []StageConfig{
			{ID: "cold"}, {ID: "warm"}, {ID: "hot"},
		},
	}
	assert.Equal(t, []string{"cold", "warm", "hot"}, f.StageIDs())
}

func TestFunnelConfigStageIDsEmpty(t *testing.T) {
	var f FunnelConfig
	assert.Equal(t, []string{}, f.StageIDs())
}

func TestFunnelConfigHasStage(t *testing.T) {
	f := FunnelConfig{
		Stages: []StageConfig{{ID: "cold"}, {ID: "warm"}},
	}

	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"declared stage", "cold", true},
		{"other declared stage", "warm", true},
		{"undeclared stage", "hot", false},
		{"empty id", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.HasStage(tt.id))
		})
	}
}
