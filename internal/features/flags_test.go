package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFlagManager_Defaults(t *testing.T) {
	fm := NewFlagManager()

	for _, def := range DefaultFlags {
		assert.Equal(t, def.DefaultValue, fm.IsEnabled(def.Name), def.Name)
	}
	assert.False(t, fm.IsEnabled("nonexistent"))

	flags := fm.List()
	require.Len(t, flags, len(DefaultFlags))
	for i := 1; i < len(flags); i++ {
		assert.Less(t, flags[i-1].Name, flags[i].Name)
	}
}

func TestFlagManager_Set(t *testing.T) {
	fm := NewFlagManager()

	require.NoError(t, fm.Set(FlagAIClassification, false))
	assert.False(t, fm.IsEnabled(FlagAIClassification))

	err := fm.Set("nonexistent", true)
	assert.IsType(t, ErrFlagNotFound{}, err)
	assert.EqualError(t, err, "feature flag not found: nonexistent")
}

func TestFlagManager_ListReturnsCopies(t *testing.T) {
	fm := NewFlagManager()
	flags := fm.List()
	flags[0].Enabled = !flags[0].Enabled

	assert.NotEqual(t, flags[0].Enabled, fm.IsEnabled(flags[0].Name))
}

func TestLoadFromConfig(t *testing.T) {
	fm := NewFlagManager()

	unknown := fm.LoadFromConfig(map[string]bool{
		"Webhook_Rate_Limit": false,
		"delivery_monitor":   false,
		"media_compression":  true,
	})

	assert.Equal(t, []string{"media_compression"}, unknown)
	assert.False(t, fm.IsEnabled(FlagWebhookRateLimit))
	assert.False(t, fm.IsEnabled(FlagDeliveryMonitor))
	assert.True(t, fm.IsEnabled(FlagApprovalExpiry))
}

func TestLoadFromEnviron(t *testing.T) {
	fm := NewFlagManager()

	unknown := fm.loadFromEnviron([]string{
		"WINBRIDGE_FEATURE_APPROVAL_EXPIRY=false",
		"WINBRIDGE_FEATURE_TEMPLATE_RELOAD=0",
		"WINBRIDGE_FEATURE_AI_CLASSIFICATION=maybe",
		"WINBRIDGE_FEATURE_UNKNOWN=true",
		"PATH=/usr/bin",
	})

	assert.ElementsMatch(t, []string{"WINBRIDGE_FEATURE_AI_CLASSIFICATION", "WINBRIDGE_FEATURE_UNKNOWN"}, unknown)
	assert.False(t, fm.IsEnabled(FlagApprovalExpiry))
	assert.False(t, fm.IsEnabled(FlagTemplateReload))
	assert.True(t, fm.IsEnabled(FlagAIClassification))
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("WINBRIDGE_FEATURE_DELIVERY_MONITOR", "false")
	fm := NewFlagManager()

	assert.Empty(t, fm.LoadFromEnvironment())
	assert.False(t, fm.IsEnabled(FlagDeliveryMonitor))
}
