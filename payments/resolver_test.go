package payments

import (
	"context"
	"testing"
	"time"

	"github.com/mmdatafocus/rentals_backend/config"
	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/mmdatafocus/rentals_backend/utils"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func platformDefaults() map[string]config.PlatformCredentials {
	return map[string]config.PlatformCredentials{
		"mpesa": {
			Kind:           "paybill",
			Shortcode:      "600000",
			ConsumerKey:    "platform-ck",
			ConsumerSecret: "platform-cs",
			Passkey:        "platform-pk",
			Environment:    "sandbox",
		},
	}
}

func TestResolve_LandlordConfigHealsPreference(t *testing.T) {
	store := newFakeStore()
	store.configs = []models.LandlordProviderConfig{{
		ID: "cfg-1", LandlordID: "landlord-1", Provider: models.ProviderFamilyMpesa, Kind: models.ProviderKindTillNative,
		Shortcode: "174379", TillNumber: "TILL123", IsActive: true, Environment: models.ProviderEnvironmentProduction,
	}}
	store.preferences["landlord-1"] = models.PreferenceModePlatformDefault
	r := NewResolver(store, platformDefaults(), logrus.New())

	res, err := r.Resolve(context.Background(), "landlord-1", models.ProviderFamilyMpesa)
	require.NoError(t, err)
	assert.True(t, res.UsingLandlordConfig)
	assert.Equal(t, models.ProviderKindTillNative, res.Kind)
	assert.Equal(t, "cfg-1", res.ConfigID)
	assert.Equal(t, models.PreferenceModeCustom, res.PreferenceMode)
	assert.Equal(t, models.PreferenceModeCustom, store.preferences["landlord-1"])
}

func TestResolve_PicksMostRecentlyUpdatedOfSeveral(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	store.configs = []models.LandlordProviderConfig{
		{ID: "old", LandlordID: "landlord-1", Provider: models.ProviderFamilyMpesa, Kind: models.ProviderKindPaybill, IsActive: true, UpdatedAt: now.Add(-time.Hour)},
		{ID: "new", LandlordID: "landlord-1", Provider: models.ProviderFamilyMpesa, Kind: models.ProviderKindPaybill, IsActive: true, UpdatedAt: now},
	}
	r := NewResolver(store, platformDefaults(), logrus.New())

	res, err := r.Resolve(context.Background(), "landlord-1", models.ProviderFamilyMpesa)
	require.NoError(t, err)
	assert.Equal(t, "new", res.ConfigID)
}

func TestResolve_FallsBackToPlatform(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store, platformDefaults(), logrus.New())

	res, err := r.Resolve(context.Background(), "landlord-2", models.ProviderFamilyMpesa)
	require.NoError(t, err)
	assert.False(t, res.UsingLandlordConfig)
	assert.Equal(t, "600000", res.Shortcode)
	assert.Equal(t, models.PreferenceModePlatformDefault, res.PreferenceMode)
	assert.Equal(t, 0, store.preferenceOp, "fallback must not write a preference")
}

func TestResolve_ConfigMissing(t *testing.T) {
	r := NewResolver(newFakeStore(), platformDefaults(), logrus.New())

	_, err := r.Resolve(context.Background(), "landlord-2", models.ProviderFamilyKopoKopo)
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindConfigMissing))
}

func TestHealPreference_NoWriteWhenAlreadyCustom(t *testing.T) {
	store := newFakeStore()
	store.preferences["landlord-1"] = models.PreferenceModeCustom
	r := NewResolver(store, nil, logrus.New())

	mode, err := r.HealPreference(context.Background(), "landlord-1")
	require.NoError(t, err)
	assert.Equal(t, models.PreferenceModeCustom, mode)
	assert.Equal(t, 0, store.preferenceOp)

	mode, err = r.HealPreference(context.Background(), "landlord-new")
	require.NoError(t, err)
	assert.Equal(t, models.PreferenceModeCustom, mode)
	assert.Equal(t, 1, store.preferenceOp)
}
