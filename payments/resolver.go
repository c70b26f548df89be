package payments

import (
	"context"
	"errors"

	"github.com/mmdatafocus/rentals_backend/config"
	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/mmdatafocus/rentals_backend/providers"
	"github.com/mmdatafocus/rentals_backend/utils"
	"github.com/sirupsen/logrus"
)

type ConfigStore interface {
	ActiveProviderConfigs(ctx context.Context, landlordID string, family models.ProviderFamily) ([]models.LandlordProviderConfig, error)
	GetPaymentPreference(ctx context.Context, landlordID string) (*models.LandlordPaymentPreference, error)
	SavePaymentPreference(ctx context.Context, landlordID string, mode models.PreferenceMode) error
}

// ResolvedConfig is the credential set a push will use. When
// UsingLandlordConfig is true the secret fields are still vault ciphertext.
type ResolvedConfig struct {
	ConfigID            string
	Family              models.ProviderFamily
	Kind                models.ProviderKind
	Environment         models.ProviderEnvironment
	Shortcode           string
	TillNumber          string
	Secrets             providers.Credentials
	UsingLandlordConfig bool
	PreferenceMode      models.PreferenceMode
}

// BusinessShortCode is the code shown to callers for this configuration.
func (r *ResolvedConfig) BusinessShortCode() string {
	if r.Kind == models.ProviderKindTillOAuth && r.TillNumber != "" {
		return r.TillNumber
	}
	return r.Shortcode
}

type Resolver struct {
	store    ConfigStore
	platform map[string]config.PlatformCredentials
	logger   *logrus.Logger
}

func NewResolver(store ConfigStore, platform map[string]config.PlatformCredentials, logger *logrus.Logger) *Resolver {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Resolver{store: store, platform: platform, logger: logger}
}

// Resolve picks the landlord's own active configuration for the family, or
// the platform default when the landlord has none. Nothing is cached.
func (r *Resolver) Resolve(ctx context.Context, landlordID string, family models.ProviderFamily) (*ResolvedConfig, error) {
	if landlordID != "" {
		rows, err := r.store.ActiveProviderConfigs(ctx, landlordID, family)
		if err != nil {
			return nil, utils.NewPaymentError(utils.KindInternal, "provider configuration lookup failed", err)
		}
		if len(rows) > 0 {
			if len(rows) > 1 {
				ids := make([]string, 0, len(rows))
				for _, row := range rows {
					ids = append(ids, row.ID)
				}
				r.logger.WithFields(logrus.Fields{
					"module":      "payments",
					"funcName":    "Resolver.Resolve",
					"landlord_id": landlordID,
					"provider":    family,
					"config_ids":  ids,
					"chosen":      rows[0].ID,
				}).Warn("several active provider configurations; using the most recently updated")
			}
			mode, err := r.HealPreference(ctx, landlordID)
			if err != nil {
				config.LogError(r.logger, "payments", "Resolver.Resolve", "preference heal failed", landlordID, err)
			}
			return fromLandlordConfig(&rows[0], mode), nil
		}
	}

	mode := models.PreferenceModePlatformDefault
	if landlordID != "" {
		pref, err := r.store.GetPaymentPreference(ctx, landlordID)
		switch {
		case err == nil:
			mode = pref.Mode
		case !errors.Is(err, models.ErrRecordNotFound):
			config.LogError(r.logger, "payments", "Resolver.Resolve", "preference lookup failed", landlordID, err)
		}
		if mode == models.PreferenceModeCustom {
			r.logger.WithFields(logrus.Fields{
				"module":      "payments",
				"landlord_id": landlordID,
				"provider":    family,
			}).Warn("preference is custom but no active configuration exists; using platform credentials")
		}
	}

	platform, ok := r.platform[string(family)]
	if !ok || !platform.Configured() {
		pe := utils.NewPaymentError(utils.KindConfigMissing, "no payment credentials are configured for "+string(family), nil)
		pe.Hint = "the landlord must add provider credentials or the platform default must be set"
		return nil, pe
	}
	return fromPlatform(family, platform, mode), nil
}

// HealPreference sets the landlord's preference to custom. It runs whenever
// an active landlord configuration is found, repairing rows that drifted.
func (r *Resolver) HealPreference(ctx context.Context, landlordID string) (models.PreferenceMode, error) {
	pref, err := r.store.GetPaymentPreference(ctx, landlordID)
	if err == nil && pref.Mode == models.PreferenceModeCustom {
		return models.PreferenceModeCustom, nil
	}
	if err != nil && !errors.Is(err, models.ErrRecordNotFound) {
		return "", err
	}
	if err := r.store.SavePaymentPreference(ctx, landlordID, models.PreferenceModeCustom); err != nil {
		return "", err
	}
	r.logger.WithFields(logrus.Fields{
		"module":      "payments",
		"landlord_id": landlordID,
	}).Info("payment preference healed to custom")
	return models.PreferenceModeCustom, nil
}

func fromLandlordConfig(row *models.LandlordProviderConfig, mode models.PreferenceMode) *ResolvedConfig {
	env := row.Environment
	if env == "" {
		env = models.ProviderEnvironmentSandbox
	}
	return &ResolvedConfig{
		ConfigID:    row.ID,
		Family:      row.Provider,
		Kind:        row.Kind,
		Environment: env,
		Shortcode:   row.Shortcode,
		TillNumber:  row.TillNumber,
		Secrets: providers.Credentials{
			Kind:           row.Kind,
			Environment:    env,
			Shortcode:      row.Shortcode,
			TillNumber:     row.TillNumber,
			ConsumerKey:    row.ConsumerKey,
			ConsumerSecret: row.ConsumerSecret,
			Passkey:        row.Passkey,
			ClientID:       row.ClientID,
			ClientSecret:   row.ClientSecret,
		},
		UsingLandlordConfig: true,
		PreferenceMode:      mode,
	}
}

func fromPlatform(family models.ProviderFamily, p config.PlatformCredentials, mode models.PreferenceMode) *ResolvedConfig {
	kind := models.ProviderKind(p.Kind)
	env := models.ProviderEnvironment(p.Environment)
	if env != models.ProviderEnvironmentProduction {
		env = models.ProviderEnvironmentSandbox
	}
	return &ResolvedConfig{
		Family:      family,
		Kind:        kind,
		Environment: env,
		Shortcode:   p.Shortcode,
		TillNumber:  p.TillNumber,
		Secrets: providers.Credentials{
			Kind:           kind,
			Environment:    env,
			Shortcode:      p.Shortcode,
			TillNumber:     p.TillNumber,
			ConsumerKey:    p.ConsumerKey,
			ConsumerSecret: p.ConsumerSecret,
			Passkey:        p.Passkey,
			ClientID:       p.ClientID,
			ClientSecret:   p.ClientSecret,
		},
		PreferenceMode: mode,
	}
}
