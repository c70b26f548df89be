// credential-rekey re-encrypts landlord provider secrets that are still sealed
// with the legacy padded key, so LEGACY_CREDENTIAL_KEYS can be switched off.
//
// Usage (from backend directory):
//
//	CREDENTIAL_ENCRYPTION_KEY=... CREDENTIAL_LEGACY_SECRET=... DB_*=... go run ./cmd/credential-rekey [-dry-run]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mmdatafocus/rentals_backend/config"
	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/mmdatafocus/rentals_backend/utils"
	"github.com/mmdatafocus/rentals_backend/vault"
	"github.com/sirupsen/logrus"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "report what would change without writing")
	flag.Parse()

	logger := config.GetLogger()
	logger.SetLevel(logrus.InfoLevel)

	legacySecret := os.Getenv("CREDENTIAL_LEGACY_SECRET")
	if legacySecret == "" {
		fmt.Fprintln(os.Stderr, "CREDENTIAL_LEGACY_SECRET is required")
		os.Exit(2)
	}
	codec, err := vault.NewCodec(os.Getenv("CREDENTIAL_ENCRYPTION_KEY"), legacySecret)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid key: %v\n", err)
		os.Exit(2)
	}
	if !codec.HasKey() {
		fmt.Fprintln(os.Stderr, "CREDENTIAL_ENCRYPTION_KEY is required")
		os.Exit(2)
	}

	config.ConnectDatabaseWithRetry()
	ctx := utils.SetSkipTenantScopeInContext(context.Background(), true)
	store := models.NewPaymentStore(config.GetDB())

	rows, err := store.ProviderConfigs(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load provider configs: %v\n", err)
		os.Exit(1)
	}

	var changed, unreadable int
	for i := range rows {
		cfg := &rows[i]
		n, err := resealConfig(codec, cfg)
		if err != nil {
			unreadable++
			config.LogError(logger, "credential-rekey", "main", "resealing config", cfg.ID, err)
			continue
		}
		if n == 0 {
			continue
		}
		changed++
		fields := logrus.Fields{"config_id": cfg.ID, "landlord_id": cfg.LandlordID, "fields": n}
		if *dryRun {
			logger.WithFields(fields).Info("would re-encrypt")
			continue
		}
		if err := store.UpdateProviderConfigSecrets(ctx, cfg); err != nil {
			config.LogError(logger, "credential-rekey", "main", "UpdateProviderConfigSecrets", cfg.ID, err)
			os.Exit(1)
		}
		logger.WithFields(fields).Info("re-encrypted")
	}

	fmt.Printf("configs=%d changed=%d unreadable=%d dry_run=%v\n", len(rows), changed, unreadable, *dryRun)
	if unreadable > 0 {
		os.Exit(1)
	}
}

// resealConfig reseals every secret column in place and returns how many
// changed. Nothing is modified when any column is unreadable.
func resealConfig(codec *vault.Codec, cfg *models.LandlordProviderConfig) (int, error) {
	fields := []*string{&cfg.ConsumerKey, &cfg.ConsumerSecret, &cfg.Passkey, &cfg.ClientID, &cfg.ClientSecret}
	out := make([]string, len(fields))
	changed := 0
	for i, f := range fields {
		v, resealed, err := codec.Reseal(*f)
		if err != nil {
			return 0, err
		}
		out[i] = v
		if resealed {
			changed++
		}
	}
	for i, f := range fields {
		*f = out[i]
	}
	return changed, nil
}
