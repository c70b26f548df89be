package config

import (
	"os"
	"strings"
)

// LegacyCredentialKeysEnabled allows provider secrets encrypted with the legacy
// padded key to still be decrypted. Only meant for the cutover window; run
// cmd/credential-rekey and switch it off afterwards.
//
// Set via env:
// - LEGACY_CREDENTIAL_KEYS=true
func LegacyCredentialKeysEnabled() bool {
	return envBool("LEGACY_CREDENTIAL_KEYS", false)
}

// CallbackRedisLockEnabled toggles the best-effort per-transaction Redis lock
// taken while a provider callback is reconciled. Defaults to on.
//
// Set via env:
// - CALLBACK_REDIS_LOCK=false
func CallbackRedisLockEnabled() bool {
	return envBool("CALLBACK_REDIS_LOCK", true)
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return def
	case "1", "true", "yes", "y":
		return true
	default:
		return false
	}
}
