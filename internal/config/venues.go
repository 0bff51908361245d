package config

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/stbmp23/arbitrager/internal/crypto"
	"github.com/stbmp23/arbitrager/internal/domain"
)

// BuildRegistry converts the configured venues into the domain venue
// registry, decrypting any encrypted API credentials with the configured key
// passphrase. Plain credentials take precedence over encrypted ones.
func BuildRegistry(cfg *Config) (*domain.Registry, error) {
	venues := make([]*domain.Venue, 0, len(cfg.Venues))
	for _, vc := range cfg.Venues {
		creds, err := resolveCredentials(vc, cfg.KeyPassphrase)
		if err != nil {
			return nil, fmt.Errorf("config: venue %s: %w", vc.Code, err)
		}

		venues = append(venues, &domain.Venue{
			Code:              vc.Code,
			Name:              vc.Name,
			CommissionPercent: decimal.NewFromFloat(vc.CommissionPercent),
			Priority:          vc.Priority,
			Enabled:           vc.Enabled,
			Credentials:       creds,
		})
	}
	return domain.NewRegistry(venues), nil
}

// resolveCredentials picks plain credentials when present and otherwise
// decrypts the encrypted blobs. A disabled venue may omit credentials
// entirely.
func resolveCredentials(vc VenueConfig, passphrase string) (domain.Credentials, error) {
	creds := domain.Credentials{Key: vc.APIKey, Secret: vc.APISecret}

	if creds.Key == "" && vc.EncryptedAPIKey != "" {
		key, err := crypto.DecryptSecret([]byte(vc.EncryptedAPIKey), passphrase)
		if err != nil {
			return domain.Credentials{}, fmt.Errorf("decrypt api key: %w", err)
		}
		creds.Key = key
	}
	if creds.Secret == "" && vc.EncryptedAPISecret != "" {
		secret, err := crypto.DecryptSecret([]byte(vc.EncryptedAPISecret), passphrase)
		if err != nil {
			return domain.Credentials{}, fmt.Errorf("decrypt api secret: %w", err)
		}
		creds.Secret = secret
	}

	if vc.Enabled && (creds.Key == "" || creds.Secret == "") {
		return domain.Credentials{}, fmt.Errorf("enabled venue has no usable credentials")
	}

	return creds, nil
}
