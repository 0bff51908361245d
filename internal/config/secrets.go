package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	redact(&out.KeyPassphrase)

	out.Venues = make([]VenueConfig, len(cfg.Venues))
	copy(out.Venues, cfg.Venues)
	for i := range out.Venues {
		redact(&out.Venues[i].APIKey)
		redact(&out.Venues[i].APISecret)
		redact(&out.Venues[i].EncryptedAPIKey)
		redact(&out.Venues[i].EncryptedAPISecret)
	}

	out.Postgres = cfg.Postgres
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	out.Redis = cfg.Redis
	redact(&out.Redis.Password)

	out.Notify = cfg.Notify
	redact(&out.Notify.TelegramToken)

	if cfg.Notify.Events != nil {
		out.Notify.Events = make([]string, len(cfg.Notify.Events))
		copy(out.Notify.Events, cfg.Notify.Events)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
