package config

import "maps"

const redacted = "***"

// RedactedConfig returns a copy of cfg with every secret replaced by
// "***", safe to log. Slices and maps are copied too.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Wallet.PrivateKey)
	redact(&out.Wallet.KeyPassword)
	redact(&out.Polymarket.APIKey)
	redact(&out.Polymarket.APISecret)
	redact(&out.Polymarket.APIPassphrase)
	redact(&out.Redis.Password)
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	out.Feeds.Redis = append([]RedisFeedConfig(nil), cfg.Feeds.Redis...)
	out.Feeds.WebSocket = make([]WSFeedConfig, len(cfg.Feeds.WebSocket))
	for i, ws := range cfg.Feeds.WebSocket {
		ws.Headers = maps.Clone(ws.Headers)
		for k := range ws.Headers {
			v := ws.Headers[k]
			redact(&v)
			ws.Headers[k] = v
		}
		out.Feeds.WebSocket[i] = ws
	}
	return out
}

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
