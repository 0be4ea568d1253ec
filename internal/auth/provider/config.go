package provider

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// providerEnv holds raw env values for the federated login configuration.
type providerEnv struct {
	GoogleClientID     string        `env:"HDNOTES_GOOGLE_CLIENT_ID"`
	GoogleClientSecret string        `env:"HDNOTES_GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURI  string        `env:"HDNOTES_GOOGLE_REDIRECT_URI"`
	GoogleScopes       []string      `env:"HDNOTES_GOOGLE_SCOPES" envSeparator:","`
	FrontendURL        string        `env:"HDNOTES_FRONTEND_URL"  envDefault:"http://localhost:3000"`
	StateTTL           time.Duration `env:"HDNOTES_OAUTH_STATE_TTL" envDefault:"15m"`
}

// Config describes the external identity provider and where the flow lands.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	Scopes       []string
	FrontendURL  string
	StateTTL     time.Duration
}

// LoadConfigFromEnv loads federated login configuration from environment
// variables. The provider endpoints are fixed; only credentials and redirect
// targets vary by deployment.
func LoadConfigFromEnv() Config {
	var raw providerEnv
	if err := env.Parse(&raw); err != nil {
		return Config{StateTTL: 15 * time.Minute, FrontendURL: "http://localhost:3000"}
	}

	scopes := trimCSV(raw.GoogleScopes)
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}
	if raw.StateTTL <= 0 {
		raw.StateTTL = 15 * time.Minute
	}

	return Config{
		ClientID:     raw.GoogleClientID,
		ClientSecret: raw.GoogleClientSecret,
		RedirectURI:  raw.GoogleRedirectURI,
		AuthURL:      "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL:     "https://oauth2.googleapis.com/token",
		UserInfoURL:  "https://openidconnect.googleapis.com/v1/userinfo",
		Scopes:       scopes,
		FrontendURL:  strings.TrimRight(raw.FrontendURL, "/"),
		StateTTL:     raw.StateTTL,
	}
}

// Enabled reports whether the provider is fully configured.
func (c Config) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RedirectURI != ""
}

// trimCSV removes empty entries from a string slice.
func trimCSV(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			result = append(result, v)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
