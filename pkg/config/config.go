// Package config builds the explicit configuration value object every run
// starts from. Values come from viper, which merges the config file, a local
// .env file and real environment variables.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/weppos/publicsuffix-go/publicsuffix"
)

// Keys that must be present before a run may cause any side effect.
var requiredKeys = []string{
	"page_url",
	"email_api_key",
	"primary_recipient",
	"sender_address",
}

// Config carries everything a watch run needs. Built once at startup and
// passed down; nothing reads viper after this point.
type Config struct {
	PageURL            string
	EmailAPIKey        string
	PrimaryRecipient   string
	SecondaryRecipient string // optional, restock alerts only
	SenderAddress      string
	Timezone           string // IANA name
	StateDBPath        string // empty means the default location
}

// FromViper validates the required keys and snapshots all settings.
func FromViper() (*Config, error) {
	for _, k := range requiredKeys {
		if viper.GetString(k) == "" {
			return nil, fmt.Errorf("required configuration %s is not set", strings.ToUpper(k))
		}
	}
	return &Config{
		PageURL:            viper.GetString("page_url"),
		EmailAPIKey:        viper.GetString("email_api_key"),
		PrimaryRecipient:   viper.GetString("primary_recipient"),
		SecondaryRecipient: viper.GetString("secondary_recipient"),
		SenderAddress:      viper.GetString("sender_address"),
		Timezone:           viper.GetString("timezone"),
		StateDBPath:        viper.GetString("state_db"),
	}, nil
}

// StatePathFromViper returns just the configured state database path, for
// commands that work on the store without needing the full configuration.
func StatePathFromViper() string {
	return viper.GetString("state_db")
}

// Location resolves the configured timezone against the IANA database.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Recipients returns the full restock-alert recipient set: the primary
// address plus the secondary one when configured.
func (c *Config) Recipients() []string {
	r := []string{c.PrimaryRecipient}
	if c.SecondaryRecipient != "" {
		r = append(r, c.SecondaryRecipient)
	}
	return r
}

// SiteLabel derives a short label for subject lines from the watched URL's
// registrable domain, e.g. "shop.example.co.uk" -> "example.co.uk". Falls
// back to the raw host (or URL) when the domain cannot be derived.
func (c *Config) SiteLabel() string {
	u, err := url.Parse(c.PageURL)
	if err != nil || u.Hostname() == "" {
		return c.PageURL
	}
	domain, err := publicsuffix.Domain(u.Hostname())
	if err != nil {
		return u.Hostname()
	}
	return domain
}
