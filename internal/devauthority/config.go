// Package devauthority is a stand-in identity authority for local runs and
// end-to-end tests. It speaks the same HTTP JSON API the session client
// expects and is not meant to issue production credentials.
package devauthority

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// PayloadStyle selects the field naming convention of JSON responses.
type PayloadStyle string

const (
	// PayloadSnake emits snake_case fields.
	PayloadSnake PayloadStyle = "snake"
	// PayloadCamel emits camelCase fields.
	PayloadCamel PayloadStyle = "camel"
)

const (
	defaultIssuer            = "tripauth-dev"
	defaultAccessTTL         = 15 * time.Minute
	defaultRefreshTTL        = 30 * 24 * time.Hour
	defaultRequestsPerSecond = 5
	defaultBurst             = 10
	defaultMinPasswordLength = 8
	defaultCORSMaxAge        = 10 * time.Minute
)

var (
	errMissingSigningKey   = errors.New("config.missing_signing_key")
	errInvalidPayloadStyle = errors.New("config.invalid_payload_style")
)

// Config configures the authority.
type Config struct {
	SigningKey        []byte
	Issuer            string
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	PayloadStyle      PayloadStyle
	AllowedOrigins    []string
	CORSMaxAge        time.Duration
	RequestsPerSecond float64
	Burst             int
	MinPasswordLength int
}

// Normalize validates configuration and fills defaults.
func (configuration Config) Normalize() (Config, error) {
	if len(configuration.SigningKey) == 0 {
		return Config{}, fmt.Errorf("%w: signing key must be provided", errMissingSigningKey)
	}
	if strings.TrimSpace(configuration.Issuer) == "" {
		configuration.Issuer = defaultIssuer
	}
	if configuration.AccessTTL <= 0 {
		configuration.AccessTTL = defaultAccessTTL
	}
	if configuration.RefreshTTL <= 0 {
		configuration.RefreshTTL = defaultRefreshTTL
	}
	switch configuration.PayloadStyle {
	case "":
		configuration.PayloadStyle = PayloadSnake
	case PayloadSnake, PayloadCamel:
	default:
		return Config{}, fmt.Errorf("%w: %q", errInvalidPayloadStyle, configuration.PayloadStyle)
	}
	if configuration.CORSMaxAge <= 0 {
		configuration.CORSMaxAge = defaultCORSMaxAge
	}
	if configuration.RequestsPerSecond <= 0 {
		configuration.RequestsPerSecond = defaultRequestsPerSecond
	}
	if configuration.Burst <= 0 {
		configuration.Burst = defaultBurst
	}
	if configuration.MinPasswordLength <= 0 {
		configuration.MinPasswordLength = defaultMinPasswordLength
	}
	return configuration, nil
}
