package config

import (
	"fmt"
	"strings"
)

// Sampling and output bounds accepted by the generation endpoint.
const (
	minTemperature     = 0.0
	maxTemperature     = 2.0
	maxTopK            = 500
	maxMaxOutputTokens = 65536
	maxHistoryWindow   = 200

	// minHMACSecretLen is the minimum byte length of the identity secret.
	minHMACSecretLen = 32
)

// validSafetyThresholds are the thresholds the endpoint recognizes.
var validSafetyThresholds = map[string]bool{
	"BLOCK_NONE":             true,
	"BLOCK_ONLY_HIGH":        true,
	"BLOCK_MEDIUM_AND_ABOVE": true,
	"BLOCK_LOW_AND_ABOVE":    true,
}

// validSSLModes are the sslmode values libpq/pgx accept.
var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks configuration common to all run modes.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if strings.TrimSpace(c.ModelName) == "" || strings.ContainsAny(c.ModelName, " /\\") {
		return fmt.Errorf("%w: %q", ErrInvalidModelName, c.ModelName)
	}
	if c.Temperature < minTemperature || c.Temperature > maxTemperature {
		return fmt.Errorf("%w: %.2f (must be %.1f-%.1f)", ErrInvalidTemperature, c.Temperature, minTemperature, maxTemperature)
	}
	if c.TopP <= 0 || c.TopP > 1 {
		return fmt.Errorf("%w: %.2f (must be in (0, 1])", ErrInvalidTopP, c.TopP)
	}
	if c.TopK <= 0 || c.TopK > maxTopK {
		return fmt.Errorf("%w: %d (must be 1-%d)", ErrInvalidTopK, c.TopK, maxTopK)
	}
	if c.MaxOutputTokens <= 0 || c.MaxOutputTokens > maxMaxOutputTokens {
		return fmt.Errorf("%w: %d (must be 1-%d)", ErrInvalidMaxOutputTokens, c.MaxOutputTokens, maxMaxOutputTokens)
	}
	if !validSafetyThresholds[c.SafetyThreshold] {
		return fmt.Errorf("%w: %q", ErrInvalidSafetyThreshold, c.SafetyThreshold)
	}
	if c.HistoryWindow <= 0 || c.HistoryWindow > maxHistoryWindow {
		return fmt.Errorf("%w: %d (must be 1-%d)", ErrInvalidHistoryWindow, c.HistoryWindow, maxHistoryWindow)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort <= 0 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name is empty", ErrInvalidPostgresDBName)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	return nil
}

// ValidateServe checks the additional requirements of serve mode.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.HMACSecret == "" {
		return fmt.Errorf("%w: set PODSCOUT_HMAC_SECRET", ErrMissingHMACSecret)
	}
	if len(c.HMACSecret) < minHMACSecretLen {
		return fmt.Errorf("%w: need at least %d bytes, got %d", ErrInvalidHMACSecret, minHMACSecretLen, len(c.HMACSecret))
	}
	return nil
}
