// Copyright (c) 2025 Alex Walker
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// minAPIKeyLength is the shortest plausible DeepSeek API key.
const minAPIKeyLength = 20

// ValidationError describes one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns all problems at once. An
// empty API key passes here: the client reports it at send time, so a user
// can still browse saved chats without a key.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.APIKey != "" {
		if err := ValidateAPIKey(c.APIKey); err != nil {
			errs = append(errs, ValidationError{Field: "api_key", Message: err.Error()})
		}
	}
	if c.Model == "" {
		errs = append(errs, ValidationError{Field: "model", Message: "must not be empty"})
	}
	if u, err := url.Parse(c.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, ValidationError{Field: "base_url", Message: "must be an http or https URL"})
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, ValidationError{Field: "temperature", Message: "must be between 0 and 2"})
	}
	if c.MaxTokens <= 0 {
		errs = append(errs, ValidationError{Field: "max_tokens", Message: "must be positive"})
	}
	if c.TimeoutSecs <= 0 {
		errs = append(errs, ValidationError{Field: "timeout_secs", Message: "must be positive"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidateAPIKey checks that a key looks like a DeepSeek API key before any
// request is made with it. This catches pasted-in garbage early; it cannot
// prove the key is live.
func ValidateAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("API key is empty")
	}
	if !strings.HasPrefix(key, "sk-") {
		return fmt.Errorf("API key must start with sk-")
	}
	if len(key) < minAPIKeyLength {
		return fmt.Errorf("API key too short (%d chars)", len(key))
	}
	if strings.ContainsAny(key, " \t\n\r") {
		return fmt.Errorf("API key contains whitespace")
	}
	return nil
}
