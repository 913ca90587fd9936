package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	return v
}

// Validate runs struct-tag validation followed by explicit cross-field
// rules: lazy_mode and result_compression_mode must be one of their
// enumerated values (struct tags already enforce this), the hash-sync
// algorithm is pinned to sha256, and the cache TTL window must be
// non-inverted.
func (c *ProxyConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			return formatValidationErrors(verrs)
		}
		return err
	}
	return c.validateCrossField()
}

func (c *ProxyConfig) validateCrossField() error {
	var errs []string

	caching := c.Optimizations.Caching
	if caching.TTLMinSeconds > 0 && caching.TTLMaxSeconds > 0 && caching.TTLMinSeconds > caching.TTLMaxSeconds {
		errs = append(errs, fmt.Sprintf(
			"optimizations.caching: ttl_min_seconds (%d) must not exceed ttl_max_seconds (%d)",
			caching.TTLMinSeconds, caching.TTLMaxSeconds))
	}
	if caching.TTLSeconds > 0 && caching.TTLMinSeconds > 0 && caching.TTLSeconds < caching.TTLMinSeconds {
		errs = append(errs, fmt.Sprintf(
			"optimizations.caching: ttl_seconds (%d) is below ttl_min_seconds (%d)",
			caching.TTLSeconds, caching.TTLMinSeconds))
	}
	if caching.TTLSeconds > 0 && caching.TTLMaxSeconds > 0 && caching.TTLSeconds > caching.TTLMaxSeconds {
		errs = append(errs, fmt.Sprintf(
			"optimizations.caching: ttl_seconds (%d) exceeds ttl_max_seconds (%d)",
			caching.TTLSeconds, caching.TTLMaxSeconds))
	}

	delta := c.Optimizations.DeltaResponses
	if delta.MinSavingsRatio > delta.MaxPatchRatio && delta.MaxPatchRatio > 0 {
		errs = append(errs, fmt.Sprintf(
			"optimizations.delta_responses: min_savings_ratio (%.2f) must not exceed max_patch_ratio (%.2f)",
			delta.MinSavingsRatio, delta.MaxPatchRatio))
	}

	for name, profile := range c.Servers.Profiles {
		if strings.TrimSpace(profile.Match.CommandContains) == "" {
			errs = append(errs, fmt.Sprintf(
				"servers.profiles.%s: match.command_contains must not be empty", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func formatValidationErrors(verrs validator.ValidationErrors) error {
	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, formatSingleValidationError(fe))
	}
	return fmt.Errorf("config validation failed:\n  - %s", strings.Join(messages, "\n  - "))
}

func formatSingleValidationError(fe validator.FieldError) string {
	field := fe.Namespace()
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s: must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "eq":
		return fmt.Sprintf("%s: must equal %q, got %q", field, fe.Param(), fe.Value())
	case "min":
		return fmt.Sprintf("%s: must be >= %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s: must be <= %s", field, fe.Param())
	case "required":
		return fmt.Sprintf("%s: is required", field)
	default:
		return fmt.Sprintf("%s: failed %q validation", field, fe.Tag())
	}
}
