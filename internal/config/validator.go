package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "pool.workers")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidReportFormats returns the list of valid report formats
func ValidReportFormats() []string {
	return []string{"text", "json", "yaml"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError
	errors = append(errors, c.validatePool()...)
	errors = append(errors, c.validateTarget()...)
	errors = append(errors, c.validateBrowser()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateMetrics()...)
	errors = append(errors, c.validateReport()...)
	return errors
}

// ValidateWorkers reports whether n is a supported worker count.
func ValidateWorkers(n int) *ValidationError {
	if n < MinWorkers || n > MaxWorkers {
		return &ValidationError{
			Field:   "pool.workers",
			Value:   n,
			Message: fmt.Sprintf("must be between %d and %d", MinWorkers, MaxWorkers),
		}
	}
	return nil
}

func (c *Config) validatePool() []ValidationError {
	var errors []ValidationError

	if err := ValidateWorkers(c.Pool.Workers); err != nil {
		errors = append(errors, *err)
	}
	if c.Pool.Cooldown < 0 {
		errors = append(errors, ValidationError{Field: "pool.cooldown", Value: c.Pool.Cooldown, Message: "must be non-negative"})
	}
	if c.Pool.RetryDelay < 0 {
		errors = append(errors, ValidationError{Field: "pool.retry_delay", Value: c.Pool.RetryDelay, Message: "must be non-negative"})
	}
	if c.Pool.StuckThreshold < 0 {
		errors = append(errors, ValidationError{Field: "pool.stuck_threshold", Value: c.Pool.StuckThreshold, Message: "must be non-negative"})
	}

	return errors
}

func (c *Config) validateTarget() []ValidationError {
	var errors []ValidationError

	if c.Target.URL == "" {
		errors = append(errors, ValidationError{Field: "target.url", Value: c.Target.URL, Message: "is required"})
	} else if u, err := url.Parse(c.Target.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errors = append(errors, ValidationError{Field: "target.url", Value: c.Target.URL, Message: "must be an absolute http(s) URL"})
	}
	if strings.TrimSpace(c.Target.CheckboxSelector) == "" {
		errors = append(errors, ValidationError{Field: "target.checkbox_selector", Value: c.Target.CheckboxSelector, Message: "is required"})
	}
	if strings.TrimSpace(c.Target.VoteSelector) == "" {
		errors = append(errors, ValidationError{Field: "target.vote_selector", Value: c.Target.VoteSelector, Message: "is required"})
	}
	for i, sel := range c.Target.DismissSelectors {
		if strings.TrimSpace(sel) == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("target.dismiss_selectors[%d]", i),
				Value:   sel,
				Message: "must not be empty",
			})
		}
	}

	return errors
}

func (c *Config) validateBrowser() []ValidationError {
	var errors []ValidationError

	// Every worker's port (base + index) must stay a valid unprivileged port.
	if c.Browser.BasePort < 1024 || c.Browser.BasePort+MaxWorkers > 65535 {
		errors = append(errors, ValidationError{
			Field:   "browser.base_port",
			Value:   c.Browser.BasePort,
			Message: fmt.Sprintf("must be between 1024 and %d", 65535-MaxWorkers),
		})
	}
	if c.Browser.PageLoadTimeout <= 0 {
		errors = append(errors, ValidationError{Field: "browser.page_load_timeout", Value: c.Browser.PageLoadTimeout, Message: "must be positive"})
	}
	if c.Browser.ElementTimeout <= 0 {
		errors = append(errors, ValidationError{Field: "browser.element_timeout", Value: c.Browser.ElementTimeout, Message: "must be positive"})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{Field: "logging.max_size_mb", Value: c.Logging.MaxSizeMB, Message: "must be non-negative"})
	}
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{Field: "logging.max_backups", Value: c.Logging.MaxBackups, Message: "must be non-negative"})
	}

	return errors
}

func (c *Config) validateMetrics() []ValidationError {
	if c.Metrics.Listen != "" && !strings.Contains(c.Metrics.Listen, ":") {
		return []ValidationError{{
			Field:   "metrics.listen",
			Value:   c.Metrics.Listen,
			Message: "must be host:port or :port",
		}}
	}
	return nil
}

func (c *Config) validateReport() []ValidationError {
	if !slices.Contains(ValidReportFormats(), c.Report.Format) {
		return []ValidationError{{
			Field:   "report.format",
			Value:   c.Report.Format,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidReportFormats(), ", ")),
		}}
	}
	return nil
}
