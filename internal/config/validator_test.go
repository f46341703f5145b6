package config

import (
	"strings"
	"testing"
	"time"
)

// validConfig returns the defaults plus the fields that have none.
func validConfig() *Config {
	cfg := Default()
	cfg.Target.URL = "https://example.com/poll"
	cfg.Target.CheckboxSelector = "#PDI_answer1"
	cfg.Target.VoteSelector = "#pd-vote-button"
	return cfg
}

func hasFieldError(errs []ValidationError, field string) bool {
	for _, err := range errs {
		if err.Field == field {
			return true
		}
	}
	return false
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "pool.workers",
		Value:   0,
		Message: "must be between 1 and 8",
	}

	expected := "pool.workers: must be between 1 and 8 (got: 0)"
	if err.Error() != expected {
		t.Errorf("ValidationError.Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("empty ValidationErrors.Error() = %q, want empty string", errs.Error())
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "a", Value: 1, Message: "bad"},
		}
		expected := "a: bad (got: 1)"
		if errs.Error() != expected {
			t.Errorf("single ValidationErrors.Error() = %q, want %q", errs.Error(), expected)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "a", Value: 1, Message: "bad"},
			{Field: "b", Value: 2, Message: "worse"},
		}
		result := errs.Error()
		if !strings.Contains(result, "2 validation errors") {
			t.Errorf("multiple ValidationErrors.Error() should contain count, got %q", result)
		}
		if !strings.Contains(result, "1. a: bad") || !strings.Contains(result, "2. b: worse") {
			t.Errorf("multiple ValidationErrors.Error() should list both, got %q", result)
		}
	})
}

func TestConfig_Validate_ValidConfig(t *testing.T) {
	if errs := validConfig().Validate(); len(errs) != 0 {
		t.Errorf("valid config should have no errors, got: %v", errs)
	}
}

func TestConfig_Validate_DefaultConfigNeedsTarget(t *testing.T) {
	errs := Default().Validate()
	if len(errs) != 3 {
		t.Fatalf("default config errors = %v, want exactly the three target fields", errs)
	}
	for _, field := range []string{"target.url", "target.checkbox_selector", "target.vote_selector"} {
		if !hasFieldError(errs, field) {
			t.Errorf("expected error for %s", field)
		}
	}
}

func TestConfig_Validate_Workers(t *testing.T) {
	tests := []struct {
		workers int
		wantErr bool
	}{
		{-1, true},
		{0, true},
		{1, false},
		{3, false},
		{8, false},
		{9, true},
		{100, true},
	}

	for _, tt := range tests {
		cfg := validConfig()
		cfg.Pool.Workers = tt.workers
		got := hasFieldError(cfg.Validate(), "pool.workers")
		if got != tt.wantErr {
			t.Errorf("workers=%d: error = %v, want %v", tt.workers, got, tt.wantErr)
		}
	}
}

func TestValidateWorkers(t *testing.T) {
	if err := ValidateWorkers(MinWorkers); err != nil {
		t.Errorf("ValidateWorkers(%d) = %v, want nil", MinWorkers, err)
	}
	if err := ValidateWorkers(MaxWorkers); err != nil {
		t.Errorf("ValidateWorkers(%d) = %v, want nil", MaxWorkers, err)
	}
	err := ValidateWorkers(MaxWorkers + 1)
	if err == nil {
		t.Fatal("ValidateWorkers(9) = nil, want error")
	}
	if err.Value != MaxWorkers+1 {
		t.Errorf("Value = %v, want %d", err.Value, MaxWorkers+1)
	}
}

func TestConfig_Validate_Pool(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"negative cooldown", func(c *Config) { c.Pool.Cooldown = -time.Second }, "pool.cooldown"},
		{"negative retry delay", func(c *Config) { c.Pool.RetryDelay = -time.Second }, "pool.retry_delay"},
		{"negative stuck threshold", func(c *Config) { c.Pool.StuckThreshold = -1 }, "pool.stuck_threshold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			if !hasFieldError(cfg.Validate(), tt.field) {
				t.Errorf("expected error for %s", tt.field)
			}
		})
	}

	t.Run("zero waits are valid", func(t *testing.T) {
		cfg := validConfig()
		cfg.Pool.Cooldown = 0
		cfg.Pool.RetryDelay = 0
		cfg.Pool.StuckThreshold = 0
		if errs := cfg.Validate(); len(errs) != 0 {
			t.Errorf("unexpected errors: %v", errs)
		}
	})
}

func TestConfig_Validate_Target(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"https", "https://www.example.com/poll?id=1", false},
		{"http", "http://localhost:8080/", false},
		{"no scheme", "example.com/poll", true},
		{"ftp", "ftp://example.com/poll", true},
		{"no host", "https:///poll", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Target.URL = tt.url
			got := hasFieldError(cfg.Validate(), "target.url")
			if got != tt.wantErr {
				t.Errorf("url %q: error = %v, want %v", tt.url, got, tt.wantErr)
			}
		})
	}

	t.Run("blank selector", func(t *testing.T) {
		cfg := validConfig()
		cfg.Target.VoteSelector = "   "
		if !hasFieldError(cfg.Validate(), "target.vote_selector") {
			t.Error("expected error for blank vote selector")
		}
	})

	t.Run("empty dismiss selector", func(t *testing.T) {
		cfg := validConfig()
		cfg.Target.DismissSelectors = []string{"button.close", ""}
		if !hasFieldError(cfg.Validate(), "target.dismiss_selectors[1]") {
			t.Error("expected error for empty dismiss selector")
		}
	})
}

func TestConfig_Validate_Browser(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"privileged base port", func(c *Config) { c.Browser.BasePort = 80 }, "browser.base_port"},
		{"base port overflows", func(c *Config) { c.Browser.BasePort = 65530 }, "browser.base_port"},
		{"zero page load timeout", func(c *Config) { c.Browser.PageLoadTimeout = 0 }, "browser.page_load_timeout"},
		{"negative element timeout", func(c *Config) { c.Browser.ElementTimeout = -time.Second }, "browser.element_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			if !hasFieldError(cfg.Validate(), tt.field) {
				t.Errorf("expected error for %s", tt.field)
			}
		})
	}
}

func TestConfig_Validate_Logging(t *testing.T) {
	t.Run("valid log levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error", ""} {
			cfg := validConfig()
			cfg.Logging.Level = level
			if hasFieldError(cfg.Validate(), "logging.level") {
				t.Errorf("level %q should be valid", level)
			}
		}
	})

	t.Run("invalid log level", func(t *testing.T) {
		cfg := validConfig()
		cfg.Logging.Level = "verbose"
		if !hasFieldError(cfg.Validate(), "logging.level") {
			t.Error("expected error for invalid log level")
		}
	})

	t.Run("case sensitive log level", func(t *testing.T) {
		cfg := validConfig()
		cfg.Logging.Level = "INFO"
		if !hasFieldError(cfg.Validate(), "logging.level") {
			t.Error("expected error for uppercase log level")
		}
	})

	t.Run("negative rotation values", func(t *testing.T) {
		cfg := validConfig()
		cfg.Logging.MaxSizeMB = -1
		cfg.Logging.MaxBackups = -1
		errs := cfg.Validate()
		if !hasFieldError(errs, "logging.max_size_mb") || !hasFieldError(errs, "logging.max_backups") {
			t.Errorf("expected rotation errors, got %v", errs)
		}
	})
}

func TestConfig_Validate_MetricsAndReport(t *testing.T) {
	cfg := validConfig()
	cfg.Metrics.Listen = "9090"
	cfg.Report.Format = "xml"
	errs := cfg.Validate()

	if !hasFieldError(errs, "metrics.listen") {
		t.Error("expected error for metrics.listen without a port separator")
	}
	if !hasFieldError(errs, "report.format") {
		t.Error("expected error for unknown report format")
	}

	cfg = validConfig()
	cfg.Metrics.Listen = ":9090"
	cfg.Report.Format = "yaml"
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestValidLogLevels(t *testing.T) {
	levels := ValidLogLevels()
	expected := []string{"debug", "info", "warn", "error"}
	if len(levels) != len(expected) {
		t.Fatalf("ValidLogLevels() = %v, want %v", levels, expected)
	}
	for i, level := range expected {
		if levels[i] != level {
			t.Errorf("ValidLogLevels()[%d] = %q, want %q", i, levels[i], level)
		}
	}
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Pool.Workers = 0
	cfg.Browser.ElementTimeout = 0
	cfg.Report.Format = "csv"

	errs := cfg.Validate()
	if len(errs) != 3 {
		t.Errorf("expected 3 errors, got %d: %v", len(errs), errs)
	}
}
