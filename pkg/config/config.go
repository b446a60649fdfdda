// Package config loads the scheduler's YAML configuration document and
// validates inbound submission forms, following the teacher's
// wire-struct -> domain-struct conversion pattern (spec.md §6
// "Configuration").
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/bdrail/matrixsched/pkg/models"
	"gopkg.in/yaml.v3"
)

// YAMLConfig is the on-disk shape of the configuration document.
// Unknown keys are ignored by yaml.v3's default Unmarshal behavior;
// missing keys take the documented defaults (spec.md §6).
type YAMLConfig struct {
	Queue struct {
		MaxConcurrent         int    `yaml:"max_concurrent,omitempty"`
		CooldownPeriod        string `yaml:"cooldown_period,omitempty"`
		HeartbeatTimeout      string `yaml:"heartbeat_timeout,omitempty"`
		CleanupInterval       string `yaml:"cleanup_interval,omitempty"`
		BatchCleanupThreshold int    `yaml:"batch_cleanup_threshold,omitempty"`
		Enabled               *bool  `yaml:"enabled,omitempty"`
	} `yaml:"queue"`
}

// LoadSchedulerConfig reads a YAML file at path and converts it into a
// models.SchedulerConfig, starting from models.DefaultSchedulerConfig
// and overriding only the keys present in the document.
func LoadSchedulerConfig(path string) (models.SchedulerConfig, error) {
	cfg := models.DefaultSchedulerConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	var doc YAMLConfig
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}

	if doc.Queue.MaxConcurrent > 0 {
		cfg.MaxConcurrent = doc.Queue.MaxConcurrent
	}
	if doc.Queue.CooldownPeriod != "" {
		d, err := time.ParseDuration(doc.Queue.CooldownPeriod)
		if err != nil {
			return cfg, fmt.Errorf("invalid queue.cooldown_period: %w", err)
		}
		cfg.CooldownPeriod = d
	}
	if doc.Queue.HeartbeatTimeout != "" {
		d, err := time.ParseDuration(doc.Queue.HeartbeatTimeout)
		if err != nil {
			return cfg, fmt.Errorf("invalid queue.heartbeat_timeout: %w", err)
		}
		cfg.HeartbeatTimeout = d
	}
	if doc.Queue.CleanupInterval != "" {
		d, err := time.ParseDuration(doc.Queue.CleanupInterval)
		if err != nil {
			return cfg, fmt.Errorf("invalid queue.cleanup_interval: %w", err)
		}
		cfg.CleanupInterval = d
	}
	if doc.Queue.BatchCleanupThreshold > 0 {
		cfg.BatchCleanupThreshold = doc.Queue.BatchCleanupThreshold
	}
	if doc.Queue.Enabled != nil {
		cfg.Enabled = *doc.Queue.Enabled
	}

	return cfg, nil
}

// CheckUnknownQueueKeys re-parses the document's queue section as a
// loose map and flags keys that don't match any recognized field,
// suggesting the closest known field name (pkg/config/validator.go's
// typo-hint machinery). Unknown keys are still ignored by
// LoadSchedulerConfig itself (spec.md §6) — this is diagnostics only,
// meant for a `--check-config` startup flag.
func CheckUnknownQueueKeys(path string) (*ValidationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var loose struct {
		Queue map[string]interface{} `yaml:"queue"`
	}
	if err := yaml.Unmarshal(data, &loose); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	result := &ValidationResult{}
	for key := range loose.Queue {
		known := false
		for _, valid := range validQueueFields {
			if key == valid {
				known = true
				break
			}
		}
		if known {
			continue
		}
		result.Add(ValidationError{
			Field:      "queue." + key,
			Message:    "unrecognized configuration key",
			DidYouMean: FindClosestMatch(key, validQueueFields),
			Hint:       "Unknown keys are ignored at runtime; this is a typo check only",
		})
	}
	return result, nil
}

// trainModelPattern extracts the numeric model code from a select
// option's display label, e.g. "Sundarban Express (726)" -> "726"
// (spec.md §6 /submit: "extract numeric model from \"Name (12345)\"").
var trainModelPattern = regexp.MustCompile(`\((\d+)\)\s*$`)

// journeyDatePattern validates the user-facing DD-MMM-YYYY date shape,
// e.g. "15-Nov-2024", ahead of a full time.Parse.
var journeyDatePattern = regexp.MustCompile(`^\d{2}-[A-Za-z]{3}-\d{4}$`)

// SubmitForm is the raw, unvalidated form payload for POST /submit.
type SubmitForm struct {
	TrainLabel string // e.g. "Sundarban Express (726)"
	JourneyDate string // DD-MMM-YYYY
	AuthToken   string
	DeviceKey   string
}

// ValidateSubmitForm checks a submission form and, on success, returns
// the MatrixParams ready for scheduling. Errors are reported as a
// ValidationResult with field-level hints, in the teacher's
// config-validation style (pkg/config/validator.go).
func ValidateSubmitForm(form SubmitForm) (models.MatrixParams, *ValidationResult) {
	result := &ValidationResult{}

	if strings.TrimSpace(form.TrainLabel) == "" {
		result.Add(ValidationError{
			Field:   "train",
			Message: "missing required field",
			Hint:    "Select a train from the list, e.g. \"Sundarban Express (726)\"",
		})
	}
	model := ""
	if m := trainModelPattern.FindStringSubmatch(form.TrainLabel); m != nil {
		model = m[1]
	} else if strings.TrimSpace(form.TrainLabel) != "" {
		result.Add(ValidationError{
			Field:    "train",
			Value:    form.TrainLabel,
			Message:  "could not find a numeric train model in this label",
			Expected: `"<name> (<model>)"`,
			Hint:     "Pick the train from the dropdown rather than typing it by hand",
		})
	}

	if strings.TrimSpace(form.JourneyDate) == "" {
		result.Add(ValidationError{
			Field:   "date",
			Message: "missing required field",
			Hint:    "Provide the travel date as DD-MMM-YYYY, e.g. 15-Nov-2024",
		})
	} else if !journeyDatePattern.MatchString(form.JourneyDate) {
		result.Add(ValidationError{
			Field:    "date",
			Value:    form.JourneyDate,
			Message:  "does not match the expected date format",
			Expected: "DD-MMM-YYYY (e.g. 15-Nov-2024)",
			Hint:     "Use a 2-digit day, 3-letter month abbreviation, and 4-digit year",
		})
	}

	apiDate := ""
	if !result.HasErrors() {
		parsed, err := time.Parse("02-Jan-2006", form.JourneyDate)
		if err != nil {
			result.Add(ValidationError{
				Field:   "date",
				Value:   form.JourneyDate,
				Message: "could not be parsed as a calendar date",
			})
		} else {
			apiDate = parsed.Format("2006-01-02")
		}
	}

	if result.HasErrors() {
		return models.MatrixParams{}, result
	}

	return models.MatrixParams{
		TrainModel:     model,
		JourneyDateStr: form.JourneyDate,
		APIDateFormat:  apiDate,
		AuthToken:      form.AuthToken,
		DeviceKey:      form.DeviceKey,
	}, result
}
