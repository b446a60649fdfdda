package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadSchedulerConfigOverridesOnlyPresentKeys(t *testing.T) {
	path := writeTempConfig(t, "queue:\n  max_concurrent: 5\n  cooldown_period: 10s\n")

	cfg, err := LoadSchedulerConfig(path)
	if err != nil {
		t.Fatalf("LoadSchedulerConfig: %v", err)
	}
	if cfg.MaxConcurrent != 5 {
		t.Errorf("MaxConcurrent = %d, want 5", cfg.MaxConcurrent)
	}
	if cfg.CooldownPeriod != 10*time.Second {
		t.Errorf("CooldownPeriod = %v, want 10s", cfg.CooldownPeriod)
	}
	if cfg.HeartbeatTimeout != 90*time.Second {
		t.Errorf("HeartbeatTimeout = %v, want the unmodified default 90s", cfg.HeartbeatTimeout)
	}
}

func TestLoadSchedulerConfigRejectsBadDuration(t *testing.T) {
	path := writeTempConfig(t, "queue:\n  cooldown_period: not-a-duration\n")
	if _, err := LoadSchedulerConfig(path); err == nil {
		t.Fatal("LoadSchedulerConfig: expected an error for an unparseable duration")
	}
}

func TestCheckUnknownQueueKeysFlagsTypo(t *testing.T) {
	path := writeTempConfig(t, "queue:\n  max_concurrrent: 5\n")

	result, err := CheckUnknownQueueKeys(path)
	if err != nil {
		t.Fatalf("CheckUnknownQueueKeys: %v", err)
	}
	if !result.HasErrors() {
		t.Fatal("expected the misspelled key to be flagged")
	}
	if result.Errors[0].DidYouMean != "max_concurrent" {
		t.Errorf("DidYouMean = %q, want \"max_concurrent\"", result.Errors[0].DidYouMean)
	}
}

func TestValidateSubmitFormExtractsModelAndDate(t *testing.T) {
	params, result := ValidateSubmitForm(SubmitForm{
		TrainLabel:  "Sundarban Express (726)",
		JourneyDate: "15-Nov-2024",
		AuthToken:   "tok",
		DeviceKey:   "dev",
	})
	if result.HasErrors() {
		t.Fatalf("unexpected validation errors: %v", result.Errors)
	}
	if params.TrainModel != "726" {
		t.Errorf("TrainModel = %q, want \"726\"", params.TrainModel)
	}
	if params.APIDateFormat != "2024-11-15" {
		t.Errorf("APIDateFormat = %q, want \"2024-11-15\"", params.APIDateFormat)
	}
}

func TestValidateSubmitFormRejectsMissingModel(t *testing.T) {
	_, result := ValidateSubmitForm(SubmitForm{TrainLabel: "Sundarban Express", JourneyDate: "15-Nov-2024"})
	if !result.HasErrors() {
		t.Fatal("expected a validation error when the label carries no numeric model")
	}
}

func TestValidateSubmitFormRejectsMalformedDate(t *testing.T) {
	_, result := ValidateSubmitForm(SubmitForm{TrainLabel: "Sundarban Express (726)", JourneyDate: "2024-11-15"})
	if !result.HasErrors() {
		t.Fatal("expected a validation error for a non-DD-MMM-YYYY date")
	}
}
