package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	tests := []struct {
		name     string
		actual   interface{}
		expected interface{}
	}{
		{"ReadTimeout", cfg.Server.ReadTimeout, 15 * time.Second},
		{"WriteTimeout", cfg.Server.WriteTimeout, 15 * time.Second},
		{"IdleTimeout", cfg.Server.IdleTimeout, 60 * time.Second},
		{"Threshold", cfg.Detection.Threshold, 0.6},
		{"TimeWindow", cfg.Detection.TimeWindow, 2 * time.Minute},
		{"CleanupInterval", cfg.Detection.CleanupInterval, 5 * time.Minute},
		{"StatsFreshness", cfg.Detection.StatsFreshness, 5 * time.Second},
		{"HighFrequencyThreshold", cfg.SecurityLog.HighFrequencyThreshold, 10},
		{"HighFrequencyWindow", cfg.SecurityLog.HighFrequencyWindow, 5 * time.Minute},
		{"LedgerBackend", cfg.Ledger.Backend, LedgerBackendFile},
		{"DatabaseEnabled", cfg.Database.Enabled, false},
		{"HighRiskRegions", cfg.Detection.HighRiskRegions, []string{"RU", "CN", "KP", "IR"}},
	}

	for _, tt := range tests {
		if !reflect.DeepEqual(tt.actual, tt.expected) {
			t.Errorf("%s: got %v, want %v", tt.name, tt.actual, tt.expected)
		}
	}

	if cfg.DashboardAuthEnabled() {
		t.Error("dashboard auth should be disabled without a secret")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("DETECTION_THRESHOLD", "0.75")
	t.Setenv("TIME_WINDOW", "90s")
	t.Setenv("HIGH_RISK_REGIONS", " ru , br ,,")
	t.Setenv("DENYLIST_IPS", "203.0.113.9")
	t.Setenv("LEDGER_BACKEND", "KAFKA")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("DASHBOARD_JWT_SECRET", "dashboard-secret-with-enough-bytes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Detection.Threshold != 0.75 {
		t.Errorf("Threshold = %v, want 0.75", cfg.Detection.Threshold)
	}
	if cfg.Detection.TimeWindow != 90*time.Second {
		t.Errorf("TimeWindow = %v, want 90s", cfg.Detection.TimeWindow)
	}
	if !reflect.DeepEqual(cfg.Detection.HighRiskRegions, []string{"ru", "br"}) {
		t.Errorf("HighRiskRegions = %v", cfg.Detection.HighRiskRegions)
	}
	if !reflect.DeepEqual(cfg.SecurityLog.DenylistIPs, []string{"203.0.113.9"}) {
		t.Errorf("DenylistIPs = %v", cfg.SecurityLog.DenylistIPs)
	}
	if cfg.Ledger.Backend != LedgerBackendKafka || len(cfg.Ledger.KafkaBrokers) != 2 {
		t.Errorf("Ledger = %+v", cfg.Ledger)
	}
	if !cfg.DashboardAuthEnabled() {
		t.Error("dashboard auth should be enabled with a secret")
	}
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	t.Setenv("SERVER_READ_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("ReadTimeout: got %v, want default 15s", cfg.Server.ReadTimeout)
	}
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"threshold zero", map[string]string{"DETECTION_THRESHOLD": "0"}, "DETECTION_THRESHOLD"},
		{"threshold one", map[string]string{"DETECTION_THRESHOLD": "1"}, "DETECTION_THRESHOLD"},
		{"negative window", map[string]string{"TIME_WINDOW": "-1m"}, "TIME_WINDOW"},
		{"zero frequency threshold", map[string]string{"HIGH_FREQUENCY_THRESHOLD": "0"}, "HIGH_FREQUENCY_THRESHOLD"},
		{"unknown ledger", map[string]string{"LEDGER_BACKEND": "chain"}, "LEDGER_BACKEND"},
		{"kafka without brokers", map[string]string{"LEDGER_BACKEND": "kafka"}, "KAFKA_BROKERS"},
		{"database without password", map[string]string{"DB_ENABLED": "true"}, "DB_PASSWORD"},
		{"alerts without sender", map[string]string{"ALERT_EMAIL_TO": "ops@example.com"}, "ALERT_FROM_ADDRESS"},
		{"short secret", map[string]string{"DASHBOARD_JWT_SECRET": "short"}, "DASHBOARD_JWT_SECRET"},
		{"short production secret", map[string]string{"ENV": "production", "DASHBOARD_JWT_SECRET": "twenty-characters-xx"}, "at least 32"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			if err == nil {
				t.Fatal("Load() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestParseAllowedOrigins(t *testing.T) {
	if got := parseAllowedOrigins("production"); len(got) != 0 {
		t.Errorf("production default origins = %v, want none", got)
	}

	t.Setenv("ALLOWED_ORIGINS", "https://ops.example.com, https://soc.example.com")
	want := []string{"https://ops.example.com", "https://soc.example.com"}
	if got := parseAllowedOrigins("production"); !reflect.DeepEqual(got, want) {
		t.Errorf("origins = %v, want %v", got, want)
	}
}
