package config

import "testing"

func TestRuntimeConfigEnvVarsOmitsQuantizeWhenAbsent(t *testing.T) {
	rc := RuntimeConfig{
		ModelID:               "meta-llama/Llama-3.1-8B-Instruct",
		MaxBatchPrefillTokens: 4096,
		MaxInputTokens:        2048,
		MaxTotalTokens:        4096,
		NumShard:              2,
	}
	env := rc.EnvVars()
	if _, ok := env["QUANTIZE"]; ok {
		t.Fatalf("expected no QUANTIZE key, got %v", env)
	}
	if env["NUM_SHARD"] != "2" {
		t.Errorf("NUM_SHARD = %q, want %q", env["NUM_SHARD"], "2")
	}
	if env["MODEL_ID"] != "/repository" {
		t.Errorf("MODEL_ID = %q, want /repository", env["MODEL_ID"])
	}
}

func TestRuntimeConfigEnvVarsIncludesQuantizeWhenSet(t *testing.T) {
	rc := RuntimeConfig{Quantize: "fp8", NumShard: 1}
	env := rc.EnvVars()
	if env["QUANTIZE"] != "fp8" {
		t.Errorf("QUANTIZE = %q, want fp8", env["QUANTIZE"])
	}
}

func TestRuntimeConfigEnvVarsDefaultsNumShard(t *testing.T) {
	rc := RuntimeConfig{}
	env := rc.EnvVars()
	if env["NUM_SHARD"] != "1" {
		t.Errorf("NUM_SHARD = %q, want 1", env["NUM_SHARD"])
	}
}

type denyAll struct{}

func (denyAll) IsPayable(string) bool { return false }

func TestNewDeploymentConfigRejectsUnpayableNamespace(t *testing.T) {
	_, err := NewDeploymentConfig(RuntimeConfig{}, InstanceConfig{}, "someone-else", denyAll{})
	if err == nil {
		t.Fatal("expected permission error, got nil")
	}
	var permErr *PermissionError
	if _, ok := err.(*PermissionError); !ok {
		t.Fatalf("expected *PermissionError, got %T", err)
	}
	_ = permErr
}

func TestNewDeploymentConfigAllowsNilChecker(t *testing.T) {
	dc, err := NewDeploymentConfig(RuntimeConfig{}, InstanceConfig{}, "anyone", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dc.Namespace != "anyone" {
		t.Errorf("Namespace = %q, want anyone", dc.Namespace)
	}
}

func TestNewDeploymentHasTeardownOnExit(t *testing.T) {
	dc := DeploymentConfig{Namespace: "ns"}
	d := NewDeployment(dc)
	if !d.TeardownOnExit {
		t.Error("NewDeployment should default TeardownOnExit to true")
	}
	if d.Exists {
		t.Error("NewDeployment should not exist yet")
	}
	if d.State != StateAbsent {
		t.Errorf("State = %q, want absent", d.State)
	}
	if d.DeploymentID == "" {
		t.Error("expected a non-empty deployment id")
	}
}

func TestAdoptDeploymentSkipsTeardown(t *testing.T) {
	dc := DeploymentConfig{Namespace: "ns"}
	d := AdoptDeployment("existing-1", dc, "endpoint-ref", StateRunning)
	if d.TeardownOnExit {
		t.Error("AdoptDeployment should never teardown on exit")
	}
	if !d.Exists {
		t.Error("AdoptDeployment should mark Exists true")
	}
	if d.DeploymentID != "existing-1" {
		t.Errorf("DeploymentID = %q, want existing-1", d.DeploymentID)
	}
}
