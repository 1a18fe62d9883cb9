package script

import (
	"os"
	"strings"
	"testing"
)

func TestRenderConstantArrivalRateIncludesCoreVariables(t *testing.T) {
	path, err := Render("constant_arrival_rate", Vars{
		Host:            "http://endpoint.local:8000",
		DataFile:        "/data/prompts.json",
		PreAllocatedVUs: 20,
		Rate:            5,
		Duration:        "60s",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer os.Remove(path)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read rendered script: %v", err)
	}
	script := string(data)

	for _, want := range []string{
		"http://endpoint.local:8000",
		"/data/prompts.json",
		"preAllocatedVUs: 20",
		"rate: 5",
		`duration: "60s"`,
	} {
		if !strings.Contains(script, want) {
			t.Errorf("rendered script missing %q:\n%s", want, script)
		}
	}
	if strings.Contains(script, "max_new_tokens") {
		t.Errorf("expected max_new_tokens to be omitted when MaxNewTokens is zero")
	}
}

func TestRenderIncludesMaxNewTokensWhenSet(t *testing.T) {
	path, err := Render("constant_arrival_rate", Vars{
		Host: "http://endpoint.local", DataFile: "/d.json",
		PreAllocatedVUs: 1, Rate: 1, Duration: "10s", MaxNewTokens: 128,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer os.Remove(path)

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "max_new_tokens: 128") {
		t.Errorf("expected max_new_tokens to appear when set:\n%s", data)
	}
}

func TestRenderUnknownTemplateFails(t *testing.T) {
	if _, err := Render("does_not_exist", Vars{}); err == nil {
		t.Fatal("expected error for unknown template")
	}
}
