package schema

import (
	"encoding/json"
	"testing"
	"time"
)

func TestAuthExpired(t *testing.T) {
	cases := []struct {
		name   string
		result *ChatResult
		want   bool
	}{
		{"nil result", nil, false},
		{"no follow up", &ChatResult{Body: "x"}, false},
		{"empty options", &ChatResult{FollowUp: &FollowUp{}}, false},
		{"full auth", &ChatResult{FollowUp: &FollowUp{Options: []FollowUpOption{{Type: FollowUpFullAuth}}}}, true},
		{"re auth", &ChatResult{FollowUp: &FollowUp{Options: []FollowUpOption{{Type: FollowUpReAuth}}}}, true},
		{"other type", &ChatResult{FollowUp: &FollowUp{Options: []FollowUpOption{{Type: "retry"}}}}, false},
		{"auth not first", &ChatResult{FollowUp: &FollowUp{Options: []FollowUpOption{{Type: "retry"}, {Type: FollowUpFullAuth}}}}, false},
	}
	for _, tc := range cases {
		if got := tc.result.AuthExpired(); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestAuthExpiredValueEquality(t *testing.T) {
	// The type string may arrive from a decoded payload rather than the
	// package constant; detection must compare values, not identities.
	var opt FollowUpOption
	if err := json.Unmarshal([]byte(`{"type":"full-auth"}`), &opt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	result := &ChatResult{FollowUp: &FollowUp{Options: []FollowUpOption{opt}}}
	if !result.AuthExpired() {
		t.Fatalf("decoded auth type not detected")
	}
}

func TestChatResultCodeReferenceTag(t *testing.T) {
	var result ChatResult
	payload := `{"body":"x","codeReference":[{"licenseName":"MIT"}]}`
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(result.CodeReferences) != 1 || result.CodeReferences[0].LicenseName != "MIT" {
		t.Fatalf("code references not decoded: %+v", result)
	}
}

func TestNormalizeEngineConfigDefaults(t *testing.T) {
	cfg, err := NormalizeEngineConfig(EngineConfig{})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.RequestTimeout != DefaultRequestTimeout {
		t.Fatalf("unexpected timeout %v", cfg.RequestTimeout)
	}
	if cfg.PromptMinLen != DefaultPromptMinLen || cfg.PromptMaxLen != DefaultPromptMaxLen {
		t.Fatalf("unexpected prompt bounds %+v", cfg)
	}
}

func TestNormalizeEngineConfigRejectsInvertedBounds(t *testing.T) {
	_, err := NormalizeEngineConfig(EngineConfig{PromptMinLen: 100, PromptMaxLen: 10})
	if err == nil {
		t.Fatalf("expected invalid config error")
	}
}

func TestNormalizeEngineConfigKeepsExplicitValues(t *testing.T) {
	cfg, err := NormalizeEngineConfig(EngineConfig{
		RequestTimeout: 5 * time.Second,
		PromptMinLen:   1,
		PromptMaxLen:   50,
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.RequestTimeout != 5*time.Second || cfg.PromptMinLen != 1 || cfg.PromptMaxLen != 50 {
		t.Fatalf("explicit values clobbered: %+v", cfg)
	}
}
