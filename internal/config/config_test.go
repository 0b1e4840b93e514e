package config

import "testing"

func TestValidateRejectsMissingModel(t *testing.T) {
	cfg := &Config{Agents: AgentsConfig{MaxSections: 5}, Scheduler: SchedulerConfig{MaxConcurrentSources: 5}}
	if err := validate(cfg); err == nil {
		t.Fatal("expected error for missing llm.model")
	}
}

func TestValidateAcceptsMinimal(t *testing.T) {
	cfg := &Config{
		LLM:       LLMConfig{Model: "gpt-5"},
		Agents:    AgentsConfig{MaxSections: 5},
		Scheduler: SchedulerConfig{MaxConcurrentSources: 5},
	}
	if err := validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
