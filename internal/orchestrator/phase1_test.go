package orchestrator

import (
	"context"
	"testing"

	"github.com/policywatch/collector/internal/config"
	"github.com/policywatch/collector/internal/types"
)

func TestPhase1aSkipsDisallowedSourceWithoutFetching(t *testing.T) {
	o := &Orchestrator{}
	o.SetCrawlPolicy(config.CrawlPolicyConfig{Disallow: []string{"blocked.gov"}})

	_, _, failed := o.phase1a(context.Background(), types.MonitorSource{RootURL: "https://blocked.gov/"})
	if !failed {
		t.Fatal("expected a disallowed source to report failure without dereferencing a nil browser tool")
	}
}
