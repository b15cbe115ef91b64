package notify

import (
	"testing"

	"CredentialDesk/pkg/config"
)

func testConfig() *config.Config {
	cfg, err := config.Parse([]byte("app:\n  name: test\n"))
	if err != nil {
		panic(err)
	}
	return cfg
}

func mustEngine(t *testing.T, cfg *config.Config) Engine {
	t.Helper()
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return e
}
