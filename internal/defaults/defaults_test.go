package defaults

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nugget/axis/internal/config"
)

func TestConfigYAML_LoadsAndValidates(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("AXIS_JWT_SECRET", "0123456789abcdef0123")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, ConfigYAML, 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.ValidateServe(); err != nil {
		t.Errorf("ValidateServe: %v", err)
	}
	if cfg.LLM.APIKey != "sk-test" || cfg.Listen.Port != 3000 || cfg.Agent.MaxSteps != 6 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.MQTT.Configured() {
		t.Error("example config should leave MQTT off")
	}
}
