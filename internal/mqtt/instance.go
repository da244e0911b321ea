package mqtt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const instanceFile = "mqtt_instance_id"

// LoadOrCreateInstanceID returns the identifier stored in dataDir,
// creating and persisting a UUIDv7 on first use. It keeps the MQTT
// client id stable across restarts so the broker can resume the
// session instead of treating each start as a new client.
func LoadOrCreateInstanceID(dataDir string) (string, error) {
	path := filepath.Join(dataDir, instanceFile)

	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate instance id: %w", err)
	}
	if err := os.WriteFile(path, []byte(id.String()+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("persist instance id to %s: %w", path, err)
	}
	return id.String(), nil
}

// clientID derives the broker client id from the device name and the
// first block of the instance id.
func clientID(deviceName, instanceID string) string {
	short, _, _ := strings.Cut(instanceID, "-")
	if short == "" {
		return "axis-" + deviceName
	}
	return "axis-" + deviceName + "-" + short
}
