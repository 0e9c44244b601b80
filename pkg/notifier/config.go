package notifier

import (
	"encoding/json"
	"fmt"

	"github.com/pulsegrid/controlplane/internal/cryptoseal"
)

// decryptConfig opens a channel's sealed config and unmarshals it back into
// the opaque map it was created from.
func decryptConfig(sealer *cryptoseal.Sealer, sealed string) (map[string]any, error) {
	raw, err := sealer.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("opening sealed config: %w", err)
	}

	var config map[string]any
	if err := json.Unmarshal(raw, &config); err != nil {
		return nil, fmt.Errorf("unmarshaling channel config: %w", err)
	}
	return config, nil
}

// stringField reads a required string field out of a decrypted config map.
func stringField(config map[string]any, key string) (string, error) {
	v, ok := config[key]
	if !ok {
		return "", fmt.Errorf("config missing required field %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("config field %q is not a string", key)
	}
	return s, nil
}
