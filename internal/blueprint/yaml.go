package blueprint

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// MarshalYAML renders the blueprint as a YAML document for export.
func MarshalYAML(bp *Blueprint) ([]byte, error) {
	if bp == nil {
		return nil, fmt.Errorf("nil blueprint")
	}
	out, err := yaml.Marshal(bp)
	if err != nil {
		return nil, fmt.Errorf("encoding blueprint yaml: %w", err)
	}
	return out, nil
}
