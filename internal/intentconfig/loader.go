package intentconfig

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultPolicy []byte

// Load reads a policy YAML file and returns it with the raw bytes.
// KnownFields(true): typos and unused keys fail immediately.
func Load(path string) (*Policy, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read policy %s: %w", path, err)
	}

	p, err := Parse(data)
	if err != nil {
		return nil, data, fmt.Errorf("policy %s: %w", path, err)
	}
	return p, data, nil
}

// LoadOrDefault loads path, or the embedded default when path is empty.
func LoadOrDefault(path string) (*Policy, error) {
	if path == "" {
		return Default()
	}
	p, _, err := Load(path)
	return p, err
}

// Default returns the embedded default policy
func Default() (*Policy, error) {
	return Parse(defaultPolicy)
}

// Parse decodes and validates policy YAML
func Parse(data []byte) (*Policy, error) {
	var p Policy
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	if err := Validate(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Hash returns the SHA-256 of the policy's canonical JSON.
// encoding/json sorts map keys, so equal policies hash equally.
func Hash(p *Policy) (string, error) {
	jsonBytes, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}
