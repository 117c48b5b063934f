package policy

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk policy table.
//
//	safe:
//	  - fetch_customer_booking
//	sensitive:
//	  - send_retention_email
type File struct {
	Safe      []string `yaml:"safe"`
	Sensitive []string `yaml:"sensitive"`
}

// LoadFile reads a YAML policy table. An empty path returns the built-in table.
func LoadFile(path string) (*Classifier, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML policy table. Unknown keys are rejected.
func Parse(data []byte) (*Classifier, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode policy file: %w", err)
	}
	c, err := New(f.Safe, f.Sensitive)
	if err != nil {
		return nil, fmt.Errorf("invalid policy file: %w", err)
	}
	return c, nil
}
