package dictionary

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadYAML decodes raw definitions from YAML. Unknown keys are rejected so
// that typos in repository files surface at load time.
func LoadYAML(r io.Reader) (RawDefinitions, error) {
	var raw RawDefinitions
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return RawDefinitions{}, fmt.Errorf("decode dictionary: empty document")
		}
		return RawDefinitions{}, fmt.Errorf("decode dictionary: %w", err)
	}
	return raw, nil
}

// LoadFile reads and builds a dictionary from a YAML file.
func LoadFile(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dictionary: %w", err)
	}
	defer f.Close()

	raw, err := LoadYAML(f)
	if err != nil {
		return nil, err
	}
	d, err := Build(raw)
	if err != nil {
		return nil, fmt.Errorf("build dictionary %s: %w", path, err)
	}
	return d, nil
}
