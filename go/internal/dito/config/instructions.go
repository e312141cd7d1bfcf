package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Instructions holds the texts shown in a task room.
type Instructions struct {
	Greeting   []string `yaml:"greeting" json:"greeting"`
	InstrTitle string   `yaml:"instr_title" json:"instr_title"`
	Instr      string   `yaml:"instr" json:"instr"`
}

// LoadInstructions reads the instruction file. JSON is valid YAML, so both
// formats decode.
func LoadInstructions(path string) (Instructions, error) {
	var instr Instructions

	data, err := os.ReadFile(path)
	if err != nil {
		return instr, fmt.Errorf("failed to read instructions: %w", err)
	}
	if err := yaml.Unmarshal(data, &instr); err != nil {
		return instr, fmt.Errorf("failed to parse instructions: %w", err)
	}
	return instr, nil
}

// LoadNames reads one display name per line, skipping blank lines.
func LoadNames(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open names: %w", err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if name := strings.TrimRight(scanner.Text(), " \t\r"); name != "" {
			names = append(names, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read names: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no names in %s", path)
	}
	return names, nil
}
