package planner

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	profileLoadTemplateConstant  = "loading component profiles from %s: %w"
	profileParseTemplateConstant = "parsing component profiles from %s: %w"
)

// ComponentProfile names one project component and its threat notes, folded
// into the ranking context when provided.
type ComponentProfile struct {
	Name        string `yaml:"name"`
	ThreatNotes string `yaml:"threat_notes"`
}

type componentProfileFile struct {
	Components []ComponentProfile `yaml:"components"`
}

// LoadComponentProfiles reads an optional per-project YAML profile file. A
// missing file is not an error; profiles are advisory ranking context.
func LoadComponentProfiles(filePath string) ([]ComponentProfile, error) {
	fileContents, readError := os.ReadFile(filePath)
	if os.IsNotExist(readError) {
		return nil, nil
	}
	if readError != nil {
		return nil, fmt.Errorf(profileLoadTemplateConstant, filePath, readError)
	}

	var parsedFile componentProfileFile
	if parseError := yaml.Unmarshal(fileContents, &parsedFile); parseError != nil {
		return nil, fmt.Errorf(profileParseTemplateConstant, filePath, parseError)
	}
	return parsedFile.Components, nil
}
