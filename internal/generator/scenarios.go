// Package generator implements the presentation generation pipeline:
// scenario presets, outline generation, template selection and slide
// rendering, driven stage by stage through a project's board.
package generator

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/landppt/landppt/internal/models"
)

//go:embed scenarios.yaml
var scenariosYAML []byte

// LoadScenarios parses the embedded scenario catalog.
func LoadScenarios() ([]models.Scenario, error) {
	var scenarios []models.Scenario
	if err := yaml.Unmarshal(scenariosYAML, &scenarios); err != nil {
		return nil, fmt.Errorf("parse scenario catalog: %w", err)
	}
	return scenarios, nil
}

// ScenarioByID returns the scenario with the given ID from the catalog.
func ScenarioByID(id string) (*models.Scenario, error) {
	scenarios, err := LoadScenarios()
	if err != nil {
		return nil, err
	}
	for i := range scenarios {
		if scenarios[i].ID == id {
			return &scenarios[i], nil
		}
	}
	return nil, fmt.Errorf("unknown scenario %q", id)
}
