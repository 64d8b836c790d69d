package config

import (
	_ "embed"
	"fmt"
	"gopkg.in/yaml.v3"
)

//go:embed plans.yaml
var defaultPlans []byte

// PlanSeed is one entry of the subscription plan catalog.
type PlanSeed struct {
	Name         string `yaml:"name"`
	Price        int    `yaml:"price"`
	DurationDays int    `yaml:"duration_days"`
	Description  string `yaml:"description"`
}

// LoadPlans parses the embedded plan catalog.
func LoadPlans() ([]PlanSeed, error) {
	return ParsePlans(defaultPlans)
}

func ParsePlans(raw []byte) ([]PlanSeed, error) {
	var doc struct {
		Plans []PlanSeed `yaml:"plans"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse plans: %w", err)
	}
	for _, p := range doc.Plans {
		if p.Name == "" || p.DurationDays <= 0 || p.Price < 0 {
			return nil, fmt.Errorf("invalid plan %q", p.Name)
		}
	}
	return doc.Plans, nil
}
