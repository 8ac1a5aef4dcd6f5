package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// shippingFile is the on-disk shipping policy document, e.g.
//
//	policy: percentage
//	rate: "0.05"
//	minimum: "10.00"
//	free_threshold: "2500.00"
type shippingFile struct {
	Policy        string `yaml:"policy"`
	Rate          string `yaml:"rate"`
	Minimum       string `yaml:"minimum"`
	FreeThreshold string `yaml:"free_threshold"`
}

// applyShippingFile overrides shipping settings with the values present in the policy file.
func applyShippingFile(cfg *ShippingConfig) error {
	raw, err := os.ReadFile(cfg.PolicyFile)
	if err != nil {
		return fmt.Errorf("config: read shipping policy %s: %w", cfg.PolicyFile, err)
	}
	var doc shippingFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("config: parse shipping policy %s: %w", cfg.PolicyFile, err)
	}

	if policy := strings.ToLower(strings.TrimSpace(doc.Policy)); policy != "" {
		cfg.Policy = policy
	}
	targets := []struct {
		name  string
		value string
		field *decimal.Decimal
	}{
		{"rate", doc.Rate, &cfg.Rate},
		{"minimum", doc.Minimum, &cfg.Minimum},
		{"free_threshold", doc.FreeThreshold, &cfg.FreeThreshold},
	}
	for _, target := range targets {
		value := strings.TrimSpace(target.value)
		if value == "" {
			continue
		}
		parsed, err := decimal.NewFromString(value)
		if err != nil {
			return fmt.Errorf("config: shipping policy %s: %w", target.name, err)
		}
		*target.field = parsed
	}
	return nil
}
