package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/cloo-solutions/fhirchat/internal/domain"
	"gopkg.in/yaml.v3"
)

// LoadScopeTerms reads a YAML scope term file. Every off-topic pattern must
// compile and at least one domain or business term must be present.
func LoadScopeTerms(path string) (domain.ScopeTerms, error) {
	var terms domain.ScopeTerms

	data, err := os.ReadFile(path)
	if err != nil {
		return terms, fmt.Errorf("failed to read scope terms: %w", err)
	}

	if err := yaml.Unmarshal(data, &terms); err != nil {
		return terms, fmt.Errorf("failed to parse scope terms: %w", err)
	}

	if err := ValidateScopeTerms(terms); err != nil {
		return domain.ScopeTerms{}, err
	}

	return terms, nil
}

// ValidateScopeTerms checks that the term set can drive a classifier.
func ValidateScopeTerms(terms domain.ScopeTerms) error {
	if len(terms.DomainTerms) == 0 && len(terms.BusinessTerms) == 0 {
		return fmt.Errorf("scope terms: at least one domain or business term is required")
	}
	for _, p := range terms.OffTopicPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("scope terms: invalid off-topic pattern %q: %w", p, err)
		}
	}
	return nil
}
