package service

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/cloo-solutions/fhirchat/internal/domain"
)

const (
	confidenceDomain   = 0.9
	confidenceBusiness = 0.6
	confidenceNone     = 0.1
)

// DefaultScopeTerms returns the built-in classification terms used when no
// term file is configured.
func DefaultScopeTerms() domain.ScopeTerms {
	return domain.ScopeTerms{
		DomainTerms: []string{
			"fhir", "hl7", "patient", "observation", "bundle", "resource",
			"interoperability", "interop", "ehr", "emr", "smart on fhir", "cds hooks",
			"r4", "r5", "stu3", "dstu2", "terminology", "loinc", "snomed", "icd-10",
			"cda", "c-cda", "implementation guide", "us core", "structuredefinition",
			"valueset", "codesystem", "capabilitystatement", "hapi", "healthcare",
			"clinical", "encounter", "practitioner", "medicationrequest", "questionnaire",
			"bulk data", "tefca", "cures act", "health information exchange",
		},
		BusinessTerms: []string{
			"cloo", "consulting", "consultant", "consultancy", "training", "workshop",
			"course", "engagement", "pricing", "quote", "services", "hire", "contact",
		},
		OffTopicPatterns: []string{
			`\b(weather|forecast|rain(ing)?|snow(ing)?)\b`,
			`\b(football|soccer|basketball|baseball|hockey|nfl|nba|sports?)\b`,
			`\b(recipes?|cook(ing)?|bak(e|ing)|cuisine)\b`,
			`\b(politics|political|election|president|congress|democrats?|republicans?)\b`,
			`\b(crypto(currency|currencies)?|bitcoin|ethereum|nfts?|dogecoin)\b`,
			`\b(travel(l?ing)?|vacation|flights?|hotels?|tourism)\b`,
		},
	}
}

type compiledScopeTerms struct {
	domainTerms   []string
	businessTerms []string
	offTopic      []*regexp.Regexp
}

// ScopeClassifier decides whether a query is in the FHIR / healthcare
// interoperability domain. Classify is pure for a given term set; Update
// swaps the term set atomically.
type ScopeClassifier struct {
	terms atomic.Pointer[compiledScopeTerms]
}

// NewScopeClassifier creates a classifier from the given terms
func NewScopeClassifier(terms domain.ScopeTerms) (*ScopeClassifier, error) {
	c := &ScopeClassifier{}
	if err := c.Update(terms); err != nil {
		return nil, err
	}
	return c, nil
}

// Update replaces the classification terms. Off-topic patterns always match
// case-insensitively. On error the previous terms remain in effect.
func (c *ScopeClassifier) Update(terms domain.ScopeTerms) error {
	compiled, err := compileScopeTerms(terms)
	if err != nil {
		return err
	}
	c.terms.Store(compiled)
	return nil
}

func compileScopeTerms(terms domain.ScopeTerms) (*compiledScopeTerms, error) {
	out := &compiledScopeTerms{
		domainTerms:   lowerNonEmpty(terms.DomainTerms),
		businessTerms: lowerNonEmpty(terms.BusinessTerms),
	}
	for _, p := range terms.OffTopicPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid off-topic pattern %q: %w", p, err)
		}
		out.offTopic = append(out.offTopic, re)
	}
	return out, nil
}

func lowerNonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Classify returns the scope decision for query. An off-topic match always
// wins over domain and business matches.
func (c *ScopeClassifier) Classify(query string) domain.ScopeDecision {
	terms := c.terms.Load()
	lower := strings.ToLower(query)

	decision := domain.ScopeDecision{
		MatchedDomainTerms:   containsAny(lower, terms.domainTerms),
		MatchedBusinessTerms: containsAny(lower, terms.businessTerms),
	}

	for _, re := range terms.offTopic {
		if re.MatchString(query) {
			decision.IsExcludedTopic = true
			break
		}
	}

	decision.InScope = (decision.MatchedDomainTerms || decision.MatchedBusinessTerms) && !decision.IsExcludedTopic

	switch {
	case decision.MatchedDomainTerms:
		decision.Confidence = confidenceDomain
	case decision.MatchedBusinessTerms:
		decision.Confidence = confidenceBusiness
	default:
		decision.Confidence = confidenceNone
	}

	return decision
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
