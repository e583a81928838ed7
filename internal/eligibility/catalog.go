package eligibility

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hinfinity/hrdesk/internal/sla"
)

// UnknownTypeReason is reported for document types absent from the catalog.
const UnknownTypeReason = "Unknown document type"

// Policy holds the eligibility configuration for one document type.
type Policy struct {
	DocumentType     string  `yaml:"document_type"`
	Eligible         bool    `yaml:"eligible"`
	RequiresApproval bool    `yaml:"requires_approval"`
	AutoGenerate     bool    `yaml:"auto_generate"`
	EstimatedTime    string  `yaml:"estimated_time"`
	Reason           string  `yaml:"reason"`
	SLAHours         float64 `yaml:"sla_hours"`
	ApproverRole     string  `yaml:"approver_role"`
	Rules            []Rule  `yaml:"rules"`
}

// Result is the outcome of an eligibility check.
type Result struct {
	Eligible              bool    `json:"eligible"`
	RequiresApproval      bool    `json:"requires_approval"`
	Reason                string  `json:"reason,omitempty"`
	AutoGenerateAvailable bool    `json:"auto_generate_available"`
	EstimatedTime         string  `json:"estimated_time,omitempty"`
	SLAHours              float64 `json:"sla_hours,omitempty"`
	ApproverRole          string  `json:"approver_role,omitempty"`
}

// Checker evaluates eligibility against an immutable catalog.
type Checker struct {
	policies map[string]Policy
}

// NewChecker validates policies and builds a Checker.
func NewChecker(policies []Policy) (*Checker, error) {
	catalog := make(map[string]Policy, len(policies))
	for _, p := range policies {
		key := strings.TrimSpace(p.DocumentType)
		if key == "" {
			return nil, errors.New("eligibility: policy document type required")
		}
		if _, dup := catalog[key]; dup {
			return nil, fmt.Errorf("eligibility: duplicate policy for %q", key)
		}
		if _, err := sla.Window(p.SLAHours); err != nil {
			return nil, fmt.Errorf("eligibility: policy %q: %w", key, err)
		}
		for i, r := range p.Rules {
			if err := r.Validate(); err != nil {
				return nil, fmt.Errorf("eligibility: policy %q rule %d: %w", key, i, err)
			}
		}
		p.DocumentType = key
		p.Rules = append([]Rule(nil), p.Rules...)
		catalog[key] = p
	}
	return &Checker{policies: catalog}, nil
}

// Policy returns the policy for docType.
func (c *Checker) Policy(docType string) (Policy, bool) {
	if c == nil {
		return Policy{}, false
	}
	p, ok := c.policies[docType]
	return p, ok
}

// Check evaluates facts for docType. The first failing rule's message
// becomes the reason.
func (c *Checker) Check(docType string, facts Facts) (Result, error) {
	p, ok := c.Policy(docType)
	if !ok {
		return Result{Eligible: false, RequiresApproval: true, Reason: UnknownTypeReason}, nil
	}
	res := Result{
		Eligible:              p.Eligible,
		RequiresApproval:      p.RequiresApproval,
		Reason:                p.Reason,
		AutoGenerateAvailable: p.AutoGenerate,
		EstimatedTime:         p.EstimatedTime,
		SLAHours:              p.SLAHours,
		ApproverRole:          p.ApproverRole,
	}
	if !res.Eligible {
		return res, nil
	}
	for _, rule := range p.Rules {
		passed, err := rule.Evaluate(facts)
		if err != nil {
			return Result{Eligible: false, RequiresApproval: true, Reason: rule.Message}, err
		}
		if !passed {
			res.Eligible = false
			res.Reason = rule.Message
			return res, nil
		}
	}
	return res, nil
}

// DefaultCatalog is the built-in policy set.
func DefaultCatalog() []Policy {
	return []Policy{
		{
			DocumentType:  "salary_slip",
			Eligible:      true,
			AutoGenerate:  true,
			EstimatedTime: "2 minutes",
			SLAHours:      4,
			ApproverRole:  "hr",
		},
		{
			DocumentType:     "experience_letter",
			Eligible:         true,
			RequiresApproval: true,
			AutoGenerate:     true,
			EstimatedTime:    "24 hours (after approval)",
			Reason:           "HR approval required for experience letters",
			SLAHours:         24,
			ApproverRole:     "hr",
			Rules: []Rule{
				{Type: RuleTenure, Operator: OpGTE, Value: 90, Message: "Minimum 90 days tenure required"},
			},
		},
		{
			DocumentType:     "employment_verification",
			Eligible:         true,
			RequiresApproval: true,
			AutoGenerate:     true,
			EstimatedTime:    "24 hours",
			Reason:           "Manager/HR approval required",
			SLAHours:         24,
			ApproverRole:     "manager",
		},
		{
			DocumentType:     "offer_letter",
			Eligible:         false,
			RequiresApproval: true,
			Reason:           "Offer letter already issued. Contact HR for copies.",
			SLAHours:         24,
			ApproverRole:     "hr",
		},
		{
			DocumentType:     "relieving_letter",
			Eligible:         true,
			RequiresApproval: true,
			AutoGenerate:     true,
			EstimatedTime:    "48 hours",
			Reason:           "HR approval required and must be in offboarding status",
			SLAHours:         48,
			ApproverRole:     "hr",
			Rules: []Rule{
				{Type: RuleStatus, Operator: OpEQ, Value: "offboarding", Message: "Relieving letters are only issued during offboarding"},
			},
		},
		{
			DocumentType:     "custom",
			Eligible:         true,
			RequiresApproval: true,
			Reason:           "Custom requests require manual review",
			SLAHours:         72,
			ApproverRole:     "hr",
		},
	}
}

type catalogFile struct {
	Policies []Policy `yaml:"policies"`
}

// LoadCatalog reads policies from a YAML file. An empty path yields the
// default catalog.
func LoadCatalog(path string) ([]Policy, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("eligibility: read catalog: %w", err)
	}
	return ParseCatalog(raw)
}

// ParseCatalog decodes a YAML catalog document.
func ParseCatalog(raw []byte) ([]Policy, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("eligibility: decode catalog: %w", err)
	}
	if len(file.Policies) == 0 {
		return nil, errors.New("eligibility: catalog has no policies")
	}
	return file.Policies, nil
}
