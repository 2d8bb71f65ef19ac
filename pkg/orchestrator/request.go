package orchestrator

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Workflow families known to the flow engine.
const (
	FamilyCompliance = "compliance"
	FamilySecurity   = "security"
	FamilyTesting    = "testing"
	FamilyDeployment = "deployment"
	FamilyMonitoring = "monitoring"
)

var knownFamilies = map[string]bool{
	FamilyCompliance: true,
	FamilySecurity:   true,
	FamilyTesting:    true,
	FamilyDeployment: true,
	FamilyMonitoring: true,
}

// KnownFamily reports whether family is one of the standard workflow families.
func KnownFamily(family string) bool {
	return knownFamilies[strings.ToLower(strings.TrimSpace(family))]
}

// Request describes one generation request.
type Request struct {
	Family    string         `json:"family" validate:"required,max=128"`
	BlockType string         `json:"block_type" validate:"required,max=128"`
	Repo      string         `json:"repo" validate:"required,max=256"`
	Context   map[string]any `json:"context,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that the request names a family, block type and repo.
// GenerateParallel does not call it; it is for callers that want to reject
// bad input before spending on providers.
func (r Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		var fields []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid generation request: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid generation request: %w", err)
	}
	return nil
}
