// Package yamlparser parses declarative Workflow YAML documents into
// registry.WorkflowResource values (§6 "YAML parser").
package yamlparser

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/daz23456/workflow-sub005/pkg/registry"
)

// YamlParseException is returned for every input the parser rejects:
// empty input, invalid YAML syntax, or a resource missing metadata.name.
type YamlParseException struct {
	Message string
	Cause   error
}

func (e *YamlParseException) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("yaml parse error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("yaml parse error: %s", e.Message)
}

func (e *YamlParseException) Unwrap() error {
	return e.Cause
}

// rawDocument accepts both camelCase and lowerCamelCase keys (which are
// the same casing in practice for this schema); unknown fields are
// dropped silently because yaml.v3 ignores unmapped keys by default.
type rawDocument struct {
	Metadata registry.ObjectMeta   `yaml:"metadata"`
	Spec     registry.WorkflowSpec `yaml:"spec"`
}

// Parse validates and converts a YAML document into a WorkflowResource.
func Parse(input string) (*registry.WorkflowResource, error) {
	if strings.TrimSpace(input) == "" {
		return nil, &YamlParseException{Message: "input is empty or whitespace-only"}
	}

	var doc rawDocument
	if err := yaml.Unmarshal([]byte(input), &doc); err != nil {
		return nil, &YamlParseException{Message: "invalid YAML syntax", Cause: err}
	}

	if strings.TrimSpace(doc.Metadata.Name) == "" {
		return nil, &YamlParseException{Message: "metadata.name is required"}
	}

	return &registry.WorkflowResource{
		Metadata: doc.Metadata,
		Spec:     doc.Spec,
	}, nil
}

// rawTaskDocument mirrors rawDocument for the WorkflowTask resource kind.
type rawTaskDocument struct {
	Metadata registry.ObjectMeta       `yaml:"metadata"`
	Spec     registry.WorkflowTaskSpec `yaml:"spec"`
}

// ParseTask validates and converts a YAML document into a
// WorkflowTaskResource, mirroring Parse's rules.
func ParseTask(input string) (*registry.WorkflowTaskResource, error) {
	if strings.TrimSpace(input) == "" {
		return nil, &YamlParseException{Message: "input is empty or whitespace-only"}
	}

	var doc rawTaskDocument
	if err := yaml.Unmarshal([]byte(input), &doc); err != nil {
		return nil, &YamlParseException{Message: "invalid YAML syntax", Cause: err}
	}

	if strings.TrimSpace(doc.Metadata.Name) == "" {
		return nil, &YamlParseException{Message: "metadata.name is required"}
	}

	return &registry.WorkflowTaskResource{
		Metadata: doc.Metadata,
		Spec:     doc.Spec,
	}, nil
}

// Kind reads just the top-level `kind` discriminator from a YAML
// document, letting a directory-based registry client route each file
// to Parse or ParseTask without parsing it twice.
func Kind(input string) (string, error) {
	var doc struct {
		Kind string `yaml:"kind"`
	}
	if err := yaml.Unmarshal([]byte(input), &doc); err != nil {
		return "", &YamlParseException{Message: "invalid YAML syntax", Cause: err}
	}
	return doc.Kind, nil
}
