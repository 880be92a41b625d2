package saga

import (
	"fmt"
	"sort"

	apperrors "github.com/michaelayoade/dotmac-ftth-ops-sub000/pkg/errors"
)

// Registry maps workflow types to their definitions. It is built once at
// startup by the workflow modules and passed to the orchestration service;
// there is no global registration.
type Registry struct {
	definitions map[string]WorkflowDefinition
}

// NewRegistry creates an empty workflow definition registry.
func NewRegistry() *Registry {
	return &Registry{definitions: make(map[string]WorkflowDefinition)}
}

// Register adds a workflow definition, validating it is executable: a known
// type, at least one step, unique step names, and both handlers set on every
// step. Definition errors are rejected here so a broken definition can never
// take a workflow out of pending.
func (r *Registry) Register(def WorkflowDefinition) error {
	if def.Type == "" {
		return fmt.Errorf("workflow definition has no type")
	}
	if _, exists := r.definitions[def.Type]; exists {
		return fmt.Errorf("workflow definition %q already registered", def.Type)
	}
	if len(def.Steps) == 0 {
		return fmt.Errorf("workflow definition %q has no steps", def.Type)
	}

	seen := make(map[string]struct{}, len(def.Steps))
	for i, step := range def.Steps {
		if step.Name == "" {
			return fmt.Errorf("workflow definition %q: step %d has no name", def.Type, i)
		}
		if _, dup := seen[step.Name]; dup {
			return fmt.Errorf("workflow definition %q: duplicate step name %q", def.Type, step.Name)
		}
		seen[step.Name] = struct{}{}
		if step.Action == nil {
			return fmt.Errorf("workflow definition %q: step %q has no action", def.Type, step.Name)
		}
		if step.Compensate == nil {
			return fmt.Errorf("workflow definition %q: step %q has no compensator", def.Type, step.Name)
		}
	}

	r.definitions[def.Type] = def
	return nil
}

// MustRegister registers a definition and panics on error. Intended for
// startup wiring where a bad definition is a programming error.
func (r *Registry) MustRegister(def WorkflowDefinition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Lookup returns the definition for the given workflow type.
func (r *Registry) Lookup(workflowType string) (WorkflowDefinition, error) {
	def, ok := r.definitions[workflowType]
	if !ok {
		return WorkflowDefinition{}, apperrors.InvalidInput(fmt.Sprintf("unknown workflow type %q", workflowType))
	}
	return def, nil
}

// Types returns the registered workflow types in sorted order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.definitions))
	for t := range r.definitions {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
