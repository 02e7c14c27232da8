package lookup

import (
	"context"
	"fmt"
	"slices"

	"github.com/poiesic/clinrag/core"
)

// Registry maps code systems to their agents. The caller decides which system
// to query; the registry only resolves the key.
type Registry struct {
	agents map[core.CodeSystem]*Agent
}

// NewRegistry indexes agents by the system they serve. A later agent for the
// same system replaces an earlier one.
func NewRegistry(agents ...*Agent) *Registry {
	r := &Registry{agents: make(map[core.CodeSystem]*Agent, len(agents))}
	for _, a := range agents {
		r.agents[a.System()] = a
	}
	return r
}

// NewDefaultRegistry wires the public ICD and RxNorm backends, each with its
// own permit pool, sharing opts.
func NewDefaultRegistry(opts ...Option) (*Registry, error) {
	icd, err := NewAgent(NewICD(""), opts...)
	if err != nil {
		return nil, err
	}
	rx, err := NewAgent(NewRxNorm(""), opts...)
	if err != nil {
		return nil, err
	}
	return NewRegistry(icd, rx), nil
}

// Agent returns the agent for system.
func (r *Registry) Agent(system core.CodeSystem) (*Agent, error) {
	a, ok := r.agents[system]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSystem, system)
	}
	return a, nil
}

// Systems lists the registered code systems in name order.
func (r *Registry) Systems() []core.CodeSystem {
	systems := make([]core.CodeSystem, 0, len(r.agents))
	for s := range r.agents {
		systems = append(systems, s)
	}
	slices.Sort(systems)
	return systems
}

// Run executes a lookup action. When the action's name finds nothing, the
// alternates are tried in order and the first match wins. An action without
// a system is a no-op. The only error is ErrUnknownSystem; a missing code is
// a nil result.
func (r *Registry) Run(ctx context.Context, action core.CodeLookupAction, alternates ...string) (*core.CodeResult, error) {
	if action.System == "" {
		return nil, nil
	}
	a, err := r.Agent(action.System)
	if err != nil {
		return nil, err
	}
	return a.LookupFirst(ctx, append([]string{action.Name}, alternates...)...), nil
}
