package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"docgen-backend/internal/models"
)

var (
	// ErrInvalidInput is returned when neither input text nor files are supplied.
	ErrInvalidInput = errors.New("input text or files required")
	// ErrUnknownAgent is returned when no runtime is registered under a name.
	ErrUnknownAgent = errors.New("unknown agent")
)

// Runtime is the uniform contract over heterogeneous generation strategies.
// Implementations may append progress to the job store as they work.
type Runtime interface {
	Name() string
	Describe() string
	Run(ctx context.Context, jobID, inputText string, files []models.FileRef) (*models.Result, error)
}

// Info is the listing shape exposed to API clients.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Registry maps agent names to runtimes. It is populated once at startup by
// the composition root and read-only afterwards, so lookups need no locking.
type Registry struct {
	runtimes map[string]Runtime
}

func NewRegistry(runtimes ...Runtime) *Registry {
	r := &Registry{runtimes: make(map[string]Runtime, len(runtimes))}
	for _, rt := range runtimes {
		r.runtimes[rt.Name()] = rt
	}
	return r
}

// Resolve returns the runtime registered under name, or ErrUnknownAgent.
func (r *Registry) Resolve(name string) (Runtime, error) {
	rt, ok := r.runtimes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, name)
	}
	return rt, nil
}

// List returns registered agents in stable name order.
func (r *Registry) List() []Info {
	infos := make([]Info, 0, len(r.runtimes))
	for _, rt := range r.runtimes {
		infos = append(infos, Info{Name: rt.Name(), Description: rt.Describe()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
