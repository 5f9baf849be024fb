package handlers

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/arial-it/rlcf/internal/domain"
	"github.com/arial-it/rlcf/internal/ports"
)

// Registry maps task types to their aggregation strategies. It is safe
// for concurrent use; registration normally happens once at startup but
// new task types may be added at runtime.
type Registry struct {
	mu       sync.RWMutex
	handlers map[domain.TaskType]ports.TaskHandler
}

var _ ports.HandlerRegistry = (*Registry)(nil)

// NewRegistry creates a registry with every built-in handler installed.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[domain.TaskType]ports.TaskHandler)}
	builtins := []ports.TaskHandler{
		NewSummarizationHandler(),
		NewClassificationHandler(),
		NewQAHandler(),
		NewPredictionHandler(),
		NewNLIHandler(),
		NewNERHandler(),
		NewDraftingHandler(),
	}
	for _, h := range builtins {
		if err := r.Register(h); err != nil {
			panic(fmt.Sprintf("register built-in handler %s: %v", h.Type(), err))
		}
	}
	return r
}

// Register installs the handler under its own task type, replacing any
// existing handler for that type.
func (r *Registry) Register(handler ports.TaskHandler) error {
	if handler == nil {
		return errors.New("handler must not be nil")
	}
	if handler.Type() == "" {
		return errors.New("handler task type must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[handler.Type()] = handler
	return nil
}

// Resolve returns the handler for the task type.
func (r *Registry) Resolve(taskType domain.TaskType) (ports.TaskHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[taskType]
	if !ok {
		return nil, fmt.Errorf("task type %s: %w", taskType, domain.ErrUnsupportedTaskType)
	}
	return handler, nil
}

// SupportedTypes lists registered task types in stable order.
func (r *Registry) SupportedTypes() []domain.TaskType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]domain.TaskType, 0, len(r.handlers))
	for taskType := range r.handlers {
		types = append(types, taskType)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
