package domain

import "context"

// HookEvent is a lifecycle point of a stored entity.
type HookEvent string

const (
	AfterCreate HookEvent = "after_create"
	AfterUpdate HookEvent = "after_update"
	AfterDelete HookEvent = "after_delete"
	AfterImport HookEvent = "after_import"
)

// Hook runs after a committed change. Errors are logged by the caller, never rolled back.
type Hook[T any] func(ctx context.Context, entity T) error

// HookRegistry stores lifecycle hooks for an entity type.
type HookRegistry[T any] struct {
	hooks map[HookEvent][]Hook[T]
}

func NewHookRegistry[T any]() *HookRegistry[T] {
	return &HookRegistry[T]{hooks: make(map[HookEvent][]Hook[T])}
}

// On registers a hook for the specified event.
func (r *HookRegistry[T]) On(event HookEvent, hook Hook[T]) {
	r.hooks[event] = append(r.hooks[event], hook)
}

// Run executes every hook for event and returns the first error after running all of them.
func (r *HookRegistry[T]) Run(ctx context.Context, event HookEvent, entity T) error {
	var first error
	for _, hook := range r.hooks[event] {
		if err := hook(ctx, entity); err != nil && first == nil {
			first = err
		}
	}
	return first
}
