package services

// Key names a capability and the static type that provides it. Resolve uses
// it to return the instance without a type scan.
type Key[T any] struct {
	tag string
}

func NewKey[T any](tag string) Key[T] {
	return Key[T]{tag: tag}
}

func (k Key[T]) Tag() string    { return k.tag }
func (k Key[T]) String() string { return k.tag }

// Resolve returns the service registered under k's tag if it satisfies T and
// has not been stopped.
func Resolve[T any](r *Registry, k Key[T]) (T, bool) {
	var zero T
	if r == nil {
		return zero, false
	}
	r.mu.RLock()
	e, ok := r.byTag[k.tag]
	r.mu.RUnlock()
	if !ok || stopped(e.svc) {
		return zero, false
	}
	typed, ok := e.svc.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
