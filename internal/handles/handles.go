// Package handles maps opaque integer handles to live runtime objects so
// pointers never cross the C boundary.
package handles

import "sync"

// Registry issues opaque handles for Go objects. Handle 0 is never
// issued and always resolves to nothing.
type Registry struct {
	mu      sync.RWMutex
	next    uintptr
	objects map[uintptr]any
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		next:    1,
		objects: make(map[uintptr]any),
	}
}

// Register stores obj and returns its handle.
func (r *Registry) Register(obj any) uintptr {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.next
	r.next++
	r.objects[h] = obj
	return h
}

// Lookup resolves a handle. The second return is false for zero,
// unknown, or already-released handles.
func (r *Registry) Lookup(h uintptr) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	obj, ok := r.objects[h]
	return obj, ok
}

// Unregister removes a handle and returns the object it held, if any.
// Releasing the same handle twice is a no-op the second time.
func (r *Registry) Unregister(h uintptr) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	obj, ok := r.objects[h]
	if ok {
		delete(r.objects, h)
	}
	return obj, ok
}

// Count reports how many handles are live.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objects)
}
