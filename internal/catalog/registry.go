package catalog

import (
	"fmt"
	"sync"

	"github.com/specialistvlad/mlgridgo/internal/typesys"
)

// Handler holds the compiled Go parts of a plugin task.
//
// Fn must have the shape `func(ctx context.Context, in *Input) (*Output, error)`
// where Input carries one exported field per declared input and Output one
// exported field per declared output, both matched by `cty` struct tags.
// Plugins with no inputs may use a nil NewInput and an `any` input argument.
type Handler struct {
	NewInput func() any
	Fn       any
}

// Module is implemented by every built-in plugin package. Register is called
// once at startup with the shared registry.
type Module interface {
	Register(r *Registry) error
}

// Registry is the mutable assembly of signatures, handlers, and composite
// types for one application instance. After Validate it is treated as
// read-only.
type Registry struct {
	mu         sync.RWMutex
	signatures map[string]*Signature
	handlers   map[string]*Handler
	types      *typesys.Registry
}

// NewRegistry creates an empty plugin registry backed by a fresh type
// registry.
func NewRegistry() *Registry {
	return &Registry{
		signatures: make(map[string]*Signature),
		handlers:   make(map[string]*Handler),
		types:      typesys.NewRegistry(),
	}
}

// Types exposes the parameter type registry so manifests and pipeline
// parameter declarations share one set of composite types.
func (r *Registry) Types() *typesys.Registry {
	return r.types
}

// Lookup implements the Catalog interface.
func (r *Registry) Lookup(pluginID string) (*Signature, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sig, ok := r.signatures[pluginID]
	return sig, ok
}

// Handler returns the Go handler registered for a plugin id.
func (r *Registry) Handler(pluginID string) (*Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[pluginID]
	return h, ok
}

// RegisterSignature adds a signature to the catalog. Signatures are
// write-once; re-registering an id is a startup error.
func (r *Registry) RegisterSignature(sig *Signature) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.signatures[sig.ID]; exists {
		return fmt.Errorf("plugin %q already registered", sig.ID)
	}
	sig.buildIndexes()
	r.signatures[sig.ID] = sig
	return nil
}

// RegisterHandler binds a Go handler to a plugin id.
func (r *Registry) RegisterHandler(pluginID string, h *Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[pluginID]; exists {
		return fmt.Errorf("handler for plugin %q already registered", pluginID)
	}
	r.handlers[pluginID] = h
	return nil
}

// PluginIDs returns the ids of all registered signatures, unordered.
func (r *Registry) PluginIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.signatures))
	for id := range r.signatures {
		ids = append(ids, id)
	}
	return ids
}
