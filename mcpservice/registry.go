package mcpservice

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrRegistrySealed is returned when registering after Seal.
	ErrRegistrySealed = errors.New("registry is sealed")
	// ErrMissingName is returned when neither the descriptor nor the binder
	// provide a name.
	ErrMissingName = errors.New("descriptor name is required")
	// ErrMissingBinder is returned when a descriptor is registered without a binding.
	ErrMissingBinder = errors.New("binder is required")
)

// RegisteredTool is a tool descriptor together with its binding.
type RegisteredTool struct {
	Tool
	Binder ToolBinder
}

// RegisteredResource is a resource descriptor together with its binding.
type RegisteredResource struct {
	Resource
	Binder  ResourceBinder
	matcher *uriMatcher
}

// IsTemplate reports whether the resource URI carries placeholders.
func (r RegisteredResource) IsTemplate() bool { return isTemplate(r.URI) }

// RegisteredPrompt is a prompt descriptor together with its binding.
type RegisteredPrompt struct {
	Prompt
	Binder PromptBinder
}

// ResourceMatch is the result of FindResourceByURI.
type ResourceMatch struct {
	Resource RegisteredResource
	// Params holds the decoded values of the template placeholders.
	Params map[string]string
}

// Registry holds every registered capability. It is populated once during
// start-up and then sealed.
type Registry struct {
	mu     sync.RWMutex
	log    *slog.Logger
	sealed bool

	tools     []RegisteredTool
	toolIdx   map[string]int
	resources []RegisteredResource
	prompts   []RegisteredPrompt
	promptIdx map[string]int
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for registration diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRegistry constructs an empty, unsealed registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		log:       slog.Default(),
		toolIdx:   make(map[string]int),
		promptIdx: make(map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterTool adds a tool. A tool with the same name replaces the previous
// registration in place (last write wins) and a warning is logged.
func (r *Registry) RegisterTool(desc Tool, b ToolBinder) error {
	if b == nil {
		return ErrMissingBinder
	}
	if desc.Name == "" {
		desc.Name = binderName(b)
	}
	if desc.Name == "" {
		return fmt.Errorf("tool: %w", ErrMissingName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return ErrRegistrySealed
	}

	entry := RegisteredTool{Tool: desc, Binder: b}
	if i, ok := r.toolIdx[desc.Name]; ok {
		r.log.Warn("registry.register.duplicate", slog.String("kind", string(KindTool)), slog.String("name", desc.Name))
		r.tools[i] = entry
		return nil
	}
	r.toolIdx[desc.Name] = len(r.tools)
	r.tools = append(r.tools, entry)
	r.log.Debug("registry.register.ok", slog.String("kind", string(KindTool)), slog.String("name", desc.Name))
	return nil
}

// RegisterResource adds a resource. Resources are matched by template in
// registration order, so overlapping templates are kept and the first one
// registered wins at lookup time.
func (r *Registry) RegisterResource(desc Resource, b ResourceBinder) error {
	if b == nil {
		return ErrMissingBinder
	}
	if desc.URI == "" {
		return errors.New("resource: uri is required")
	}
	if desc.Name == "" {
		desc.Name = binderName(b)
	}
	if desc.Name == "" {
		return fmt.Errorf("resource %q: %w", desc.URI, ErrMissingName)
	}
	m, err := compileURITemplate(desc.URI)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return ErrRegistrySealed
	}
	for _, existing := range r.resources {
		if existing.Name == desc.Name {
			r.log.Warn("registry.register.duplicate", slog.String("kind", string(KindResource)), slog.String("name", desc.Name), slog.String("uri", desc.URI))
			break
		}
	}
	r.resources = append(r.resources, RegisteredResource{Resource: desc, Binder: b, matcher: m})
	r.log.Debug("registry.register.ok", slog.String("kind", string(KindResource)), slog.String("name", desc.Name), slog.String("uri", desc.URI))
	return nil
}

// RegisterPrompt adds a prompt. A prompt with the same name replaces the
// previous registration in place (last write wins) and a warning is logged.
func (r *Registry) RegisterPrompt(desc Prompt, b PromptBinder) error {
	if b == nil {
		return ErrMissingBinder
	}
	if desc.Name == "" {
		desc.Name = binderName(b)
	}
	if desc.Name == "" {
		return fmt.Errorf("prompt: %w", ErrMissingName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return ErrRegistrySealed
	}

	entry := RegisteredPrompt{Prompt: desc, Binder: b}
	if i, ok := r.promptIdx[desc.Name]; ok {
		r.log.Warn("registry.register.duplicate", slog.String("kind", string(KindPrompt)), slog.String("name", desc.Name))
		r.prompts[i] = entry
		return nil
	}
	r.promptIdx[desc.Name] = len(r.prompts)
	r.prompts = append(r.prompts, entry)
	r.log.Debug("registry.register.ok", slog.String("kind", string(KindPrompt)), slog.String("name", desc.Name))
	return nil
}

// Seal ends the registration phase. It is idempotent.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return
	}
	r.sealed = true
	r.log.Info("registry.sealed",
		slog.Int("tools", len(r.tools)),
		slog.Int("resources", len(r.resources)),
		slog.Int("prompts", len(r.prompts)),
	)
}

// Sealed reports whether Seal was called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Tools returns a copy of the registered tools in registration order.
func (r *Registry) Tools() []RegisteredTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RegisteredTool, len(r.tools))
	copy(out, r.tools)
	return out
}

// Resources returns a copy of the registered resources in registration order.
func (r *Registry) Resources() []RegisteredResource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RegisteredResource, len(r.resources))
	copy(out, r.resources)
	return out
}

// Prompts returns a copy of the registered prompts in registration order.
func (r *Registry) Prompts() []RegisteredPrompt {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RegisteredPrompt, len(r.prompts))
	copy(out, r.prompts)
	return out
}

// Counts returns the number of tools, resources and prompts.
func (r *Registry) Counts() (tools, resources, prompts int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools), len(r.resources), len(r.prompts)
}

// FindTool looks up a tool by exact name.
func (r *Registry) FindTool(name string) (RegisteredTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.toolIdx[name]
	if !ok {
		return RegisteredTool{}, false
	}
	return r.tools[i], true
}

// FindPrompt looks up a prompt by exact name.
func (r *Registry) FindPrompt(name string) (RegisteredPrompt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.promptIdx[name]
	if !ok {
		return RegisteredPrompt{}, false
	}
	return r.prompts[i], true
}

// FindResourceByURI returns the first registered resource whose template
// matches uri, together with the extracted parameters. Schemes are ignored on
// both sides.
func (r *Registry) FindResourceByURI(uri string) (ResourceMatch, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, res := range r.resources {
		if params, ok := res.matcher.match(uri); ok {
			return ResourceMatch{Resource: res, Params: params}, true
		}
	}
	return ResourceMatch{}, false
}
