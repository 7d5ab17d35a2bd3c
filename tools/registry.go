// Package tools manages the function declarations advertised to the model
// and dispatches the model's tool calls to registered handlers.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/auralis-ai/geminilive/logger"
	"github.com/auralis-ai/geminilive/wire"
)

// Handler executes one tool call. The returned value is serialized into the
// function response sent back to the model.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Registry holds tool declarations and their handlers.
type Registry struct {
	mu       sync.RWMutex
	decls    []wire.FunctionDeclaration
	handlers map[string]Handler
	schemas  map[string]*gojsonschema.Schema
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		schemas:  make(map[string]*gojsonschema.Schema),
	}
}

// Register adds a tool. If the declaration carries a parameters schema, call
// arguments are validated against it before the handler runs. Registering a
// duplicate name is an error.
func (r *Registry) Register(decl wire.FunctionDeclaration, handler Handler) error {
	if decl.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if handler == nil {
		return fmt.Errorf("tool %q: handler is required", decl.Name)
	}

	var schema *gojsonschema.Schema
	if len(decl.Parameters) > 0 {
		var err error
		schema, err = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(decl.Parameters))
		if err != nil {
			return fmt.Errorf("tool %q: invalid parameters schema: %w", decl.Name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[decl.Name]; exists {
		return fmt.Errorf("tool %q already registered", decl.Name)
	}
	r.decls = append(r.decls, decl)
	r.handlers[decl.Name] = handler
	if schema != nil {
		r.schemas[decl.Name] = schema
	}
	return nil
}

// Declarations returns the tool declarations to advertise in session setup,
// or nil when no tools are registered.
func (r *Registry) Declarations() []wire.ToolDeclarations {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.decls) == 0 {
		return nil
	}
	decls := make([]wire.FunctionDeclaration, len(r.decls))
	copy(decls, r.decls)
	return []wire.ToolDeclarations{{FunctionDeclarations: decls}}
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Dispatch services every call in the batch and returns one response per
// call, in order. Handler failures and unknown tools become error payloads
// rather than aborting the batch.
func (r *Registry) Dispatch(ctx context.Context, calls []wire.FunctionCall) []wire.FunctionResponse {
	responses := make([]wire.FunctionResponse, 0, len(calls))
	for _, call := range calls {
		responses = append(responses, wire.FunctionResponse{
			ID:       call.ID,
			Response: r.invoke(ctx, call),
		})
	}
	return responses
}

func (r *Registry) invoke(ctx context.Context, call wire.FunctionCall) any {
	r.mu.RLock()
	handler := r.handlers[call.Name]
	schema := r.schemas[call.Name]
	r.mu.RUnlock()

	if handler == nil {
		logger.Warn("tool call for unregistered tool", "tool", call.Name, "id", call.ID)
		return errorPayload(fmt.Sprintf("unknown tool %q", call.Name))
	}

	if schema != nil {
		args := call.Args
		if len(args) == 0 {
			args = json.RawMessage(`{}`)
		}
		result, err := schema.Validate(gojsonschema.NewBytesLoader(args))
		if err != nil {
			return errorPayload(fmt.Sprintf("invalid arguments: %v", err))
		}
		if !result.Valid() {
			logger.Warn("tool arguments failed validation", "tool", call.Name, "errors", result.Errors())
			return errorPayload(fmt.Sprintf("invalid arguments: %v", result.Errors()))
		}
	}

	out, err := handler(ctx, call.Args)
	if err != nil {
		logger.Warn("tool handler failed", "tool", call.Name, "error", err)
		return errorPayload(err.Error())
	}
	return map[string]any{"output": out}
}

func errorPayload(msg string) any {
	return map[string]any{"error": msg}
}
