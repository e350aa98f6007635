// Package tools implements the declarative health tool catalog: a set of
// read-only functions the LLM gateway's tool loop may invoke, each
// described by a JSON Schema and dispatched by name. Each tool's schema
// is compiled once with github.com/santhosh-tekuri/jsonschema/v5 and
// cached; arguments are validated against it before dispatch.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/yourorg/healthassistant/internal/llm"
	"github.com/yourorg/healthassistant/internal/store"
)

// Tool is one catalog entry.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	// Execute runs the tool against the read-only store view for ownerID.
	// arguments has already been validated against Schema().
	Execute(ctx context.Context, ownerID string, reader store.Reader, arguments json.RawMessage) (json.RawMessage, error)
}

// Catalog holds every registered tool and dispatches calls by name.
type Catalog struct {
	mu        sync.RWMutex
	tools     map[string]Tool
	schemas   map[string]*jsonschema.Schema
	reader    store.Reader
	ownerFunc func(ctx context.Context) (string, error)
}

// New builds the mandatory catalog plus the supplemental list_documents
// tool, bound to reader for all dispatches. ownerFunc resolves the
// calling user's ID from ctx (internal/chat stores it there per turn).
func New(reader store.Reader, ownerFunc func(ctx context.Context) (string, error)) (*Catalog, error) {
	c := &Catalog{
		tools:     map[string]Tool{},
		schemas:   map[string]*jsonschema.Schema{},
		reader:    reader,
		ownerFunc: ownerFunc,
	}
	for _, t := range defaultTools() {
		if err := c.register(t); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func defaultTools() []Tool {
	return []Tool{
		getRecentLabsTool{},
		getLabTrendTool{},
		getSymptomTimelineTool{},
		getWearableSummaryTool{},
		getDailySummaryTool{},
		correlateMetricsTool{},
		listDocumentsTool{},
	}
}

func (c *Catalog) register(t Tool) error {
	schema, err := compileSchema(t.Name(), t.Schema())
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", t.Name(), err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools[t.Name()] = t
	c.schemas[t.Name()] = schema
	return nil
}

// AsLLMTools renders the catalog into the wire shape the gateway sends to
// the inference server.
func (c *Catalog) AsLLMTools() []llm.Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]llm.Tool, 0, len(c.tools))
	for _, t := range c.tools {
		out = append(out, llm.Tool{
			Name:        t.Name(),
			Description: t.Description(),
			Schema:      t.Schema(),
		})
	}
	return out
}

// Dispatch resolves name, validates arguments, and executes the tool.
// It never returns a Go error for an unknown tool or invalid arguments;
// those are JSON-serialized error results so the model can see and
// correct them in the conversation.
func (c *Catalog) Dispatch(ctx context.Context, name string, arguments json.RawMessage) (json.RawMessage, error) {
	c.mu.RLock()
	t, ok := c.tools[name]
	schema := c.schemas[name]
	c.mu.RUnlock()

	if !ok {
		return errorResult("unknown_tool", "")
	}

	var decoded any
	if len(arguments) == 0 {
		arguments = json.RawMessage("{}")
	}
	if err := json.Unmarshal(arguments, &decoded); err != nil {
		return errorResult("invalid_arguments", err.Error())
	}
	if err := schema.Validate(decoded); err != nil {
		return errorResult("invalid_arguments", err.Error())
	}

	ownerID, err := c.ownerFunc(ctx)
	if err != nil {
		return nil, fmt.Errorf("tools: resolve owner: %w", err)
	}

	result, err := t.Execute(ctx, ownerID, c.reader, arguments)
	if err != nil {
		return errorResult("execution_failed", err.Error())
	}
	return result, nil
}

func errorResult(kind, detail string) (json.RawMessage, error) {
	payload := map[string]string{"error": kind}
	if detail != "" {
		payload["detail"] = detail
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return b, nil
}

var (
	schemaCache   = map[string]*jsonschema.Schema{}
	schemaCacheMu sync.Mutex
)

func compileSchema(name string, schema json.RawMessage) (*jsonschema.Schema, error) {
	key := name + ":" + string(schema)
	schemaCacheMu.Lock()
	defer schemaCacheMu.Unlock()
	if cached, ok := schemaCache[key]; ok {
		return cached, nil
	}
	compiled, err := jsonschema.CompileString(name+".schema.json", string(schema))
	if err != nil {
		return nil, err
	}
	schemaCache[key] = compiled
	return compiled, nil
}
