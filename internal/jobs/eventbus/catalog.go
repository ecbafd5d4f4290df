package eventbus

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"

	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
)

// Catalog holds the payload schema of every publishable event name.
type Catalog struct {
	mu      sync.RWMutex
	schemas map[string]*openapi3.Schema
}

func NewCatalog() *Catalog {
	return &Catalog{schemas: map[string]*openapi3.Schema{}}
}

func (c *Catalog) Register(name string, schema *openapi3.Schema) *Catalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	if schema == nil {
		schema = openapi3.NewObjectSchema()
	}
	c.schemas[name] = schema
	return c
}

func (c *Catalog) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.schemas[name]
	return ok
}

func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.schemas))
	for n := range c.schemas {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (c *Catalog) Schema(name string) (*openapi3.Schema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.schemas[name]
	return s, ok
}

// Validate normalizes payload to JSON and checks it against the schema for
// name. The normalized bytes are what gets stored.
func (c *Catalog) Validate(name string, payload any) (json.RawMessage, error) {
	schema, ok := c.Schema(name)
	if !ok {
		return nil, &jobrt.ValidationError{Event: name, Reason: "unknown event name"}
	}
	var raw []byte
	switch p := payload.(type) {
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, &jobrt.ValidationError{Event: name, Reason: fmt.Sprintf("payload is not JSON-serializable: %v", err)}
		}
		raw = b
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &jobrt.ValidationError{Event: name, Reason: fmt.Sprintf("payload is not valid JSON: %v", err)}
	}
	if err := schema.VisitJSON(doc); err != nil {
		return nil, &jobrt.ValidationError{Event: name, Reason: err.Error()}
	}
	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, &jobrt.ValidationError{Event: name, Reason: err.Error()}
	}
	return normalized, nil
}

// Object builds an object schema with the given required string fields.
func Object(required ...string) *openapi3.Schema {
	s := openapi3.NewObjectSchema()
	for _, f := range required {
		s = s.WithProperty(f, openapi3.NewStringSchema().WithMinLength(1))
	}
	if len(required) > 0 {
		s = s.WithRequired(required)
	}
	return s
}
