package models

import "time"

// Context is an MCP entity: a named slot into which documents are stored
// and from which relevant fragments are retrieved.
type Context struct {
	ID            string            `json:"context_id" bson:"_id"`
	Name          string            `json:"name" bson:"name"`
	Description   string            `json:"description,omitempty" bson:"description,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty" bson:"metadata,omitempty"`
	Active        bool              `json:"active" bson:"active"`
	CreatedAt     time.Time         `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at" bson:"updated_at"`
	LastActivated *time.Time        `json:"last_activated,omitempty" bson:"last_activated,omitempty"`
}

// Clone returns a copy with its own metadata map.
func (c *Context) Clone() *Context {
	cp := *c
	if c.Metadata != nil {
		cp.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			cp.Metadata[k] = v
		}
	}
	if c.LastActivated != nil {
		t := *c.LastActivated
		cp.LastActivated = &t
	}
	return &cp
}

// Area is a named knowledge domain owning one MCP context and optionally a
// preferred LLM provider. The context reference is a foreign key, never a
// direct mutual reference; deleting the context nulls it.
type Area struct {
	ID                  string            `json:"id" bson:"_id"`
	Name                string            `json:"name" bson:"name"`
	Description         string            `json:"description,omitempty" bson:"description,omitempty"`
	ContextID           string            `json:"context_id,omitempty" bson:"context_id,omitempty"`
	PreferredProviderID string            `json:"preferred_provider_id,omitempty" bson:"preferred_provider_id,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty" bson:"metadata,omitempty"`
	CreatedAt           time.Time         `json:"created_at" bson:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at" bson:"updated_at"`
}
