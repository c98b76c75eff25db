package models

import (
	"maps"
	"time"
)

// DocumentRef points at an uploaded file. The bytes live in external storage.
type DocumentRef struct {
	StorageID  string    `json:"storage_id"`
	Label      string    `json:"label"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// PersonaContext is the step data collected for one persona. Fields holds
// whatever the step forms submit; the engine never interprets it.
type PersonaContext struct {
	Fields    map[string]any `json:"fields,omitempty"`
	Documents []DocumentRef  `json:"documents,omitempty"`
}

// Merge applies patch additively: patch keys overwrite, sibling keys persist.
func (c *PersonaContext) Merge(patch map[string]any) {
	if len(patch) == 0 {
		return
	}
	if c.Fields == nil {
		c.Fields = make(map[string]any, len(patch))
	}
	maps.Copy(c.Fields, patch)
}

// AddDocument appends ref, replacing an earlier entry with the same storage id.
func (c *PersonaContext) AddDocument(ref DocumentRef) {
	for i, existing := range c.Documents {
		if existing.StorageID == ref.StorageID {
			c.Documents[i] = ref
			return
		}
	}
	c.Documents = append(c.Documents, ref)
}

func (c *PersonaContext) clone() *PersonaContext {
	if c == nil {
		return nil
	}
	out := &PersonaContext{}
	if c.Fields != nil {
		out.Fields = maps.Clone(c.Fields)
	}
	if c.Documents != nil {
		out.Documents = append([]DocumentRef(nil), c.Documents...)
	}
	return out
}

// Context is the persona-keyed bag of step data.
type Context struct {
	Investor *PersonaContext `json:"investor,omitempty"`
	Broker   *PersonaContext `json:"broker,omitempty"`
	Lawyer   *PersonaContext `json:"lawyer,omitempty"`
}

// For returns the bag for p, or nil when none has been written yet.
func (c *Context) For(p Persona) *PersonaContext {
	switch p {
	case PersonaInvestor:
		return c.Investor
	case PersonaBroker:
		return c.Broker
	case PersonaLawyer:
		return c.Lawyer
	}
	return nil
}

// Ensure returns the bag for p, creating it when absent. Returns nil for
// unselected personas.
func (c *Context) Ensure(p Persona) *PersonaContext {
	if existing := c.For(p); existing != nil {
		return existing
	}
	pc := &PersonaContext{}
	switch p {
	case PersonaInvestor:
		c.Investor = pc
	case PersonaBroker:
		c.Broker = pc
	case PersonaLawyer:
		c.Lawyer = pc
	default:
		return nil
	}
	return pc
}

func (c Context) clone() Context {
	return Context{
		Investor: c.Investor.clone(),
		Broker:   c.Broker.clone(),
		Lawyer:   c.Lawyer.clone(),
	}
}
