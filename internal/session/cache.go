package session

import (
	"github.com/alfredjeanlab/gatekeep/internal/docstore"
	"github.com/alfredjeanlab/gatekeep/internal/model"
)

// Cache mirrors the gate document and its users collection. Each snapshot
// replaces its scope wholesale; nothing is merged. A snapshot that fails
// to decode leaves the previous state in place.
type Cache struct {
	gate  *model.Gate
	users map[string]*model.User
}

// ApplyGate replaces the cached gate. An absent document clears it.
func (c *Cache) ApplyGate(s docstore.Snapshot) error {
	if !s.Exists() {
		c.gate = nil
		return nil
	}
	var g model.Gate
	if err := s.Doc.Decode(&g); err != nil {
		return err
	}
	g.ID = s.Doc.ID
	c.gate = &g
	return nil
}

// ApplyUsers replaces the cached user map.
func (c *Cache) ApplyUsers(s docstore.Snapshot) error {
	users := make(map[string]*model.User, len(s.Docs))
	for i := range s.Docs {
		var u model.User
		if err := s.Docs[i].Decode(&u); err != nil {
			return err
		}
		u.ID = s.Docs[i].ID
		users[u.ID] = &u
	}
	c.users = users
	return nil
}

// Gate returns the cached gate, or nil when no gate data is available.
func (c *Cache) Gate() *model.Gate {
	return c.gate
}

// Users returns the cached user map. Callers must not modify it.
func (c *Cache) Users() map[string]*model.User {
	return c.users
}

// Status returns the cached gate status, or "" without gate data.
func (c *Cache) Status() model.GateStatus {
	if c.gate == nil {
		return ""
	}
	return c.gate.Status
}
