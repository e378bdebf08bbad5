// Package chat routes prompts to the assistant backend and demultiplexes
// streamed progress notifications back to the conversation they belong to.
package chat

import (
	"sync"

	"pkt.systems/inlined/schema"
)

// PartialResultCorrelator maps streaming tokens to conversations. The
// backend echoes the token on every progress notification for a request;
// the mapping lives from dispatch until the final response (or failure)
// releases it. A token resolves to exactly one tab for its lifetime.
//
// Safe for concurrent use from any number of goroutines; lookups for one
// token never contend with inserts for another.
type PartialResultCorrelator struct {
	tokens sync.Map // schema.Token -> schema.TabID
}

// NewPartialResultCorrelator constructs an empty correlator.
func NewPartialResultCorrelator() *PartialResultCorrelator {
	return &PartialResultCorrelator{}
}

// Set registers or replaces the conversation a token resolves to.
func (c *PartialResultCorrelator) Set(token schema.Token, tab schema.TabID) {
	c.tokens.Store(token, tab)
}

// Get resolves a token. The second return is false for unknown tokens;
// callers drop the corresponding notification silently.
func (c *PartialResultCorrelator) Get(token schema.Token) (schema.TabID, bool) {
	v, ok := c.tokens.Load(token)
	if !ok {
		return "", false
	}
	return v.(schema.TabID), true
}

// Has reports whether the token is live.
func (c *PartialResultCorrelator) Has(token schema.Token) bool {
	_, ok := c.tokens.Load(token)
	return ok
}

// Remove releases a token. Removing an unknown token is a no-op.
func (c *PartialResultCorrelator) Remove(token schema.Token) {
	c.tokens.Delete(token)
}
