package vk

import (
	"strings"
	"sync"
	"time"
)

// Credential is the process-wide token cell. It can be replaced or cleared
// at any time; the client reads it on every call.
type Credential struct {
	mu    sync.RWMutex
	token string
	setAt time.Time
}

func NewCredential(initial string) *Credential {
	c := &Credential{}
	c.Set(initial)
	return c
}

func (c *Credential) Current() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.token != ""
}

// Set stores token. A blank token clears the cell.
func (c *Credential) Set(token string) {
	token = strings.TrimSpace(token)
	c.mu.Lock()
	c.token = token
	c.setAt = time.Now()
	if token == "" {
		c.setAt = time.Time{}
	}
	c.mu.Unlock()
}

func (c *Credential) Clear() { c.Set("") }

// CredentialInfo is safe to display.
type CredentialInfo struct {
	Set    bool
	Masked string
	SetAt  time.Time
}

func (c *Credential) Info() CredentialInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CredentialInfo{Set: c.token != "", Masked: Mask(c.token), SetAt: c.setAt}
}

// Mask keeps the first and last four characters of long tokens.
func Mask(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 10 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + "…" + token[len(token)-4:]
}
