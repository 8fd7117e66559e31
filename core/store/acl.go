// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package store

import "github.com/juju/collections/set"

// PublicAccess is the ACL identity matching everyone.
const PublicAccess = "*"

// Permission holds the access granted to one identity.
type Permission struct {
	Read  bool `json:"read,omitempty"`
	Write bool `json:"write,omitempty"`
}

// ACL is a per-identity access control descriptor. The zero value denies
// everything.
type ACL struct {
	perms map[string]Permission
}

// NewACL returns an empty ACL.
func NewACL() *ACL {
	return &ACL{perms: make(map[string]Permission)}
}

// NewUserACL returns an ACL granting read and write access to the user
// only.
func NewUserACL(user User) *ACL {
	acl := NewACL()
	acl.SetReadAccess(user.ID(), true)
	acl.SetWriteAccess(user.ID(), true)
	return acl
}

// SetReadAccess grants or revokes read access for the identity.
func (a *ACL) SetReadAccess(id string, allowed bool) {
	a.update(id, func(p *Permission) { p.Read = allowed })
}

// SetWriteAccess grants or revokes write access for the identity.
func (a *ACL) SetWriteAccess(id string, allowed bool) {
	a.update(id, func(p *Permission) { p.Write = allowed })
}

// SetPublicReadAccess grants or revokes read access for everyone.
func (a *ACL) SetPublicReadAccess(allowed bool) {
	a.SetReadAccess(PublicAccess, allowed)
}

// ReadAccess reports whether the identity, or everyone, may read.
func (a *ACL) ReadAccess(id string) bool {
	if a == nil {
		return false
	}
	return a.perms[id].Read || a.perms[PublicAccess].Read
}

// WriteAccess reports whether the identity, or everyone, may write.
func (a *ACL) WriteAccess(id string) bool {
	if a == nil {
		return false
	}
	return a.perms[id].Write || a.perms[PublicAccess].Write
}

// Identities returns the identities with an entry, sorted.
func (a *ACL) Identities() []string {
	if a == nil {
		return nil
	}
	ids := set.NewStrings()
	for id := range a.perms {
		ids.Add(id)
	}
	return ids.SortedValues()
}

// Copy returns an independent copy of the ACL.
func (a *ACL) Copy() *ACL {
	if a == nil {
		return nil
	}
	c := NewACL()
	for id, p := range a.perms {
		c.perms[id] = p
	}
	return c
}

func (a *ACL) update(id string, fn func(*Permission)) {
	if a.perms == nil {
		a.perms = make(map[string]Permission)
	}
	p := a.perms[id]
	fn(&p)
	if !p.Read && !p.Write {
		delete(a.perms, id)
		return
	}
	a.perms[id] = p
}
