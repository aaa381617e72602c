// Package dircache holds display names for directory listing rows in a
// fixed number of slots. Slot selection is listing index mod slot count;
// a put silently evicts whatever occupied the slot.
package dircache

import (
	"strings"
	"unicode/utf8"
)

// Kind distinguishes files from directories.
type Kind uint8

const (
	File Kind = iota
	Directory
)

func (k Kind) String() string {
	if k == Directory {
		return "directory"
	}
	return "file"
}

// Unset marks an empty slot or an unknown count.
const Unset = -1

const (
	DefaultSlots = 6
	MaxSlots     = 32
	// MaxName is the largest name bound accepted by New.
	MaxName = 64
)

// Entry is a resolved listing row.
type Entry struct {
	Index int
	Name  string
	Kind  Kind
}

type slot struct {
	index int
	name  [MaxName]byte
	n     uint8
	kind  Kind
}

// Cache is the bounded listing cache. It is not safe for concurrent use;
// the session controller mutates it from its poll loop only.
type Cache struct {
	slots   [MaxSlots]slot
	n       int
	nameLen int
	count   int
}

// New returns a cache of slots entries whose names are bounded to
// nameLen bytes. Out-of-range arguments are clamped.
func New(slots, nameLen int) *Cache {
	if slots <= 0 {
		slots = DefaultSlots
	}
	if slots > MaxSlots {
		slots = MaxSlots
	}
	if nameLen <= 0 || nameLen > MaxName {
		nameLen = MaxName
	}
	c := &Cache{n: slots, nameLen: nameLen}
	c.InvalidateAll()
	return c
}

// Slots returns the number of slots.
func (c *Cache) Slots() int { return c.n }

func (c *Cache) slotFor(i int) *slot {
	k := i % c.n
	if k < 0 {
		k += c.n
	}
	return &c.slots[k]
}

// Get returns the entry for listing index i if its slot still holds it.
func (c *Cache) Get(i int) (Entry, bool) {
	s := c.slotFor(i)
	if i < 0 || s.index != i {
		return Entry{}, false
	}
	return Entry{Index: i, Name: string(s.name[:s.n]), Kind: s.kind}, true
}

// Put stores the display form of name for listing index i.
func (c *Cache) Put(i int, name string, kind Kind) {
	if i < 0 {
		return
	}
	if kind == File {
		name = stripExtension(name)
	}
	name = Truncate(name, c.nameLen)

	var s slot
	s.index = i
	s.n = uint8(copy(s.name[:], name))
	s.kind = kind
	*c.slotFor(i) = s
}

// Invalidate forgets listing index i if its slot holds it.
func (c *Cache) Invalidate(i int) {
	if s := c.slotFor(i); s.index == i {
		s.index = Unset
	}
}

// InvalidateAll forgets every slot and the cached entry count.
func (c *Cache) InvalidateAll() {
	for k := range c.slots {
		c.slots[k].index = Unset
	}
	c.count = Unset
}

// Count returns the cached number of listing entries.
func (c *Cache) Count() (int, bool) {
	return c.count, c.count != Unset
}

// SetCount records the number of listing entries.
func (c *Cache) SetCount(n int) {
	if n < 0 {
		n = Unset
	}
	c.count = n
}

// stripExtension drops the last ".ext" of a file name unless the dot
// leads the name.
func stripExtension(name string) string {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return name[:i]
	}
	return name
}

// Truncate cuts name to at most n bytes without splitting a rune.
func Truncate(name string, n int) string {
	if len(name) <= n {
		return name
	}
	name = name[:n]
	for len(name) > 0 && !utf8.ValidString(name) {
		name = name[:len(name)-1]
	}
	return name
}
