package job

import (
	"fmt"
	"strings"
)

// Category groups job types, e.g. "scm" or "probe".
type Category string

// Type returns the job type named name within the category.
func (c Category) Type(name string) Type {
	return Type{Category: c, Name: name}
}

// Type identifies a kind of job within a category.
type Type struct {
	Category Category
	Name     string
}

// Key returns the key of the job instance id of this type.
func (t Type) Key(id string) Key {
	return Key{Type: t, ID: id}
}

func (t Type) String() string {
	return string(t.Category) + "/" + t.Name
}

// Key identifies one job instance. Keys are comparable and used as the
// registry key of the scheduler.
type Key struct {
	Type Type
	ID   string
}

// Category returns the category the key belongs to.
func (k Key) Category() Category { return k.Type.Category }

func (k Key) String() string {
	return k.Type.String() + "/" + k.ID
}

// Compare orders keys by category, type then id.
func (k Key) Compare(o Key) int {
	if c := strings.Compare(string(k.Type.Category), string(o.Type.Category)); c != 0 {
		return c
	}
	if c := strings.Compare(k.Type.Name, o.Type.Name); c != 0 {
		return c
	}
	return strings.Compare(k.ID, o.ID)
}

// ParseKey parses the "category/type/id" form produced by Key.String.
// The id may itself contain slashes.
func ParseKey(s string) (Key, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Key{}, fmt.Errorf("invalid job key %q (expected category/type/id)", s)
	}
	return Category(parts[0]).Type(parts[1]).Key(parts[2]), nil
}
