package metadata

import (
	"maps"
	"slices"
	"strings"
)

// Variable is a typed name: a class field or a method argument.
type Variable struct {
	Type LogicalType
	Name string
}

// Method is a method signature. This reports whether the method is bound
// to an instance.
type Method struct {
	ReturnType LogicalType
	Name       string
	This       bool
	Args       []Variable
}

// Equal reports whether both methods have the same signature.
func (m Method) Equal(other Method) bool {
	return m.ReturnType == other.ReturnType &&
		m.Name == other.Name &&
		m.This == other.This &&
		slices.Equal(m.Args, other.Args)
}

// The set key of a method. Argument names are part of the key since two
// signatures differing only in argument names are still distinct entries.
func (m Method) key() string {
	var builder strings.Builder
	builder.WriteString(m.Name)
	builder.WriteByte(0)
	builder.WriteString(m.ReturnType.String())
	if m.This {
		builder.WriteString("\x00this")
	}
	for _, arg := range m.Args {
		builder.WriteByte(0)
		builder.WriteString(arg.Type.String())
		builder.WriteByte(' ')
		builder.WriteString(arg.Name)
	}

	return builder.String()
}

// Namespace is the ordered list of namespace segments.
type Namespace []string

// ParseNamespace splits a dotted namespace. Empty input yields the global namespace.
func ParseNamespace(namespace string) Namespace {
	if namespace == "" {
		return Namespace{}
	}

	return strings.Split(namespace, ".")
}

func (ns Namespace) String() string {
	return strings.Join(ns, ".")
}

// FieldSet holds unique fields. The zero value is an empty set.
type FieldSet struct {
	items map[Variable]struct{}
}

// NewFieldSet creates a set holding the given fields.
func NewFieldSet(fields ...Variable) FieldSet {
	set := FieldSet{}
	for _, field := range fields {
		set.Add(field)
	}

	return set
}

// Add inserts the field and reports whether it was not present yet.
func (set *FieldSet) Add(field Variable) bool {
	if set.items == nil {
		set.items = make(map[Variable]struct{})
	}
	if _, found := set.items[field]; found {
		return false
	}

	set.items[field] = struct{}{}
	return true
}

func (set FieldSet) Contains(field Variable) bool {
	_, found := set.items[field]
	return found
}

// Clone returns an independent copy of the set.
func (set FieldSet) Clone() FieldSet {
	return FieldSet{items: maps.Clone(set.items)}
}

func (set FieldSet) Len() int {
	return len(set.items)
}

// Sorted returns a snapshot ordered by name, then by logical type.
func (set FieldSet) Sorted() []Variable {
	fields := make([]Variable, 0, len(set.items))
	for field := range set.items {
		fields = append(fields, field)
	}

	slices.SortFunc(fields, compareVariables)
	return fields
}

// MethodSet holds unique method signatures. The zero value is an empty set.
type MethodSet struct {
	items map[string]Method
}

// NewMethodSet creates a set holding the given methods.
func NewMethodSet(methods ...Method) MethodSet {
	set := MethodSet{}
	for _, method := range methods {
		set.Add(method)
	}

	return set
}

// Add inserts the method and reports whether its signature was not present yet.
func (set *MethodSet) Add(method Method) bool {
	if set.items == nil {
		set.items = make(map[string]Method)
	}
	key := method.key()
	if _, found := set.items[key]; found {
		return false
	}

	method.Args = slices.Clone(method.Args)
	set.items[key] = method
	return true
}

func (set MethodSet) Contains(method Method) bool {
	_, found := set.items[method.key()]
	return found
}

// Clone returns an independent copy of the set.
func (set MethodSet) Clone() MethodSet {
	return MethodSet{items: maps.Clone(set.items)}
}

func (set MethodSet) Len() int {
	return len(set.items)
}

// Sorted returns a snapshot ordered by the method set key, which starts with the name.
func (set MethodSet) Sorted() []Method {
	keys := make([]string, 0, len(set.items))
	for key := range set.items {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	methods := make([]Method, 0, len(keys))
	for _, key := range keys {
		methods = append(methods, set.items[key])
	}

	return methods
}

// Class describes a managed class as read from metadata.
type Class struct {
	Namespace Namespace
	Name      string
	Fields    FieldSet
	Methods   MethodSet
}

// Clone returns a copy that shares no storage with c.
func (c *Class) Clone() Class {
	return Class{
		Namespace: slices.Clone(c.Namespace),
		Name:      c.Name,
		Fields:    c.Fields.Clone(),
		Methods:   c.Methods.Clone(),
	}
}

// FullName returns the dotted namespace and class name.
func (c *Class) FullName() string {
	if len(c.Namespace) == 0 {
		return c.Name
	}

	return c.Namespace.String() + "." + c.Name
}

func compareVariables(a, b Variable) int {
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}

	return int(a.Type) - int(b.Type)
}
