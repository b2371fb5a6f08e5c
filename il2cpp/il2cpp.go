// Package il2cpp is the runtime contract imported by generated wrappers.
//
// Object, String and Class are opaque views of memory owned by the managed
// runtime. Pointers to them are never dereferenced or freed on the Go side;
// keeping the pointed-to memory alive is the runtime's responsibility.
package il2cpp

import (
	"errors"
	"sync/atomic"
)

// Object is a managed object header.
type Object struct{ _ [0]byte }

// String is a managed string.
type String struct{ _ [0]byte }

// Class is the runtime class descriptor of a managed type.
type Class struct{ _ [0]byte }

var (
	// ErrNoClassLookup is returned when no lookup has been installed.
	ErrNoClassLookup = errors.New("il2cpp: no class lookup installed")
	// ErrClassNotFound is meant for lookups that cannot resolve a class.
	ErrClassNotFound = errors.New("il2cpp: class not found")
)

// ClassLookup resolves a runtime class by dotted namespace and class name.
type ClassLookup func(namespace, name string) (*Class, error)

var lookup atomic.Pointer[ClassLookup]

// SetClassLookup installs fn as the class lookup. Passing nil uninstalls it.
func SetClassLookup(fn ClassLookup) {
	if fn == nil {
		lookup.Store(nil)
		return
	}

	lookup.Store(&fn)
}

// GetClassFromName resolves a class through the installed lookup. The
// lookup is called once and its error is returned as is.
func GetClassFromName(namespace, name string) (*Class, error) {
	fn := lookup.Load()
	if fn == nil {
		return nil, ErrNoClassLookup
	}

	return (*fn)(namespace, name)
}
