// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

// Type is a named type of a model.
//
// User types are enumerable: their members are the guaranteed objects plus
// the satisfiers of their POP applications. Of the built-in types only
// Boolean is enumerable.
type Type struct {
	name       string
	super      *Type
	subtypes   []*Type
	guaranteed []*GuaranteedObject
	pops       []*POP
	index      int
	builtin    bool
	enumerable bool
}

// Built-in types. They are shared by every model and never mutated.
var (
	BooleanType  = &Type{name: "Boolean", index: -1, builtin: true, enumerable: true}
	IntegerType  = &Type{name: "Integer", index: -2, builtin: true}
	RealType     = &Type{name: "Real", index: -3, builtin: true}
	StringType   = &Type{name: "String", index: -4, builtin: true}
	TimestepType = &Type{name: "Timestep", index: -5, builtin: true}
	SetType      = &Type{name: "Set", index: -6, builtin: true}
	NaturalType  = &Type{name: "NaturalNum", super: IntegerType, index: -7, builtin: true}
)

// Name returns the type's name.
func (t *Type) Name() string { return t.name }

// String implements fmt.Stringer.
func (t *Type) String() string { return t.name }

// Supertype returns the direct supertype, or nil.
func (t *Type) Supertype() *Type { return t.super }

// IsBuiltin reports whether t is one of the built-in types.
func (t *Type) IsBuiltin() bool { return t.builtin }

// IsEnumerable reports whether the members of t can be listed in a world.
func (t *Type) IsEnumerable() bool { return t.enumerable }

// IsSubtypeOf reports whether t is other or a descendant of it.
func (t *Type) IsSubtypeOf(other *Type) bool {
	for cur := t; cur != nil; cur = cur.super {
		if cur == other {
			return true
		}
	}
	return false
}

// GuaranteedObjects returns the guaranteed objects declared for t itself.
func (t *Type) GuaranteedObjects() []*GuaranteedObject {
	return append([]*GuaranteedObject(nil), t.guaranteed...)
}

// POPs returns the potential object patterns generating objects of t.
func (t *Type) POPs() []*POP {
	return append([]*POP(nil), t.pops...)
}

// Subtypes returns the direct subtypes of t.
func (t *Type) Subtypes() []*Type {
	return append([]*Type(nil), t.subtypes...)
}

// GuaranteedObject returns the guaranteed object of t with the given name.
func (t *Type) GuaranteedObject(name string) (*GuaranteedObject, bool) {
	for _, o := range t.guaranteed {
		if o.name == name {
			return o, true
		}
	}
	return nil, false
}

// DefaultValue is the value a function of this return type takes when no
// dependency clause applies: false for Boolean, Null otherwise.
func DefaultValue(t *Type) any {
	if t == BooleanType {
		return false
	}
	return Null
}

// IsOfType reports whether value v is a member of type t.
func IsOfType(v any, t *Type) bool {
	switch o := v.(type) {
	case bool:
		return t == BooleanType
	case int:
		if t == NaturalType {
			return o >= 0
		}
		return t == IntegerType || t == RealType
	case float64:
		return t == RealType
	case string:
		return t == StringType
	case Timestep:
		return t == TimestepType
	case ObjectSet:
		return t == SetType
	case *GuaranteedObject:
		return o.typ.IsSubtypeOf(t)
	case *NonGuaranteedObject:
		return o.pop.typ.IsSubtypeOf(t)
	case *ObjectIdentifier:
		return o.typ.IsSubtypeOf(t)
	}
	return false
}
