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

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
)

// ValueKey returns a canonical string for a value. Values are equal in the
// sense of ValuesEqual exactly when their keys are equal.
func ValueKey(v any) string {
	switch o := v.(type) {
	case nil:
		return "nil"
	case nullObject:
		return "null"
	case bool:
		if o {
			return "true"
		}
		return "false"
	case int:
		return "i" + strconv.Itoa(o)
	case float64:
		return "r" + strconv.FormatFloat(o, 'g', -1, 64)
	case string:
		return strconv.Quote(o)
	case Timestep:
		return "@" + strconv.Itoa(int(o))
	case *GuaranteedObject:
		return o.key
	case *NonGuaranteedObject:
		return o.key
	case *ObjectIdentifier:
		return "id" + strconv.FormatInt(o.id, 10)
	case *Tuple:
		return o.key
	case ObjectSet:
		return setKey(o)
	}
	return fmt.Sprintf("%T:%v", v, v)
}

func writeTupleKey(b *strings.Builder, vals []any) {
	for i, v := range vals {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(ValueKey(v))
	}
}

func setKey(s ObjectSet) string {
	elems := s.Elements()
	SortValues(elems)
	var b strings.Builder
	b.WriteString("{")
	writeTupleKey(&b, elems)
	b.WriteString("}")
	return b.String()
}

// ValueString renders a value for humans.
func ValueString(v any) string {
	switch o := v.(type) {
	case nil:
		return "<undetermined>"
	case string:
		return strconv.Quote(o)
	case fmt.Stringer:
		return o.String()
	}
	return fmt.Sprint(v)
}

// ValuesEqual compares two values. Sets compare by membership and tuples
// elementwise; everything else by identity.
func ValuesEqual(a, b any) bool {
	switch x := a.(type) {
	case ObjectSet:
		y, ok := b.(ObjectSet)
		if !ok || x.Size() != y.Size() {
			return false
		}
		for _, e := range x.Elements() {
			if !y.Contains(e) {
				return false
			}
		}
		return true
	case *Tuple:
		y, ok := b.(*Tuple)
		return ok && x.key == y.key
	}
	if _, ok := b.(ObjectSet); ok {
		return false
	}
	return a == b
}

// valueRank orders values of different kinds.
func valueRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case nullObject:
		return 1
	case bool:
		return 2
	case int, float64:
		return 3
	case string:
		return 4
	case Timestep:
		return 5
	case *GuaranteedObject:
		return 6
	case *NonGuaranteedObject:
		return 7
	case *ObjectIdentifier:
		return 8
	case *Tuple:
		return 9
	case ObjectSet:
		return 10
	}
	return 11
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

// CompareValues is a total order over values, independent of any world.
//
// Non-guaranteed objects order by depth, then generating tuple, then POP
// creation order, then index.
func CompareValues(a, b any) int {
	ra, rb := valueRank(a), valueRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch x := a.(type) {
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case int, float64:
		return cmp.Compare(asFloat(a), asFloat(b))
	case string:
		return strings.Compare(x, b.(string))
	case Timestep:
		return cmp.Compare(x, b.(Timestep))
	case *GuaranteedObject:
		y := b.(*GuaranteedObject)
		if c := cmp.Compare(x.typ.index, y.typ.index); c != 0 {
			return c
		}
		return cmp.Compare(x.index, y.index)
	case *NonGuaranteedObject:
		return compareNGO(x, b.(*NonGuaranteedObject))
	case *ObjectIdentifier:
		return cmp.Compare(x.id, b.(*ObjectIdentifier).id)
	case *Tuple:
		return CompareTuples(x.elems, b.(*Tuple).elems)
	}
	return strings.Compare(ValueKey(a), ValueKey(b))
}

func compareNGO(x, y *NonGuaranteedObject) int {
	if x == y {
		return 0
	}
	if c := cmp.Compare(x.depth, y.depth); c != 0 {
		return c
	}
	if c := CompareTuples(x.genObjs, y.genObjs); c != 0 {
		return c
	}
	if c := cmp.Compare(x.pop.index, y.pop.index); c != 0 {
		return c
	}
	return cmp.Compare(x.index, y.index)
}

// CompareTuples orders tuples lexicographically; a proper prefix sorts first.
func CompareTuples(a, b []any) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := CompareValues(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}
