// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package world

import (
	"cmp"
	"context"
	"slices"

	"github.com/AleutianAI/openworld/pkg/overlay"
	"github.com/AleutianAI/openworld/services/inference/model"
)

// PartialWorldDiff stages changes over a saved world.
//
// Description:
//
//	Every mutator writes only into the diff's overlays. Reads fall through
//	to the saved world for keys the diff has not touched. The saved world
//	may itself be a diff.
//
// Thread Safety:
//
//	Not safe for concurrent use.
type PartialWorldDiff struct {
	*worldState
	saved PartialWorld

	values      *overlay.Map[string, valueEntry]
	logProbs    *overlay.Map[string, float64]
	parents     *overlay.Map[string, []model.BasicVar]
	unsupported *overlay.Map[string, model.BasicVar]
	derived     *overlay.Map[string, derivedEntry]
	idApps      *overlay.Map[*model.ObjectIdentifier, *model.NumberVar]

	children  *overlay.MultiMap[string, string]
	appIDs    *overlay.MultiMap[string, *model.ObjectIdentifier]
	argUses   *overlay.MultiMap[*model.ObjectIdentifier, string]
	valueUses *overlay.MultiMap[*model.ObjectIdentifier, string]

	createdIDs []*model.ObjectIdentifier
	listeners  []DiffListener
}

// NewDiff creates an empty diff over saved.
func NewDiff(saved PartialWorld) *PartialWorldDiff {
	base := saved.state()
	d := &PartialWorldDiff{
		saved:       saved,
		values:      overlay.NewMap(base.values),
		logProbs:    overlay.NewMap(base.logProbs),
		parents:     overlay.NewMap(base.parents),
		unsupported: overlay.NewMap(base.unsupported),
		derived:     overlay.NewMap(base.derived),
		idApps:      overlay.NewMap(base.idApps),
		children:    base.children.Overlay(),
		appIDs:      base.appIDs.Overlay(),
		argUses:     base.argUses.Overlay(),
		valueUses:   base.valueUses.Overlay(),
	}
	d.worldState = &worldState{
		model:           base.model,
		idTypes:         base.idTypes,
		values:          d.values,
		logProbs:        d.logProbs,
		parents:         d.parents,
		unsupported:     d.unsupported,
		derived:         d.derived,
		idApps:          d.idApps,
		children:        d.children,
		appIDs:          d.appIDs,
		argUses:         d.argUses,
		valueUses:       d.valueUses,
		onNewIdentifier: func(id *model.ObjectIdentifier) { d.createdIDs = append(d.createdIDs, id) },
	}
	return d
}

// Saved returns the world the diff is staged over.
func (d *PartialWorldDiff) Saved() PartialWorld { return d.saved }

// AddListener registers l for save and revert notifications.
func (d *PartialWorldDiff) AddListener(l DiffListener) {
	d.listeners = append(d.listeners, l)
}

// CreatedIdentifiers returns the identifiers created since the last save
// or revert.
func (d *PartialWorldDiff) CreatedIdentifiers() []*model.ObjectIdentifier {
	return append([]*model.ObjectIdentifier(nil), d.createdIDs...)
}

// Save folds the staged changes into the saved world.
//
// Description:
//
//	Changes are pushed in this order: identifier assertions, basic
//	variable values, the derived variable cache, then Bayes net edges,
//	support markers, log-probabilities and object uses. Change tracking
//	is then cleared and listeners are notified.
func (d *PartialWorldDiff) Save() {
	d.idApps.Commit()
	d.appIDs.Commit()
	d.createdIDs = nil

	d.values.Commit()

	d.derived.Commit()

	d.parents.Commit()
	d.children.Commit()
	d.unsupported.Commit()
	d.logProbs.Commit()
	d.argUses.Commit()
	d.valueUses.Commit()

	recordSave(context.Background())
	for _, l := range d.listeners {
		l.OnSave(d)
	}
}

// Revert discards the staged changes. The saved world is not touched.
func (d *PartialWorldDiff) Revert() {
	d.idApps.Reset()
	d.appIDs.Reset()
	d.createdIDs = nil

	d.values.Reset()
	d.derived.Reset()
	d.parents.Reset()
	d.children.Reset()
	d.unsupported.Reset()
	d.logProbs.Reset()
	d.argUses.Reset()
	d.valueUses.Reset()

	recordRevert(context.Background())
	for _, l := range d.listeners {
		l.OnRevert(d)
	}
}

// -----------------------------------------------------------------------------
// Change views
// -----------------------------------------------------------------------------

// ChangedVars returns the variables whose value differs from the saved
// world, including ones instantiated or uninstantiated by the diff.
func (d *PartialWorldDiff) ChangedVars() []model.BasicVar {
	base := d.saved.state()
	var out []model.BasicVar
	for _, k := range d.values.ChangedKeys() {
		cur, curOK := d.values.Get(k)
		old, oldOK := base.values.Get(k)
		switch {
		case curOK && oldOK:
			if !model.ValuesEqual(cur.val, old.val) {
				out = append(out, cur.v)
			}
		case curOK:
			out = append(out, cur.v)
		case oldOK:
			out = append(out, old.v)
		}
	}
	slices.SortFunc(out, model.Compare)
	return out
}

// VarsWithChangedProbs returns the variables whose probability given their
// parents differs from the saved world. This includes variables whose own
// value is unchanged but whose parents changed, and variables instantiated
// or uninstantiated by the diff.
func (d *PartialWorldDiff) VarsWithChangedProbs() []model.BasicVar {
	base := d.saved.state()
	keys := unionKeys(d.logProbs.ChangedKeys(), d.values.ChangedKeys(), d.unsupported.ChangedKeys())
	var out []model.BasicVar
	for _, k := range keys {
		cur, curOK := d.logProbs.Get(k)
		old, oldOK := base.logProbs.Get(k)
		if curOK == oldOK && (!curOK || cur == old) {
			continue
		}
		if e, ok := d.values.Get(k); ok {
			out = append(out, e.v)
		} else if e, ok := base.values.Get(k); ok {
			out = append(out, e.v)
		}
	}
	slices.SortFunc(out, model.Compare)
	return out
}

// NewlyBarrenVars returns the variables that are barren in the diff but
// were not barren (or not instantiated) in the saved world.
func (d *PartialWorldDiff) NewlyBarrenVars() []model.BasicVar {
	saved := d.saved
	var out []model.BasicVar
	for _, k := range unionKeys(d.children.ChangedKeys(), d.values.ChangedKeys()) {
		e, ok := d.values.Get(k)
		if !ok || !d.IsBarren(e.v) {
			continue
		}
		if saved.IsInstantiated(e.v) && saved.IsBarren(e.v) {
			continue
		}
		out = append(out, e.v)
	}
	slices.SortFunc(out, model.Compare)
	return out
}

// NewlyFloatingIdentifiers returns the identifiers that float in the diff
// but did not float in the saved world.
func (d *PartialWorldDiff) NewlyFloatingIdentifiers() []*model.ObjectIdentifier {
	seen := make(map[*model.ObjectIdentifier]struct{})
	var out []*model.ObjectIdentifier
	for _, id := range append(d.argUses.ChangedKeys(), d.valueUses.ChangedKeys()...) {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if d.IsFloating(id) && !d.saved.IsFloating(id) {
			out = append(out, id)
		}
	}
	slices.SortFunc(out, func(a, b *model.ObjectIdentifier) int { return cmp.Compare(a.ID(), b.ID()) })
	return out
}

// NewlyOverloadedNumberVars returns the number variables overloaded in the
// diff but not in the saved world.
func (d *PartialWorldDiff) NewlyOverloadedNumberVars() []*model.NumberVar {
	var out []*model.NumberVar
	for _, nv := range d.changedNumberVars() {
		if d.IsOverloaded(nv) && !d.saved.IsOverloaded(nv) {
			out = append(out, nv)
		}
	}
	return out
}

// NumberVarsWithChangedMultipliers returns the identifier-type number
// variables whose LogMultiplier differs from the saved world.
func (d *PartialWorldDiff) NumberVarsWithChangedMultipliers() []*model.NumberVar {
	var out []*model.NumberVar
	for _, nv := range d.changedNumberVars() {
		if !d.UsesIdentifiers(nv.POP().Type()) {
			continue
		}
		if d.LogMultiplier(nv) != d.saved.LogMultiplier(nv) {
			out = append(out, nv)
		}
	}
	return out
}

// changedNumberVars returns the number variables whose value or asserted
// identifiers the diff changed.
func (d *PartialWorldDiff) changedNumberVars() []*model.NumberVar {
	base := d.saved.state()
	var out []*model.NumberVar
	for _, k := range unionKeys(d.values.ChangedKeys(), d.appIDs.ChangedKeys()) {
		var v model.BasicVar
		if e, ok := d.values.Get(k); ok {
			v = e.v
		} else if e, ok := base.values.Get(k); ok {
			v = e.v
		}
		if nv, ok := v.(*model.NumberVar); ok {
			out = append(out, nv)
		}
	}
	slices.SortFunc(out, func(a, b *model.NumberVar) int { return model.Compare(a, b) })
	return out
}

func unionKeys(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, l := range lists {
		for _, k := range l {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}
