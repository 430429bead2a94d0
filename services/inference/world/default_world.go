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
	"github.com/hashicorp/go-set/v3"

	"github.com/AleutianAI/openworld/pkg/overlay"
	"github.com/AleutianAI/openworld/services/inference/model"
)

// DefaultPartialWorld is a PartialWorld backed by plain maps.
type DefaultPartialWorld struct {
	*worldState
}

// NewDefaultPartialWorld creates an empty world.
//
// Inputs:
//
//   - m: The model. Must be compiled.
//   - idTypes: Types whose objects are represented by identifiers.
//
// Outputs:
//
//   - *DefaultPartialWorld: The empty world.
func NewDefaultPartialWorld(m *model.Model, idTypes ...*model.Type) *DefaultPartialWorld {
	return &DefaultPartialWorld{worldState: &worldState{
		model:       m,
		idTypes:     set.From(idTypes),
		values:      overlay.NewBase[string, valueEntry](),
		logProbs:    overlay.NewBase[string, float64](),
		parents:     overlay.NewBase[string, []model.BasicVar](),
		unsupported: overlay.NewBase[string, model.BasicVar](),
		derived:     overlay.NewBase[string, derivedEntry](),
		idApps:      overlay.NewBase[*model.ObjectIdentifier, *model.NumberVar](),
		children:    overlay.NewMultiMap[string, string](),
		appIDs:      overlay.NewMultiMap[string, *model.ObjectIdentifier](),
		argUses:     overlay.NewMultiMap[*model.ObjectIdentifier, string](),
		valueUses:   overlay.NewMultiMap[*model.ObjectIdentifier, string](),
	}}
}

// IDTypes returns the identifier types of w.
func IDTypes(w PartialWorld) []*model.Type {
	return w.state().idTypes.Slice()
}
