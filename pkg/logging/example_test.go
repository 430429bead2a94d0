// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging_test

import (
	"context"

	"github.com/AleutianAI/openworld/pkg/logging"
	"github.com/AleutianAI/openworld/services/inference/catalog"
	"github.com/AleutianAI/openworld/services/inference/config"
	"github.com/AleutianAI/openworld/services/inference/engine"
)

// Wiring a Logger into an inference engine.
func ExampleNew() {
	logger := logging.New(logging.Config{Level: logging.LevelInfo, Service: "openworld"})
	defer logger.Close()

	inst, err := catalog.Build("coin")
	if err != nil {
		return
	}
	cfg := config.Default()
	eng, err := engine.New(inst.Model, cfg, engine.WithLogger(logger.Slog()))
	if err != nil {
		return
	}
	_, _ = eng.Answer(context.Background(), inst.Evidence, inst.Queries)
}
