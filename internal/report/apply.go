package report

import (
	"context"
	"fmt"

	"github.com/GoSim-25-26J-441/profile-autotune/internal/backend"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/profile"
	"github.com/GoSim-25-26J-441/profile-autotune/pkg/logger"
)

// ApplyResult is the outcome of pushing a configuration to the backend.
type ApplyResult struct {
	Patch map[string]any `json:"patch"`
	Err   error          `json:"-"`
}

// OK reports whether the backend accepted the patch.
func (r ApplyResult) OK() bool {
	return r.Err == nil
}

// Apply sends the backend settings of form as a partial configuration patch.
// Sampling options are never part of the patch.
func Apply(ctx context.Context, client backend.Client, form profile.Form) ApplyResult {
	patch := profile.BuildPatch(form)
	if err := client.ApplyConfiguration(ctx, patch); err != nil {
		logger.Error("failed to apply configuration", "profile", form.Name, "error", err)
		return ApplyResult{Patch: patch, Err: fmt.Errorf("failed to apply configuration: %w", err)}
	}
	logger.Info("configuration applied", "profile", form.Name, "keys", len(patch))
	return ApplyResult{Patch: patch}
}
