// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const checkTimeout = 2 * time.Second

// FuncChecker adapts a probe function. A failing probe reports failStatus.
type FuncChecker struct {
	name       string
	probe      func(ctx context.Context) error
	failStatus Status
}

// NewFuncChecker returns a checker that is unhealthy when probe fails.
func NewFuncChecker(name string, probe func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, probe: probe, failStatus: StatusUnhealthy}
}

// Informational downgrades failures of c to degraded so they never fail readiness.
func Informational(c *FuncChecker) *FuncChecker {
	c.failStatus = StatusDegraded
	return c
}

func (c *FuncChecker) Name() string { return c.name }

func (c *FuncChecker) Check(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if err := c.probe(ctx); err != nil {
		return CheckResult{Status: c.failStatus, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// WritableDirChecker verifies a directory accepts new files.
type WritableDirChecker struct {
	name string
	path string
}

func NewWritableDirChecker(name, path string) *WritableDirChecker {
	return &WritableDirChecker{name: name, path: path}
}

func (c *WritableDirChecker) Name() string { return c.name }

func (c *WritableDirChecker) Check(_ context.Context) CheckResult {
	info, err := os.Stat(c.path)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: c.path}
	}
	if !info.IsDir() {
		return CheckResult{Status: StatusUnhealthy, Error: "expected directory", Message: c.path}
	}
	f, err := os.CreateTemp(c.path, ".health-*")
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: "directory is not writable", Message: c.path}
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return CheckResult{Status: StatusHealthy, Message: filepath.Clean(c.path)}
}

// CapacityChecker reports degraded once every worker slot is taken.
type CapacityChecker struct {
	live func() int
	max  int
}

func NewCapacityChecker(live func() int, maxInstances int) *CapacityChecker {
	return &CapacityChecker{live: live, max: maxInstances}
}

func (c *CapacityChecker) Name() string { return "worker_capacity" }

func (c *CapacityChecker) Check(_ context.Context) CheckResult {
	n := c.live()
	msg := fmt.Sprintf("%d/%d workers", n, c.max)
	if c.max > 0 && n >= c.max {
		return CheckResult{Status: StatusDegraded, Message: msg + " (at ceiling)"}
	}
	return CheckResult{Status: StatusHealthy, Message: msg}
}
