// Copyright 2026 The Detpack Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"bytes"
	"context"
	"fmt"
	"sync"
)

// Probe reports whether a backend satisfying the deterministic
// profile is available. A nil error means builds may proceed; any
// error makes every build fail fast with ErrBackendUnavailable. The
// probe is an injection point so tests and alternate hosts can
// substitute their own without touching builder logic.
type Probe interface {
	// Check returns nil if the backend satisfies the deterministic
	// profile. The result must be stable for the process lifetime.
	Check() error
}

// CachedProbe wraps another probe and evaluates it at most once per
// process, under a one-time-initialization guarantee. After the first
// Check the result is immutable — capability cannot appear or
// disappear mid-process as far as the builder is concerned.
type CachedProbe struct {
	inner Probe
	once  sync.Once
	err   error
}

// NewCachedProbe wraps inner with once-only evaluation.
func NewCachedProbe(inner Probe) *CachedProbe {
	return &CachedProbe{inner: inner}
}

// Check implements Probe.
func (p *CachedProbe) Check() error {
	p.once.Do(func() {
		p.err = p.inner.Check()
	})
	return p.err
}

// SelfTestProbe verifies a backend by exercising it: it archives a
// small fixed entry set twice in memory and requires byte-identical
// output. A backend that sorts, fixes ownership, and suppresses the
// container timestamp passes trivially; one that leaks wall-clock or
// host state into the bytes is caught before any real build runs.
type SelfTestProbe struct {
	backend Backend
}

// NewSelfTestProbe returns a probe that self-tests backend.
func NewSelfTestProbe(backend Backend) *SelfTestProbe {
	return &SelfTestProbe{backend: backend}
}

// Check implements Probe.
func (p *SelfTestProbe) Check() error {
	// Synthetic entries only — no filesystem reads, so the probe
	// result cannot depend on host state either.
	entries := []Entry{
		{RelPath: "a", Kind: EntryDir},
		{RelPath: "a/link", Kind: EntrySymlink, LinkTarget: "../b"},
		{RelPath: "b", Kind: EntryDir},
	}

	var first, second bytes.Buffer
	if err := p.backend.ProduceArchive(context.Background(), "probe", entries, PolicyV1, &first); err != nil {
		return fmt.Errorf("backend %s failed probe build: %w", p.backend.Name(), err)
	}
	if err := p.backend.ProduceArchive(context.Background(), "probe", entries, PolicyV1, &second); err != nil {
		return fmt.Errorf("backend %s failed probe build: %w", p.backend.Name(), err)
	}
	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		return fmt.Errorf("backend %s produced differing bytes for identical input", p.backend.Name())
	}
	return nil
}

// StaticProbe is a probe with a fixed answer, for tests and for hosts
// where capability is established out of band.
type StaticProbe struct {
	// Err is returned by every Check call. Nil means available.
	Err error
}

// Check implements Probe.
func (p StaticProbe) Check() error {
	return p.Err
}
