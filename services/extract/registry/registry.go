// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry maps extractor names to implementations.
//
// The set of extractors is fixed at build time. Default registers all of
// them under their canonical names plus the legacy aliases callers may
// still pass.
package registry

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/AleutianAI/egx/services/extract/anneal"
	"github.com/AleutianAI/egx/services/extract/extractor"
	"github.com/AleutianAI/egx/services/extract/ilp"
	"github.com/AleutianAI/egx/services/extract/oracle"
)

// PrintName is the pseudo-extractor that lists the registry.
const PrintName = "print"

var (
	// ErrUnknownExtractor means no extractor or alias has the name.
	ErrUnknownExtractor = errors.New("unknown extractor")

	// ErrDuplicateName means a name or alias is already registered.
	ErrDuplicateName = errors.New("extractor name already registered")
)

// Deps carries what factories need to build an extractor.
type Deps struct {
	ILP    ilp.Config
	Search anneal.Config
	Oracle oracle.Oracle
	Logger *slog.Logger
}

// Factory builds an extractor.
type Factory func(d Deps) extractor.Extractor

// Entry is one registered extractor.
type Entry struct {
	Name        string
	Aliases     []string
	Description string
	factory     Factory
}

// Registry is a name→factory table.
//
// Thread Safety: Register must complete before concurrent lookups.
type Registry struct {
	entries map[string]*Entry
	names   map[string]string // name or alias → canonical name
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
		names:   make(map[string]string),
	}
}

// Register adds an extractor under name and aliases.
func (r *Registry) Register(name, description string, f Factory, aliases ...string) error {
	for _, n := range append([]string{name}, aliases...) {
		if n == "" || n == PrintName {
			return fmt.Errorf("%w: reserved name %q", ErrDuplicateName, n)
		}
		if _, ok := r.names[n]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateName, n)
		}
	}
	r.entries[name] = &Entry{Name: name, Aliases: aliases, Description: description, factory: f}
	r.names[name] = name
	for _, a := range aliases {
		r.names[a] = name
	}
	return nil
}

// Lookup resolves a canonical name or alias.
func (r *Registry) Lookup(name string) (*Entry, error) {
	canonical, ok := r.names[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownExtractor, name, strings.Join(r.Names(), ", "))
	}
	return r.entries[canonical], nil
}

// Build resolves name and constructs the extractor.
func (r *Registry) Build(name string, d Deps) (extractor.Extractor, error) {
	e, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return e.factory(d), nil
}

// Names returns the canonical names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Print writes one line per extractor: the canonical name, its aliases in
// parentheses, and its description.
func (r *Registry) Print(w io.Writer) error {
	for _, n := range r.Names() {
		e := r.entries[n]
		line := e.Name
		if len(e.Aliases) > 0 {
			line += " (" + strings.Join(e.Aliases, ", ") + ")"
		}
		if e.Description != "" {
			line += ": " + e.Description
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// Default returns a registry holding every extractor.
func Default() *Registry {
	r := New()
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(r.Register(extractor.FixedPointName, "fixed-point propagation over all nodes",
		func(d Deps) extractor.Extractor {
			return extractor.NewFixedPoint().WithFixedPointLogger(d.Logger)
		}, "bottom-up"))
	must(r.Register(extractor.IncrementalName, "work-queue propagation from the leaves",
		func(d Deps) extractor.Extractor {
			return extractor.NewIncremental().WithIncrementalLogger(d.Logger)
		}, "faster-bottom-up"))
	must(r.Register(extractor.RandomIncrementalName, "work-queue propagation with randomized acceptance",
		func(d Deps) extractor.Extractor {
			return extractor.NewRandomIncremental().WithIncrementalLogger(d.Logger)
		}, "random-based-faster-bottom-up"))
	must(r.Register(ilp.Name, "exact pseudo-boolean optimization",
		func(d Deps) extractor.Extractor {
			return ilp.New(d.ILP).WithLogger(d.Logger)
		}, "ilp-cbc"))
	must(r.Register(anneal.Name, "simulated annealing scored by the cost oracle",
		func(d Deps) extractor.Extractor {
			return anneal.New(d.Search, d.Oracle).WithLogger(d.Logger)
		}, "random-sim-ann-based-faster-bottom-up-fast-par"))
	return r
}
