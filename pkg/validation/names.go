// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks user-provided strings before they reach a
// subprocess script.
//
// The ABC oracle builds a semicolon-separated command script from file
// paths, and the eqn writer emits output names verbatim. Both are checked
// here so a crafted name or path cannot add commands to the script.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// maxSignalName bounds an eqn signal name.
const maxSignalName = 128

// signalPattern matches eqn signal names such as y0, out_1 or p[3].
var signalPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.\[\]]*$`)

// ErrEmpty is returned for an empty name or path.
var ErrEmpty = errors.New("value cannot be empty")

// ValidateSignalName validates one eqn output name.
//
// Valid names:
//   - 1-128 characters
//   - start with a letter or underscore
//   - continue with letters, digits, underscores, dots or brackets
//
// Example:
//
//	if err := validation.ValidateSignalName(name); err != nil {
//	    return fmt.Errorf("reference outputs: %w", err)
//	}
func ValidateSignalName(name string) error {
	if name == "" {
		return ErrEmpty
	}
	if len(name) > maxSignalName {
		return fmt.Errorf("signal name too long: %d characters (max %d)", len(name), maxSignalName)
	}
	if !signalPattern.MatchString(name) {
		return fmt.Errorf("invalid signal name: %q", name)
	}
	return nil
}

// ValidateSignalNames validates every name and rejects duplicates.
// The error lists all offending names.
func ValidateSignalNames(names []string) error {
	var invalid, dup []string
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if err := ValidateSignalName(n); err != nil {
			invalid = append(invalid, n)
			continue
		}
		if seen[n] {
			dup = append(dup, n)
		}
		seen[n] = true
	}
	switch {
	case len(invalid) > 0:
		return fmt.Errorf("invalid signal names: %q", invalid)
	case len(dup) > 0:
		return fmt.Errorf("duplicate signal names: %q", dup)
	}
	return nil
}

// scriptUnsafe are the characters that end or quote an ABC command.
const scriptUnsafe = ";\"'`\n\r\x00"

// ValidateScriptPath rejects paths that would break out of an ABC
// command when substituted into a script.
func ValidateScriptPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return ErrEmpty
	}
	if i := strings.IndexAny(path, scriptUnsafe); i >= 0 {
		return fmt.Errorf("path %q contains %q, which is not allowed in a script", path, path[i])
	}
	return nil
}
