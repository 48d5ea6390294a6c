// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSignalName(t *testing.T) {
	tests := []struct {
		name    string
		signal  string
		wantErr bool
	}{
		{"simple", "y0", false},
		{"indexed", "p[3]", false},
		{"underscore", "_out_1", false},
		{"dotted", "top.sum", false},
		{"max length", strings.Repeat("a", 128), false},

		{"empty", "", true},
		{"leading digit", "0y", true},
		{"space", "y 0", true},
		{"semicolon injection", "y0; quit", true},
		{"newline injection", "y0\nquit", true},
		{"operator", "a+b", true},
		{"too long", strings.Repeat("a", 129), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSignalName(tt.signal)
			assert.Equal(t, tt.wantErr, err != nil, "ValidateSignalName(%q) = %v", tt.signal, err)
		})
	}
}

func TestValidateSignalNames(t *testing.T) {
	assert.NoError(t, ValidateSignalNames([]string{"y0", "y1"}))
	assert.NoError(t, ValidateSignalNames(nil))

	err := ValidateSignalNames([]string{"y0", "bad;", "y1", "1x"})
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), `"bad;"`)
		assert.Contains(t, err.Error(), `"1x"`)
	}

	err = ValidateSignalNames([]string{"y0", "y0"})
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "duplicate")
	}
}

func TestValidateScriptPath(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"/opt/lib/asap7.genlib", false},
		{"lib with space.genlib", false},
		{"C:\\libs\\cells.lib", false},

		{"", true},
		{"   ", true},
		{"lib.genlib; quit", true},
		{"lib\"", true},
		{"lib'", true},
		{"lib`whoami`", true},
		{"lib\nquit", true},
	}
	for _, tt := range tests {
		err := ValidateScriptPath(tt.path)
		assert.Equal(t, tt.wantErr, err != nil, "ValidateScriptPath(%q) = %v", tt.path, err)
	}
	assert.ErrorIs(t, ValidateScriptPath(""), ErrEmpty)
}
