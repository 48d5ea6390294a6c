// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package anneal

// Phase is a step of the search state machine.
type Phase int

const (
	PhaseGenerateBase Phase = iota
	PhaseEvaluate
	PhaseAnneal
	PhaseDone
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseGenerateBase:
		return "generate_base"
	case PhaseEvaluate:
		return "evaluate"
	case PhaseAnneal:
		return "anneal"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}
