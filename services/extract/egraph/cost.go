// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package egraph

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Cost is a non-negative extraction cost. Infinity marks a cost that is
// not yet computable or a candidate that is invalid.
type Cost float64

// Infinity is the sentinel for unknown or invalid cost.
var Infinity = Cost(math.Inf(1))

// IsInf reports whether c is the Infinity sentinel.
func (c Cost) IsInf() bool {
	return math.IsInf(float64(c), 1)
}

// String formats the cost, printing "inf" for Infinity.
func (c Cost) String() string {
	if c.IsInf() {
		return "inf"
	}
	return strconv.FormatFloat(float64(c), 'g', -1, 64)
}

// MarshalJSON encodes Infinity as the string "inf" since JSON has no
// representation for it.
func (c Cost) MarshalJSON() ([]byte, error) {
	if c.IsInf() {
		return []byte(`"inf"`), nil
	}
	return json.Marshal(float64(c))
}

// UnmarshalJSON accepts a number or the string "inf".
func (c *Cost) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "inf" || s == "Infinity" {
			*c = Infinity
			return nil
		}
		return fmt.Errorf("%w: %q", ErrInvalidCost, s)
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*c = Cost(f)
	return nil
}

// Costs holds the best known cost per class. A missing class is Infinity.
type Costs map[ClassID]Cost

// Get returns the known cost of class, or Infinity.
func (k Costs) Get(class ClassID) Cost {
	if c, ok := k[class]; ok {
		return c
	}
	return Infinity
}

// CostFunc combines a node's intrinsic cost with the known costs of its
// child classes.
type CostFunc func(g *Graph, n *Node, known Costs) Cost

// Cost function names accepted by CostFunctionByName.
const (
	NodeSumCostName   = "node_sum_cost"
	NodeDepthCostName = "node_depth_cost"
)

var costFunctions = map[string]CostFunc{
	NodeSumCostName:   NodeSumCost,
	NodeDepthCostName: NodeDepthCost,
}

// NodeSumCost is the node's intrinsic cost plus the sum of its children's
// class costs. Models area.
func NodeSumCost(g *Graph, n *Node, known Costs) Cost {
	total := n.Cost
	for _, child := range n.Children {
		total += known.Get(g.ClassOf(child))
		if total.IsInf() {
			return Infinity
		}
	}
	return total
}

// NodeDepthCost is the node's intrinsic cost plus the maximum of its
// children's class costs. A node without children adds zero. Models the
// critical path.
func NodeDepthCost(g *Graph, n *Node, known Costs) Cost {
	var deepest Cost
	for _, child := range n.Children {
		c := known.Get(g.ClassOf(child))
		if c.IsInf() {
			return Infinity
		}
		if c > deepest {
			deepest = c
		}
	}
	return n.Cost + deepest
}

// CostFunctionByName resolves a cost function name.
//
// # Outputs
//
//   - CostFunc: The combinator.
//   - error: ErrUnknownCostFunction for an unrecognized name.
func CostFunctionByName(name string) (CostFunc, error) {
	fn, ok := costFunctions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownCostFunction, name, CostFunctionNames())
	}
	return fn, nil
}

// CostFunctionNames returns the registered cost function names, sorted.
func CostFunctionNames() []string {
	names := make([]string, 0, len(costFunctions))
	for name := range costFunctions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
