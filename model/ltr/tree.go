// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ltr

import (
	"cmp"
	"slices"
)

const (
	hessianEpsilon      = 1e-6
	minSumHessianInLeaf = 1e-3
)

// Node is a node of a regression tree. Leaves have Feature < 0.
type Node struct {
	Feature   int
	Threshold float32
	Left      int
	Right     int
	Value     float32
}

// Tree is a regression tree stored as a flat node list rooted at 0.
type Tree struct {
	Nodes []Node
}

// Predict walks the tree. Rows with x[feature] <= threshold go left.
func (t *Tree) Predict(features []float32) float32 {
	if len(t.Nodes) == 0 {
		return 0
	}
	n := 0
	for t.Nodes[n].Feature >= 0 {
		node := t.Nodes[n]
		if features[node.Feature] <= node.Threshold {
			n = node.Left
		} else {
			n = node.Right
		}
	}
	return t.Nodes[n].Value
}

// NumLeaves counts the leaves of the tree.
func (t *Tree) NumLeaves() int {
	count := 0
	for _, node := range t.Nodes {
		if node.Feature < 0 {
			count++
		}
	}
	return count
}

type split struct {
	feature   int
	threshold float32
	gain      float64
}

// leaf keeps its rows presorted by every feature. Splitting partitions each list
// stably, so no leaf sorts again after the root.
type leaf struct {
	node   int
	rows   []int
	sorted [][]int
	best   *split
}

// treeBuilder grows one tree leaf-wise on gradients and hessians.
type treeBuilder struct {
	features      [][]float32
	gradients     []float32
	hessians      []float32
	numLeaves     int
	minDataInLeaf int
	shrinkage     float32
}

func (b *treeBuilder) build(rows []int) *Tree {
	tree := &Tree{Nodes: []Node{{Feature: -1}}}
	leaves := []*leaf{b.newLeaf(0, rows, b.presort(rows))}
	for len(leaves) < b.numLeaves {
		best := -1
		for i, l := range leaves {
			if l.best != nil && (best < 0 || l.best.gain > leaves[best].best.gain) {
				best = i
			}
		}
		if best < 0 {
			break
		}
		l := leaves[best]
		left, right := len(tree.Nodes), len(tree.Nodes)+1
		tree.Nodes[l.node] = Node{
			Feature:   l.best.feature,
			Threshold: l.best.threshold,
			Left:      left,
			Right:     right,
		}
		tree.Nodes = append(tree.Nodes, Node{Feature: -1}, Node{Feature: -1})
		goLeft := func(r int) bool {
			return b.features[r][l.best.feature] <= l.best.threshold
		}
		leftRows, rightRows := partition(l.rows, goLeft)
		leftSorted := make([][]int, len(l.sorted))
		rightSorted := make([][]int, len(l.sorted))
		for f, order := range l.sorted {
			leftSorted[f], rightSorted[f] = partition(order, goLeft)
		}
		leaves[best] = b.newLeaf(left, leftRows, leftSorted)
		leaves = append(leaves, b.newLeaf(right, rightRows, rightSorted))
	}
	for _, l := range leaves {
		tree.Nodes[l.node].Value = b.leafValue(l.rows)
	}
	return tree
}

// presort orders rows by each feature once per tree.
func (b *treeBuilder) presort(rows []int) [][]int {
	if len(rows) == 0 {
		return nil
	}
	sorted := make([][]int, len(b.features[rows[0]]))
	for f := range sorted {
		sorted[f] = slices.Clone(rows)
		slices.SortStableFunc(sorted[f], func(x, y int) int {
			return cmp.Compare(b.features[x][f], b.features[y][f])
		})
	}
	return sorted
}

func partition(rows []int, goLeft func(int) bool) (left, right []int) {
	left = make([]int, 0, len(rows))
	for _, r := range rows {
		if goLeft(r) {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	return left, right
}

func (b *treeBuilder) newLeaf(node int, rows []int, sorted [][]int) *leaf {
	l := &leaf{node: node, rows: rows, sorted: sorted}
	if len(rows) >= 2*b.minDataInLeaf {
		l.best = b.findSplit(rows, sorted)
	}
	return l
}

func (b *treeBuilder) leafValue(rows []int) float32 {
	var g, h float64
	for _, r := range rows {
		g += float64(b.gradients[r])
		h += float64(b.hessians[r])
	}
	return b.shrinkage * float32(-g/(h+hessianEpsilon))
}

// findSplit scans the presorted rows of a leaf once per feature.
func (b *treeBuilder) findSplit(rows []int, sorted [][]int) *split {
	var sumG, sumH float64
	for _, r := range rows {
		sumG += float64(b.gradients[r])
		sumH += float64(b.hessians[r])
	}
	parent := sumG * sumG / (sumH + hessianEpsilon)
	var best *split
	for f, order := range sorted {
		var leftG, leftH float64
		for i := 0; i < len(order)-1; i++ {
			leftG += float64(b.gradients[order[i]])
			leftH += float64(b.hessians[order[i]])
			nLeft := i + 1
			if nLeft < b.minDataInLeaf || len(order)-nLeft < b.minDataInLeaf {
				continue
			}
			lo, hi := b.features[order[i]][f], b.features[order[i+1]][f]
			if lo == hi {
				continue
			}
			rightG, rightH := sumG-leftG, sumH-leftH
			if leftH < minSumHessianInLeaf || rightH < minSumHessianInLeaf {
				continue
			}
			gain := leftG*leftG/(leftH+hessianEpsilon) + rightG*rightG/(rightH+hessianEpsilon) - parent
			if gain > 0 && (best == nil || gain > best.gain) {
				threshold := lo + (hi-lo)/2
				if threshold >= hi {
					threshold = lo
				}
				best = &split{feature: f, threshold: threshold, gain: gain}
			}
		}
	}
	return best
}
