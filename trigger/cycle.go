// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package trigger

import (
	"github.com/luxfi/geth/common"
)

// cycle is the set of distinct participants since the last win, ordered by
// their latest swap.
type cycle struct {
	order []common.Address
	index map[common.Address]int
}

func newCycle() *cycle {
	return &cycle{index: make(map[common.Address]int)}
}

// touch moves user to the most recent position.
func (c *cycle) touch(user common.Address) {
	if i, ok := c.index[user]; ok {
		copy(c.order[i:], c.order[i+1:])
		c.order = c.order[:len(c.order)-1]
		for j := i; j < len(c.order); j++ {
			c.index[c.order[j]] = j
		}
	}
	c.index[user] = len(c.order)
	c.order = append(c.order, user)
}

func (c *cycle) size() uint64 {
	return uint64(len(c.order))
}

func (c *cycle) members() []common.Address {
	out := make([]common.Address, len(c.order))
	copy(out, c.order)
	return out
}

func (c *cycle) reset() {
	c.order = nil
	c.index = make(map[common.Address]int)
}
