// Package memtable implements the in-memory sorted write buffer: a
// lock-free (for reads) skip list of arena-backed entries, ordered by
// internal key, backing Put/Del/Get until the entry is flushed to an
// SSTable.
package memtable

import (
	"math/rand"
	"sync/atomic"
)

const (
	// maxHeight bounds a node's tower height.
	maxHeight = 12
	// branchingFactor: on average 1/branchingFactor of nodes promote to
	// the next level.
	branchingFactor = 4
)

// Comparator orders two raw skip-list entries (opaque to the skip list
// itself; memtable.go supplies one that decodes the internal-key prefix
// of each entry).
type Comparator func(a, b []byte) int

type skipNode struct {
	entry []byte
	next  []atomic.Pointer[skipNode]
}

func newSkipNode(entry []byte, height int) *skipNode {
	return &skipNode{entry: entry, next: make([]atomic.Pointer[skipNode], height)}
}

func (n *skipNode) getNext(level int) *skipNode {
	return n.next[level].Load()
}

func (n *skipNode) setNext(level int, node *skipNode) {
	n.next[level].Store(node)
}

// skipList is a lock-free-for-reads skip list. Writes require external
// synchronization (the engine's write mutex); concurrent reads are safe
// while a single writer inserts.
type skipList struct {
	head      *skipNode
	maxHeight atomic.Int32
	cmp       Comparator
	rng       *rand.Rand
	count     atomic.Int64
}

func newSkipList(cmp Comparator) *skipList {
	sl := &skipList{
		head: newSkipNode(nil, maxHeight),
		cmp:  cmp,
		rng:  rand.New(rand.NewSource(0xDEADBEEF)),
	}
	sl.maxHeight.Store(1)
	return sl
}

func (sl *skipList) randomHeight() int {
	h := 1
	for h < maxHeight && sl.rng.Uint32()%branchingFactor == 0 {
		h++
	}
	return h
}

// Insert adds entry, ordered by cmp. REQUIRES external synchronization
// and that no equal entry already exists.
func (sl *skipList) Insert(entry []byte) {
	var prev [maxHeight]*skipNode
	sl.findGreaterOrEqual(entry, prev[:])

	height := sl.randomHeight()
	curMax := int(sl.maxHeight.Load())
	if height > curMax {
		for i := curMax; i < height; i++ {
			prev[i] = sl.head
		}
		sl.maxHeight.Store(int32(height))
	}

	node := newSkipNode(entry, height)
	for i := 0; i < height; i++ {
		node.setNext(i, prev[i].getNext(i))
		prev[i].setNext(i, node)
	}
	sl.count.Add(1)
}

func (sl *skipList) Count() int64 {
	return sl.count.Load()
}

// findGreaterOrEqual returns the first node whose entry is >= target,
// filling prev[level] with the predecessor at each level if prev != nil.
func (sl *skipList) findGreaterOrEqual(target []byte, prev []*skipNode) *skipNode {
	x := sl.head
	level := int(sl.maxHeight.Load()) - 1
	for {
		next := x.getNext(level)
		if next != nil && sl.cmp(next.entry, target) < 0 {
			x = next
			continue
		}
		if prev != nil {
			prev[level] = x
		}
		if level == 0 {
			return next
		}
		level--
	}
}

// iterator walks a skipList in order.
type iterator struct {
	sl   *skipList
	node *skipNode
}

func (sl *skipList) newIterator() *iterator {
	return &iterator{sl: sl}
}

func (it *iterator) Valid() bool { return it.node != nil }

func (it *iterator) Entry() []byte { return it.node.entry }

func (it *iterator) Next() { it.node = it.node.getNext(0) }

func (it *iterator) SeekToFirst() { it.node = it.sl.head.getNext(0) }

func (it *iterator) Seek(target []byte) {
	it.node = it.sl.findGreaterOrEqual(target, nil)
}
