package pack

import "math/rand"

// treap is a randomized binary search tree ordering entries by
// reward/compute ratio ascending (worst first). Priorities are drawn
// from a caller-supplied PRNG at insertion time, giving expected
// O(log n) insert/remove/iterate — spec.md §2, §9.
//
// Unlike the source implementation this is adapted from, nodes are
// plain pointers rather than 16-bit arena indices with manually
// threaded prev/next links: the arena already gives entries a stable
// address for as long as they're live, so a conventional pointer-based
// BST gets the same stability guarantee without the threading
// bookkeeping, which is an implementation detail the spec does not
// bind (spec.md §9 "Arena indexing replaces pointers" motivates
// *why* stability matters, not that pointers must be disguised as
// indices).
type treap struct {
	root *entry
	size int
	rng  *rand.Rand
}

func newTreap(rng *rand.Rand) *treap {
	return &treap{rng: rng}
}

func (t *treap) len() int { return t.size }

// less implements COMPARE_WORSE: a is worse than b iff
// rewards(a)*compute(b) < rewards(b)*compute(a). Ties (equal ratios)
// are broken by insertion sequence so the tree has a strict total
// order even though the ratio itself is not one (spec.md §3, §9).
func less(a, b *entry) bool {
	lhs := uint64(a.rewards) * uint64(b.computeEst)
	rhs := uint64(b.rewards) * uint64(a.computeEst)
	if lhs != rhs {
		return lhs < rhs
	}
	return a.seq < b.seq
}

func (t *treap) insert(e *entry) {
	e.prio = t.rng.Uint64()
	e.left, e.right, e.parent = nil, nil, nil
	t.root = treapInsert(t.root, e)
	t.size++
}

func treapInsert(root, e *entry) *entry {
	if root == nil {
		return e
	}
	if less(e, root) {
		root.left = treapInsert(root.left, e)
		root.left.parent = root
		if root.left.prio > root.prio {
			root = rotateRight(root)
		}
	} else {
		root.right = treapInsert(root.right, e)
		root.right.parent = root
		if root.right.prio > root.prio {
			root = rotateLeft(root)
		}
	}
	fixParent(root)
	return root
}

func fixParent(n *entry) {
	if n.left != nil {
		n.left.parent = n
	}
	if n.right != nil {
		n.right.parent = n
	}
}

func rotateRight(n *entry) *entry {
	l := n.left
	n.left = l.right
	l.right = n
	fixParent(n)
	fixParent(l)
	return l
}

func rotateLeft(n *entry) *entry {
	r := n.right
	n.right = r.left
	r.left = n
	fixParent(n)
	fixParent(r)
	return r
}

// remove deletes e from the treap. e must currently be a member.
func (t *treap) remove(e *entry) {
	t.root = treapDelete(t.root, e)
	t.size--
}

func treapDelete(root, target *entry) *entry {
	if root == nil {
		return nil
	}
	if target == root {
		return mergeChildren(root)
	}
	if less(target, root) {
		root.left = treapDelete(root.left, target)
	} else {
		root.right = treapDelete(root.right, target)
	}
	fixParent(root)
	return root
}

func mergeChildren(n *entry) *entry {
	if n.left == nil {
		return n.right
	}
	if n.right == nil {
		return n.left
	}
	if n.left.prio > n.right.prio {
		n.left.right = mergeChildren2(n.left.right, n.right)
		fixParent(n.left)
		return n.left
	}
	n.right.left = mergeChildren2(n.right.left, n.left)
	fixParent(n.right)
	return n.right
}

// mergeChildren2 merges two treaps known to satisfy the BST ordering
// relative to each other (all keys in a are less than all keys in b),
// preserving the max-heap property on prio.
func mergeChildren2(a, b *entry) *entry {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.prio > b.prio {
		a.right = mergeChildren2(a.right, b)
		fixParent(a)
		return a
	}
	b.left = mergeChildren2(a, b.left)
	fixParent(b)
	return b
}

// worst returns the minimum (worst-priority) entry, or nil if empty.
func (t *treap) worst() *entry {
	n := t.root
	if n == nil {
		return nil
	}
	for n.left != nil {
		n = n.left
	}
	return n
}

// reverseIter walks the treap from best (highest reward/compute) to
// worst, calling visit for each entry. visit returns false to stop
// early. This is the scheduler's hot-path iteration order (spec.md
// §4.2).
func (t *treap) reverseIter(visit func(*entry) bool) {
	reverseIterNode(t.root, visit)
}

// reverseIterNode returns false if the caller asked to stop.
func reverseIterNode(n *entry, visit func(*entry) bool) bool {
	if n == nil {
		return true
	}
	if !reverseIterNode(n.right, visit) {
		return false
	}
	if !visit(n) {
		return false
	}
	return reverseIterNode(n.left, visit)
}

// drainAll empties the treap, invoking release for every entry it
// contained, in no particular order. This implements the
// "release_tree" drain-to-empty behavior spec.md §9 calls out as
// ambiguous in the source: since every entry is being discarded
// there's no need to rebalance through repeated single-node deletes,
// so this just walks the tree once and resets it.
func (t *treap) drainAll(release func(*entry)) {
	var walk func(*entry)
	walk = func(n *entry) {
		if n == nil {
			return
		}
		walk(n.left)
		walk(n.right)
		release(n)
	}
	walk(t.root)
	t.root = nil
	t.size = 0
}
