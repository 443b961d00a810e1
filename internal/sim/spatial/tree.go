package spatial

const nullNode = -1

// DefaultMargin is how far leaf boxes are fattened so that small moves do
// not restructure the tree.
const DefaultMargin = 2.0

type node[K comparable] struct {
	box    AABB // fattened for leaves, union of children otherwise
	tight  AABB // last reported bounds; leaves only
	key    K
	parent int
	left   int
	right  int
	height int // 0 for leaves, -1 for free nodes
}

func (n *node[K]) leaf() bool { return n.left == nullNode }

// Tree is a dynamic bounding-volume tree keyed by K.
// Insert, remove and move are logarithmic in the number of keys; the tree is
// kept balanced with AVL-style rotations. Queries test internal nodes against
// fattened boxes and leaves against their exact bounds, so results never
// contain false positives.
//
// Tree is not safe for concurrent use.
type Tree[K comparable] struct {
	nodes  []node[K]
	free   []int
	root   int
	leaves map[K]int
	margin float64
}

func NewTree[K comparable](margin float64) *Tree[K] {
	if margin < 0 {
		margin = 0
	}
	return &Tree[K]{
		root:   nullNode,
		leaves: map[K]int{},
		margin: margin,
	}
}

func (t *Tree[K]) Len() int { return len(t.leaves) }

func (t *Tree[K]) Has(k K) bool {
	_, ok := t.leaves[k]
	return ok
}

// Bounds returns the last bounds recorded for k.
func (t *Tree[K]) Bounds(k K) (AABB, bool) {
	id, ok := t.leaves[k]
	if !ok {
		return AABB{}, false
	}
	return t.nodes[id].tight, true
}

// Height returns the height of the root (0 for a single leaf, -1 when empty).
func (t *Tree[K]) Height() int {
	if t.root == nullNode {
		return -1
	}
	return t.nodes[t.root].height
}

// Add inserts k with the given bounds. It reports false if k is already present.
func (t *Tree[K]) Add(k K, box AABB) bool {
	if _, ok := t.leaves[k]; ok {
		return false
	}
	id := t.alloc()
	t.nodes[id].key = k
	t.nodes[id].tight = box
	t.nodes[id].box = box.Expand(t.margin)
	t.nodes[id].height = 0
	t.leaves[k] = id
	t.insertLeaf(id)
	return true
}

// Remove deletes k. It reports false if k is not present.
func (t *Tree[K]) Remove(k K) bool {
	id, ok := t.leaves[k]
	if !ok {
		return false
	}
	delete(t.leaves, k)
	t.removeLeaf(id)
	t.release(id)
	return true
}

// Move records new bounds for k, re-inserting it when the bounds escape its
// fattened box. It reports false if k is not present.
func (t *Tree[K]) Move(k K, box AABB) bool {
	id, ok := t.leaves[k]
	if !ok {
		return false
	}
	t.nodes[id].tight = box
	if t.nodes[id].box.Contains(box) {
		return true
	}
	t.removeLeaf(id)
	t.nodes[id].box = box.Expand(t.margin)
	t.insertLeaf(id)
	return true
}

// QueryAABB returns the keys whose bounds intersect box. The returned slice
// is owned by the caller.
func (t *Tree[K]) QueryAABB(box AABB) []K {
	return t.query(box, func(b AABB) bool { return b.Intersects(box) })
}

// QuerySphere returns the keys whose bounds intersect s. The returned slice
// is owned by the caller.
func (t *Tree[K]) QuerySphere(s Sphere) []K {
	return t.query(s.Bounds(), func(b AABB) bool { return b.IntersectsSphere(s) })
}

func (t *Tree[K]) query(coarse AABB, exact func(AABB) bool) []K {
	var out []K
	if t.root == nullNode {
		return out
	}
	stack := make([]int, 0, 32)
	stack = append(stack, t.root)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &t.nodes[id]
		if !n.box.Intersects(coarse) {
			continue
		}
		if n.leaf() {
			if exact(n.tight) {
				out = append(out, n.key)
			}
			continue
		}
		stack = append(stack, n.left, n.right)
	}
	return out
}

func (t *Tree[K]) alloc() int {
	if n := len(t.free); n > 0 {
		id := t.free[n-1]
		t.free = t.free[:n-1]
		t.nodes[id] = node[K]{parent: nullNode, left: nullNode, right: nullNode}
		return id
	}
	t.nodes = append(t.nodes, node[K]{parent: nullNode, left: nullNode, right: nullNode})
	return len(t.nodes) - 1
}

func (t *Tree[K]) release(id int) {
	t.nodes[id] = node[K]{parent: nullNode, left: nullNode, right: nullNode, height: -1}
	t.free = append(t.free, id)
}

// insertLeaf places leaf next to the sibling that minimises the surface area
// heuristic, then refits and rebalances up to the root.
func (t *Tree[K]) insertLeaf(leaf int) {
	if t.root == nullNode {
		t.root = leaf
		t.nodes[leaf].parent = nullNode
		return
	}

	leafBox := t.nodes[leaf].box
	idx := t.root
	for !t.nodes[idx].leaf() {
		n := t.nodes[idx]
		area := n.box.SurfaceArea()
		combined := n.box.Union(leafBox).SurfaceArea()

		cost := 2 * combined
		inheritance := 2 * (combined - area)
		costLeft := t.descendCost(n.left, leafBox) + inheritance
		costRight := t.descendCost(n.right, leafBox) + inheritance

		if cost < costLeft && cost < costRight {
			break
		}
		if costLeft < costRight {
			idx = n.left
		} else {
			idx = n.right
		}
	}

	sibling := idx
	oldParent := t.nodes[sibling].parent
	parent := t.alloc()
	t.nodes[parent].parent = oldParent
	t.nodes[parent].box = leafBox.Union(t.nodes[sibling].box)
	t.nodes[parent].height = t.nodes[sibling].height + 1
	t.nodes[parent].left = sibling
	t.nodes[parent].right = leaf
	t.nodes[sibling].parent = parent
	t.nodes[leaf].parent = parent

	if oldParent == nullNode {
		t.root = parent
	} else if t.nodes[oldParent].left == sibling {
		t.nodes[oldParent].left = parent
	} else {
		t.nodes[oldParent].right = parent
	}

	t.refit(parent)
}

func (t *Tree[K]) descendCost(child int, leafBox AABB) float64 {
	c := t.nodes[child]
	u := leafBox.Union(c.box).SurfaceArea()
	if c.leaf() {
		return u
	}
	return u - c.box.SurfaceArea()
}

func (t *Tree[K]) removeLeaf(leaf int) {
	if leaf == t.root {
		t.root = nullNode
		return
	}

	parent := t.nodes[leaf].parent
	grand := t.nodes[parent].parent
	sibling := t.nodes[parent].left
	if sibling == leaf {
		sibling = t.nodes[parent].right
	}

	if grand == nullNode {
		t.root = sibling
		t.nodes[sibling].parent = nullNode
		t.release(parent)
	} else {
		if t.nodes[grand].left == parent {
			t.nodes[grand].left = sibling
		} else {
			t.nodes[grand].right = sibling
		}
		t.nodes[sibling].parent = grand
		t.release(parent)
		t.refit(grand)
	}
	t.nodes[leaf].parent = nullNode
}

func (t *Tree[K]) refit(idx int) {
	for idx != nullNode {
		idx = t.balance(idx)
		l, r := t.nodes[idx].left, t.nodes[idx].right
		t.nodes[idx].height = 1 + max(t.nodes[l].height, t.nodes[r].height)
		t.nodes[idx].box = t.nodes[l].box.Union(t.nodes[r].box)
		idx = t.nodes[idx].parent
	}
}

// balance rotates a if its children differ in height by more than one and
// returns the index of the node now at a's position.
func (t *Tree[K]) balance(a int) int {
	if t.nodes[a].leaf() || t.nodes[a].height < 2 {
		return a
	}
	b, c := t.nodes[a].left, t.nodes[a].right
	diff := t.nodes[c].height - t.nodes[b].height
	switch {
	case diff > 1:
		return t.promoteRight(a, b, c)
	case diff < -1:
		return t.promoteLeft(a, b, c)
	}
	return a
}

// promoteRight lifts c (a's right child) above a.
func (t *Tree[K]) promoteRight(a, b, c int) int {
	f, g := t.nodes[c].left, t.nodes[c].right

	t.nodes[c].left = a
	t.nodes[c].parent = t.nodes[a].parent
	t.nodes[a].parent = c
	t.replaceChild(t.nodes[c].parent, a, c)

	if t.nodes[f].height > t.nodes[g].height {
		t.nodes[c].right = f
		t.nodes[a].right = g
		t.nodes[g].parent = a
		t.nodes[a].box = t.nodes[b].box.Union(t.nodes[g].box)
		t.nodes[c].box = t.nodes[a].box.Union(t.nodes[f].box)
		t.nodes[a].height = 1 + max(t.nodes[b].height, t.nodes[g].height)
		t.nodes[c].height = 1 + max(t.nodes[a].height, t.nodes[f].height)
	} else {
		t.nodes[c].right = g
		t.nodes[a].right = f
		t.nodes[f].parent = a
		t.nodes[a].box = t.nodes[b].box.Union(t.nodes[f].box)
		t.nodes[c].box = t.nodes[a].box.Union(t.nodes[g].box)
		t.nodes[a].height = 1 + max(t.nodes[b].height, t.nodes[f].height)
		t.nodes[c].height = 1 + max(t.nodes[a].height, t.nodes[g].height)
	}
	return c
}

// promoteLeft lifts b (a's left child) above a.
func (t *Tree[K]) promoteLeft(a, b, c int) int {
	d, e := t.nodes[b].left, t.nodes[b].right

	t.nodes[b].left = a
	t.nodes[b].parent = t.nodes[a].parent
	t.nodes[a].parent = b
	t.replaceChild(t.nodes[b].parent, a, b)

	if t.nodes[d].height > t.nodes[e].height {
		t.nodes[b].right = d
		t.nodes[a].left = e
		t.nodes[e].parent = a
		t.nodes[a].box = t.nodes[c].box.Union(t.nodes[e].box)
		t.nodes[b].box = t.nodes[a].box.Union(t.nodes[d].box)
		t.nodes[a].height = 1 + max(t.nodes[c].height, t.nodes[e].height)
		t.nodes[b].height = 1 + max(t.nodes[a].height, t.nodes[d].height)
	} else {
		t.nodes[b].right = e
		t.nodes[a].left = d
		t.nodes[d].parent = a
		t.nodes[a].box = t.nodes[c].box.Union(t.nodes[d].box)
		t.nodes[b].box = t.nodes[a].box.Union(t.nodes[e].box)
		t.nodes[a].height = 1 + max(t.nodes[c].height, t.nodes[d].height)
		t.nodes[b].height = 1 + max(t.nodes[a].height, t.nodes[e].height)
	}
	return b
}

func (t *Tree[K]) replaceChild(parent, old, repl int) {
	if parent == nullNode {
		t.root = repl
		return
	}
	if t.nodes[parent].left == old {
		t.nodes[parent].left = repl
	} else {
		t.nodes[parent].right = repl
	}
}
