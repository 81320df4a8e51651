package ussd

// Predicate reports whether a node matches.
type Predicate func(Node) bool

// ByClass matches nodes whose class name is exactly name.
func ByClass(name string) Predicate {
	return func(n Node) bool {
		return n.ClassName() == name
	}
}

// Editable matches editable nodes.
func Editable(n Node) bool { return n.IsEditable() }

// Focused matches focused nodes.
func Focused(n Node) bool { return n.IsFocused() }

// Clickable matches clickable nodes.
func Clickable(n Node) bool { return n.IsClickable() }

// AnyOf matches when at least one of preds matches.
func AnyOf(preds ...Predicate) Predicate {
	return func(n Node) bool {
		for _, p := range preds {
			if p(n) {
				return true
			}
		}
		return false
	}
}

// AllOf matches when every pred matches.
func AllOf(preds ...Predicate) Predicate {
	return func(n Node) bool {
		for _, p := range preds {
			if !p(n) {
				return false
			}
		}
		return true
	}
}

// Walk visits every node under root breadth-first. Returning false from
// visit stops the walk. Children reported by ChildCount but returned as nil
// are skipped.
func Walk(root Node, visit func(Node) bool) {
	if root == nil {
		return
	}
	queue := []Node{root}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if !visit(node) {
			return
		}
		for i := 0; i < node.ChildCount(); i++ {
			if child := node.Child(i); child != nil {
				queue = append(queue, child)
			}
		}
	}
}

// FindByPredicate returns every node under root matching pred, in level order.
// A nil root yields an empty result.
func FindByPredicate(root Node, pred Predicate) []Node {
	var result []Node
	Walk(root, func(n Node) bool {
		if pred(n) {
			result = append(result, n)
		}
		return true
	})
	return result
}

// FindFirst returns the shallowest, leftmost match or nil.
func FindFirst(root Node, pred Predicate) Node {
	var found Node
	Walk(root, func(n Node) bool {
		if pred(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

// FindByClass is FindByPredicate with ByClass.
func FindByClass(root Node, className string) []Node {
	return FindByPredicate(root, ByClass(className))
}
