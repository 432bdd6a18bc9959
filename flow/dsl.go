package flow

// Graph-construction sugar. The building blocks are explicit —
// OutputPort.ConnectWith and Node.ConnectWith — and the helpers here wrap
// them for the common linear shapes:
//
//	sq1.Out(0).ConnectWith(add.In(0))
//	sq2.Out(0).ConnectWith(add.In(1))
//	inc0.Chain(inc1, inc2, inc3)

// Chain connects each node's first output port to the first input port of
// the node after it, building a linear pipeline n -> others[0] -> others[1] ...
func (n *Node) Chain(others ...*Node) error {
	cur := n
	for _, next := range others {
		var err error
		cur, err = cur.ConnectWith(next, 0, 0)
		if err != nil {
			return err
		}
	}
	return nil
}

// ChainNodes links a sequence of nodes first-output to first-input.
func ChainNodes(nodes ...*Node) error {
	if len(nodes) < 2 {
		return nil
	}
	return nodes[0].Chain(nodes[1:]...)
}
