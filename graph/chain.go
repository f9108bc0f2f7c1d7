package graph

import "fmt"

// BuildChain builds a linear graph Input -> ops[0] -> ... -> Output.
// Each op becomes one node whose first input port is fed by the previous
// node. Input and Output params are not allowed inside ops.
func BuildChain(ops []Params) (*Graph, error) {
	g := New()
	prev := g.AddNode("Input", KindInput)

	for i, p := range ops {
		if p == nil {
			return nil, fmt.Errorf("operation %d: nil params", i)
		}
		k := p.Kind()
		if !k.Valid() || k == KindInput || k == KindOutput {
			return nil, fmt.Errorf("operation %d: %w: %s", i, ErrUnknownKind, k)
		}
		id := g.AddNode(k.String(), k)
		if err := g.SetParams(id, p); err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		if err := g.Connect(prev, PortImage, id, k.InputPorts()[0]); err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		prev = id
	}

	out := g.AddNode("Output", KindOutput)
	if err := g.Connect(prev, PortImage, out, PortImage); err != nil {
		return nil, err
	}
	return g, nil
}
