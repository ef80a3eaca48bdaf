// Package circuit assembles parsed parts into an MNA system: it assigns
// node and branch indices, validates the structure and drives the device
// stamps.
package circuit

import (
	"fmt"
	"strings"

	"audiospice/pkg/device"
	"audiospice/pkg/matrix"
	"audiospice/pkg/netlist"
	"audiospice/pkg/symbol"
)

// StructuralError reports a circuit that cannot be built: empty netlist,
// duplicate part names, wrong pin counts.
type StructuralError struct {
	Part   string
	Detail string
}

func (e *StructuralError) Error() string {
	if e.Part == "" {
		return "structural error: " + e.Detail
	}
	return fmt.Sprintf("structural error: %s: %s", e.Part, e.Detail)
}

// UnknownNodeError reports a probe or lookup naming a node outside the
// assignment.
type UnknownNodeError struct {
	Node string
}

func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("unknown node %q", e.Node)
}

// Expected node counts per part type letter.
var pinCounts = map[string]int{
	"R": 2, "C": 2, "L": 2, "V": 2, "I": 2, "D": 2, "VM": 2,
	"Q": 3, "U": 3, "P": 3,
}

// Circuit holds the devices and the node/branch index assignment. Node
// rows come first (external then hidden internal nodes), branch rows are
// appended after them. Index 0 is ground and never enters the matrix.
type Circuit struct {
	devices   []device.Device
	deviceMap map[string]device.Device

	nodeMap   map[string]int
	nodeNames []string // index to name, entry 0 is ground

	numNodes    int // node rows, hidden internal nodes included
	numBranches int
	assigned    bool
}

func New() *Circuit {
	return &Circuit{
		deviceMap: make(map[string]device.Device),
		nodeMap:   map[string]int{"0": 0},
		nodeNames: []string{"0"},
	}
}

// FromNetlist builds the circuit from parsed elements. The symbol library
// is optional; when given, part pinouts are checked against it.
func FromNetlist(nl *netlist.Netlist, lib *symbol.Library) (*Circuit, error) {
	if nl == nil || len(nl.Elements) == 0 {
		return nil, &StructuralError{Detail: "empty netlist"}
	}

	c := New()
	for i := range nl.Elements {
		elem := &nl.Elements[i]

		if lib != nil {
			if err := lib.ValidatePart(elem.Type, elem.Name, len(elem.Nodes)); err != nil {
				return nil, &StructuralError{Part: elem.Name, Detail: err.Error()}
			}
		}

		dev, err := netlist.CreateDevice(elem)
		if err != nil {
			return nil, &StructuralError{Part: elem.Name, Detail: err.Error()}
		}
		if err := c.AddDevice(dev); err != nil {
			return nil, err
		}
	}

	if err := c.AssignIndexes(); err != nil {
		return nil, err
	}
	return c, nil
}

// AddDevice registers a part. Names must be unique and the node count
// must match the part type.
func (c *Circuit) AddDevice(d device.Device) error {
	name := d.GetName()
	if _, exists := c.deviceMap[name]; exists {
		return &StructuralError{Part: name, Detail: "duplicate part name"}
	}

	if want, ok := pinCounts[d.GetType()]; ok && len(d.GetNodeNames()) != want {
		return &StructuralError{
			Part:   name,
			Detail: fmt.Sprintf("has %d nodes, type %s needs %d", len(d.GetNodeNames()), d.GetType(), want),
		}
	}

	c.devices = append(c.devices, d)
	c.deviceMap[name] = d
	return nil
}

func isGround(name string) bool {
	return name == "0" || strings.EqualFold(name, "gnd")
}

// AssignIndexes maps node names to matrix rows in first-appearance order,
// allocates hidden internal nodes, then appends one branch row per part
// that owns an extra unknown. The assignment is deterministic: parsing
// the same netlist twice yields identical indices.
func (c *Circuit) AssignIndexes() error {
	if len(c.devices) == 0 {
		return &StructuralError{Detail: "empty netlist"}
	}
	if c.assigned {
		return &StructuralError{Detail: "indices already assigned"}
	}

	for _, d := range c.devices {
		nodes := make([]int, 0, len(d.GetNodeNames()))
		for _, name := range d.GetNodeNames() {
			nodes = append(nodes, c.internNode(name))
		}
		d.SetNodes(nodes)
	}

	// Hidden internal nodes follow the external ones.
	for _, d := range c.devices {
		in, ok := d.(device.InternalNoder)
		if !ok {
			continue
		}
		hidden := make([]int, in.NumInternalNodes())
		for i := range hidden {
			c.numNodes++
			hidden[i] = c.numNodes
			c.nodeNames = append(c.nodeNames, fmt.Sprintf("%s.n%d", d.GetName(), i+1))
		}
		in.SetInternalNodes(hidden)
	}

	// Branch rows are appended after every node row.
	for _, d := range c.devices {
		br, ok := d.(device.Brancher)
		if !ok {
			continue
		}
		c.numBranches++
		br.SetBranchIndex(c.numNodes + c.numBranches)
	}

	c.assigned = true
	return nil
}

func (c *Circuit) internNode(name string) int {
	if isGround(name) {
		return 0
	}
	if idx, ok := c.nodeMap[name]; ok {
		return idx
	}
	c.numNodes++
	c.nodeMap[name] = c.numNodes
	c.nodeNames = append(c.nodeNames, name)
	return c.numNodes
}

// Size returns the matrix dimension: node rows plus branch rows.
func (c *Circuit) Size() int { return c.numNodes + c.numBranches }

// NumNodes returns the node row count, hidden internal nodes included.
func (c *Circuit) NumNodes() int { return c.numNodes }

// NodeIndex resolves a node name to its matrix row.
func (c *Circuit) NodeIndex(name string) (int, bool) {
	if isGround(name) {
		return 0, true
	}
	idx, ok := c.nodeMap[name]
	return idx, ok
}

// NodeName returns the name of a node row.
func (c *Circuit) NodeName(idx int) string {
	if idx < 0 || idx >= len(c.nodeNames) {
		return ""
	}
	return c.nodeNames[idx]
}

// Device looks a part up by name.
func (c *Circuit) Device(name string) (device.Device, bool) {
	d, ok := c.deviceMap[name]
	return d, ok
}

// Devices returns the parts in netlist order.
func (c *Circuit) Devices() []device.Device { return c.devices }

// Stamp loads every device into the matrix. The matrix must be cleared
// beforehand.
func (c *Circuit) Stamp(m matrix.Stamper, status *device.CircuitStatus) error {
	if !c.assigned {
		return &StructuralError{Detail: "indices not assigned"}
	}
	for _, d := range c.devices {
		if err := d.Stamp(m, status); err != nil {
			return fmt.Errorf("stamping %s: %w", d.GetName(), err)
		}
	}
	return nil
}

// HasNonlinear reports whether any part needs Newton iteration.
func (c *Circuit) HasNonlinear() bool {
	for _, d := range c.devices {
		if _, ok := d.(device.NonLinear); ok {
			return true
		}
	}
	return false
}

// UpdateNonlinearVoltages pushes the present iterate into every
// nonlinear part so the next stamp relinearizes around it.
func (c *Circuit) UpdateNonlinearVoltages(solution []float64) error {
	for _, d := range c.devices {
		nl, ok := d.(device.NonLinear)
		if !ok {
			continue
		}
		if err := nl.UpdateVoltages(solution); err != nil {
			return err
		}
	}
	return nil
}

// NonlinearSettled reports whether every damped nonlinear part's
// linearization point has caught up with the present solution. Junction
// limiting can hold the node voltages steady for several iterations, so
// the solution vector comparison alone is not a convergence proof.
func (c *Circuit) NonlinearSettled(abstol, reltol float64) bool {
	for _, d := range c.devices {
		if cr, ok := d.(device.ConvergenceReporter); ok && !cr.LinearizationSettled(abstol, reltol) {
			return false
		}
	}
	return true
}

// UpdateState commits the converged solution into every reactive part's
// history. Runs once per accepted timestep.
func (c *Circuit) UpdateState(solution []float64, status *device.CircuitStatus) {
	for _, d := range c.devices {
		if td, ok := d.(device.TimeDependent); ok {
			td.UpdateState(solution, status)
		}
	}
}

// GetSolution reads a probe from the solution vector. "V(name)" is a node
// voltage; "I(name)" is the branch current of a part that owns one,
// negated so that positive current flows from + to - through the part.
func (c *Circuit) GetSolution(solution []float64, key string) (float64, error) {
	open := strings.IndexByte(key, '(')
	if open < 0 || !strings.HasSuffix(key, ")") {
		return 0, fmt.Errorf("invalid probe %q", key)
	}
	kind := strings.ToUpper(key[:open])
	arg := key[open+1 : len(key)-1]

	switch kind {
	case "V":
		idx, ok := c.NodeIndex(arg)
		if !ok {
			return 0, &UnknownNodeError{Node: arg}
		}
		if idx == 0 {
			return 0, nil
		}
		return solution[idx], nil

	case "I":
		d, ok := c.deviceMap[arg]
		if !ok {
			return 0, fmt.Errorf("unknown part %q", arg)
		}
		br, ok := d.(device.Brancher)
		if !ok {
			return 0, fmt.Errorf("part %q has no branch current", arg)
		}
		return -solution[br.BranchIndex()], nil

	default:
		return 0, fmt.Errorf("invalid probe %q", key)
	}
}
