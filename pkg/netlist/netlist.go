// Package netlist parses the line-oriented circuit description format.
// Each line names a part, its nodes and its value; `#` starts a comment
// and a literal `.end` stops parsing early.
package netlist

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Element is one parsed netlist line before device construction.
type Element struct {
	Type   string            // part type letter(s): R, C, L, V, I, D, Q, U, P, VM
	Name   string            // full part name as written
	Nodes  []string          // node names in pin order
	Value  float64           // primary value where the type has one
	Model  string            // model word (diode family, transistor flavor)
	Params map[string]string // key=value tokens and waveform payloads
}

// Netlist is the parse result: elements in file order.
type Netlist struct {
	Elements []Element
}

// Value suffixes. X means mega and M means milli; both cases accepted.
var unitMap = map[string]float64{
	"T": 1e12,
	"G": 1e9,
	"X": 1e6,
	"K": 1e3,
	"M": 1e-3,
	"U": 1e-6,
	"N": 1e-9,
	"P": 1e-12,
	"F": 1e-15,
}

var valueRe = regexp.MustCompile(`^([-+]?\d*\.?\d+(?:[eE][-+]?\d+)?)([TtGgXxKkMmUuNnPpFf])?$`)

// ParseValue decodes a number with an optional SI-style suffix.
func ParseValue(val string) (float64, error) {
	matches := valueRe.FindStringSubmatch(strings.TrimSpace(val))
	if matches == nil {
		return 0, fmt.Errorf("invalid value format: %q", val)
	}

	num, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, err
	}

	if matches[2] != "" {
		num *= unitMap[strings.ToUpper(matches[2])]
	}

	return num, nil
}

// Parse reads the netlist text. Blank lines and `#` comments are skipped;
// `.end` terminates.
func Parse(input string) (*Netlist, error) {
	scanner := bufio.NewScanner(strings.NewReader(input))
	nl := &Netlist{}

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		if len(line) == 0 || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.EqualFold(line, ".end") {
			break
		}

		elem, err := parseElement(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		nl.Elements = append(nl.Elements, *elem)
	}

	return nl, nil
}

// typeOf extracts the part type from the name. The VM prefix is checked
// before the single letter V.
func typeOf(name string) string {
	upper := strings.ToUpper(name)
	if strings.HasPrefix(upper, "VM") {
		return "VM"
	}
	return upper[:1]
}

func parseElement(line string) (*Element, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return nil, fmt.Errorf("invalid element format: %q", line)
	}

	elem := &Element{
		Name:   fields[0],
		Type:   typeOf(fields[0]),
		Params: make(map[string]string),
	}

	switch elem.Type {
	case "VM":
		elem.Nodes = fields[1:3]
		return elem, parseKeyParams(elem, fields[3:])

	case "R", "C", "L":
		if len(fields) < 4 {
			return nil, fmt.Errorf("%s %s: need 2 nodes and a value", elem.Type, elem.Name)
		}
		elem.Nodes = fields[1:3]
		value, err := ParseValue(fields[3])
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", elem.Type, elem.Name, err)
		}
		elem.Value = value
		return elem, parseKeyParams(elem, fields[4:])

	case "V", "I":
		return parseSource(elem, fields)

	case "D":
		elem.Nodes = fields[1:3]
		rest := fields[3:]
		if len(rest) > 0 && !strings.Contains(rest[0], "=") {
			elem.Model = strings.ToLower(rest[0])
			rest = rest[1:]
		}
		return elem, parseKeyParams(elem, rest)

	case "Q":
		if len(fields) < 5 {
			return nil, fmt.Errorf("transistor %s: need 3 nodes and a model word", elem.Name)
		}
		elem.Nodes = fields[1:4]
		elem.Model = strings.ToLower(fields[4])
		return elem, parseKeyParams(elem, fields[5:])

	case "U":
		if len(fields) < 4 {
			return nil, fmt.Errorf("opamp %s: need 3 nodes", elem.Name)
		}
		elem.Nodes = fields[1:4]
		return elem, parseKeyParams(elem, fields[4:])

	case "P":
		if len(fields) < 6 {
			return nil, fmt.Errorf("potentiometer %s: need 3 nodes, a value and a position", elem.Name)
		}
		elem.Nodes = fields[1:4]
		value, err := ParseValue(fields[4])
		if err != nil {
			return nil, fmt.Errorf("potentiometer %s: %w", elem.Name, err)
		}
		elem.Value = value
		position, err := ParseValue(fields[5])
		if err != nil {
			return nil, fmt.Errorf("potentiometer %s position: %w", elem.Name, err)
		}
		elem.Params["position"] = strconv.FormatFloat(position, 'g', -1, 64)
		return elem, parseKeyParams(elem, fields[6:])

	default:
		return nil, fmt.Errorf("unsupported part type in %q", elem.Name)
	}
}

// parseSource handles V/I lines: a bare DC value or one of the SIN, PULSE
// and PWL waveform forms.
func parseSource(elem *Element, fields []string) (*Element, error) {
	if len(fields) < 4 {
		return nil, fmt.Errorf("source %s: need 2 nodes and a value", elem.Name)
	}
	elem.Nodes = fields[1:3]

	remaining := strings.Join(fields[3:], " ")
	remaining = strings.ReplaceAll(remaining, "(", " ( ")
	remaining = strings.ReplaceAll(remaining, ")", " ) ")
	words := strings.Fields(remaining)

	switch strings.ToUpper(words[0]) {
	case "SIN":
		elem.Params["type"] = "sin"
		elem.Params["sin"] = strings.Trim(strings.Join(words[1:], " "), "() ")
	case "PULSE":
		elem.Params["type"] = "pulse"
		elem.Params["pulse"] = strings.Trim(strings.Join(words[1:], " "), "() ")
	case "PWL":
		elem.Params["type"] = "pwl"
		elem.Params["pwl"] = strings.Trim(strings.Join(words[1:], " "), "() ")
	case "DC":
		if len(words) < 2 {
			return nil, fmt.Errorf("source %s: missing DC value", elem.Name)
		}
		elem.Params["type"] = "dc"
		value, err := ParseValue(words[1])
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", elem.Name, err)
		}
		elem.Value = value
		return elem, parseKeyParams(elem, words[2:])
	default:
		// Bare value means DC.
		elem.Params["type"] = "dc"
		value, err := ParseValue(words[0])
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", elem.Name, err)
		}
		elem.Value = value
		return elem, parseKeyParams(elem, words[1:])
	}

	return elem, nil
}

// parseKeyParams consumes trailing key=value tokens.
func parseKeyParams(elem *Element, tokens []string) error {
	for _, tok := range tokens {
		key, value, found := strings.Cut(tok, "=")
		if !found {
			return fmt.Errorf("%s: expected key=value, got %q", elem.Name, tok)
		}
		elem.Params[strings.ToLower(key)] = value
	}
	return nil
}

// NumericParams converts the key=value tokens to numbers, skipping
// non-numeric entries such as waveform payloads.
func (e *Element) NumericParams() map[string]float64 {
	out := make(map[string]float64)
	for key, raw := range e.Params {
		switch key {
		case "type", "sin", "pulse", "pwl":
			continue
		}
		if v, err := ParseValue(raw); err == nil {
			out[key] = v
		}
	}
	return out
}
