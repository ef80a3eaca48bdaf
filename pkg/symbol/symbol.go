// Package symbol imports a KiCad symbol library converted to JSON. The
// converted form is a nested token array: each symbol is a ["DEF", lines]
// entry, the part name sits in the F1 field and the pins are the "X"
// lines of the DRAW section. The simulator only needs pin counts and pin
// names per part type to validate netlist usage.
package symbol

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// Pin is one terminal of a symbol.
type Pin struct {
	Name   string
	Number string
	X      float64
	Y      float64
	Unit   int    // subunit for multi-unit packages, 0 when absent
	Etype  string // electrical type letter from the library
}

// Symbol is a library part with its pins in library order.
type Symbol struct {
	Name string
	Pins []Pin
}

// Library maps part type names to symbols.
type Library struct {
	symbols map[string]*Symbol
}

// Symbol names as the library spells them, keyed by netlist usage.
var partSymbols = map[string][]string{
	"R":  {"R", "R_US"},
	"P":  {"R_Potentiometer", "R_Potentiometer_US"},
	"C":  {"C"},
	"L":  {"L"},
	"D":  {"D", "D_Schottky", "D_Zener", "LED"},
	"Q":  {"Q_NPN_BCE", "Q_PNP_BCE", "Q_NPN_Darlington_BCE", "Q_PNP_Darlington_BCE"},
	"U":  {"Opamp_Dual"},
	"VM": {"Voltmeter_DC"},
}

// Load reads the converted library JSON.
func Load(r io.Reader) (*Library, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes the converted library JSON.
func Parse(data []byte) (*Library, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("symbol library: %w", err)
	}

	lib := &Library{symbols: make(map[string]*Symbol)}

	for i, raw := range entries {
		var entry []json.RawMessage
		if err := json.Unmarshal(raw, &entry); err != nil || len(entry) < 2 {
			return nil, fmt.Errorf("symbol library entry %d: not a tagged block", i)
		}

		tag, _ := decodeToken(entry[0])
		if tag != "DEF" {
			continue
		}

		sym, err := parseDef(entry[1])
		if err != nil {
			return nil, fmt.Errorf("symbol library entry %d: %w", i, err)
		}
		lib.symbols[sym.Name] = sym
	}

	return lib, nil
}

// parseDef walks one DEF block: the F1 line names the part, the DRAW
// block holds the pins.
func parseDef(raw json.RawMessage) (*Symbol, error) {
	var lines [][]json.RawMessage
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, err
	}

	sym := &Symbol{}

	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		tag, _ := decodeToken(line[0])

		switch tag {
		case "F1":
			if len(line) < 2 {
				return nil, fmt.Errorf("truncated F1 field")
			}
			sym.Name, _ = decodeToken(line[1])

		case "DRAW":
			if len(line) < 2 {
				return nil, fmt.Errorf("truncated DRAW block")
			}
			pins, err := parseDraw(line[1])
			if err != nil {
				return nil, err
			}
			sym.Pins = pins
		}
	}

	if sym.Name == "" {
		return nil, fmt.Errorf("symbol has no F1 name field")
	}
	return sym, nil
}

func parseDraw(raw json.RawMessage) ([]Pin, error) {
	var lines [][]json.RawMessage
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, err
	}

	var pins []Pin
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		tag, _ := decodeToken(line[0])
		if tag != "X" {
			continue
		}
		// X name number posx posy length orientation ... type
		if len(line) < 7 {
			return nil, fmt.Errorf("truncated pin line")
		}

		var pin Pin
		pin.Name, _ = decodeToken(line[1])
		pin.Number, _ = decodeToken(line[2])

		var err error
		if pin.X, err = decodeNumber(line[3]); err != nil {
			return nil, fmt.Errorf("pin %s: %w", pin.Name, err)
		}
		if pin.Y, err = decodeNumber(line[4]); err != nil {
			return nil, fmt.Errorf("pin %s: %w", pin.Name, err)
		}
		// Full pin lines carry the subunit in field 9.
		if len(line) >= 12 {
			if unit, err := decodeNumber(line[9]); err == nil {
				pin.Unit = int(unit)
			}
		}
		pin.Etype, _ = decodeToken(line[len(line)-1])

		pins = append(pins, pin)
	}
	return pins, nil
}

// decodeToken reads a token that the converter may have emitted as either
// a string or a number.
func decodeToken(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	}
	return "", fmt.Errorf("token %s is neither string nor number", raw)
}

func decodeNumber(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strconv.ParseFloat(s, 64)
	}
	return 0, fmt.Errorf("token %s is not a number", raw)
}

// Get returns the symbol with the given library name.
func (l *Library) Get(name string) (*Symbol, bool) {
	s, ok := l.symbols[name]
	return s, ok
}

// Len returns the number of symbols in the library.
func (l *Library) Len() int { return len(l.symbols) }

// PinCount returns the pin count of the named symbol, or 0 when absent.
func (l *Library) PinCount(name string) int {
	if s, ok := l.symbols[name]; ok {
		return len(s.Pins)
	}
	return 0
}

// UnitPinCount counts the pins of the first subunit. For single-unit
// symbols this is the full pin count; for multi-unit packages such as a
// dual opamp it is the pinout one simulated part presents.
func (s *Symbol) UnitPinCount() int {
	n := 0
	for _, p := range s.Pins {
		if p.Unit <= 1 {
			n++
		}
	}
	return n
}

// ValidatePart checks that a netlist part of the given type letter uses
// as many nodes as one of its library symbols has pins. Parts without a
// symbol in the library pass unchecked.
func (l *Library) ValidatePart(typeLetter, name string, nodeCount int) error {
	names, ok := partSymbols[typeLetter]
	if !ok {
		return nil
	}

	found := false
	for _, symName := range names {
		sym, ok := l.symbols[symName]
		if !ok {
			continue
		}
		found = true
		if sym.UnitPinCount() == nodeCount {
			return nil
		}
	}

	if !found {
		return nil
	}
	return fmt.Errorf("part %s: %d nodes do not match any %s symbol pinout", name, nodeCount, typeLetter)
}
