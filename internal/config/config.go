// Package config parses and validates routers.txt, the simulation's one
// external configuration surface (spec.md §6).
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	maxRouters = 8
	minPort    = 1024
	maxPort    = 49151
	minMetric  = 1
	maxMetric  = 16
)

// Output is one configured neighbor of a router.
type Output struct {
	NeighborID uint32
	Port       int
	Metric     uint32
}

// RouterConfig is one parsed stanza.
type RouterConfig struct {
	ID      uint32
	Inputs  []int
	Outputs []Output
}

// Config is the whole parsed file: one RouterConfig per stanza, in file
// order.
type Config struct {
	Routers []RouterConfig
}

// Load reads and parses path, then validates the result. Any failure
// names path in the returned error (spec.md §7 "Configuration error").
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	cfg, err := parse(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate %s: %w", path, err)
	}
	return cfg, nil
}

func parse(f *os.File) (*Config, error) {
	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return nil, fmt.Errorf("empty file")
	}
	if strings.TrimRight(sc.Text(), "\r\n") != "[ROUTERS]" {
		return nil, fmt.Errorf("first line must be [ROUTERS]")
	}

	var routers []RouterConfig
	lineNo := 1
	for {
		line1, ok := nextLine(sc)
		if !ok {
			break
		}
		lineNo++
		id, err := parseKV(line1, "id")
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		routerID, err := strconv.ParseUint(id, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid id %q: %w", lineNo, id, err)
		}

		line2, ok := nextLine(sc)
		if !ok {
			return nil, fmt.Errorf("line %d: expected inputs line, got EOF", lineNo+1)
		}
		lineNo++
		inputsRaw, err := parseKV(line2, "inputs")
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		inputs, err := parseInputs(inputsRaw)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		line3, ok := nextLine(sc)
		if !ok {
			return nil, fmt.Errorf("line %d: expected outputs line, got EOF", lineNo+1)
		}
		lineNo++
		outputsRaw, err := parseKV(line3, "outputs")
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		outputs, err := parseOutputs(outputsRaw)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		routers = append(routers, RouterConfig{ID: uint32(routerID), Inputs: inputs, Outputs: outputs})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", lineNo, err)
	}
	return &Config{Routers: routers}, nil
}

// nextLine returns the next non-blank line, skipping every blank line
// before it. Blank lines are skipped wherever they appear, so the parser
// does not enforce exactly one blank line between stanzas, and accepts
// blank lines inside a stanza. Returns ok=false at EOF.
func nextLine(sc *bufio.Scanner) (string, bool) {
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		return line, true
	}
	return "", false
}

func parseKV(line, key string) (string, error) {
	prefix := key + ":"
	if !strings.HasPrefix(line, prefix) {
		return "", fmt.Errorf("expected %q prefix, got %q", prefix, line)
	}
	return strings.TrimPrefix(line, prefix), nil
}

func parseInputs(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid input port %q: %w", p, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func parseOutputs(raw string) ([]Output, error) {
	parts := strings.Split(raw, ",")
	out := make([]Output, 0, len(parts))
	for _, p := range parts {
		fields := strings.Split(strings.TrimSpace(p), ":")
		if len(fields) != 3 {
			return nil, fmt.Errorf("invalid output triple %q: want id:port:metric", p)
		}
		id, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid output neighbor id %q: %w", fields[0], err)
		}
		port, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("invalid output port %q: %w", fields[1], err)
		}
		metric, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid output metric %q: %w", fields[2], err)
		}
		out = append(out, Output{NeighborID: uint32(id), Port: port, Metric: uint32(metric)})
	}
	return out, nil
}

// Validate checks the cross-stanza constraints spec.md §6 requires: at
// most maxRouters stanzas, unique router ids, globally distinct input
// ports (an output's port is a reference to some router's input port,
// so it is expected to repeat), and per-output port/metric ranges.
func (c *Config) Validate() error {
	if len(c.Routers) > maxRouters {
		return fmt.Errorf("too many routers: %d exceeds cap of %d", len(c.Routers), maxRouters)
	}
	if len(c.Routers) == 0 {
		return fmt.Errorf("no router stanzas found")
	}

	seenID := make(map[uint32]bool)
	seenPort := make(map[int]uint32) // port -> owning router id, for a useful conflict message
	for _, r := range c.Routers {
		if seenID[r.ID] {
			return fmt.Errorf("duplicate router id %d", r.ID)
		}
		seenID[r.ID] = true

		for _, port := range r.Inputs {
			if owner, ok := seenPort[port]; ok {
				return fmt.Errorf("port %d used by both router %d and router %d", port, owner, r.ID)
			}
			seenPort[port] = r.ID
		}
		for _, o := range r.Outputs {
			if o.Port < minPort || o.Port > maxPort {
				return fmt.Errorf("router %d: output port %d out of range [%d,%d]", r.ID, o.Port, minPort, maxPort)
			}
			if o.Metric < minMetric || o.Metric > maxMetric {
				return fmt.Errorf("router %d: output metric %d out of range [%d,%d]", r.ID, o.Metric, minMetric, maxMetric)
			}
		}
	}
	return nil
}
