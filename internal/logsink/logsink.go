// Package logsink writes the human-readable routing-table dump each
// router produces: one ASCII box per snapshot, overwritten-at-start,
// append-only thereafter (spec.md §6 "Log output").
package logsink

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/dvproto/ripsim/internal/rib"
)

// Column widths match the original program's fixed five-column layout
// (destination, metric, next hop, is changed, is garbage).
const (
	colDest    = 13
	colMetric  = 10
	colNextHop = 12
	colChanged = 14
	colGarbage = 12
)

// Sink is one router's append-only log file.
type Sink struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

// Open creates (truncating) dir/<id>_log.txt. dir is created if missing.
func Open(dir string, routerID uint32) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logsink: create %s: %w", dir, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%d_log.txt", routerID))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("logsink: create %s: %w", path, err)
	}
	return &Sink{f: f, w: bufio.NewWriter(f)}, nil
}

// Snapshot writes one bordered routing-table box for routerID with one
// row per entry of all, in the order given. It adds no self row of its
// own: passing rib.Table.All puts the self-entry first.
func (s *Sink) Snapshot(routerID uint32, all []rib.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := border()
	fmt.Fprintln(s.w, b)
	fmt.Fprintln(s.w, titleRow(routerID))
	fmt.Fprintln(s.w, b)
	fmt.Fprintln(s.w, row("destination", "metric", "next hop", "is changed", "is garbage"))
	fmt.Fprintln(s.w, b)
	for _, e := range all {
		fmt.Fprintln(s.w, row(
			strconv.FormatUint(uint64(e.Addr), 10),
			strconv.FormatUint(uint64(e.Metric), 10),
			strconv.FormatUint(uint64(e.NextHop), 10),
			strconv.FormatBool(e.Changed),
			strconv.FormatBool(e.IsGarbage),
		))
		fmt.Fprintln(s.w, b)
	}
	fmt.Fprintln(s.w)

	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("logsink: flush: %w", err)
	}
	return nil
}

// border is the horizontal rule shared by every row of the box.
func border() string {
	var b strings.Builder
	b.WriteByte('+')
	for _, w := range []int{colDest, colMetric, colNextHop, colChanged, colGarbage} {
		b.WriteString(strings.Repeat("-", w))
		b.WriteByte('+')
	}
	return b.String()
}

// row centers each of the five cells within its column, pipe-delimited.
func row(dest, metric, nextHop, changed, garbage string) string {
	var b strings.Builder
	b.WriteByte('|')
	b.WriteString(center(dest, colDest))
	b.WriteByte('|')
	b.WriteString(center(metric, colMetric))
	b.WriteByte('|')
	b.WriteString(center(nextHop, colNextHop))
	b.WriteByte('|')
	b.WriteString(center(changed, colChanged))
	b.WriteByte('|')
	b.WriteString(center(garbage, colGarbage))
	b.WriteByte('|')
	return b.String()
}

// titleRow spans the full interior width of the box with one centered
// title cell, no internal separators.
func titleRow(routerID uint32) string {
	width := colDest + colMetric + colNextHop + colChanged + colGarbage + 4
	title := fmt.Sprintf("Router #%d  Routing Table", routerID)
	return "|" + center(title, width) + "|"
}

// center pads s with spaces to width, splitting any odd remainder onto
// the right. s longer than width is returned unchanged rather than
// truncated, since nothing in this log's data can overflow these column
// widths.
func center(s string, width int) string {
	pad := width - len(s)
	if pad <= 0 {
		return s
	}
	left := pad / 2
	right := pad - left
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", right)
}

// Close flushes and closes the underlying file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return fmt.Errorf("logsink: flush on close: %w", err)
	}
	return s.f.Close()
}
