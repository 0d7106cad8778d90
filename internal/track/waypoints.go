package track

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"sdsim/internal/shared"
)

// WaypointSeparator joins waypoints in the regen_road wayPoints field.
const WaypointSeparator = "@"

// SplitWaypoints splits a regen_road waypoint string. An empty string is an
// empty list, not a list with one empty entry.
func SplitWaypoints(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, WaypointSeparator)
}

// ParseWaypoint reads one "x,y,z" waypoint written with '.' decimals. Every
// coordinate must be a finite invariant decimal.
func ParseWaypoint(s string) (shared.Vec3, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return shared.Vec3{}, fmt.Errorf("waypoint %q: want x,y,z", s)
	}
	var xyz [3]float64
	for i, p := range parts {
		v, err := shared.ParseDecimal(strings.TrimSpace(p))
		if err != nil {
			return shared.Vec3{}, fmt.Errorf("waypoint %q: coordinate %q: %w", s, p, err)
		}
		xyz[i] = v
	}
	return shared.Vec3{X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}

// ParseWaypoints parses every waypoint, failing on the first bad one.
func ParseWaypoints(ws []string) ([]shared.Vec3, error) {
	out := make([]shared.Vec3, 0, len(ws))
	for i, w := range ws {
		v, err := ParseWaypoint(w)
		if err != nil {
			return nil, fmt.Errorf("waypoint %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// FormatWaypoint is the inverse of ParseWaypoint.
func FormatWaypoint(v shared.Vec3) string {
	return strconv.FormatFloat(v.X, 'f', -1, 64) + "," +
		strconv.FormatFloat(v.Y, 'f', -1, 64) + "," +
		strconv.FormatFloat(v.Z, 'f', -1, 64)
}

// WriteWaypoints writes one "x,y,z" line per node.
func WriteWaypoints(w io.Writer, nodes []shared.Vec3) error {
	bw := bufio.NewWriter(w)
	for _, n := range nodes {
		if _, err := bw.WriteString(FormatWaypoint(n) + "\n"); err != nil {
			return fmt.Errorf("failed to write waypoint: %w", err)
		}
	}
	return bw.Flush()
}

// ReadWaypoints reads a file written by WriteWaypoints back as waypoint
// strings, ready to be joined into a regen_road message. Blank lines are skipped.
func ReadWaypoints(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if _, err := ParseWaypoint(line); err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read waypoints: %w", err)
	}
	return out, nil
}
