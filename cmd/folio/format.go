package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

var (
	stateColors = map[string]*color.Color{
		"pending": color.New(color.FgYellow),
		"claimed": color.New(color.FgCyan),
		"failed":  color.New(color.FgRed),
	}
	passColor = color.New(color.FgGreen)
	failColor = color.New(color.FgRed)
)

func colorState(state string) string {
	if c, ok := stateColors[state]; ok {
		return c.Sprint(state)
	}
	return state
}

func relativeTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func byteSize(n int64) string {
	if n <= 0 {
		return "-"
	}
	return humanize.Bytes(uint64(n))
}

// formatProperties renders a property bag as sorted key=value pairs.
func formatProperties(props map[string]string) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+props[k])
	}
	return strings.Join(parts, " ")
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseID(arg string) (int64, error) {
	ids, err := parseIDs([]string{arg})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

func truncate(value string, max int) string {
	if len(value) <= max || max < 4 {
		return value
	}
	return value[:max-3] + "..."
}
