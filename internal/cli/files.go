package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/activitylog/internal/ir"
	"github.com/roach88/activitylog/internal/queryir"
)

// readInput reads path, or stdin when path is "-".
func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// parseEvents decodes a YAML list of events.
func parseEvents(data []byte) ([]*ir.Event, error) {
	var specs []ir.EventSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parse events: %w", err)
	}
	return ir.Events(specs), nil
}

// parseTemplates decodes a YAML list of event templates written in the
// filter mini-language.
func parseTemplates(data []byte) ([]queryir.EventTemplate, error) {
	var specs []queryir.TemplateSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return queryir.ParseTemplates(specs)
}

// parseTime accepts RFC 3339 or integer milliseconds since the epoch.
func parseTime(s string) (int64, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("time %q: want RFC 3339 or milliseconds", s)
	}
	return t.UnixMilli(), nil
}

// parseIDs parses positional event ids.
func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, len(args))
	for i, a := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(a), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("event id %q: %w", a, err)
		}
		ids[i] = id
	}
	return ids, nil
}

// writeEvent prints ev in the text format.
func writeEvent(w io.Writer, ev *ir.Event) {
	ts := time.UnixMilli(ev.Timestamp).UTC().Format(time.RFC3339Nano)
	fmt.Fprintf(w, "#%d  %s", ev.ID, ts)
	if ev.Interpretation.Value != "" {
		fmt.Fprintf(w, "  %s", ev.Interpretation.Value)
	}
	if ev.Actor.Value != "" {
		fmt.Fprintf(w, "  by %s", ev.Actor.Value)
	}
	fmt.Fprintln(w)
	for _, s := range ev.Subjects {
		fmt.Fprintf(w, "    %s", s.URI.Value)
		if s.Mimetype.Value != "" {
			fmt.Fprintf(w, "  [%s]", s.Mimetype.Value)
		}
		if s.Storage.Value != "" {
			fmt.Fprintf(w, "  on %s (%s)", s.Storage.Value, s.StorageState)
		}
		fmt.Fprintln(w)
	}
	if len(ev.Payload) > 0 {
		fmt.Fprintf(w, "    payload: %d bytes\n", len(ev.Payload))
	}
}
