package invalidation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedEvent is returned for change payloads that cannot be decoded.
var ErrMalformedEvent = errors.New("invalidation: malformed change event")

// Operation is the kind of change that happened to a record.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Event is a change notification from the data layer.
type Event struct {
	ResourceType string    `json:"resourceType"`
	ID           string    `json:"id,omitempty"`
	Operation    Operation `json:"operation,omitempty"`
}

// wireEvent also accepts trigger payloads that name the table instead of the resource type.
type wireEvent struct {
	ResourceType string          `json:"resourceType"`
	Table        string          `json:"table"`
	ID           json.RawMessage `json:"id"`
	Operation    string          `json:"operation"`
}

// ParseEvent decodes a change payload. Both forms are accepted:
//
//	{"resourceType":"match","id":"m1","operation":"update"}
//	{"table":"public.matches","id":12,"operation":"UPDATE"}
func ParseEvent(payload []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(payload, &w); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	ev := Event{
		ResourceType: NormalizeResourceType(w.ResourceType),
		Operation:    Operation(strings.ToLower(strings.TrimSpace(w.Operation))),
	}
	if ev.ResourceType == "" {
		ev.ResourceType = NormalizeResourceType(w.Table)
	}
	if ev.ResourceType == "" {
		return Event{}, fmt.Errorf("%w: missing resource type", ErrMalformedEvent)
	}

	id, err := decodeID(w.ID)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	ev.ID = id
	return ev, nil
}

func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("id must be a string or number")
	}
	return n.String(), nil
}

// NormalizeResourceType maps a resource or table name to its singular resource
// type: "public.Matches" becomes "match", "statistics" becomes "statistic".
func NormalizeResourceType(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return singular(name)
}

func singular(name string) string {
	switch {
	case strings.HasSuffix(name, "ies") && len(name) > 3:
		return name[:len(name)-3] + "y"
	case strings.HasSuffix(name, "ches"), strings.HasSuffix(name, "shes"),
		strings.HasSuffix(name, "sses"), strings.HasSuffix(name, "xes"):
		return name[:len(name)-2]
	case strings.HasSuffix(name, "ss"):
		return name
	case strings.HasSuffix(name, "s") && len(name) > 1:
		return name[:len(name)-1]
	default:
		return name
	}
}
