package archive

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func f64(v float64) *float64 { return &v }

func textContent(text string) json.RawMessage {
	b, _ := json.Marshal(map[string]any{"content_type": "text", "parts": []string{text}})
	return b
}

func rootNode(id string, children ...string) NodeRecord {
	return NodeRecord{ID: id, Children: children}
}

func msgNode(id, parent, role, text string, children ...string) NodeRecord {
	return NodeRecord{
		ID: id,
		Message: &MessageRecord{
			ID:      id,
			Author:  &AuthorRecord{Role: strp(role)},
			Content: textContent(text),
		},
		Parent:   strp(parent),
		Children: children,
	}
}

func record(id, current string, nodes ...NodeRecord) Record {
	m := make(map[string]NodeRecord, len(nodes))
	for _, n := range nodes {
		m[n.ID] = n
	}
	return Record{ID: id, Title: "title " + id, CurrentNode: current, Mapping: m}
}

// linearRecord is root -> user -> assistant with current_node at the assistant.
func linearRecord(id string) Record {
	return record(id, id+"-a",
		rootNode(id+"-root", id+"-u"),
		msgNode(id+"-u", id+"-root", RoleUser, "question "+id, id+"-a"),
		msgNode(id+"-a", id+"-u", RoleAssistant, "answer "+id),
	)
}

func mustRecord(t *testing.T, raw string) Record {
	t.Helper()
	var r Record
	require.NoError(t, json.Unmarshal([]byte(raw), &r))
	return r
}

func texts(msgs []*Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ContentText())
	}
	return out
}
