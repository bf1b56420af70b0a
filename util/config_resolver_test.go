package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveConfig(t *testing.T) {
	data := map[string]any{
		"subject": map[string]any{
			"id":      "order-1",
			"payload": map[string]any{"balance": 150, "email": "buyer@example.com"},
		},
		"payload": map[string]any{"amount": 40},
	}

	config := map[string]any{
		"recipient":   "{$.subject.payload.email}",
		"amount":      "{$.payload.amount}",
		"subjectLine": "order {$.subject.id} charged {$.payload.amount}",
		"retries":     3,
		"nested": map[string]any{
			"balance": "{$.subject.payload.balance}",
		},
		"tags":    []any{"billing", "{$.subject.id}"},
		"missing": "{$.payload.nope}",
		"plain":   "no placeholders here",
	}

	resolved := ResolveConfig(data, config)

	require.Equal(t, "buyer@example.com", resolved["recipient"])
	// A value that is exactly one placeholder keeps the looked-up type.
	require.Equal(t, 40, resolved["amount"])
	require.Equal(t, "order order-1 charged 40", resolved["subjectLine"])
	require.Equal(t, 3, resolved["retries"])
	require.Equal(t, 150, resolved["nested"].(map[string]any)["balance"])
	require.Equal(t, []any{"billing", "order-1"}, resolved["tags"])
	// Unresolvable paths pass through verbatim.
	require.Equal(t, "{$.payload.nope}", resolved["missing"])
	require.Equal(t, "no placeholders here", resolved["plain"])
}
