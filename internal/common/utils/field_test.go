package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupPath(t *testing.T) {
	data := map[string]interface{}{
		"formId": "f1",
		"form": map[string]interface{}{
			"owner": map[string]interface{}{
				"id": "u7",
			},
			"fields": 12,
		},
	}

	tests := []struct {
		name   string
		path   string
		want   interface{}
		wantOK bool
	}{
		{"top level", "formId", "f1", true},
		{"nested", "form.owner.id", "u7", true},
		{"nested leaf", "form.fields", 12, true},
		{"missing leaf", "form.owner.email", nil, false},
		{"missing branch", "submission.id", nil, false},
		{"path through scalar", "formId.x", nil, false},
		{"empty path", "", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := LookupPath(data, tt.path)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetPath(t *testing.T) {
	data := map[string]interface{}{}

	assert.True(t, SetPath(data, "a.b.c", 1))
	got, ok := LookupPath(data, "a.b.c")
	assert.True(t, ok)
	assert.Equal(t, 1, got)

	// existing scalar blocks intermediate traversal
	assert.False(t, SetPath(data, "a.b.c.d", 2))

	assert.False(t, SetPath(data, "", 3))
}

func TestNewID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		assert.NotEmpty(t, id)
		assert.False(t, seen[id])
		seen[id] = true
	}
}
