package spell

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptorFromMeta(t *testing.T) {
	desc, err := DescriptorFromMeta(map[string]string{
		"id":          "word_count",
		"name":        "Word Count",
		"description": "Counts words.",
		"category":    "text",
		"icon":        "🔢",
	}, "/spells/count.go")
	require.NoError(t, err)
	assert.Equal(t, "word_count", desc.ID)
	assert.Equal(t, "Word Count", desc.Name)
	assert.Equal(t, "text", desc.Category)
	assert.Equal(t, "/spells/count.go", desc.ScriptPath)
}

func TestDescriptorNameDefaultsToID(t *testing.T) {
	desc, err := DescriptorFromMeta(map[string]string{"id": "shout"}, "/spells/shout.go")
	require.NoError(t, err)
	assert.Equal(t, "shout", desc.Name)
}

func TestDescriptorRejectsBadMeta(t *testing.T) {
	cases := map[string]map[string]string{
		"nil meta":     nil,
		"empty meta":   {},
		"missing id":   {"name": "No ID"},
		"blank id":     {"id": "   "},
		"uppercase id": {"id": "Shout"},
		"spaces in id": {"id": "two words"},
		"leading dash": {"id": "-shout"},
		"overlong id":  {"id": "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
	}
	for name, meta := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DescriptorFromMeta(meta, "/spells/x.go")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNoMeta))
		})
	}
}
