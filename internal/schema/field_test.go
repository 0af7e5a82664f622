package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalarDefaults(t *testing.T) {
	assert.Equal(t, "chat", StringField("channel", "chat").Default())
	assert.Equal(t, 64, IntField("depth", 64, 1, 1024).Default())
	assert.Equal(t, true, BoolField("enabled", true).Default())
}

func TestObjectDefaultIsMemberDefaults(t *testing.T) {
	obj := ObjectField("broadcast",
		StringField("message", "Welcome"),
		IntField("interval", 300, 30, 3600),
		BoolField("enabled", false),
	)

	def, ok := obj.Default().(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Welcome", def["message"])
	assert.Equal(t, 300, def["interval"])
	assert.Equal(t, false, def["enabled"])
}

func TestIntBounds(t *testing.T) {
	f := IntField("depth", 64, 1, 1024)

	assert.NoError(t, f.Validate(64))
	assert.NoError(t, f.Validate(float64(1024)))
	assert.Error(t, f.Validate(0))
	assert.Error(t, f.Validate(2048))
	assert.Error(t, f.Validate(1.5))
	assert.Error(t, f.Validate("64"))
}

func TestStringEnum(t *testing.T) {
	f := StringField("backend", "memory", "memory", "sqlite")

	assert.NoError(t, f.Validate("sqlite"))
	assert.Error(t, f.Validate("redis"))
	assert.Error(t, f.Validate(7))
}

func TestRequiredField(t *testing.T) {
	f := StringField("name", "")
	f.Required = true

	assert.Error(t, f.Validate(nil))
	assert.NoError(t, f.Validate("squadron"))

	f.Required = false
	assert.NoError(t, f.Validate(nil))
}

func TestArrayValidatesEveryElement(t *testing.T) {
	f := ArrayField("admins", StringField("admin", ""))

	assert.NoError(t, f.Validate([]interface{}{"alice", "bob"}))
	assert.Error(t, f.Validate([]interface{}{"alice", 42}))
	assert.Error(t, f.Validate("alice"))
}

func TestNestedObjectValidation(t *testing.T) {
	f := ObjectField("retention",
		IntField("chat", 5000, 100, 100000),
		ObjectField("advanced",
			BoolField("compress", false),
		),
	)

	assert.NoError(t, f.Validate(map[string]interface{}{
		"chat":     float64(5000),
		"advanced": map[string]interface{}{"compress": true},
	}))
	assert.Error(t, f.Validate(map[string]interface{}{
		"chat":     float64(5000),
		"advanced": map[string]interface{}{"compress": "yes"},
	}))
}
