package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pairium/experimentd/pkg/models"
)

func TestValidatePathRejectsReservedCharacters(t *testing.T) {
	cases := []string{"$where", "a.$b", ".leading", "trailing.", ""}
	for _, c := range cases {
		assert.Error(t, validatePath(c), c)
	}
	assert.NoError(t, validatePath("a.b.c"))
	assert.NoError(t, validatePath("chat_ended"))
}

func TestSetNestedCreatesIntermediateMaps(t *testing.T) {
	root := map[string]any{"profile": map[string]any{"age": 30}}

	out := setNested(root, []string{"profile", "name"}, "ada")
	profile, ok := out["profile"].(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, "ada", profile["name"])
	assert.Equal(t, 30, profile["age"])

	// Original root is untouched (no in-place mutation).
	original, ok := root["profile"].(map[string]any)
	assert.True(t, ok)
	_, hasName := original["name"]
	assert.False(t, hasName)
}

func TestSetNestedTopLevelReplace(t *testing.T) {
	root := map[string]any{"a": 1}
	out := setNested(root, []string{"b"}, 2)
	assert.Equal(t, 1, out["a"])
	assert.Equal(t, 2, out["b"])
}

func TestPageOrStubSubstitutesUnknownTarget(t *testing.T) {
	cfg := &models.Config{
		Graph: models.Graph{
			Pages: map[string]models.Page{
				"intro": {ID: "intro"},
			},
		},
	}

	p := pageOrStub(cfg, "intro")
	assert.Equal(t, "intro", p.ID)

	stub := pageOrStub(cfg, "nonexistent")
	assert.Equal(t, "nonexistent", stub.ID)
	assert.Empty(t, stub.Components)
}

func TestAuthContextAuthenticated(t *testing.T) {
	assert.False(t, AuthContext{}.authenticated())
	assert.True(t, AuthContext{UserID: "u1"}.authenticated())
	assert.True(t, AuthContext{Prolific: &models.ProlificInfo{PID: "p1"}}.authenticated())
	assert.False(t, AuthContext{Prolific: &models.ProlificInfo{}}.authenticated())
}
