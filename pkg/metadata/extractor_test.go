package metadata_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/policysync/pkg/diagnostics"
	"github.com/agentstation/policysync/pkg/metadata"
)

func TestIdentity(t *testing.T) {
	e, err := metadata.New()
	require.NoError(t, err)

	tests := []struct {
		name string
		path string
		want string
	}{
		{"flat file", "policy.md", "policy"},
		{"nested path collapses", "a/b/C.md", "C"},
		{"deeply nested", "handbook/hr/leave/parental-leave.md", "parental-leave"},
		{"markdown suffix", "security/incident-response.markdown", "incident-response"},
		{"uppercase suffix", "legal/PRIVACY.MD", "PRIVACY"},
		{"mixed case suffix", "docs/Terms.Md", "Terms"},
		{"no recognized suffix", "scripts/deploy.sh", "deploy.sh"},
		{"case preserved in identity", "a/B/Policy-One.md", "Policy-One"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Identity(tt.path))
		})
	}
}

func TestIdentityStableAcrossMoves(t *testing.T) {
	e, err := metadata.New()
	require.NoError(t, err)

	// Moving a document between directories must not change its identity.
	assert.Equal(t, e.Identity("old/dir/code-of-conduct.md"), e.Identity("new/home/code-of-conduct.md"))
}

func TestIsEligible(t *testing.T) {
	e, err := metadata.New()
	require.NoError(t, err)

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"markdown file", "policies/privacy.md", true},
		{"long suffix", "policies/privacy.markdown", true},
		{"uppercase suffix", "policies/PRIVACY.MD", true},
		{"root-level readme", "README.md", false},
		{"readme in subdirectory", "policies/readme.md", false},
		{"readme mixed case", "docs/ReadMe.markdown", false},
		{"readme as identity prefix only", "policies/readme-first.md", true},
		{"no suffix", "policies/privacy", false},
		{"wrong suffix", "policies/privacy.txt", false},
		{"empty path", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.IsEligible(tt.path))
		})
	}
}

func TestIsEligibleIgnorePatterns(t *testing.T) {
	e, err := metadata.New(metadata.WithIgnorePatterns("drafts/**", "**/*.draft.md"))
	require.NoError(t, err)

	assert.True(t, e.IsEligible("policies/privacy.md"))
	assert.False(t, e.IsEligible("drafts/privacy.md"))
	assert.False(t, e.IsEligible("policies/privacy.draft.md"))
}

func TestIsEligibleRejectsInvalidPattern(t *testing.T) {
	_, err := metadata.New(metadata.WithIgnorePatterns("[invalid"))
	assert.Error(t, err)
}

func TestExtractTitle(t *testing.T) {
	e, err := metadata.New()
	require.NoError(t, err)

	t.Run("first level-1 heading wins", func(t *testing.T) {
		doc := e.Extract("hr/leave.md", "# Leave Policy\n\n# Second Heading\nbody", "a1b2")
		assert.Equal(t, "Leave Policy", doc.Title)
	})

	t.Run("heading is trimmed", func(t *testing.T) {
		doc := e.Extract("hr/leave.md", "# Leave Policy   \nbody", "a1b2")
		assert.Equal(t, "Leave Policy", doc.Title)
	})

	t.Run("mid-line marker ignored", func(t *testing.T) {
		doc := e.Extract("hr/leave.md", "intro # Not A Title\n# Real Title", "a1b2")
		assert.Equal(t, "Real Title", doc.Title)
	})

	t.Run("deeper headings do not count", func(t *testing.T) {
		doc := e.Extract("hr/leave.md", "## Subheading\n### Deeper", "a1b2")
		assert.Equal(t, "leave", doc.Title)
	})

	t.Run("later heading still found", func(t *testing.T) {
		doc := e.Extract("hr/leave.md", "preamble\nmore text\n# Late Title", "a1b2")
		assert.Equal(t, "Late Title", doc.Title)
	})
}

func TestExtractFallbackTitleReported(t *testing.T) {
	collector := diagnostics.NewCollector()
	e, err := metadata.New(metadata.WithReporter(collector))
	require.NoError(t, err)

	doc := e.Extract("hr/leave.md", "no heading here", "a1b2")
	assert.Equal(t, "leave", doc.Title, "title falls back to identity")
	assert.Equal(t, "leave", doc.Identity)

	events := collector.ByType(diagnostics.EventFallbackTitle)
	require.Len(t, events, 1)
	assert.Equal(t, "leave", events[0].Identity)
}

func TestExtractCarriesInputs(t *testing.T) {
	e, err := metadata.New()
	require.NoError(t, err)

	doc := e.Extract("security/keys.md", "# Key Handling\nrotate quarterly", "deadbeef")
	assert.Equal(t, "keys", doc.Identity)
	assert.Equal(t, "Key Handling", doc.Title)
	assert.Equal(t, "# Key Handling\nrotate quarterly", doc.Body)
	assert.Equal(t, "deadbeef", doc.VersionToken)
	assert.Equal(t, "security/keys.md", doc.Path)
}
