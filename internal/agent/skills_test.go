package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSkill(t *testing.T, root, name, description, body string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := "---\ndescription: " + description + "\n---\n" + body
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(content), 0o644))
}

// skillsFixture builds a workspace skill ("deploy"), a builtin skill
// ("research"), and a builtin shadowed by the workspace ("deploy").
func skillsFixture(t *testing.T) *SkillsLoader {
	t.Helper()
	ws := t.TempDir()
	builtin := t.TempDir()

	writeSkill(t, filepath.Join(ws, "skills"), "deploy", "Ship releases", "# Deploy\nRun the release checklist.")
	writeSkill(t, builtin, "research", "Dig through sources", "# Research")
	writeSkill(t, builtin, "deploy", "Old deploy", "# Stale")

	return NewSkillsLoader(ws, builtin)
}

func TestSkillsLoader_ListSkills(t *testing.T) {
	loader := skillsFixture(t)
	skills := loader.ListSkills()
	require.Len(t, skills, 2)

	bySource := map[string]string{}
	for _, s := range skills {
		bySource[s.Name] = s.Source
	}
	assert.Equal(t, "workspace", bySource["deploy"])
	assert.Equal(t, "builtin", bySource["research"])
}

func TestSkillsLoader_LoadSkill(t *testing.T) {
	loader := skillsFixture(t)

	assert.Contains(t, loader.LoadSkill("deploy"), "release checklist")
	assert.Contains(t, loader.LoadSkill("research"), "# Research")
	assert.Equal(t, "", loader.LoadSkill("nonexistent"))
}

func TestSkillsLoader_WorkspaceShadowsBuiltin(t *testing.T) {
	loader := skillsFixture(t)
	content := loader.LoadSkill("deploy")
	assert.Contains(t, content, "Ship releases")
	assert.NotContains(t, content, "Old deploy")
}

func TestSkillsLoader_GetSkillMetadata(t *testing.T) {
	loader := skillsFixture(t)

	meta := loader.GetSkillMetadata("deploy")
	require.NotNil(t, meta)
	assert.Equal(t, "Ship releases", meta["description"])

	assert.Nil(t, loader.GetSkillMetadata("nonexistent"))
}

func TestSkillsLoader_LoadSkillsForContext(t *testing.T) {
	loader := skillsFixture(t)
	ctx := loader.LoadSkillsForContext([]string{"deploy", "research", "missing"})

	assert.Contains(t, ctx, "### Skill: deploy")
	assert.Contains(t, ctx, "### Skill: research")
	assert.NotContains(t, ctx, "missing")
	assert.NotContains(t, ctx, "description:", "frontmatter must be stripped")
}

func TestSkillsLoader_BuildSkillsSummary(t *testing.T) {
	loader := skillsFixture(t)
	xml := loader.BuildSkillsSummary()

	assert.Contains(t, xml, "<skills>")
	assert.Contains(t, xml, "<name>deploy</name>")
	assert.Contains(t, xml, "<description>Ship releases</description>")
	assert.Contains(t, xml, "</skills>")
}

func TestSkillsLoader_BuildSkillsSummary_Empty(t *testing.T) {
	loader := NewSkillsLoader(t.TempDir(), "")
	assert.Equal(t, "", loader.BuildSkillsSummary())
}

func TestSplitFrontmatter(t *testing.T) {
	front, body := splitFrontmatter("---\nfoo: bar\n---\n# Content")
	assert.Equal(t, "foo: bar", front)
	assert.Equal(t, "# Content", body)

	front, body = splitFrontmatter("No frontmatter")
	assert.Equal(t, "", front)
	assert.Equal(t, "No frontmatter", body)

	// Unterminated frontmatter is treated as plain content.
	front, body = splitFrontmatter("---\ndangling")
	assert.Equal(t, "", front)
	assert.Equal(t, "---\ndangling", body)
}

func TestEscapeXML(t *testing.T) {
	assert.Equal(t, "&lt;b&gt;text&amp;more&lt;/b&gt;", escapeXML("<b>text&more</b>"))
}
