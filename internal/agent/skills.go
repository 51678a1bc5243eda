package agent

import (
	"os"
	"path/filepath"
	"strings"
)

// SkillInfo describes a discovered skill.
type SkillInfo struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Source string `json:"source"` // "workspace" or "builtin"
}

// SkillsLoader discovers SKILL.md bundles in the agent's workspace and an
// optional shared builtin directory. Skills load progressively: the prompt
// carries a summary, the agent reads the full SKILL.md on demand.
type SkillsLoader struct {
	Workspace       string
	WorkspaceSkills string
	BuiltinSkills   string
}

// NewSkillsLoader creates a SkillsLoader.
func NewSkillsLoader(workspace string, builtinSkillsDir string) *SkillsLoader {
	return &SkillsLoader{
		Workspace:       workspace,
		WorkspaceSkills: filepath.Join(workspace, "skills"),
		BuiltinSkills:   builtinSkillsDir,
	}
}

// roots returns the skill directories in priority order.
func (s *SkillsLoader) roots() []struct{ dir, source string } {
	roots := []struct{ dir, source string }{{s.WorkspaceSkills, "workspace"}}
	if s.BuiltinSkills != "" {
		roots = append(roots, struct{ dir, source string }{s.BuiltinSkills, "builtin"})
	}
	return roots
}

// ListSkills returns all available skills. Workspace skills shadow
// builtins of the same name.
func (s *SkillsLoader) ListSkills() []SkillInfo {
	var skills []SkillInfo
	seen := map[string]bool{}

	for _, root := range s.roots() {
		entries, err := os.ReadDir(root.dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() || seen[e.Name()] {
				continue
			}
			manifest := filepath.Join(root.dir, e.Name(), "SKILL.md")
			if _, err := os.Stat(manifest); err != nil {
				continue
			}
			skills = append(skills, SkillInfo{Name: e.Name(), Path: manifest, Source: root.source})
			seen[e.Name()] = true
		}
	}
	return skills
}

// LoadSkill loads a skill's content by name. Returns "" if not found.
func (s *SkillsLoader) LoadSkill(name string) string {
	for _, root := range s.roots() {
		data, err := os.ReadFile(filepath.Join(root.dir, name, "SKILL.md"))
		if err == nil {
			return string(data)
		}
	}
	return ""
}

// LoadSkillsForContext loads and formats specific skills for agent context.
func (s *SkillsLoader) LoadSkillsForContext(names []string) string {
	var parts []string
	for _, name := range names {
		content := s.LoadSkill(name)
		if content == "" {
			continue
		}
		_, body := splitFrontmatter(content)
		parts = append(parts, "### Skill: "+name+"\n\n"+body)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// BuildSkillsSummary returns an XML summary of all skills for progressive
// loading.
func (s *SkillsLoader) BuildSkillsSummary() string {
	skills := s.ListSkills()
	if len(skills) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("<skills>")
	for _, sk := range skills {
		desc := sk.Name
		if meta := s.GetSkillMetadata(sk.Name); meta["description"] != "" {
			desc = meta["description"]
		}
		b.WriteString("\n  <skill available=\"true\">")
		b.WriteString("\n    <name>" + escapeXML(sk.Name) + "</name>")
		b.WriteString("\n    <description>" + escapeXML(desc) + "</description>")
		b.WriteString("\n    <location>" + sk.Path + "</location>")
		b.WriteString("\n  </skill>")
	}
	b.WriteString("\n</skills>")
	return b.String()
}

// GetSkillMetadata parses YAML frontmatter from a skill.
func (s *SkillsLoader) GetSkillMetadata(name string) map[string]string {
	front, _ := splitFrontmatter(s.LoadSkill(name))
	if front == "" {
		return nil
	}
	meta := map[string]string{}
	for _, line := range strings.Split(front, "\n") {
		key, val, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(key) == "" {
			continue
		}
		meta[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(val), "\"'")
	}
	return meta
}

// splitFrontmatter separates "---"-delimited YAML frontmatter from the
// body. Content without frontmatter comes back with an empty front part.
func splitFrontmatter(content string) (front, body string) {
	if !strings.HasPrefix(content, "---\n") {
		return "", content
	}
	rest := content[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return "", content
	}
	front = rest[:end]
	body = rest[end+len("\n---"):]
	return front, strings.TrimSpace(strings.TrimPrefix(body, "\n"))
}

func escapeXML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
