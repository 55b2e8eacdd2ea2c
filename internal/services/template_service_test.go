package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notechat/internal/settings"
)

// newTestTemplateService creates an initialized TemplateService over a temp vault with a fixed clock.
func newTestTemplateService(t *testing.T, files map[string]string, configYAML string, createFolders bool) (*TemplateService, *VaultService) {
	t.Helper()
	vault := newTestVault(t, files)
	service := NewTemplateService(vault, newTestConfiguration(t, configYAML), createFolders)
	service.now = func() time.Time { return time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC) }
	require.NoError(t, service.Initialize())
	return service, vault
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestTemplateService_NotInitialized(t *testing.T) {
	service := NewTemplateService(nil, nil, false)
	assert.Equal(t, "template", service.Name())

	_, err := service.NewChat("")
	assert.Error(t, err)
	_, err = service.List("")
	assert.Error(t, err)
}

func TestTemplateService_NewChat(t *testing.T) {
	service, vault := newTestTemplateService(t, nil, "", true)

	path, err := service.NewChat("selected text")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(vault.Root(), "chats", "20240309140507.md"), path)
	assert.Equal(t, settings.DefaultFrontmatter+"\n\nselected text", readFile(t, path))
}

func TestTemplateService_NewChatCustomSettings(t *testing.T) {
	service, vault := newTestTemplateService(t, map[string]string{"ai/.keep.md": ""}, `
chat_folder: ai
date_format: YYYY-MM-DD hh-mm
default_chat_frontmatter: |
  ---
  llm: anthropic
  ---
`, false)

	path, err := service.NewChat("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(vault.Root(), "ai", "2024-03-09 14-05.md"), path)
	assert.Equal(t, "---\nllm: anthropic\n---\n\n", readFile(t, path))
}

func TestTemplateService_MissingFolder(t *testing.T) {
	service, _ := newTestTemplateService(t, nil, "", false)

	_, err := service.NewChat("x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat folder unavailable")

	_, err = service.List("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat template folder unavailable")
}

func TestTemplateService_NewChatExistingFile(t *testing.T) {
	service, _ := newTestTemplateService(t, map[string]string{"chats/20240309140507.md": "taken"}, "", false)

	_, err := service.NewChat("x")
	assert.Error(t, err, "an existing chat is never overwritten")
}

func TestTemplateService_List(t *testing.T) {
	service, vault := newTestTemplateService(t, map[string]string{
		"chat-templates/Code Review.md":  "review",
		"chat-templates/Translator.md":   "translate",
		"chat-templates/code-golf.md":    "golf",
		"chat-templates/notes.txt":       "not a template",
		"chat-templates/nested/inner.md": "skipped",
	}, "", false)

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "all", query: "", want: []string{"Code Review", "Translator", "code-golf"}},
		{name: "case insensitive", query: "CODE", want: []string{"Code Review", "code-golf"}},
		{name: "no match", query: "poetry", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			templates, err := service.List(tt.query)
			require.NoError(t, err)
			names := make([]string, 0, len(templates))
			for _, tmpl := range templates {
				names = append(names, tmpl.Name)
				assert.True(t, strings.HasPrefix(tmpl.Path, vault.Root()))
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestTemplateService_FromTemplate(t *testing.T) {
	template := "---\nsystem_commands: ['review code']\n---\n\nPaste the diff here."
	service, vault := newTestTemplateService(t, map[string]string{
		"chat-templates/Code Review.md": template,
	}, "", true)

	path, err := service.FromTemplate("Code Review")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(vault.Root(), "chats", "20240309140507.md"), path)
	assert.Equal(t, template, readFile(t, path))

	_, err = service.FromTemplate("Missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `chat template "Missing" not found`)
}
