package services

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"notechat/internal/logger"
	"notechat/internal/settings"
)

// Template is a chat template file.
type Template struct {
	Name string // file name without extension
	Path string // absolute path
}

// TemplateService creates new chat documents, empty or from a template.
type TemplateService struct {
	initialized   bool
	vault         *VaultService
	config        *ConfigurationService
	createFolders bool
	now           func() time.Time
}

// NewTemplateService creates a TemplateService. When createFolders is set,
// a missing chat or template folder is created instead of being an error.
func NewTemplateService(vault *VaultService, config *ConfigurationService, createFolders bool) *TemplateService {
	return &TemplateService{
		vault:         vault,
		config:        config,
		createFolders: createFolders,
		now:           time.Now,
	}
}

// Name returns the service name "template" for registration.
func (t *TemplateService) Name() string {
	return "template"
}

// Initialize sets up the TemplateService for operation.
func (t *TemplateService) Initialize() error {
	logger.ServiceOperation("template", "initialize", "starting")
	t.initialized = true
	logger.ServiceOperation("template", "initialize", "completed")
	return nil
}

// NewChat writes a new chat named after the current date into the chat
// folder: the default frontmatter, a blank line, then selection.
func (t *TemplateService) NewChat(selection string) (string, error) {
	if !t.initialized {
		return "", fmt.Errorf("template service not initialized")
	}
	s := t.config.Settings()

	frontmatter := strings.TrimSpace(s.DefaultChatFrontmatter)
	if frontmatter == "" {
		frontmatter = settings.DefaultFrontmatter
	}
	return t.create(s, frontmatter+"\n\n"+selection)
}

// List returns the templates whose name contains query, case-insensitively.
// An empty query lists every template.
func (t *TemplateService) List(query string) ([]Template, error) {
	if !t.initialized {
		return nil, fmt.Errorf("template service not initialized")
	}
	folder := t.config.Settings().ChatTemplateFolder
	if err := t.vault.EnsureFolder(folder, t.createFolders); err != nil {
		return nil, fmt.Errorf("chat template folder unavailable: %w", err)
	}

	names, err := t.vault.ListFiles(folder)
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(query)
	templates := make([]Template, 0, len(names))
	for _, name := range names {
		base := strings.TrimSuffix(name, filepath.Ext(name))
		if query != "" && !strings.Contains(strings.ToLower(base), query) {
			continue
		}
		templates = append(templates, Template{Name: base, Path: t.vault.Abs(filepath.Join(folder, name))})
	}
	return templates, nil
}

// FromTemplate writes a new chat whose content is a copy of the named template.
func (t *TemplateService) FromTemplate(name string) (string, error) {
	templates, err := t.List("")
	if err != nil {
		return "", err
	}
	for _, tmpl := range templates {
		if tmpl.Name != name {
			continue
		}
		content, err := t.vault.ReadText(t.vault.vaultFile(tmpl.Path))
		if err != nil {
			return "", err
		}
		return t.create(t.config.Settings(), content)
	}
	return "", fmt.Errorf("chat template %q not found", name)
}

func (t *TemplateService) create(s settings.Settings, content string) (string, error) {
	if err := t.vault.EnsureFolder(s.ChatFolder, t.createFolders); err != nil {
		return "", fmt.Errorf("chat folder unavailable: %w", err)
	}

	path := filepath.Join(t.vault.Abs(s.ChatFolder), FormatDate(t.now(), s.DateFormat)+".md")
	if err := t.vault.CreateFile(path, content); err != nil {
		return "", err
	}
	logger.Info("Chat created", "path", path)
	return path, nil
}
