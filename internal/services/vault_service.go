package services

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"notechat/internal/logger"
	"notechat/pkg/chattypes"
)

// VaultService gives access to the directory tree chat documents live in.
// Links are resolved the way wiki links are: by relative path first, then by
// file name anywhere under the root.
type VaultService struct {
	initialized bool
	root        string
}

// NewVaultService creates a vault rooted at root. An empty root means the working directory.
func NewVaultService(root string) *VaultService {
	return &VaultService{root: root}
}

// Name returns the service name "vault" for registration.
func (v *VaultService) Name() string {
	return "vault"
}

// Initialize resolves the vault root and checks that it is a directory.
func (v *VaultService) Initialize() error {
	logger.ServiceOperation("vault", "initialize", "starting")
	root := v.root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve vault root %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("vault root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault root %s is not a directory", abs)
	}
	v.root = abs
	v.initialized = true
	logger.ServiceOperation("vault", "initialize", "completed", "root", abs)
	return nil
}

// Root returns the absolute vault root.
func (v *VaultService) Root() string {
	return v.root
}

// Abs turns a vault-relative path into an absolute one. Absolute paths pass through.
func (v *VaultService) Abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(v.root, filepath.FromSlash(p))
}

// ResolveLink resolves a wiki-style link target to a file in the vault.
func (v *VaultService) ResolveLink(link string) (chattypes.VaultFile, bool) {
	if i := strings.IndexAny(link, "#^"); i >= 0 {
		link = link[:i]
	}
	link = strings.TrimSpace(link)
	if link == "" {
		return chattypes.VaultFile{}, false
	}
	if path.Ext(link) == "" {
		link += ".md"
	}
	link, ok := v.insideRoot(link)
	if !ok {
		logger.Warn("Link outside the vault ignored", "link", link)
		return chattypes.VaultFile{}, false
	}

	if info, err := os.Stat(v.Abs(link)); err == nil && !info.IsDir() {
		return v.vaultFile(link), true
	}

	name := path.Base(link)
	var found string
	_ = filepath.WalkDir(v.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != v.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == name {
			found = p
			return filepath.SkipAll
		}
		return nil
	})
	if found == "" {
		logger.Debug("Link not resolved", "link", link)
		return chattypes.VaultFile{}, false
	}

	rel, err := filepath.Rel(v.root, found)
	if err != nil {
		return chattypes.VaultFile{}, false
	}
	return v.vaultFile(filepath.ToSlash(rel)), true
}

// insideRoot cleans a link target and returns it vault-relative. Absolute
// targets and targets that climb out of the root are refused.
func (v *VaultService) insideRoot(link string) (string, bool) {
	if filepath.IsAbs(link) || path.IsAbs(link) || filepath.VolumeName(link) != "" {
		return link, false
	}
	joined := filepath.Join(v.root, filepath.FromSlash(link))
	rel, err := filepath.Rel(v.root, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return link, false
	}
	return filepath.ToSlash(rel), true
}

func (v *VaultService) vaultFile(rel string) chattypes.VaultFile {
	ext := path.Ext(rel)
	return chattypes.VaultFile{
		Path:      rel,
		Basename:  strings.TrimSuffix(path.Base(rel), ext),
		Extension: strings.ToLower(strings.TrimPrefix(ext, ".")),
	}
}

// ReadBinary reads a vault file's bytes.
func (v *VaultService) ReadBinary(file chattypes.VaultFile) ([]byte, error) {
	data, err := os.ReadFile(v.Abs(file.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file.Path, err)
	}
	return data, nil
}

// ReadText reads a vault file as text.
func (v *VaultService) ReadText(file chattypes.VaultFile) (string, error) {
	data, err := v.ReadBinary(file)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Exists reports whether p exists.
func (v *VaultService) Exists(p string) bool {
	_, err := os.Stat(v.Abs(p))
	return err == nil
}

// EnsureFolder checks that folder exists, creating it when create is set.
func (v *VaultService) EnsureFolder(folder string, create bool) error {
	abs := v.Abs(folder)
	info, err := os.Stat(abs)
	switch {
	case err == nil && info.IsDir():
		return nil
	case err == nil:
		return fmt.Errorf("%s is not a folder", folder)
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("failed to check folder %s: %w", folder, err)
	case !create:
		return fmt.Errorf("folder %s does not exist", folder)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return fmt.Errorf("failed to create folder %s: %w", folder, err)
	}
	logger.Debug("Folder created", "folder", abs)
	return nil
}

// ListFiles returns the Markdown files directly inside folder, sorted by name.
func (v *VaultService) ListFiles(folder string) ([]string, error) {
	entries, err := os.ReadDir(v.Abs(folder))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", folder, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || strings.ToLower(filepath.Ext(entry.Name())) != ".md" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// CreateFile writes content to a new file at p. It fails if p exists.
func (v *VaultService) CreateFile(p, content string) error {
	file, err := os.OpenFile(v.Abs(p), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", p, err)
	}
	if _, err := file.WriteString(content); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	return file.Close()
}

// UniquePath returns dir/name.ext, or dir/name (n).ext with the smallest n
// that is not taken.
func (v *VaultService) UniquePath(dir, name, ext string) string {
	candidate := filepath.Join(dir, name+ext)
	for i := 1; v.Exists(candidate); i++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", name, i, ext))
	}
	return candidate
}

// Rename moves a file inside the vault.
func (v *VaultService) Rename(from, to string) error {
	if err := os.Rename(v.Abs(from), v.Abs(to)); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", from, to, err)
	}
	logger.Debug("File renamed", "from", from, "to", to)
	return nil
}
