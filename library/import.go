package library

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ImportFormatError reports a file the importer does not accept.
type ImportFormatError struct {
	Name   string
	Reason string
}

func (e *ImportFormatError) Error() string {
	return fmt.Sprintf("cannot import %s: %s", e.Name, e.Reason)
}

// Bundle is a Shadertoy JSON export.
type Bundle struct {
	Info       *BundleInfo  `json:"info"`
	RenderPass []RenderPass `json:"renderpass"`
}

type BundleInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Username    string `json:"username"`
	Description string `json:"description"`
}

type RenderPass struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Type string `json:"type"`
}

const (
	importedDescription = "Imported shader file"
	bundleCategory      = "shadertoy"
	bundleDescription   = "Imported ShaderToy shader"
)

func baseName(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Import adds the asset described by a file's name and contents. Raw
// sources (.glsl, .frag, .shadertoy) are taken verbatim; .json files must
// be Shadertoy export bundles.
func (l *Library) Import(name string, data []byte) (Asset, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".glsl", ".frag", ".shadertoy":
		return l.Add(Asset{
			Name:        baseName(name),
			Category:    DefaultCategory,
			Description: importedDescription,
			Source:      string(data),
		}), nil
	case ".json":
		a, err := ParseBundle(name, data)
		if err != nil {
			return Asset{}, err
		}
		return l.Add(a), nil
	}
	return Asset{}, &ImportFormatError{Name: name, Reason: "supported files are .glsl, .frag, .shadertoy and Shadertoy JSON exports"}
}

// ImportFile reads path and imports it.
func (l *Library) ImportFile(path string) (Asset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Asset{}, fmt.Errorf("import %s: %w", path, err)
	}
	return l.Import(path, data)
}

// ParseBundle converts a Shadertoy export into an asset without adding it.
func ParseBundle(name string, data []byte) (Asset, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return Asset{}, &ImportFormatError{Name: name, Reason: "invalid JSON: " + err.Error()}
	}
	if b.Info == nil || b.RenderPass == nil {
		return Asset{}, &ImportFormatError{Name: name, Reason: "not a Shadertoy export (missing info or renderpass)"}
	}
	if len(b.RenderPass) == 0 || strings.TrimSpace(b.RenderPass[0].Code) == "" {
		return Asset{}, &ImportFormatError{Name: name, Reason: "first render pass has no code"}
	}
	return bundleAsset(name, b), nil
}

func bundleAsset(name string, b Bundle) Asset {
	a := Asset{
		Name:        b.Info.Name,
		Category:    bundleCategory,
		Description: b.Info.Description,
		Source:      b.RenderPass[0].Code,
	}
	if a.Name == "" {
		a.Name = baseName(name)
	}
	if a.Description == "" {
		a.Description = bundleDescription
	}
	return a
}
