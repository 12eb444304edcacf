// Package api defines the site configuration file.
package api

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

const (
	DefaultOutput = "dist"
	DefaultListen = "127.0.0.1:8080"
	DefaultStyle  = "github"
)

// Site is the root of a site.hcl (or site.json) file.
type Site struct {
	// Output is the static output directory.
	Output string `hcl:"output,optional" json:"output,omitempty"`
	// Bundle is an optional SQLite file written next to the output.
	Bundle string `hcl:"bundle,optional" json:"bundle,omitempty"`
	// Compress lists content codings to precompute for published text.
	Compress []string `hcl:"compress,optional" json:"compress,omitempty"`

	Mounts    []Mount    `hcl:"mount,block" json:"mount,omitempty"`
	Indexes   []Index    `hcl:"index,block" json:"index,omitempty"`
	Highlight *Highlight `hcl:"highlight,block" json:"highlight,omitempty"`
	Serve     *Serve     `hcl:"serve,block" json:"serve,omitempty"`
}

// Mount maps a real directory into the site tree.
type Mount struct {
	Name   string `hcl:"name,label" json:"name"`
	Source string `hcl:"source" json:"source"`
	// Prefix is where the directory appears. Defaults to "/".
	Prefix  string `hcl:"prefix,optional" json:"prefix,omitempty"`
	Publish bool   `hcl:"publish,optional" json:"publish,omitempty"`
	// Exclude patterns match the base name, the path, or any segment.
	Exclude []string `hcl:"exclude,optional" json:"exclude,omitempty"`
	// Include patterns, when set, must match for a file to load.
	Include []string `hcl:"include,optional" json:"include,omitempty"`
	// Binary keeps binary files. Defaults to true.
	Binary *bool `hcl:"binary,optional" json:"binary,omitempty"`
}

// KeepBinary reports whether binary files are loaded.
func (m Mount) KeepBinary() bool {
	return m.Binary == nil || *m.Binary
}

// Index is an aggregate page listing every page matching Pattern.
type Index struct {
	Name    string `hcl:"name,label" json:"name"`
	Pattern string `hcl:"pattern" json:"pattern"`
	Output  string `hcl:"output" json:"output"`
	Title   string `hcl:"title,optional" json:"title,omitempty"`
	// TitlePath and DatePath are JSONPath expressions into front matter.
	TitlePath string `hcl:"title_path,optional" json:"title_path,omitempty"`
	DatePath  string `hcl:"date_path,optional" json:"date_path,omitempty"`
}

type Highlight struct {
	Style   string `hcl:"style,optional" json:"style,omitempty"`
	Classes bool   `hcl:"classes,optional" json:"classes,omitempty"`
}

type Serve struct {
	Listen string `hcl:"listen,optional" json:"listen,omitempty"`
	NFS    bool   `hcl:"nfs,optional" json:"nfs,omitempty"`
}

// LoadSite decodes a site file. The syntax follows the extension (.hcl or
// .json). Relative directories are resolved against the file's directory.
func LoadSite(filename string) (*Site, error) {
	var s Site
	if err := hclsimple.DecodeFile(filename, nil, &s); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filename, err)
	}
	abs, err := filepath.Abs(filename)
	if err != nil {
		return nil, err
	}
	s.resolve(filepath.Dir(abs))
	s.applyDefaults(filepath.Dir(abs))
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return &s, nil
}

// DefaultSite is the configuration used when dir has no site file:
// ./content at "/" as sources, plus ./static at "/" published if present.
func DefaultSite(dir string) *Site {
	s := &Site{
		Mounts: []Mount{{Name: "content", Source: "content", Exclude: []string{".*"}}},
	}
	if info, err := os.Stat(filepath.Join(dir, "static")); err == nil && info.IsDir() {
		s.Mounts = append(s.Mounts, Mount{Name: "static", Source: "static", Publish: true, Exclude: []string{".*"}})
	}
	s.resolve(dir)
	s.applyDefaults(dir)
	return s
}

func (s *Site) resolve(dir string) {
	for i := range s.Mounts {
		s.Mounts[i].Source = relTo(dir, s.Mounts[i].Source)
	}
	s.Output = relTo(dir, s.Output)
	s.Bundle = relTo(dir, s.Bundle)
}

func relTo(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func (s *Site) applyDefaults(dir string) {
	if s.Output == "" {
		s.Output = filepath.Join(dir, DefaultOutput)
	}
	if s.Highlight == nil {
		s.Highlight = &Highlight{}
	}
	if s.Highlight.Style == "" {
		s.Highlight.Style = DefaultStyle
	}
	if s.Serve == nil {
		s.Serve = &Serve{}
	}
	if s.Serve.Listen == "" {
		s.Serve.Listen = DefaultListen
	}
	for i := range s.Mounts {
		if s.Mounts[i].Prefix == "" {
			s.Mounts[i].Prefix = "/"
		}
	}
}

// Validate checks names, prefixes and patterns.
func (s *Site) Validate() error {
	var errs []error
	if len(s.Mounts) == 0 {
		errs = append(errs, errors.New("no mount blocks"))
	}
	seen := make(map[string]bool)
	for _, m := range s.Mounts {
		if seen["mount:"+m.Name] {
			errs = append(errs, fmt.Errorf("mount %q declared twice", m.Name))
		}
		seen["mount:"+m.Name] = true
		if m.Source == "" {
			errs = append(errs, fmt.Errorf("mount %q: empty source", m.Name))
		}
		if !strings.HasPrefix(m.Prefix, "/") {
			errs = append(errs, fmt.Errorf("mount %q: prefix %q must start with /", m.Name, m.Prefix))
		}
		errs = append(errs, checkPatterns("mount "+m.Name, m.Exclude)...)
		errs = append(errs, checkPatterns("mount "+m.Name, m.Include)...)
	}
	for _, ix := range s.Indexes {
		if seen["index:"+ix.Name] {
			errs = append(errs, fmt.Errorf("index %q declared twice", ix.Name))
		}
		seen["index:"+ix.Name] = true
		if !strings.HasPrefix(ix.Output, "/") {
			errs = append(errs, fmt.Errorf("index %q: output %q must start with /", ix.Name, ix.Output))
		}
		errs = append(errs, checkPatterns("index "+ix.Name, []string{ix.Pattern})...)
		for _, expr := range []string{ix.TitlePath, ix.DatePath} {
			if expr != "" && !strings.HasPrefix(expr, "$") {
				errs = append(errs, fmt.Errorf("index %q: %q is not a JSONPath expression", ix.Name, expr))
			}
		}
	}
	return errors.Join(errs...)
}

func checkPatterns(owner string, patterns []string) []error {
	var errs []error
	for _, p := range patterns {
		if _, err := path.Match(p, ""); err != nil {
			errs = append(errs, fmt.Errorf("%s: pattern %q: %w", owner, p, err))
		}
	}
	return errs
}
