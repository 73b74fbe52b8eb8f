// Package language defines how each supported language is compiled, run,
// and which task topic its submissions arrive on.
package language

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/shlex"
	"gopkg.in/yaml.v3"

	appErr "pdjudge/pkg/errors"
)

// Spec defines one language and version the worker can judge.
type Spec struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	Version        string   `yaml:"version"`
	SourceFile     string   `yaml:"sourceFile"`
	BinaryFile     string   `yaml:"binaryFile"`
	CompileEnabled bool     `yaml:"compileEnabled"`
	CompileCmdTpl  string   `yaml:"compileCmd"`
	RunCmdTpl      string   `yaml:"runCmd"`
	Env            []string `yaml:"env"`
	// TopicWeight orders this language's queue against the others when one
	// worker consumes several; higher weight is fetched more often.
	TopicWeight int `yaml:"topicWeight"`
}

// Topic is the per-language-and-version task queue name.
func (s Spec) Topic() string {
	version := strings.ReplaceAll(s.Version, ".", "-")
	if version == "" {
		return fmt.Sprintf("judge.%s", s.ID)
	}
	return fmt.Sprintf("judge.%s.%s", s.ID, version)
}

// CompileArgs expands the compile command template into an argv.
// {src} and {bin} are replaced with the given sandbox-side paths.
func (s Spec) CompileArgs(source, target string) ([]string, error) {
	return buildCommand(s.CompileCmdTpl, source, target)
}

// RunArgs expands the run command template into an argv.
func (s Spec) RunArgs(source, target string) ([]string, error) {
	return buildCommand(s.RunCmdTpl, source, target)
}

func buildCommand(tpl, source, target string) ([]string, error) {
	if strings.TrimSpace(tpl) == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command template is required")
	}
	expanded := strings.ReplaceAll(tpl, "{src}", source)
	expanded = strings.ReplaceAll(expanded, "{bin}", target)
	fields, err := shlex.Split(expanded)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "parse command template failed")
	}
	if len(fields) == 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command is empty after expansion")
	}
	return fields, nil
}

// Registry holds the language specs this worker serves.
type Registry struct {
	specs map[string]Spec
	order []string
}

// NewRegistry builds a registry from config lists, skipping blank entries.
func NewRegistry(specs []Spec) *Registry {
	r := &Registry{specs: make(map[string]Spec)}
	for _, s := range specs {
		if s.ID == "" {
			continue
		}
		if _, dup := r.specs[s.ID]; !dup {
			r.order = append(r.order, s.ID)
		}
		r.specs[s.ID] = s
	}
	return r
}

// LoadRegistry reads language specs from a YAML file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read language file failed: %w", err)
	}
	var doc struct {
		Languages []Spec `yaml:"languages"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse language file %s failed: %w", filepath.Base(path), err)
	}
	if len(doc.Languages) == 0 {
		return nil, fmt.Errorf("language file %s defines no languages", filepath.Base(path))
	}
	return NewRegistry(doc.Languages), nil
}

// Get returns the spec for a language id.
func (r *Registry) Get(id string) (Spec, error) {
	s, ok := r.specs[id]
	if !ok {
		return Spec{}, appErr.Newf(appErr.InvalidParams, "language %q is not supported", id)
	}
	return s, nil
}

// All returns every registered spec in declaration order.
func (r *Registry) All() []Spec {
	out := make([]Spec, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.specs[id])
	}
	return out
}
