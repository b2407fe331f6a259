// Package compile stages submission source, invokes language compilers, and
// prepares the sandbox box directory for execution.
package compile

import "judgeworker/internal/model"

// DefaultLanguages is the baseline language registry: C++, C, Python3, and
// OCaml, using the canonical compile commands. NewRegistry accepts any slice
// of LanguageSpec, but config.json has no language section: the binary
// registers exactly these four languages.
func DefaultLanguages() []model.LanguageSpec {
	return []model.LanguageSpec{
		{
			ID:               "cpp17",
			Name:             "C++17",
			FileExtension:    "cpp",
			CompileEnabled:   true,
			CompileCmdTpl:    "g++ -O2 --std=c++17 -o {bin} {src}",
			TimeMultiplier:   1.0,
			MemoryMultiplier: 1.0,
		},
		{
			ID:               "c11",
			Name:             "C",
			FileExtension:    "c",
			CompileEnabled:   true,
			CompileCmdTpl:    "gcc -O2 -o {bin} {src}",
			TimeMultiplier:   1.0,
			MemoryMultiplier: 1.0,
		},
		{
			ID:               "ocaml",
			Name:             "OCaml",
			FileExtension:    "ml",
			CompileEnabled:   true,
			CompileCmdTpl:    "ocamlopt -S -o {bin} {src}",
			TimeMultiplier:   1.0,
			MemoryMultiplier: 1.0,
		},
		{
			ID:               "python3",
			Name:             "Python 3",
			FileExtension:    "py",
			CompileEnabled:   false,
			RunCmdTpl:        "/usr/bin/python3 {src}",
			TimeMultiplier:   3.0,
			MemoryMultiplier: 1.0,
		},
	}
}

// Registry resolves a language ID to its LanguageSpec.
type Registry struct {
	byID map[string]model.LanguageSpec
}

// NewRegistry builds a Registry from a slice of language specs.
func NewRegistry(specs []model.LanguageSpec) *Registry {
	r := &Registry{byID: make(map[string]model.LanguageSpec, len(specs))}
	for _, s := range specs {
		r.byID[s.ID] = s
	}
	return r
}

// Lookup returns the LanguageSpec for id, or false if unknown.
func (r *Registry) Lookup(id string) (model.LanguageSpec, bool) {
	s, ok := r.byID[id]
	return s, ok
}
