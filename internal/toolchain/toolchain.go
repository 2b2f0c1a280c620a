// Package toolchain compiles and runs untrusted programs for the supported languages.
//
// Each language is a Toolchain variant that knows how to lay its source out in a
// Workspace and which command lines compile and run it. Processes are plain child
// processes in their own process group; there is no OS-level isolation.
package toolchain

import (
	"fmt"
	"strings"

	"github.com/google/shlex"

	"github.com/victornm/codejudge/internal/domain"
)

// Command line placeholders expanded in templates.
const (
	varSource = "{src}"
	varBinary = "{bin}"
	varDir    = "{dir}"
	varClass  = "{class}"
)

// Toolchain prepares a source file for one language.
type Toolchain interface {
	Language() domain.Language
	// Prepare writes source into ws and returns the command lines to compile (optional) and run it.
	Prepare(ws *Workspace, source string) (Plan, error)
}

// Plan holds the expanded command lines of a prepared source. Compile is empty for interpreted languages.
type Plan struct {
	Compile []string
	Run     []string
}

// Command holds the compile and run templates of a toolchain.
type Command struct {
	Compile string
	Run     string
}

type Config struct {
	Cpp    Command
	Java   Command
	Python Command
}

func DefaultConfig() Config {
	return Config{
		Cpp: Command{
			Compile: "g++ -O2 -std=c++17 -o {bin} {src}",
			Run:     "{bin}",
		},
		Java: Command{
			Compile: "javac -encoding UTF-8 -d {dir} {src}",
			Run:     "java -cp {dir} {class}",
		},
		Python: Command{
			Run: "python3 {src}",
		},
	}
}

// Set is the closed set of toolchains, one per supported language.
type Set struct {
	toolchains map[domain.Language]Toolchain
}

// NewSet builds the toolchains from c. Empty templates fall back to DefaultConfig.
func NewSet(c Config) (*Set, error) {
	d := DefaultConfig()
	c.Cpp = c.Cpp.withDefaults(d.Cpp)
	c.Java = c.Java.withDefaults(d.Java)
	c.Python = c.Python.withDefaults(d.Python)

	cppCmd, err := c.Cpp.parse(true)
	if err != nil {
		return nil, fmt.Errorf("toolchain: cpp: %w", err)
	}
	javaCmd, err := c.Java.parse(true)
	if err != nil {
		return nil, fmt.Errorf("toolchain: java: %w", err)
	}
	pyCmd, err := c.Python.parse(false)
	if err != nil {
		return nil, fmt.Errorf("toolchain: python: %w", err)
	}

	return &Set{
		toolchains: map[domain.Language]Toolchain{
			domain.LanguageCpp:    cpp{cmd: cppCmd},
			domain.LanguageJava:   java{cmd: javaCmd},
			domain.LanguagePython: python{cmd: pyCmd},
		},
	}, nil
}

// Lookup returns the toolchain of a language.
func (s *Set) Lookup(l domain.Language) (Toolchain, bool) {
	tc, ok := s.toolchains[l]
	return tc, ok
}

func (c Command) withDefaults(d Command) Command {
	if c.Compile == "" {
		c.Compile = d.Compile
	}
	if c.Run == "" {
		c.Run = d.Run
	}
	return c
}

// template is a pre-split command line whose arguments may contain placeholders.
type template struct {
	compile []string
	run     []string
}

func (c Command) parse(compiled bool) (template, error) {
	var t template
	var err error

	if compiled {
		if t.compile, err = shlex.Split(c.Compile); err != nil {
			return t, fmt.Errorf("compile command %q: %w", c.Compile, err)
		}
		if len(t.compile) == 0 {
			return t, fmt.Errorf("empty compile command")
		}
	}

	if t.run, err = shlex.Split(c.Run); err != nil {
		return t, fmt.Errorf("run command %q: %w", c.Run, err)
	}
	if len(t.run) == 0 {
		return t, fmt.Errorf("empty run command")
	}

	return t, nil
}

func (t template) expand(vars *strings.Replacer) Plan {
	return Plan{
		Compile: expandArgs(t.compile, vars),
		Run:     expandArgs(t.run, vars),
	}
}

func expandArgs(args []string, vars *strings.Replacer) []string {
	if len(args) == 0 {
		return nil
	}

	out := make([]string, len(args))
	for i, a := range args {
		out[i] = vars.Replace(a)
	}
	return out
}
