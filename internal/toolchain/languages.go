package toolchain

import (
	"regexp"
	"strings"

	"github.com/victornm/codejudge/internal/domain"
)

const (
	cppSource    = "main.cpp"
	cppBinary    = "main"
	pythonSource = "main.py"

	defaultJavaClass = "Solution"
)

type cpp struct {
	cmd template
}

func (cpp) Language() domain.Language { return domain.LanguageCpp }

func (c cpp) Prepare(ws *Workspace, source string) (Plan, error) {
	if err := ws.WriteFile(cppSource, source); err != nil {
		return Plan{}, err
	}

	return c.cmd.expand(strings.NewReplacer(
		varSource, ws.Path(cppSource),
		varBinary, ws.Path(cppBinary),
		varDir, ws.Dir,
	)), nil
}

type java struct {
	cmd template
}

func (java) Language() domain.Language { return domain.LanguageJava }

// Prepare names the source after its public class, as javac requires.
func (j java) Prepare(ws *Workspace, source string) (Plan, error) {
	class := JavaClassName(source)
	file := class + ".java"
	if err := ws.WriteFile(file, source); err != nil {
		return Plan{}, err
	}

	return j.cmd.expand(strings.NewReplacer(
		varSource, ws.Path(file),
		varBinary, ws.Path(class+".class"),
		varDir, ws.Dir,
		varClass, class,
	)), nil
}

var javaPublicClass = regexp.MustCompile(`(?m)^\s*public\s+(?:final\s+|abstract\s+)*class\s+([A-Za-z_$][A-Za-z0-9_$]*)`)

// JavaClassName returns the first public top-level class declared in source, or Solution.
func JavaClassName(source string) string {
	if m := javaPublicClass.FindStringSubmatch(source); m != nil {
		return m[1]
	}
	return defaultJavaClass
}

type python struct {
	cmd template
}

func (python) Language() domain.Language { return domain.LanguagePython }

func (p python) Prepare(ws *Workspace, source string) (Plan, error) {
	if err := ws.WriteFile(pythonSource, source); err != nil {
		return Plan{}, err
	}

	return p.cmd.expand(strings.NewReplacer(
		varSource, ws.Path(pythonSource),
		varDir, ws.Dir,
	)), nil
}
