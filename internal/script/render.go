// Package script renders load-generator scripts from a closed set of
// bundled templates to a temporary file, the sole input the Scenario
// executor (internal/scenario) hands to the load-generator binary.
package script

import (
	"embed"
	"fmt"
	"os"
	"text/template"
)

//go:embed templates/*.js.tmpl
var templateFS embed.FS

var templates *template.Template

func init() {
	var err error
	templates, err = template.New("").ParseFS(templateFS, "templates/*.js.tmpl")
	if err != nil {
		panic(fmt.Sprintf("parse script templates: %v", err))
	}
}

// Vars is the closed set of variables the constant_arrival_rate template
// accepts. MaxNewTokens is optional: zero omits the parameter from the
// rendered payload.
type Vars struct {
	Host            string
	DataFile        string
	PreAllocatedVUs int
	Rate            int
	Duration        string
	MaxNewTokens    int
}

// Render renders the named template (currently only "constant_arrival_rate"
// is registered) with vars and writes the result to a new temporary file,
// returning its path.
func Render(name string, vars Vars) (string, error) {
	tmplFile := name + ".js.tmpl"
	if templates.Lookup(tmplFile) == nil {
		return "", fmt.Errorf("unknown script template %q", name)
	}

	f, err := os.CreateTemp("", "loadbench_*_"+name+".js")
	if err != nil {
		return "", fmt.Errorf("create temp script file: %w", err)
	}
	defer f.Close()

	if err := templates.ExecuteTemplate(f, tmplFile, vars); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("render template %s: %w", name, err)
	}
	return f.Name(), nil
}
