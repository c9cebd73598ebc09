package main

import (
	"fmt"
	"strings"

	"github.com/tilsley/coverbot/pkg/mockgithub"
)

// demoRepos are small services with no tests yet, the shape of repository
// the missing-tests workflow is aimed at.
var demoRepos = map[string][]string{
	"acme/billing-api":  {"invoice", "ledger"},
	"acme/user-service": {"profile", "session"},
}

// seedRepos creates a main branch for each demo repository and returns how
// many were seeded.
func seedRepos(s *mockgithub.Server) int {
	for full, pkgs := range demoRepos {
		owner, name, _ := strings.Cut(full, "/")
		files := map[string]string{
			"README.md": fmt.Sprintf("# %s\n\nDemo service for the coverbot relay.\n", name),
			"go.mod":    fmt.Sprintf("module github.com/%s\n\ngo 1.25\n", full),
			"main.go":   mainFile(full, pkgs),
		}
		for _, p := range pkgs {
			files[fmt.Sprintf("internal/%s/%s.go", p, p)] = packageFile(p)
		}
		s.Seed(owner, name, "main", files)
	}
	return len(demoRepos)
}

func mainFile(module string, pkgs []string) string {
	var imports, calls strings.Builder
	for _, p := range pkgs {
		fmt.Fprintf(&imports, "\t%q\n", "github.com/"+module+"/internal/"+p)
		fmt.Fprintf(&calls, "\tfmt.Println(%s.Describe(3))\n", p)
	}
	return fmt.Sprintf("package main\n\nimport (\n\t\"fmt\"\n\n%s)\n\nfunc main() {\n%s}\n", imports.String(), calls.String())
}

func packageFile(pkg string) string {
	return fmt.Sprintf(`package %[1]s

import "strconv"

// Describe reports n %[1]s items.
func Describe(n int) string {
	if n <= 0 {
		return "no %[1]s items"
	}
	if n == 1 {
		return "1 %[1]s item"
	}
	return strconv.Itoa(n) + " %[1]s items"
}
`, pkg)
}
