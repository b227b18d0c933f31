package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

const modulePath = "github.com/pschroen/multiuser-balls"

type packageInfo struct {
	ImportPath string
	Imports    []string
}

// layers lists, per package pattern, import prefixes that pattern must not use.
// Transport talks to the hub only; the hub is the sole owner of simulation state.
var layers = []struct {
	pattern   string
	forbidden []string
}{
	{pattern: "./internal/net/...", forbidden: []string{modulePath + "/internal/physics", modulePath + "/internal/sim", modulePath + "/internal/pointer"}},
	{pattern: "./internal/physics/...", forbidden: []string{modulePath}},
	{pattern: "./internal/session/...", forbidden: []string{modulePath + "/internal/net", modulePath + "/internal/sim"}},
}

func main() {
	var violations []string
	for _, layer := range layers {
		pkgs, err := listPackages(layer.pattern)
		if err != nil {
			fmt.Fprintf(os.Stderr, "depscheck: %v\n", err)
			os.Exit(1)
		}
		for _, pkg := range pkgs {
			for _, imp := range pkg.Imports {
				for _, prefix := range layer.forbidden {
					if imp == prefix || strings.HasPrefix(imp, prefix+"/") {
						violations = append(violations, fmt.Sprintf("%s -> %s", pkg.ImportPath, imp))
					}
				}
			}
		}
	}

	if len(violations) > 0 {
		sort.Strings(violations)
		fmt.Fprintln(os.Stderr, "depscheck: found forbidden imports:")
		for _, violation := range violations {
			fmt.Fprintf(os.Stderr, "  %s\n", violation)
		}
		os.Exit(1)
	}
}

func listPackages(pattern string) ([]packageInfo, error) {
	cmd := exec.Command("go", "list", "-json", pattern)
	cmd.Env = os.Environ()
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Stderr.Write(exitErr.Stderr)
		}
		return nil, fmt.Errorf("failed to list %s: %w", pattern, err)
	}

	var pkgs []packageInfo
	decoder := json.NewDecoder(bytes.NewReader(output))
	for {
		var pkg packageInfo
		if err := decoder.Decode(&pkg); err != nil {
			if errors.Is(err, io.EOF) {
				return pkgs, nil
			}
			return nil, fmt.Errorf("failed to decode package info: %w", err)
		}
		pkgs = append(pkgs, pkg)
	}
}
