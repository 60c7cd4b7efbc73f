//go:build mage

package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// binary returns the path Build writes to.
func binary() string {
	return filepath.Join(binDir, binName)
}

// Collect builds the CLI and runs collect with the project config file.
// Extra flags can be passed in ARXIV_ZOTERO_ARGS.
func Collect() error {
	mg.Deps(Build)
	return sh.RunV(binary(), append([]string{"collect"}, extraArgs()...)...)
}

// History builds the CLI and lists recent runs.
func History() error {
	mg.Deps(Build)
	return sh.RunV(binary(), "history")
}

func extraArgs() []string {
	return strings.Fields(os.Getenv("ARXIV_ZOTERO_ARGS"))
}
