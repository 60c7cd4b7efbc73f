//go:build mage

// Package main contains Mage build targets for arxiv-zotero developer tooling.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binDir  = "bin"
	binName = "arxiv-zotero"
	cmdPkg  = "./cmd/arxiv-zotero"
)

// sampleConfig is written by Init when no config file exists.
const sampleConfig = `search:
  keywords: ["quantum computing"]
  categories: ["quant-ph"]
  max_results: 10
collect:
  download_pdfs: true
  concurrency: 3
summary:
  enabled: false
  backend: claude
`

// Init creates the secrets directory and a starter config file.
func Init() error {
	if err := os.MkdirAll(".secrets", 0o700); err != nil {
		return fmt.Errorf("creating .secrets: %w", err)
	}
	fmt.Println("   .secrets/ (add zotero-library-id and zotero-api-key)")
	if _, err := os.Stat("arxiv-zotero.yaml"); os.IsNotExist(err) {
		if err := os.WriteFile("arxiv-zotero.yaml", []byte(sampleConfig), 0o644); err != nil {
			return fmt.Errorf("writing arxiv-zotero.yaml: %w", err)
		}
		fmt.Println("   arxiv-zotero.yaml")
	}
	fmt.Println("Project initialized.")
	return nil
}

// Build compiles the CLI binary into bin/.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	out := filepath.Join(binDir, binName)
	version, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil {
		version = "dev"
	}
	ldflags := "-X main.version=" + version
	if err := sh.RunV("go", "build", "-ldflags", ldflags, "-o", out, cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s (%s)\n", out, version)
	return nil
}

// Test runs the unit tests.
func Test() error {
	return sh.RunV("go", "test", "./...")
}

// Vet runs go vet over every package.
func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Check runs vet and the tests.
func Check() {
	mg.SerialDeps(Vet, Test)
}

// Clean removes build output.
func Clean() error {
	return os.RemoveAll(binDir)
}

// Stats prints non-blank Go lines per package under cmd, internal, and pkg,
// split into production and test code.
func Stats() error {
	rows, err := goLineCounts("cmd", "internal", "pkg")
	if err != nil {
		return err
	}
	var prod, test int
	for _, r := range rows {
		fmt.Printf("%-32s %6d %6d\n", r.pkg, r.prod, r.test)
		prod += r.prod
		test += r.test
	}
	fmt.Printf("%-32s %6d %6d\n", "total", prod, test)
	return nil
}

type lineCount struct {
	pkg        string
	prod, test int
}

// goLineCounts returns per-directory line counts in walk order.
func goLineCounts(roots ...string) ([]lineCount, error) {
	index := map[string]int{}
	var rows []lineCount
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || filepath.Ext(path) != ".go" {
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			dir := filepath.ToSlash(filepath.Dir(path))
			i, ok := index[dir]
			if !ok {
				i = len(rows)
				index[dir] = i
				rows = append(rows, lineCount{pkg: dir})
			}
			n := nonBlankLines(string(data))
			if strings.HasSuffix(path, "_test.go") {
				rows[i].test += n
			} else {
				rows[i].prod += n
			}
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("counting lines under %s: %w", root, err)
		}
	}
	return rows, nil
}

func nonBlankLines(s string) int {
	n := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}
