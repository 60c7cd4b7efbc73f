// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the arxiv-zotero CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the arxiv-zotero CLI.
var rootCmd = &cobra.Command{
	Use:   "arxiv-zotero",
	Short: "Collect arXiv papers into a Zotero library",
	Long: `arxiv-zotero searches arXiv with structured filters and files every
matching paper into a Zotero library as a metadata item, optionally with
the PDF attached and an AI-generated summary note.

Papers already in the library (matched by DOI or arXiv ID) are skipped,
so repeated runs are safe. Each run is recorded in a local SQLite ledger
that the history command reads back.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./arxiv-zotero.yaml or ~/.config/arxiv-zotero/arxiv-zotero.yaml)")
	pf.String("env-file", ".env", "dotenv file with ZOTERO_* and summarizer keys")
	pf.String("secrets-dir", ".secrets/", "directory of key files (one secret per file)")
	pf.String("log-file", "", "append progress output to this file (default arxiv_zotero.log)")
	pf.String("ledger", "", "SQLite run ledger (default arxiv-zotero.db)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("arxiv-zotero")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "arxiv-zotero"))
		}
	}

	viper.SetEnvPrefix("ARXIV_ZOTERO")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
