// Command prose is a minimal smoke CLI, out of core scope per
// SPEC_FULL.md's CLI/example-programs note: it loads a YAML config,
// seeds each collection from a JSON array file, and runs one query
// against it. It exists to exercise the engine end-to-end, not as a
// real adapter surface.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/prose-ql/prose"
	"github.com/prose-ql/prose/internal/config"
	"github.com/prose-ql/prose/internal/entity"
	"github.com/prose-ql/prose/internal/query"
)

var (
	configPath string
	seedDir    string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "prose",
	Short: "prose is a smoke CLI for an embedded ProseQL database",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML collection config")
	rootCmd.PersistentFlags().StringVar(&seedDir, "seed-dir", "", "directory of <collection>.json seed files")
	rootCmd.MarkPersistentFlagRequired("config")
	rootCmd.AddCommand(queryCmd)
}

var queryCmd = &cobra.Command{
	Use:   "query <collection> <where-json>",
	Short: "run a where-clause query against a collection and print the matches",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}

		var raw map[string]any
		if err := json.Unmarshal([]byte(args[1]), &raw); err != nil {
			return fmt.Errorf("parse where clause: %w", err)
		}

		cur, err := db.Query(args[0], prose.QueryOptions{Where: query.Normalize(raw)})
		if err != nil {
			return err
		}
		for _, e := range cur.Collect() {
			out, _ := json.Marshal(e)
			fmt.Println(string(out))
		}
		return nil
	},
}

func openDatabase() (*prose.Database, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	seeds := make(map[string]prose.CollectionSeed, len(cfg))
	for name := range cfg {
		seed := prose.CollectionSeed{}
		if seedDir != "" {
			entities, err := loadSeedFile(seedDir, name)
			if err != nil {
				return nil, err
			}
			seed.Entities = entities
		}
		seeds[name] = seed
	}

	return prose.NewDatabase(cfg, seeds)
}

func loadSeedFile(dir, collection string) ([]entity.Entity, error) {
	path := dir + "/" + collection + ".json"
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read seed file %s: %w", path, err)
	}
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	out := make([]entity.Entity, len(raw))
	for i, m := range raw {
		out[i] = entity.Entity(m)
	}
	return out, nil
}
