// cmd/weft/commands/root.go
package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"weft/pkg/document"
	"weft/pkg/sqlexport"
	"weft/pkg/types"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:           "weft",
	Short:         "Inspect, convert and sync weft documents",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(exportCmd, importCmd, inspectCmd, changesCmd, sqliteCmd, syncCmd)
}

func logger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

var exportCmd = &cobra.Command{
	Use:   "export <doc>",
	Short: "Print a document's current value as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := document.LoadFile(args[0])
		if err != nil {
			return err
		}
		value, err := doc.ToJSON(types.RootObj, nil)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <json> <doc>",
	Short: "Build a fresh document from a JSON file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return err
		}
		doc := document.New()
		if err := hydrate(doc, types.RootObj, value); err != nil {
			return err
		}
		return doc.SaveFile(args[1])
	},
}

// hydrate fills obj from a decoded JSON value.
func hydrate(doc *document.Document, obj types.ObjID, value any) error {
	m, ok := value.(map[string]any)
	if !ok {
		return fmt.Errorf("document root must be a JSON object")
	}
	for key, v := range m {
		if err := hydrateKey(doc, obj, key, v); err != nil {
			return err
		}
	}
	return nil
}

func hydrateKey(doc *document.Document, obj types.ObjID, key string, value any) error {
	switch v := value.(type) {
	case map[string]any:
		child, err := doc.PutObject(obj, key, types.ObjMap)
		if err != nil {
			return err
		}
		for k, inner := range v {
			if err := hydrateKey(doc, child, k, inner); err != nil {
				return err
			}
		}
		return nil
	case []any:
		child, err := doc.PutObject(obj, key, types.ObjList)
		if err != nil {
			return err
		}
		for i, inner := range v {
			if err := hydrateIndex(doc, child, i, inner); err != nil {
				return err
			}
		}
		return nil
	default:
		_, err := doc.Put(obj, key, jsonScalar(value))
		return err
	}
}

func hydrateIndex(doc *document.Document, obj types.ObjID, index int, value any) error {
	switch v := value.(type) {
	case map[string]any:
		child, err := doc.InsertObject(obj, index, types.ObjMap)
		if err != nil {
			return err
		}
		for k, inner := range v {
			if err := hydrateKey(doc, child, k, inner); err != nil {
				return err
			}
		}
		return nil
	case []any:
		child, err := doc.InsertObject(obj, index, types.ObjList)
		if err != nil {
			return err
		}
		for i, inner := range v {
			if err := hydrateIndex(doc, child, i, inner); err != nil {
				return err
			}
		}
		return nil
	default:
		_, err := doc.Insert(obj, index, jsonScalar(value))
		return err
	}
}

func jsonScalar(value any) types.ScalarValue {
	switch v := value.(type) {
	case nil:
		return types.Null()
	case bool:
		return types.Bool(v)
	case float64:
		if v == float64(int64(v)) {
			return types.Int(int64(v))
		}
		return types.F64(v)
	case string:
		return types.Str(v)
	default:
		return types.Null()
	}
}

var sqliteCmd = &cobra.Command{
	Use:   "sqlite <doc> <db>",
	Short: "Export a document into a SQLite database",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := document.LoadFile(args[0])
		if err != nil {
			return err
		}
		return sqlexport.Export(doc, args[1])
	},
}
