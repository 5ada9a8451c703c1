package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/JonMunkholm/visitaudit/internal/config"
	"github.com/JonMunkholm/visitaudit/internal/core"
	"github.com/JonMunkholm/visitaudit/internal/logging"
	"github.com/JonMunkholm/visitaudit/internal/schema"
	"github.com/JonMunkholm/visitaudit/internal/tasks"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	_ = godotenv.Load() // .env is optional; existing env vars win
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var templatesDir string

var rootCmd = &cobra.Command{
	Use:           "auditctl",
	Short:         "Audit visit-record workbooks against task templates",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// loadConfig reads the environment configuration and points logging at
// stderr. The --templates flag overrides TEMPLATES_DIR.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if templatesDir != "" {
		cfg.Templates.Dir = templatesDir
	}
	return cfg, nil
}

// --- validate ---

var (
	validateTask           string
	validateSheet          string
	validateSecondary      string
	validateSecondaryTask  string
	validateSecondarySheet string
	validateJSON           bool
	validateNoImages       bool
)

var validateCmd = &cobra.Command{
	Use:   "validate [workbook.xlsx]",
	Short: "Validate a workbook and report every finding",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	registry, err := tasks.NewRegistry(cfg.Templates.Dir)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read workbook: %w", err)
	}
	req := core.ValidateRequest{
		Task:     validateTask,
		Sheet:    validateSheet,
		FileName: filepath.Base(args[0]),
		Data:     data,
	}
	if validateSecondary != "" {
		secondary, err := os.ReadFile(validateSecondary)
		if err != nil {
			return fmt.Errorf("read secondary workbook: %w", err)
		}
		req.Secondary = &core.SecondaryInput{Task: validateSecondaryTask, Sheet: validateSecondarySheet, Data: secondary}
	}

	svcCfg := cfg.Service()
	if validateNoImages {
		svcCfg.Images = false
	}
	service := core.NewService(registry, svcCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := service.Validate(ctx, req)
	if err != nil {
		msg := core.MapError(err)
		return fmt.Errorf("%s (%s): %w", msg.Message, msg.Code, err)
	}

	if validateJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		printResult(result)
	}

	if !result.IsValid {
		return fmt.Errorf("%s: %d finding(s)", args[0], result.Summary.ErrorCount)
	}
	return nil
}

func printResult(r *core.ValidationResult) {
	for _, e := range r.Errors {
		field := e.Field
		if field == "" {
			field = "-"
		}
		fmt.Printf("%s!%s%d\t%-20s\t%s\t%s\n", e.Sheet, e.Column, e.Row, e.Type(), field, e.Message)
	}

	status := "valid"
	switch {
	case r.Incomplete:
		status = "incomplete"
	case !r.IsValid:
		status = "invalid"
	}
	fmt.Printf("\n%s [%s]: %d rows, %d valid, %d errors\n",
		r.Task, status, r.Summary.TotalRows, r.Summary.ValidRows, r.Summary.ErrorCount)

	if img := r.ImageValidation; img != nil {
		if img.Warning != "" {
			fmt.Printf("images: %s\n", img.Warning)
			return
		}
		fmt.Printf("images: %d total, %d blurry, %d duplicate group(s)\n",
			img.TotalImages, img.BlurryImages, img.DuplicateGroups)
		for _, g := range img.Groups {
			fmt.Printf("  duplicates of %s: %v\n", g.Representative, g.Members[1:])
		}
	}
}

// --- tasks ---

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List the available task templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		registry, err := tasks.NewRegistry(cfg.Templates.Dir)
		if err != nil {
			return err
		}
		for _, t := range registry.All() {
			fmt.Printf("%s/%s\t%d fields\n", t.Group, t.Name, len(t.Fields))
			for _, f := range t.Fields {
				req := ""
				if f.Required {
					req = " (required)"
				}
				fmt.Printf("  %s [%s]%s\n", f.Header, f.Type, req)
			}
		}
		return nil
	},
}

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Task template schema operations",
}

var schemaExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the task template JSON Schema to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := schema.GenerateJSONSchema()
		if err != nil {
			return fmt.Errorf("generate schema: %w", err)
		}
		fmt.Println(string(data))
		return nil
	},
}

var schemaCheckCmd = &cobra.Command{
	Use:   "check [template.yaml|.toml|.json]",
	Short: "Validate a task template file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tf, errs := schema.ValidateFile(args[0])
		if len(errs) > 0 {
			fmt.Fprintf(os.Stderr, "Validation failed: %d error(s)\n\n", len(errs))
			for i, e := range errs {
				fmt.Fprintf(os.Stderr, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
				if e.Path != "" {
					fmt.Fprintf(os.Stderr, "     at: %s\n", e.Path)
				}
			}
			return fmt.Errorf("validation failed with %d error(s)", len(errs))
		}
		if _, err := tf.ToTemplate(); err != nil {
			return err
		}
		fmt.Printf("✓ %s is valid (%d fields)\n", tf.Name, len(tf.Fields))
		return nil
	},
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("auditctl %s (build: %s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&templatesDir, "templates", "", "Directory of task templates (overrides TEMPLATES_DIR)")

	validateCmd.Flags().StringVar(&validateTask, "task", "", "Task type of the workbook (required)")
	validateCmd.Flags().StringVar(&validateSheet, "sheet", "", "Sheet to validate (default: first sheet)")
	validateCmd.Flags().StringVar(&validateSecondary, "secondary", "", "Workbook of another task for cross-task checks")
	validateCmd.Flags().StringVar(&validateSecondaryTask, "secondary-task", "", "Task type of the secondary workbook")
	validateCmd.Flags().StringVar(&validateSecondarySheet, "secondary-sheet", "", "Sheet of the secondary workbook")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Output the result as JSON")
	validateCmd.Flags().BoolVar(&validateNoImages, "no-images", false, "Skip the image checks")
	validateCmd.MarkFlagRequired("task")

	schemaCmd.AddCommand(schemaExportCmd)
	schemaCmd.AddCommand(schemaCheckCmd)

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(versionCmd)
}
