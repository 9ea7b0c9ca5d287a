package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	ingestName    string
	ingestComment string
	ingestType    string
	ingestPreview bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.csv[.gz]>",
	Short: "Ingest a CSV file of forum posts or session transcriptions",
	Long: `Parses a CSV (or gzip-compressed CSV) file, detects whether it holds forum
or transcription data, validates it, skips rows already stored by the acting
user, and commits the remainder as a new upload.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestName, "name", "n", "", "Human-readable upload name (defaults to the filename)")
	ingestCmd.Flags().StringVarP(&ingestComment, "comment", "c", "", "Comment stored with the upload")
	ingestCmd.Flags().StringVarP(&ingestType, "type", "t", "",
		"Declared data type: forum_data or transcription_data (auto-detected when omitted)")
	ingestCmd.Flags().BoolVar(&ingestPreview, "preview", false, "Validate and show the first rows without storing anything")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.close()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	if ingestPreview {
		preview, err := app.pipeline.PreviewFile(data, app.cfg.Ingest.PreviewRows)
		if err != nil {
			return err
		}
		fmt.Printf("Type:    %s\n", preview.UploadType)
		fmt.Printf("Rows:    %d\n", preview.TotalRows)
		fmt.Printf("Columns: %v\n", preview.Columns)
		if preview.Valid {
			fmt.Println("Validation: OK")
		} else {
			fmt.Println("Validation problems:")
			for _, p := range preview.Errors {
				fmt.Printf("  - %s\n", p)
			}
		}
		return nil
	}

	name := ingestName
	if name == "" {
		name = filepath.Base(args[0])
	}

	result, err := app.pipeline.Ingest(
		app.identity(), data, filepath.Base(args[0]), name, ingestComment, ingestType)
	if err != nil {
		return err
	}

	if !result.Success {
		fmt.Println("Upload rejected:")
		for _, p := range result.Errors {
			fmt.Printf("  - %s\n", p)
		}
		os.Exit(1)
	}

	fmt.Printf("Upload %d committed (%s): %s\n", result.UploadID, result.UploadType, result.Message)
	return nil
}
