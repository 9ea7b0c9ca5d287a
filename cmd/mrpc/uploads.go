package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"mrpc/internal/storage"
)

var (
	uploadsStatus string
	uploadsType   string
	uploadsAll    bool
)

var uploadsCmd = &cobra.Command{
	Use:   "uploads",
	Short: "List and manage uploads",
}

var uploadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the acting user's uploads",
	RunE:  runUploadsList,
}

var uploadsArchiveCmd = &cobra.Command{
	Use:   "archive <upload-id>",
	Short: "Archive an active upload",
	Args:  cobra.ExactArgs(1),
	RunE:  uploadTransition("archive"),
}

var uploadsRestoreCmd = &cobra.Command{
	Use:   "restore <upload-id>",
	Short: "Restore an archived upload to active",
	Args:  cobra.ExactArgs(1),
	RunE:  uploadTransition("restore"),
}

var uploadsDeleteCmd = &cobra.Command{
	Use:   "delete <upload-id>",
	Short: "Soft-delete an archived upload",
	Args:  cobra.ExactArgs(1),
	RunE:  uploadTransition("delete"),
}

var uploadsPurgeCmd = &cobra.Command{
	Use:   "purge <upload-id>",
	Short: "Permanently remove a deleted upload and its records (admin)",
	Args:  cobra.ExactArgs(1),
	RunE:  uploadTransition("purge"),
}

func init() {
	uploadsListCmd.Flags().StringVar(&uploadsStatus, "status", "", "Filter by status: active, archived, or deleted")
	uploadsListCmd.Flags().StringVar(&uploadsType, "type", "", "Filter by type: forum_data or transcription_data")
	uploadsListCmd.Flags().BoolVar(&uploadsAll, "all", false, "List every user's uploads (admin)")

	uploadsCmd.AddCommand(uploadsListCmd, uploadsArchiveCmd, uploadsRestoreCmd, uploadsDeleteCmd, uploadsPurgeCmd)
	rootCmd.AddCommand(uploadsCmd)
}

func runUploadsList(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.close()

	filter := storage.UploadFilter{Status: uploadsStatus, UploadType: uploadsType}
	if uploadsAll {
		if err := app.access.RequireAdmin(app.identity()); err != nil {
			return err
		}
	} else {
		if userFlag == 0 {
			fmt.Println("No uploads (no acting user; pass --user)")
			return nil
		}
		filter.UserID = userFlag
	}

	uploads, err := app.uploads.List(filter)
	if err != nil {
		return err
	}
	if len(uploads) == 0 {
		fmt.Println("No uploads")
		return nil
	}

	for _, u := range uploads {
		fmt.Printf("%4d  %-10s  %-18s  %6d records  user %d  %s\n",
			u.ID, u.Status, u.UploadType, u.RecordsCount, u.UploadedBy, u.Label)
	}
	return nil
}

func uploadTransition(verb string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}
		defer app.close()

		uploadID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid upload id %q", args[0])
		}

		identity := app.identity()
		switch verb {
		case "archive":
			err = app.lifecycle.Archive(identity, uploadID)
		case "restore":
			err = app.lifecycle.Restore(identity, uploadID)
		case "delete":
			err = app.lifecycle.SoftDelete(identity, uploadID)
		case "purge":
			err = app.lifecycle.Purge(identity, uploadID)
		}
		if err != nil {
			return err
		}

		fmt.Printf("Upload %d: %s complete\n", uploadID, verb)
		return nil
	}
}
