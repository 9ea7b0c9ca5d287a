package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mrpc/internal/access"
	"mrpc/internal/aggregate"
)

var (
	postsAll    bool
	postsStatus string
	postsForum  string
	postsTopic  string
)

var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "List and aggregate visible posts",
}

var postsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List posts visible to the acting user",
	RunE:  runPostsList,
}

var postsRollupCmd = &cobra.Command{
	Use:   "rollup",
	Short: "Aggregate visible posts into one row per title",
	RunE:  runPostsRollup,
}

func init() {
	for _, c := range []*cobra.Command{postsListCmd, postsRollupCmd} {
		c.Flags().BoolVar(&postsAll, "all", false, "Include every user's posts (admin)")
		c.Flags().StringVar(&postsStatus, "status", "", "Upload status to read (default active)")
	}
	postsRollupCmd.Flags().StringVar(&postsForum, "forum", "", "Restrict to one forum")
	postsRollupCmd.Flags().StringVar(&postsTopic, "topic", "", "Restrict to one cluster topic")

	postsCmd.AddCommand(postsListCmd, postsRollupCmd)
	rootCmd.AddCommand(postsCmd)
}

func runPostsList(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.close()

	docs, err := app.access.ListDocuments(app.identity(), access.ListOptions{
		AllUsers: postsAll,
		Status:   postsStatus,
	})
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Println("No posts")
		return nil
	}

	for _, d := range docs {
		title := ""
		if d.OriginalTitle != nil {
			title = *d.OriginalTitle
		}
		fmt.Printf("%-36s  %-20s  %s\n", d.ID, d.Forum, title)
	}
	return nil
}

func runPostsRollup(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.close()

	rows, err := app.aggregate.ForListing(app.identity(), postsAll, postsStatus,
		aggregate.Filters{Forum: postsForum, Topic: postsTopic})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("No posts")
		return nil
	}

	for _, r := range rows {
		questions := len(splitNonEmpty(r.AllQuestions))
		categories := len(splitNonEmpty(r.AllCategories))
		fmt.Printf("%-60s  %3d questions  %3d categories\n", r.OriginalTitle, questions, categories)
	}
	return nil
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
