package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	userFirstName string
	userLastName  string
	userEmail     string
	userPassword  string
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List and manage user accounts",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all user accounts",
	RunE:  runUsersList,
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user account",
	RunE:  runUsersCreate,
}

func init() {
	usersCreateCmd.Flags().StringVar(&userFirstName, "first", "", "First name")
	usersCreateCmd.Flags().StringVar(&userLastName, "last", "", "Last name")
	usersCreateCmd.Flags().StringVar(&userEmail, "email", "", "Email address (unique)")
	usersCreateCmd.Flags().StringVar(&userPassword, "password", "", "Password")
	_ = usersCreateCmd.MarkFlagRequired("email")
	_ = usersCreateCmd.MarkFlagRequired("password")

	usersCmd.AddCommand(usersListCmd, usersCreateCmd)
	rootCmd.AddCommand(usersCmd)
}

func runUsersList(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.close()

	users, err := app.users.List()
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Println("No users")
		return nil
	}

	for _, u := range users {
		state := "active"
		if !u.IsActive {
			state = "inactive"
		}
		fmt.Printf("%4d  %-30s  %-8s  %s\n", u.ID, u.Email, state, u.DisplayName())
	}
	return nil
}

func runUsersCreate(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.close()

	id, err := app.users.Create(userFirstName, userLastName, userEmail, userPassword)
	if err != nil {
		return err
	}

	fmt.Printf("Created user %d (%s)\n", id, userEmail)
	return nil
}
