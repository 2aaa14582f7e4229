package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/openrescue/roadsync/internal/model"
	"github.com/openrescue/roadsync/internal/ui"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store a session",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		if email == "" || password == "" {
			if err := promptCredentials(&email, &password); err != nil {
				return err
			}
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		actor, err := a.auth.SignIn(cmd.Context(), email, password)
		if err != nil {
			return err
		}
		fmt.Println(ui.RenderPass("Signed in as " + actor.Email))
		if actor.Role == model.RoleMechanic && !actor.Approved() {
			fmt.Println(ui.RenderWarn("Your mechanic account is awaiting approval; you can browse requests but not work them yet."))
		}
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create a mechanic account",
	Long: `Create a mechanic account and sign in.

New mechanic accounts start in pending approval. An admin approves the
account before it can claim or work requests.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		name, _ := cmd.Flags().GetString("name")
		serviceArea, _ := cmd.Flags().GetString("service-area")
		if email == "" || password == "" {
			if err := promptRegistration(&email, &password, &name, &serviceArea); err != nil {
				return err
			}
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		actor, err := a.auth.SignUp(cmd.Context(), email, password, name, serviceArea)
		if err != nil {
			return err
		}
		fmt.Println(ui.RenderPass("Account created for " + actor.Email))
		fmt.Println(ui.RenderWarn("Approval pending: an admin must approve your account before you can claim requests."))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Discard the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.auth.SignOut(); err != nil {
			return err
		}
		fmt.Println(ui.RenderPass("Signed out"))
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		actor, err := a.auth.CurrentActor(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%s %s\n", ui.RenderHeader("Email:"), actor.Email)
		fmt.Printf("%s %s\n", ui.RenderHeader("Role:"), actor.Role)
		if actor.Role == model.RoleMechanic {
			fmt.Printf("%s %s\n", ui.RenderHeader("Approval:"), actor.Approval)
			if actor.ServiceArea != "" {
				fmt.Printf("%s %s\n", ui.RenderHeader("Service area:"), actor.ServiceArea)
			}
		}
		return nil
	},
}

// promptCredentials collects email and password, interactively when a
// terminal is available.
func promptCredentials(email, password *string) error {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		form := huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("Email").Value(email),
			huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(password),
		))
		return form.Run()
	}
	return readLineCredentials(email, password)
}

// promptRegistration collects the full signup form.
func promptRegistration(email, password, name, serviceArea *string) error {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		form := huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("Email").Value(email),
			huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(password),
			huh.NewInput().Title("Display name").Value(name),
			huh.NewInput().Title("Service area").Value(serviceArea),
		))
		return form.Run()
	}
	return readLineCredentials(email, password)
}

// readLineCredentials is the piped-stdin fallback: email on one line,
// password on the next.
func readLineCredentials(email, password *string) error {
	reader := bufio.NewReader(os.Stdin)
	if *email == "" {
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read email: %w", err)
		}
		*email = strings.TrimSpace(line)
	}
	if *password == "" {
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		*password = strings.TrimSpace(line)
	}
	return nil
}

func init() {
	loginCmd.Flags().String("email", "", "account email")
	loginCmd.Flags().String("password", "", "account password")

	registerCmd.Flags().String("email", "", "account email")
	registerCmd.Flags().String("password", "", "account password")
	registerCmd.Flags().String("name", "", "display name")
	registerCmd.Flags().String("service-area", "", "service area")

	rootCmd.AddCommand(loginCmd, registerCmd, logoutCmd, whoamiCmd)
}
