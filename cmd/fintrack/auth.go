package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/steveyegge/fintrack/internal/remote"
	"github.com/steveyegge/fintrack/internal/session"
	"github.com/steveyegge/fintrack/internal/ui"
)

var loginCmd = &cobra.Command{
	Use:     "login",
	GroupID: "account",
	Short:   "Log in to the fintrack server",
	Long: `Log in and store the session token in the data directory.

On a terminal you are prompted for anything not given as a flag. Records
created while logged out stay pending and are uploaded by the next sync.`,
	Run: func(cmd *cobra.Command, args []string) {
		authenticate(cmd, "login")
	},
}

var registerCmd = &cobra.Command{
	Use:     "register",
	GroupID: "account",
	Short:   "Create an account on the fintrack server and log in",
	Run: func(cmd *cobra.Command, args []string) {
		authenticate(cmd, "register")
	},
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	GroupID: "account",
	Short:   "Forget the stored session",
	Long: `Forget the stored session. Local records are kept; use 'fintrack clear'
to remove them.`,
	Run: func(cmd *cobra.Command, args []string) {
		sess := session.NewFileStore(cfg.SessionPath())
		st, err := sess.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
		if err := sess.Clear(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if st.UserID == 0 {
			fmt.Println("Not logged in")
			return
		}
		fmt.Printf("%s Logged out %s\n", ui.RenderPass("✓"), st.Email)
	},
}

func authenticate(cmd *cobra.Command, mode string) {
	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")
	if password == "" {
		password = os.Getenv("FINTRACK_PASSWORD")
	}

	if email == "" || password == "" {
		if !ui.IsInteractive() {
			fmt.Fprintf(os.Stderr, "Error: --email and --password (or FINTRACK_PASSWORD) are required when not attached to a terminal\n")
			os.Exit(1)
		}
		if err := promptCredentials(mode, &email, &password); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				os.Exit(1)
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	email = strings.TrimSpace(email)

	client := remote.New(&remote.Config{
		BaseURL:   cfg.APIURL,
		Timeout:   cfg.Timeout,
		UserAgent: "fintrack-cli/" + Version,
	}, nil)

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*cfg.Timeout)
	defer cancel()

	var (
		res *remote.AuthResult
		err error
	)
	if mode == "register" {
		res, err = client.Register(ctx, email, password)
	} else {
		res, err = client.Login(ctx, email, password)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s failed: %s\n", mode, authErrorMessage(err))
		os.Exit(1)
	}

	sess := session.NewFileStore(cfg.SessionPath())
	if err := sess.Save(session.State{
		UserID:     res.UserID,
		Email:      email,
		Token:      res.Token,
		LoggedInAt: time.Now().UTC(),
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s Logged in as %s (user %d)\n", ui.RenderPass("✓"), email, res.UserID)
	fmt.Println("Run 'fintrack sync' to upload records created while logged out.")
}

func promptCredentials(mode string, email, password *string) error {
	title := "Log in to fintrack"
	if mode == "register" {
		title = "Create a fintrack account"
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Value(email).
				Validate(func(s string) error {
					if !strings.Contains(s, "@") {
						return errors.New("enter an email address")
					}
					return nil
				}),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(password).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("password is required")
					}
					return nil
				}),
		).Title(title),
	)
	return form.Run()
}

func authErrorMessage(err error) string {
	var rerr *remote.Error
	if errors.As(err, &rerr) && rerr.Message != "" {
		return rerr.Message
	}
	if errors.Is(err, remote.ErrNetwork) {
		return "server unreachable"
	}
	return err.Error()
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().String("email", "", "Account email")
		c.Flags().String("password", "", "Account password (prefer the prompt or FINTRACK_PASSWORD)")
	}

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(logoutCmd)
}
