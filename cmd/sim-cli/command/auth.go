package command

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sdsim/cmd/sim-cli/authentication"
	"sdsim/cmd/sim-cli/command/client"
	"sdsim/internal/config"
	"sdsim/internal/microservices/http-api/service"
	"sdsim/internal/microservices/tcp"
)

// auth.go handles controller tokens: issuing, storing and forgetting them.

// authCmd represents the auth command for token related subcommands
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Controller token commands",
	Long:  `Issue controller tokens with the server secret and keep one in the OS keyring.`,
}

// issueCmd signs a token with JWT_SECRET from the environment or .env
var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a controller token with JWT_SECRET",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user-id")
		username, _ := cmd.Flags().GetString("username")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		store, _ := cmd.Flags().GetBool("store")

		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		if cfg.AuthSecret == "" {
			return fmt.Errorf("JWT_SECRET is not set")
		}

		tok, err := tcp.NewTCPAuthService(cfg.AuthSecret).IssueToken(userID, username, ttl)
		if err != nil {
			return fmt.Errorf("failed to issue token: %w", err)
		}
		if store {
			creds := &authentication.StoredCredentials{Token: tok, Username: username}
			if ttl > 0 {
				creds.ExpiresAt = time.Now().Add(ttl).Unix()
			}
			if err := authentication.StoreTokens(creds); err != nil {
				return fmt.Errorf("failed to store token: %w", err)
			}
			fmt.Println("✓ Token stored in keyring")
			return nil
		}
		fmt.Println(tok)
		return nil
	},
}

// loginCmd keeps a token handed out by an operator
var loginCmd = &cobra.Command{
	Use:   "login <token>",
	Short: "Store a controller token in the keyring",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username, _ := cmd.Flags().GetString("username")
		if err := authentication.StoreTokens(&authentication.StoredCredentials{Token: args[0], Username: username}); err != nil {
			return fmt.Errorf("failed to store token: %w", err)
		}
		fmt.Println("✓ Token stored in keyring")
		return nil
	},
}

// hashPasswordCmd prints a value for OPERATOR_PASSWORD_HASH
var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password <password>",
	Short: "Hash an operator password for the admin API login",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := service.HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	},
}

// operatorLoginCmd logs in at the admin API and keeps the token
var operatorLoginCmd = &cobra.Command{
	Use:   "operator-login",
	Short: "Log in at the admin API and store the token",
	RunE: func(cmd *cobra.Command, args []string) error {
		adminURL, _ := cmd.Flags().GetString("admin")
		username, _ := cmd.Flags().GetString("username")

		fmt.Print("password: ")
		password, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && password == "" {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = strings.TrimRight(password, "\r\n")

		auth, err := client.OperatorLogin(adminURL, username, password, timeout)
		if err != nil {
			return err
		}
		creds := &authentication.StoredCredentials{Token: auth.AccessToken, Username: auth.Username}
		if auth.ExpiresIn > 0 {
			creds.ExpiresAt = time.Now().Add(time.Duration(auth.ExpiresIn) * time.Second).Unix()
		}
		if err := authentication.StoreTokens(creds); err != nil {
			return fmt.Errorf("failed to store token: %w", err)
		}
		fmt.Printf("✓ Logged in as %s\n", auth.Username)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored controller token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := authentication.DeleteTokens(); err != nil {
			return err
		}
		fmt.Println("✓ Logged out")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored controller token",
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := authentication.GetTokens()
		if err != nil {
			return err
		}
		if creds == nil {
			fmt.Println("No token stored")
			return nil
		}
		fmt.Printf("Username: %s\n", creds.Username)
		if creds.ExpiresAt > 0 {
			exp := time.Unix(creds.ExpiresAt, 0)
			state := "valid"
			if time.Now().After(exp) {
				state = "expired"
			}
			fmt.Printf("Expires:  %s (%s)\n", exp.Format(time.RFC3339), state)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(issueCmd, loginCmd, operatorLoginCmd, hashPasswordCmd, logoutCmd, statusCmd)

	issueCmd.Flags().String("user-id", "controller", "user_id claim")
	issueCmd.Flags().String("username", "controller", "username claim")
	issueCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime, 0 for none")
	issueCmd.Flags().Bool("store", false, "store the token in the keyring instead of printing it")

	loginCmd.Flags().String("username", "", "name to show in auth status")

	operatorLoginCmd.Flags().String("admin", "http://localhost:8080", "admin API base URL")
	operatorLoginCmd.Flags().String("username", "operator", "operator username")
}
