// Command tokengen issues a bearer token for a user, for local testing
// against a running market service.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"market-service/config"
	"market-service/internal/auth"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg := config.Load()

	var (
		userID string
		secret string
		ttl    time.Duration
	)

	flagSet := pflag.NewFlagSet("tokengen", pflag.ContinueOnError)
	flagSet.StringVarP(&userID, "user", "u", "", "user id to put in the token subject")
	flagSet.StringVar(&secret, "secret", cfg.Auth.JWTSecret, "signing secret (default: JWT_SECRET)")
	flagSet.DurationVar(&ttl, "ttl", cfg.Auth.TokenTTL, "token lifetime")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if userID == "" {
		return fmt.Errorf("--user is required")
	}

	token, expiresAt, err := auth.NewTokens([]byte(secret), ttl, cfg.Auth.Leeway).Issue(userID)
	if err != nil {
		return err
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expiresAt.Format(time.RFC3339))
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Issue a bearer token for the market service API.

Usage:
  tokengen --user <id> [--ttl 24h] [--secret <key>]

Flags:
%s`, flagSet.FlagUsages())
}
