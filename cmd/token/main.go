// Command token issues a bearer token for local testing against a running
// server that shares the same JWT_SECRET.
//
//	go run ./cmd/token -user 1 -role ADMIN
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/tbourn/ecoprenda-backend/internal/auth"
	"github.com/tbourn/ecoprenda-backend/internal/config"
	"github.com/tbourn/ecoprenda-backend/internal/domain"
)

func main() {
	userID := flag.Uint("user", 0, "user id (required)")
	role := flag.String("role", string(domain.RoleClient), "role claim: CLIENT, ADMIN, MODERATOR or FOUNDATION_REP")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: .env not loaded: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.Secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set")
		os.Exit(1)
	}

	r := domain.Role(strings.ToUpper(strings.TrimSpace(*role)))
	if *userID == 0 || !r.Valid() {
		flag.Usage()
		os.Exit(2)
	}

	tok, exp, err := auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TTL).Issue(uint(*userID), r)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok)
	fmt.Fprintf(os.Stderr, "expires %s\n", exp.Format("2006-01-02 15:04:05 MST"))
}
