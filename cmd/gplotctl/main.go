package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/gplot-io/gplot/pkg/auth"
	"github.com/gplot-io/gplot/pkg/settings"
)

// gplotctl manages API tokens from the command line. It shares the token
// store file with the running server, so changes are picked up without a
// restart.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not loaded: %v", err)
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	cfg, err := settings.FromEnv()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	store, err := auth.NewFileTokenStore(cfg.Auth.TokenStorePath, logger)
	if err != nil {
		log.Fatalf("failed to open token store: %v", err)
	}
	svc, err := auth.NewService(cfg.Auth.JWTSecret, store, logger)
	if err != nil {
		log.Fatalf("failed to initialise auth service: %v", err)
	}

	switch cmd {
	case "create":
		createToken(svc, args)
	case "revoke":
		revokeToken(svc, args)
	case "list":
		listTokens(store)
	default:
		usage()
		os.Exit(2)
	}
}

func createToken(svc *auth.Service, args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	group := fs.String("group", "", "group the token grants access to")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	fingerprint := fs.String("fingerprint", "", "optional device fingerprint binding")
	_ = fs.Parse(args)

	if *group == "" {
		log.Fatal("create: -group is required")
	}
	token, err := svc.CreateToken(*group, *ttl, *fingerprint)
	if err != nil {
		log.Fatalf("create failed: %v", err)
	}
	fmt.Println(token)
}

func revokeToken(svc *auth.Service, args []string) {
	fs := flag.NewFlagSet("revoke", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		log.Fatal("revoke: expected exactly one token argument")
	}
	if err := svc.RevokeToken(fs.Arg(0)); err != nil {
		log.Fatalf("revoke failed: %v", err)
	}
	fmt.Println("revoked")
}

func listTokens(store auth.TokenStore) {
	records, err := store.List()
	if err != nil {
		log.Fatalf("list failed: %v", err)
	}
	for id, rec := range records {
		state := "active"
		if rec.Revoked {
			state = "revoked"
		} else if rec.ExpiresAt.Before(time.Now()) {
			state = "expired"
		}
		fmt.Printf("%s\tgroup=%s\texpires=%s\t%s\n", id[:16], rec.Group, rec.ExpiresAt.Format(time.RFC3339), state)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: gplotctl <command> [flags]

commands:
  create -group <name> [-ttl 24h] [-fingerprint <hex>]   mint a token
  revoke <token>                                         revoke a token
  list                                                   list token records`)
}
