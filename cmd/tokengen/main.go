// Command tokengen mints a bearer token for the ledger API using the same
// configuration as the server.
package main

import (
	"flag"
	"fmt"
	"os"

	"finguard-ledger/config"
	"finguard-ledger/internal/core/ports"
	"finguard-ledger/internal/service"
	"finguard-ledger/pkg/clock"
)

func main() {
	user := flag.String("user", "", "subject user id")
	role := flag.String("role", ports.RoleUser, "token role (user or admin)")
	flag.Parse()

	if *user == "" || (*role != ports.RoleUser && *role != ports.RoleAdmin) {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(os.Getenv("FGL_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.JWT.Secret == "" {
		fmt.Fprintln(os.Stderr, "jwt.secret must be set")
		os.Exit(1)
	}

	tokens := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer, clock.Real{})
	token, expires, err := tokens.Generate(*user, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s\n# expires %s\n", token, expires.UTC().Format("2006-01-02T15:04:05Z"))
}
