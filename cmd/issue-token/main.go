package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/garyjia/expense-approval/internal/config"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	httpapi "github.com/garyjia/expense-approval/internal/interfaces/http"
)

// Prints a bearer token for local testing, signed with the configured secret.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	userID := flag.String("user", "", "User ID (token subject)")
	role := flag.String("role", string(entity.RoleEmployee), "employee, manager or admin")
	company := flag.String("company", "", "Company ID")
	ttl := flag.Duration("ttl", 12*time.Hour, "Token lifetime")
	flag.Parse()

	actor := entity.Actor{ID: *userID, Role: entity.Role(*role), CompanyID: *company}
	if actor.ID == "" || actor.CompanyID == "" || !actor.Role.IsValid() {
		fmt.Fprintln(os.Stderr, "Usage: issue-token --user <id> --company <id> [--role employee|manager|admin] [--ttl 12h]")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	token, err := httpapi.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer).Issue(actor, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
