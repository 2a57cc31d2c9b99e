// Command token issues a payroll API access token signed with JWT_SECRET_KEY.
//
//	go run ./cmd/token -user ops@example.com -role payroll_admin
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/cmlabs-hris/payroll-engine/internal/config"
	"github.com/cmlabs-hris/payroll-engine/internal/pkg/jwt"
)

func main() {
	userID := flag.String("user", "", "subject recorded in the token")
	role := flag.String("role", string(jwt.RolePayrollViewer), "payroll_admin or payroll_viewer")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "-user is required")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error loading config:", err)
		os.Exit(1)
	}

	token, expiresAt, err := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpiration).GenerateAccessToken(*userID, jwt.Role(*role))
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error issuing token:", err)
		os.Exit(1)
	}

	fmt.Println(token)
	fmt.Fprintln(os.Stderr, "expires at", time.Unix(expiresAt, 0).UTC().Format(time.RFC3339))
}
