// Command devtoken prints an access token for local development against a
// server that shares its JWT_SECRET.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/ticketing-core/internal/utils"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}
	user := flag.String("user", "dev-user", "subject claim")
	tenant := flag.String("tenant", "demo", "tenant_id claim")
	role := flag.String("role", "CUSTOMER", "role claim (CUSTOMER or OPERATOR)")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	tok, err := utils.NewAccessToken(os.Getenv("JWT_SECRET"), *user, *tenant, *role, *ttl)
	if err != nil {
		log.Fatalf("devtoken: %v", err)
	}
	fmt.Println(tok.Token)
}
