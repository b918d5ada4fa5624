// tokengen emite bearer tokens HS256 aceitos pelo gateway, para testes locais.
//
//	go run ./cmd/tokengen -sub u123 -role admin -ttl 1h
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"edge-gateway/middleware/auth"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()

	var (
		secret = flag.String("secret", os.Getenv("GATEWAY_AUTH__JWT_SECRET"), "HMAC secret (default: $GATEWAY_AUTH__JWT_SECRET)")
		sub    = flag.String("sub", "", "Subject (user id)")
		role   = flag.String("role", "", "Role claim (optional)")
		ttl    = flag.Duration("ttl", time.Hour, "Token lifetime")
	)
	flag.Parse()

	if *sub == "" {
		logrus.Fatal("-sub is required")
	}

	v, err := auth.NewVerifier([]byte(*secret))
	if err != nil {
		logrus.WithError(err).Fatal("invalid secret")
	}

	now := time.Now()
	tok, err := v.Sign(auth.Claims{Subject: *sub, Role: *role, ExpiresAt: now.Add(*ttl)}, now)
	if err != nil {
		logrus.WithError(err).Fatal("sign token")
	}
	fmt.Println(tok)
}
