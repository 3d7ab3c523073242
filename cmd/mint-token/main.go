// Package main provides a small utility that mints HS256 session tokens for
// local development and testing against the coordinator.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func main() {
	secret := flag.String("secret", "", "HMAC signing secret (required)")
	subject := flag.String("sub", "", "subject claim, the stable user id (required)")
	username := flag.String("username", "", "username claim, shown to other members")
	issuer := flag.String("issuer", "", "issuer claim; omit to leave unset")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	if *secret == "" || *subject == "" {
		log.Fatal("both -secret and -sub are required")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": *subject,
		"iat": now.Unix(),
		"exp": now.Add(*ttl).Unix(),
	}
	if *username != "" {
		claims["username"] = *username
	}
	if *issuer != "" {
		claims["iss"] = *issuer
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(*secret))
	if err != nil {
		log.Fatalf("signing token: %v", err)
	}
	fmt.Println(signed)
}
