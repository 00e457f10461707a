// Command admintoken prints a bearer token for the detection history API.
package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"ai-image-detector/internal/config"
	"ai-image-detector/internal/pkg/jwtutil"
)

func main() {
	subject := flag.String("subject", "operator", "token subject")
	role := flag.String("role", "admin", "token role")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to auth.jwt_expire_minute)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load config failed: %v", err)
	}

	lifetime := *ttl
	if lifetime <= 0 {
		lifetime = time.Duration(cfg.Auth.JWTExpireMinute) * time.Minute
	}

	token, err := jwtutil.GenerateToken(cfg.Auth.JWTSecret, *subject, *role, lifetime)
	if err != nil {
		logrus.Fatalf("generate token failed: %v", err)
	}
	fmt.Println(token)
}
