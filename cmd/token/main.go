package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"paycore.org/internal/auth"
)

func main() {
	log.SetFlags(0)
	var (
		user  = flag.String("user", "", "Subject the token is issued to")
		roles = flag.String("roles", "operator", "Comma-separated role claims")
		ttl   = flag.Duration("ttl", time.Hour, "Token lifetime")
	)
	flag.Parse()

	if strings.TrimSpace(*user) == "" {
		log.Fatal("usage: token -user <subject> [-roles operator,viewer] [-ttl 1h]")
	}

	var roleList []string
	for _, role := range strings.Split(*roles, ",") {
		if role = strings.TrimSpace(role); role != "" {
			roleList = append(roleList, role)
		}
	}

	token, err := auth.GenerateToken(*user, roleList, *ttl)
	if err != nil {
		log.Fatalf("generate token: %v", err)
	}
	fmt.Println(token)
}
