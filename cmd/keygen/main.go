package main

import (
	"fmt"
	"os"

	"github.com/arnavshah/turni-api-go/pkg/auth"
	"github.com/arnavshah/turni-api-go/pkg/config"
)

func main() {
	cfg := config.Load()

	if len(os.Args) < 2 {
		fmt.Println("Usage: keygen <tenantCode> [keyID]")
		os.Exit(1)
	}

	if cfg.APIMasterSecret == "" {
		fmt.Println("Error: API_MASTER_SECRET not found in .env")
		os.Exit(1)
	}

	tenantCode := os.Args[1]
	var apiKey string
	if len(os.Args) > 2 {
		apiKey = auth.SignKey([]byte(cfg.APIMasterSecret), tenantCode, os.Args[2])
	} else {
		a, err := auth.New(cfg)
		if err != nil {
			fmt.Println("Error:", err)
			os.Exit(1)
		}
		apiKey = a.GenerateHMACKey(tenantCode)
	}
	fmt.Printf("Generated Key for %s:\n%s\n", tenantCode, apiKey)
}
