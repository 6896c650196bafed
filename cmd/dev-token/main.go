// Command dev-token mints an identity token for local development, standing
// in for the external session service. It refuses to run with a prod env.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/angelmondragon/pullstream-backend/pkg/auth"
	"github.com/angelmondragon/pullstream-backend/pkg/config"
)

func main() {
	_ = godotenv.Load()

	identity := flag.String("identity", "", "caller identity to embed, e.g. a wallet address")
	flag.Parse()

	var app config.AppConfig
	if err := envconfig.Process(config.EnvPrefix, &app); err != nil {
		exitf("load app config: %v", err)
	}
	if app.IsProd() {
		exitf("dev-token is disabled when %s=prod", config.EnvAppEnv)
	}
	var jwtCfg config.JWTConfig
	if err := envconfig.Process(config.EnvPrefix, &jwtCfg); err != nil {
		exitf("load jwt config: %v", err)
	}

	token, err := auth.MintAccessToken(jwtCfg, time.Now().UTC(), *identity)
	if err != nil {
		exitf("mint token: %v", err)
	}
	fmt.Println(token)
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
