// Package config loads typed configuration from environment variables.
//
// Structs are described with github.com/caarlos0/env/v11 field tags. Before
// the first load the package reads a dotenv file with github.com/joho/godotenv
// (ENV_FILE, or .env in the working directory); variables already set in the
// process environment win over the file.
//
// Each configuration type is parsed once and cached, so components can call
// Load for their own config struct without coordinating:
//
//	var cfg subscription.StripeConfig
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
package config
