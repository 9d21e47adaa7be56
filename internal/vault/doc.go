// Package vault reads the token signing secret from a HashiCorp Vault KV v2
// engine.
//
// SecretSource implements jwt.KeySource. The secret is cached for a short
// TTL so a Vault outage only affects token operations once the cached copy
// expires:
//
//	client, err := vault.New(vault.Config{
//	    Address: "https://vault.example.com:8200",
//	    Token:   os.Getenv("VAULT_TOKEN"),
//	}, logger)
//	src := vault.NewSecretSource(client, "secret", "langgate", "jwt_secret")
//	oracle, err := jwt.NewHMACOracle(src, jwt.Config{...})
package vault
