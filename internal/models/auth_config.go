package models

// AuthConfig configures caller identification. Signature verification proper
// is an external concern; the service only needs the already-authenticated
// party address carried in the token's subject claim.
type AuthConfig struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	JWTSecret string   `json:"jwt_secret,omitzero" yaml:"jwt_secret"`
	Issuer    string   `json:"issuer,omitzero" yaml:"issuer"`
	SkipPaths []string `json:"skip_paths,omitempty" yaml:"skip_paths,omitempty"`
}
