package config

// Config holds all koneko configuration.
type Config struct {
	Network           string   `json:"network"`
	ChainID           int64    `json:"chain_id"`
	RPCs              []string `json:"rpcs,omitempty"`            // overrides the registry RPCs when set
	RPCAlgorithm      string   `json:"rpc_algorithm"`             // "fastest" | "round-robin" | "failover"
	TokenAddress      string   `json:"token_address"`             // ERC-721 token
	ControllerAddress string   `json:"controller_address"`        // mint controller
	CatalogSource     string   `json:"catalog_source"`            // file path or http(s) URL
	ManifestSource    string   `json:"manifest_source,omitempty"` // deployments.json path or URL
	DefaultWallet     string   `json:"default_wallet"`
	RequireSignature  bool     `json:"require_signature"` // sign a login message on connect
	MintLimit         int      `json:"mint_limit"`        // local ledger cap
	LogLevel          string   `json:"log_level"`

	// Timeouts in seconds. Zero means the package constant.
	CallTimeout    int `json:"call_timeout,omitempty"`
	PromptTimeout  int `json:"prompt_timeout,omitempty"`
	ConfirmTimeout int `json:"confirm_timeout,omitempty"`

	// internal: config dir path used for Save()
	configDir string
}

// Wallet represents a stored wallet entry.
type Wallet struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	KeyRef    string `json:"key_ref"` // keychain reference
	IsDefault bool   `json:"is_default"`
	CreatedAt string `json:"created_at"`
}

// WalletsFile is the structure of wallets.json.
type WalletsFile struct {
	Wallets []Wallet `json:"wallets"`
}
