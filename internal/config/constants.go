package config

import "time"

// Gas limits used when the node cannot estimate the mint call.
const (
	GasLimitMint          = uint64(150_000)
	GasLimitMintPerToken  = uint64(120_000) // added per token for mintBatch
	GasLimitMessageOnly   = uint64(21_000)
	DefaultMaxBatchSize   = uint64(10)
	DefaultMintLimit      = 10
	PlaceholderTokenPrice = "0.002"
)

// Timeout constants for calls that leave the process.
const (
	ProviderCallTimeout = 15 * time.Second // one RPC read or write
	PromptTimeout       = 2 * time.Minute  // waiting on the user to approve in the wallet
	TxConfirmTimeout    = 3 * time.Minute  // receipt wait after a mint
	RPCSelectTimeout    = 10 * time.Second // probing candidate RPCs
	ReceiptPollInterval = 2 * time.Second
)
