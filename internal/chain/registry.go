package chain

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
)

// ErrNetworkNotFound is returned when a network is not in the registry.
var ErrNetworkNotFound = errors.New("network not found")

// Network holds the metadata the mint app needs for one EVM network.
type Network struct {
	Name           string   `json:"name"`
	DisplayName    string   `json:"display_name"`
	ChainID        int64    `json:"chain_id"`
	NativeCurrency string   `json:"native_currency"`
	RPCs           []string `json:"rpcs"`
	Explorer       string   `json:"explorer"` // empty for local dev chains
	Testnet        bool     `json:"testnet"`
}

// ChainIDHex returns the chain ID in the 0x-prefixed form wallets report.
func (n *Network) ChainIDHex() string {
	return "0x" + big.NewInt(n.ChainID).Text(16)
}

// ExplorerURL links a transaction, address or token on the network's block
// explorer. kind is "tx", "address" or "token". Returns "" when the network
// has no explorer.
func (n *Network) ExplorerURL(kind, ref string) string {
	if n.Explorer == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(n.Explorer, "/"), kind, ref)
}

// Registry is the network registry.
type Registry struct {
	networks []Network
	byName   map[string]*Network
	byID     map[int64]*Network
}

// NewRegistry returns the registry of supported networks.
func NewRegistry() *Registry {
	networks := allNetworks()
	r := &Registry{
		networks: networks,
		byName:   make(map[string]*Network, len(networks)),
		byID:     make(map[int64]*Network, len(networks)),
	}
	for i := range r.networks {
		n := &r.networks[i]
		r.byName[n.Name] = n
		r.byID[n.ChainID] = n
	}
	return r
}

// All returns every network sorted by chain ID.
func (r *Registry) All() []Network {
	out := make([]Network, len(r.networks))
	copy(out, r.networks)
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

// GetByName finds a network by slug ("optimism", "ganache").
func (r *Registry) GetByName(name string) (*Network, error) {
	n, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNetworkNotFound, name)
	}
	return n, nil
}

// GetByChainID finds a network by numeric chain ID.
func (r *Registry) GetByChainID(id int64) (*Network, error) {
	n, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: chain %d", ErrNetworkNotFound, id)
	}
	return n, nil
}

// GetByChainIDHex finds a network by the hex chain ID a wallet reports.
func (r *Registry) GetByChainIDHex(hexID string) (*Network, error) {
	id, ok := new(big.Int).SetString(strings.TrimPrefix(strings.ToLower(hexID), "0x"), 16)
	if !ok || !id.IsInt64() {
		return nil, fmt.Errorf("%w: %s", ErrNetworkNotFound, hexID)
	}
	return r.GetByChainID(id.Int64())
}

// NetworkName returns the display name for a wallet-reported chain ID, or
// "Unknown Network" when it is not registered.
func (r *Registry) NetworkName(hexID string) string {
	n, err := r.GetByChainIDHex(hexID)
	if err != nil {
		return "Unknown Network"
	}
	return n.DisplayName
}

func allNetworks() []Network {
	return []Network{
		{
			Name: "ethereum", DisplayName: "Ethereum", ChainID: 1, NativeCurrency: "ETH",
			RPCs:     []string{"https://eth.llamarpc.com", "https://ethereum-rpc.publicnode.com"},
			Explorer: "https://etherscan.io",
		},
		{
			Name: "optimism", DisplayName: "Optimism", ChainID: 10, NativeCurrency: "ETH",
			RPCs:     []string{"https://mainnet.optimism.io", "https://optimism.llamarpc.com"},
			Explorer: "https://optimistic.etherscan.io",
		},
		{
			Name: "bsc", DisplayName: "BSC", ChainID: 56, NativeCurrency: "BNB",
			RPCs:     []string{"https://bsc-dataseed.binance.org", "https://bsc-rpc.publicnode.com"},
			Explorer: "https://bscscan.com",
		},
		{
			Name: "polygon", DisplayName: "Polygon", ChainID: 137, NativeCurrency: "MATIC",
			RPCs:     []string{"https://polygon-bor-rpc.publicnode.com", "https://polygon-pokt.nodies.app"},
			Explorer: "https://polygonscan.com",
		},
		{
			Name: "base", DisplayName: "Base", ChainID: 8453, NativeCurrency: "ETH",
			RPCs:     []string{"https://mainnet.base.org", "https://base.llamarpc.com"},
			Explorer: "https://basescan.org",
		},
		{
			Name: "sepolia", DisplayName: "Sepolia", ChainID: 11155111, NativeCurrency: "ETH",
			RPCs:     []string{"https://rpc.sepolia.org", "https://sepolia.gateway.tenderly.co"},
			Explorer: "https://sepolia.etherscan.io", Testnet: true,
		},
		{
			Name: "op-sepolia", DisplayName: "OP Sepolia", ChainID: 11155420, NativeCurrency: "ETH",
			RPCs:     []string{"https://sepolia.optimism.io"},
			Explorer: "https://sepolia-optimism.etherscan.io", Testnet: true,
		},
		// Local development chains.
		{
			Name: "localhost", DisplayName: "Ganache (1337)", ChainID: 1337, NativeCurrency: "ETH",
			RPCs: []string{"http://127.0.0.1:8545"}, Testnet: true,
		},
		{
			Name: "ganache", DisplayName: "Ganache (5777)", ChainID: 5777, NativeCurrency: "ETH",
			RPCs: []string{"http://127.0.0.1:7545"}, Testnet: true,
		},
	}
}
