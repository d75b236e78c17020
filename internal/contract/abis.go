package contract

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

//go:embed abis/*.json
var artifacts embed.FS

// Builtin IDs.
const (
	TokenContract      = "erc721token"
	ControllerContract = "mintcontroller"
)

// BuiltinKind is a contract whose ABI ships inside the binary, with the
// methods and events this client depends on.
type BuiltinKind struct {
	ID             string
	Name           string
	ABI            abi.ABI
	RequiredCalls  []string // canonical signatures, e.g. "balanceOf(address)"
	RequiredEvents []string
}

var builtinRegistry = map[string]BuiltinKind{}

func init() {
	registerArtifact(TokenContract, "abis/ERC721Token.json",
		[]string{
			"totalSupply()",
			"balanceOf(address)",
			"tokenOfOwnerByIndex(address,uint256)",
			"ownerOf(uint256)",
		},
		[]string{"Transfer(address,address,uint256)"},
	)
	registerArtifact(ControllerContract, "abis/MintController.json",
		[]string{
			"getMintFee()",
			"maxBatchSize()",
			"isPaused()",
			"mint(address)",
			"mintBatch(address,uint256)",
		},
		nil,
	)
}

func registerArtifact(id, path string, calls, events []string) {
	data, err := artifacts.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("contract: embedded artifact %s: %v", path, err))
	}
	name, parsed, err := ParseArtifact(data)
	if err != nil {
		panic(fmt.Sprintf("contract: embedded artifact %s: %v", path, err))
	}
	RegisterBuiltin(BuiltinKind{
		ID:             id,
		Name:           name,
		ABI:            parsed,
		RequiredCalls:  calls,
		RequiredEvents: events,
	})
}

// RegisterBuiltin adds a built-in to the registry.
func RegisterBuiltin(b BuiltinKind) {
	builtinRegistry[b.ID] = b
}

// GetBuiltin returns a built-in by ID.
func GetBuiltin(id string) (BuiltinKind, bool) {
	b, ok := builtinRegistry[id]
	return b, ok
}

// AllBuiltins returns all registered built-ins sorted by ID.
func AllBuiltins() []BuiltinKind {
	out := make([]BuiltinKind, 0, len(builtinRegistry))
	for _, b := range builtinRegistry {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ParseArtifact accepts either a raw ABI array or a Truffle/Hardhat artifact
// object with an "abi" key. The contract name is empty for raw arrays.
func ParseArtifact(data []byte) (string, abi.ABI, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return "", abi.ABI{}, fmt.Errorf("ABI is empty")
	}

	var name string
	raw := data
	if data[0] == '{' {
		var artifact struct {
			ContractName string          `json:"contractName"`
			ABI          json.RawMessage `json:"abi"`
		}
		if err := json.Unmarshal(data, &artifact); err != nil {
			return "", abi.ABI{}, fmt.Errorf("invalid artifact JSON: %w", err)
		}
		if len(artifact.ABI) < 2 || artifact.ABI[0] != '[' {
			return "", abi.ABI{}, fmt.Errorf("artifact has no \"abi\" array")
		}
		name, raw = artifact.ContractName, artifact.ABI
	}

	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return "", abi.ABI{}, fmt.Errorf("invalid ABI JSON: %w", err)
	}
	if len(parsed.Methods) == 0 && len(parsed.Events) == 0 {
		return "", abi.ABI{}, fmt.Errorf("ABI has no functions or events")
	}
	return name, parsed, nil
}
