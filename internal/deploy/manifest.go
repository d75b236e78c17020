// Package deploy reads a deployments manifest and points the config at the
// token and controller deployed on the current network.
package deploy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Mohsinsiddi/koneko/internal/config"
	"github.com/Mohsinsiddi/koneko/internal/contract"
)

// ErrNotDeployed is returned when the manifest has no entry for a contract
// on the configured network.
var ErrNotDeployed = errors.New("contract not deployed on network")

// Manifest is the structure of a deployments.json manifest:
// contracts[builtin id][network name].
type Manifest struct {
	Contracts map[string]map[string]ManifestEntry `json:"contracts"`
}

// ManifestEntry is a single contract deployment entry. ABIUrl is optional;
// when set the ABI is fetched and checked against the embedded one.
type ManifestEntry struct {
	Address string `json:"address"`
	ABIUrl  string `json:"abi_url,omitempty"`
}

// Result is what a sync resolved.
type Result struct {
	Network    string
	Token      common.Address
	Controller common.Address
	Checked    []string // builtin ids whose remote ABI was validated
}

// Syncer applies a manifest to the config.
type Syncer struct {
	cfg    *config.Config
	client *http.Client
}

// New creates a new Syncer.
func New(cfg *config.Config) *Syncer {
	return &Syncer{cfg: cfg, client: &http.Client{Timeout: 15 * time.Second}}
}

// Run reads the manifest at source (file path or http(s) URL), resolves both
// contracts for the configured network, validates any published ABI and
// saves the addresses.
func (s *Syncer) Run(ctx context.Context, source string) (*Result, error) {
	if source == "" {
		source = s.cfg.ManifestSource
	}
	if source == "" {
		return nil, fmt.Errorf("no manifest source, pass one or run `koneko config sync <url>`")
	}

	data, err := s.read(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("fetching manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	res := &Result{Network: s.cfg.Network}
	for _, id := range []string{contract.TokenContract, contract.ControllerContract} {
		entry, err := m.lookup(id, s.cfg.Network)
		if err != nil {
			return nil, err
		}
		if entry.ABIUrl != "" {
			if err := s.check(ctx, id, entry.ABIUrl); err != nil {
				return nil, err
			}
			res.Checked = append(res.Checked, id)
		}
		addr := common.HexToAddress(entry.Address)
		if id == contract.TokenContract {
			res.Token = addr
		} else {
			res.Controller = addr
		}
	}

	s.cfg.TokenAddress = res.Token.Hex()
	s.cfg.ControllerAddress = res.Controller.Hex()
	s.cfg.ManifestSource = source
	if err := s.cfg.Save(); err != nil {
		return nil, err
	}
	return res, nil
}

func (m *Manifest) lookup(id, network string) (ManifestEntry, error) {
	for name, networks := range m.Contracts {
		if !strings.EqualFold(name, id) {
			continue
		}
		for n, e := range networks {
			if strings.EqualFold(n, network) {
				if !common.IsHexAddress(e.Address) {
					return ManifestEntry{}, fmt.Errorf("%s on %s: %q is not an address", id, network, e.Address)
				}
				return e, nil
			}
		}
	}
	return ManifestEntry{}, fmt.Errorf("%w: %s on %s", ErrNotDeployed, id, network)
}

// check validates a published ABI against what the client calls.
func (s *Syncer) check(ctx context.Context, id, url string) error {
	kind, ok := contract.GetBuiltin(id)
	if !ok {
		return fmt.Errorf("unknown contract %q", id)
	}
	data, err := s.read(ctx, url)
	if err != nil {
		return fmt.Errorf("fetching ABI for %s: %w", id, err)
	}
	_, parsed, err := contract.ParseArtifact(data)
	if err != nil {
		return fmt.Errorf("ABI for %s: %w", id, err)
	}
	return contract.Validate(kind, parsed)
}

func (s *Syncer) read(ctx context.Context, source string) ([]byte, error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		return os.ReadFile(source)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
