package chain

import (
	_ "embed"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"
)

// BaseMainnetChainID is the only network the contract is deployed on.
const BaseMainnetChainID = 8453

//go:embed networks.yaml
var networksYAML []byte

type Currency struct {
	Name     string `yaml:"name"`
	Symbol   string `yaml:"symbol"`
	Decimals int    `yaml:"decimals"`
}

type Network struct {
	ChainID        uint64   `yaml:"chain_id"`
	Name           string   `yaml:"name"`
	RPCURL         string   `yaml:"rpc_url"`
	ExplorerURL    string   `yaml:"explorer_url"`
	Currency       Currency `yaml:"currency"`
	FlipMatch      string   `yaml:"flipmatch_contract"`
	CasinoTreasury string   `yaml:"casino_treasury"`
}

// FlipMatchAddress returns the deployed contract, or the zero address.
func (n Network) FlipMatchAddress() common.Address {
	if !common.IsHexAddress(n.FlipMatch) {
		return common.Address{}
	}
	return common.HexToAddress(n.FlipMatch)
}

// TxURL links a transaction on the network's explorer.
func (n Network) TxURL(hash common.Hash) string {
	return fmt.Sprintf("%s/tx/%s", n.ExplorerURL, hash.Hex())
}

// Networks is the static address table keyed by chain id.
type Networks struct {
	Supported uint64    `yaml:"supported"`
	List      []Network `yaml:"networks"`
}

// LoadNetworks parses a network table; nil data loads the embedded one.
func LoadNetworks(data []byte) (*Networks, error) {
	if data == nil {
		data = networksYAML
	}
	var n Networks
	if err := yaml.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("parse network table: %w", err)
	}
	if _, ok := n.Lookup(n.Supported); !ok {
		return nil, fmt.Errorf("network table has no entry for supported chain %d", n.Supported)
	}
	return &n, nil
}

func (n *Networks) Lookup(chainID uint64) (Network, bool) {
	for _, net := range n.List {
		if net.ChainID == chainID {
			return net, true
		}
	}
	return Network{}, false
}

// Default returns the supported network.
func (n *Networks) Default() Network {
	net, _ := n.Lookup(n.Supported)
	return net
}

// Override replaces the supported network's RPC endpoint and contract
// address when the values are non-empty.
func (n *Networks) Override(rpcURL, flipMatch string) {
	for i := range n.List {
		if n.List[i].ChainID != n.Supported {
			continue
		}
		if rpcURL != "" {
			n.List[i].RPCURL = rpcURL
		}
		if flipMatch != "" {
			n.List[i].FlipMatch = flipMatch
		}
	}
}
