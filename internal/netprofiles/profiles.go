package netprofiles

import "sort"

// NetworkProfile defines the node endpoints and chain id of a ledger network
type NetworkProfile struct {
	REST    []string `json:"rest"`
	ChainID uint8    `json:"chain_id"`
}

// Profiles contains the predefined network configurations
var Profiles = map[string]NetworkProfile{
	"local": {
		REST:    []string{"http://127.0.0.1:8080"},
		ChainID: 4,
	},
	"devnet": {
		REST:    []string{"https://fullnode.devnet.aptoslabs.com"},
		ChainID: 0, // devnet resets; fetched from the ledger info at startup
	},
	"testnet": {
		REST:    []string{"https://fullnode.testnet.aptoslabs.com"},
		ChainID: 2,
	},
	"mainnet": {
		REST:    []string{"https://fullnode.mainnet.aptoslabs.com"},
		ChainID: 1,
	},
}

// GetProfile returns the network profile for the given name
func GetProfile(name string) (NetworkProfile, bool) {
	profile, exists := Profiles[name]
	return profile, exists
}

// GetAvailableNetworks returns the sorted list of network names
func GetAvailableNetworks() []string {
	networks := make([]string, 0, len(Profiles))
	for name := range Profiles {
		networks = append(networks, name)
	}
	sort.Strings(networks)
	return networks
}

// IsValidNetwork checks if the given network name is valid
func IsValidNetwork(name string) bool {
	_, exists := Profiles[name]
	return exists
}
