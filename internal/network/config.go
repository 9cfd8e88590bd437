package network

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/common"
)

// PartyAddress is one entry of the party address book. Address is the
// platform endpoint of the party, Headers are attached verbatim to
// peer calls, PetNet lists the party's data-plane agent endpoints.
type PartyAddress struct {
	Address string            `json:"address" validate:"required"`
	Headers map[string]string `json:"headers,omitempty"`
	PetNet  []PetNetEndpoint  `json:"petnet,omitempty"`
}

// PetNetEndpoint is one data-plane agent endpoint.
type PetNetEndpoint struct {
	URL string `json:"url" validate:"required"`
}

// AddressBook maps party names to their reachable endpoints. It is
// loaded once at startup and read-only afterwards.
type AddressBook struct {
	parties map[string]*PartyAddress
}

// LoadAddressBook parses the party address JSON document.
func LoadAddressBook(path string) (*AddressBook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read party config %s: %w", path, err)
	}
	var parties map[string]*PartyAddress
	if err := json.Unmarshal(data, &parties); err != nil {
		return nil, fmt.Errorf("failed to parse party config %s: %w", path, err)
	}
	if len(parties) == 0 {
		return nil, fmt.Errorf("party config %s names no parties", path)
	}
	validate := validator.New()
	for name, addr := range parties {
		if err := validate.Struct(addr); err != nil {
			return nil, fmt.Errorf("party config %s: party %s: %w", path, name, err)
		}
	}
	return &AddressBook{parties: parties}, nil
}

// Get returns the address entry for a party.
func (b *AddressBook) Get(party string) (*PartyAddress, bool) {
	addr, ok := b.parties[party]
	return addr, ok
}

// Parties returns every known party name, sorted.
func (b *AddressBook) Parties() []string {
	names := make([]string, 0, len(b.parties))
	for name := range b.parties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Generator builds the transport descriptor handed to operators.
type Generator struct {
	book   *AddressBook
	config *common.NetworkConfig
}

// NewGenerator creates a descriptor generator.
func NewGenerator(book *AddressBook, config *common.NetworkConfig) *Generator {
	return &Generator{book: book, config: config}
}

// Generate builds the descriptor for one operator run across the
// given parties. The passphrase is the deterministic string
// job_id.class_path.class_name, so the operators of one job never
// collide on ports or topics. Socket descriptors carry a per-party
// host:port address, agent descriptors carry the agent URLs and the
// passphrase as shared topic. The same passphrase always yields the
// same descriptor on every party.
func (g *Generator) Generate(passphrase string, parties []string) (map[string]interface{}, error) {
	sorted := make([]string, len(parties))
	copy(sorted, parties)
	sort.Strings(sorted)

	entries := make(map[string]interface{}, len(sorted))
	switch g.config.Scheme {
	case "socket":
		for _, party := range sorted {
			addr, ok := g.book.Get(party)
			if !ok {
				return nil, fmt.Errorf("party %s not present in address book", party)
			}
			host, err := common.HostOf(addr.Address)
			if err != nil {
				return nil, err
			}
			entries[party] = map[string]interface{}{
				"address": []interface{}{fmt.Sprintf("%s:%d", host, g.DerivePort(passphrase, party))},
			}
		}
		return map[string]interface{}{
			"network_mode":   "petnet",
			"network_scheme": "socket",
			"parties":        entries,
		}, nil
	case "agent":
		for _, party := range sorted {
			addr, ok := g.book.Get(party)
			if !ok {
				return nil, fmt.Errorf("party %s not present in address book", party)
			}
			if len(addr.PetNet) == 0 {
				return nil, fmt.Errorf("party %s has no petnet endpoint for agent scheme", party)
			}
			entries[party] = map[string]interface{}{
				"address": []interface{}{addr.PetNet[0].URL},
			}
		}
		return map[string]interface{}{
			"network_mode":   "petnet",
			"network_scheme": "agent",
			"shared_topic":   passphrase,
			"parties":        entries,
		}, nil
	default:
		return nil, fmt.Errorf("unknown network scheme %q", g.config.Scheme)
	}
}

// DerivePort maps a passphrase and party deterministically into the
// configured port range. Every party computes the same port for the
// same pair without coordination.
func (g *Generator) DerivePort(passphrase, party string) int {
	sum := sha256.Sum256([]byte(passphrase + "." + party))
	span := big.NewInt(int64(g.config.PortUpperBound - g.config.PortLowerBound))
	offset := new(big.Int).Mod(new(big.Int).SetBytes(sum[:]), span)
	return g.config.PortLowerBound + int(offset.Int64())
}
