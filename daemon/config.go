package daemon

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/algorand/go-algorand-sdk/crypto"
	"github.com/algorand/go-algorand-sdk/mnemonic"
)

// Config is the daemon's JSON configuration surface.
type Config struct {
	AlgodAddress   string `json:"algod-address"`
	AlgodToken     string `json:"algod-token"`
	IndexerAddress string `json:"indexer-address"`
	IndexerToken   string `json:"indexer-token"`

	AppID uint64 `json:"app-id"`

	// VRFKey is the hex-encoded 32-byte VRF secret key. Service is the
	// 25-word mnemonic of the account that signs fulfillment transactions.
	VRFKey  string `json:"vrf-key"`
	Service string `json:"service-mnemonic"`

	LedgerPath string `json:"ledger-path"`

	PollIntervalMS    int    `json:"poll-interval-ms"`
	ConfirmationDepth uint64 `json:"confirmation-depth"`
	MaxAttempts       int    `json:"max-attempts"`
	BackoffBaseMS     int    `json:"backoff-base-ms"`
	BackoffCapMS      int    `json:"backoff-cap-ms"`
	Workers           int    `json:"workers"`

	MetricsAddress string `json:"metrics-address,omitempty"`
}

// LoadConfig reads a JSON config file, fills in defaults and validates.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %v", path, err)
	}

	conf := &Config{}
	if err := json.Unmarshal(b, conf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config %s: %v", path, err)
	}
	conf.applyDefaults()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) applyDefaults() {
	if c.PollIntervalMS == 0 {
		c.PollIntervalMS = 4500 // roughly one block
	}
	if c.ConfirmationDepth == 0 {
		c.ConfirmationDepth = 1
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 5
	}
	if c.BackoffBaseMS == 0 {
		c.BackoffBaseMS = 1000
	}
	if c.BackoffCapMS == 0 {
		c.BackoffCapMS = 30000
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
}

// Validate reports the first missing required option.
func (c *Config) Validate() error {
	var missing []string
	if c.AlgodAddress == "" {
		missing = append(missing, "algod-address")
	}
	if c.IndexerAddress == "" {
		missing = append(missing, "indexer-address")
	}
	if c.AppID == 0 {
		missing = append(missing, "app-id")
	}
	if c.VRFKey == "" {
		missing = append(missing, "vrf-key")
	}
	if c.Service == "" {
		missing = append(missing, "service-mnemonic")
	}
	if c.LedgerPath == "" {
		missing = append(missing, "ledger-path")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s config option(s)", strings.Join(missing, ","))
	}
	if c.BackoffCapMS < c.BackoffBaseMS {
		return fmt.Errorf("backoff-cap-ms (%d) is below backoff-base-ms (%d)", c.BackoffCapMS, c.BackoffBaseMS)
	}
	return nil
}

func (c *Config) pollInterval() time.Duration { return time.Duration(c.PollIntervalMS) * time.Millisecond }
func (c *Config) backoffBase() time.Duration  { return time.Duration(c.BackoffBaseMS) * time.Millisecond }
func (c *Config) backoffCap() time.Duration   { return time.Duration(c.BackoffCapMS) * time.Millisecond }

// VRFSecret decodes the hex-encoded VRF secret key.
func (c *Config) VRFSecret() ([]byte, error) {
	raw, err := hex.DecodeString(c.VRFKey)
	if err != nil {
		return nil, fmt.Errorf("invalid vrf-key: %v", err)
	}
	return raw, nil
}

// AccountFromMnemonic recovers a signing account from a 25-word mnemonic.
func AccountFromMnemonic(mn string) (crypto.Account, error) {
	acct := crypto.Account{}

	pk, err := mnemonic.ToPrivateKey(mn)
	if err != nil {
		return acct, err
	}

	addr, err := crypto.GenerateAddressFromSK(pk)
	if err != nil {
		return acct, err
	}

	return crypto.Account{
		PrivateKey: pk,
		Address:    addr,
	}, nil
}
