package daemon

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/algorand/go-algorand-sdk/crypto"
	"github.com/algorand/go-algorand-sdk/mnemonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seedworks/vrf-oracle/vrf"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"algod-address": "http://localhost:4001",
		"indexer-address": "http://localhost:8980",
		"app-id": 7,
		"vrf-key": "aa",
		"service-mnemonic": "word word word",
		"ledger-path": "/tmp/vrf-ledger"
	}`)

	conf, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 4500*time.Millisecond, conf.pollInterval())
	assert.Equal(t, uint64(1), conf.ConfirmationDepth)
	assert.Equal(t, 5, conf.MaxAttempts)
	assert.Equal(t, time.Second, conf.backoffBase())
	assert.Equal(t, 30*time.Second, conf.backoffCap())
	assert.Equal(t, 4, conf.Workers)
}

func TestLoadConfigMissingOptions(t *testing.T) {
	path := writeConfig(t, `{"algod-address": "http://localhost:4001"}`)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "indexer-address")
	assert.Contains(t, err.Error(), "app-id")
	assert.Contains(t, err.Error(), "vrf-key")
	assert.Contains(t, err.Error(), "service-mnemonic")
	assert.Contains(t, err.Error(), "ledger-path")
}

func TestLoadConfigRejectsInvertedBackoff(t *testing.T) {
	path := writeConfig(t, `{
		"algod-address": "http://localhost:4001",
		"indexer-address": "http://localhost:8980",
		"app-id": 7,
		"vrf-key": "aa",
		"service-mnemonic": "word word word",
		"ledger-path": "/tmp/vrf-ledger",
		"backoff-base-ms": 5000,
		"backoff-cap-ms": 100
	}`)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backoff-cap-ms")
}

// The config is parsed once; building the daemon reuses the loaded struct.
func TestNewFromLoadedConfig(t *testing.T) {
	service := crypto.GenerateAccount()
	mn, err := mnemonic.FromPrivateKey(service.PrivateKey)
	require.NoError(t, err)

	conf := &Config{
		AlgodAddress:   "http://localhost:4001",
		IndexerAddress: "http://localhost:8980",
		AppID:          7,
		VRFKey:         hex.EncodeToString(vrf.GenerateSecretKey()),
		Service:        mn,
		LedgerPath:     filepath.Join(t.TempDir(), "ledger"),
	}
	conf.applyDefaults()
	require.NoError(t, conf.Validate())

	d, err := NewFromLoadedConfig(conf)
	require.NoError(t, err)
	defer d.Ledger.Close()

	assert.Equal(t, uint64(7), d.AppID)
	assert.Equal(t, service.Address, d.ServiceAccount.Address)
	assert.Equal(t, conf.Workers, d.Workers)
	assert.Equal(t, conf.pollInterval(), d.PollInterval)
}

func TestVRFSecretRejectsBadHex(t *testing.T) {
	conf := &Config{VRFKey: "not-hex"}
	_, err := conf.VRFSecret()
	assert.Error(t, err)
}
