package daemon

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"os"

	"github.com/algorand/go-algorand-sdk/client/v2/algod"
	"github.com/algorand/go-algorand-sdk/crypto"
	"github.com/algorand/go-algorand-sdk/future"
	"github.com/algorand/go-algorand-sdk/types"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/seedworks/vrf-oracle/daemon"
	"github.com/seedworks/vrf-oracle/tools"
	"github.com/seedworks/vrf-oracle/vrf"
)

var (
	approvalProgramFilename string // the path to the approval program as teal
	clearProgramFilename    string // the path to the clear program as teal
	creatorMnemonic         string // the mnemonic of the account creating the application
	vrfKeyHex               string // the hex-encoded VRF secret key, its public key goes into global state

	algodAddress = os.Getenv("AF_ALGOD_ADDRESS")
	algodToken   = os.Getenv("AF_ALGOD_TOKEN")
)

func init() {
	DeployCmd.Flags().StringVar(&approvalProgramFilename, "approval-program", "", "TEAL script of the approval program (required)")
	tools.MarkFlagRequired(DeployCmd.Flags(), "approval-program")

	DeployCmd.Flags().StringVar(&clearProgramFilename, "clear-program", "", "TEAL script of the clear program (required)")
	tools.MarkFlagRequired(DeployCmd.Flags(), "clear-program")

	DeployCmd.Flags().StringVar(&creatorMnemonic, "creator-mnemonic", "", "25-word mnemonic of the app creator (required)")
	tools.MarkFlagRequired(DeployCmd.Flags(), "creator-mnemonic")

	DeployCmd.Flags().StringVar(&vrfKeyHex, "vrf-key", "", "hex-encoded VRF secret key (required)")
	tools.MarkFlagRequired(DeployCmd.Flags(), "vrf-key")
}

func compileTeal(algodClient *algod.Client, approvalProgramFilename, clearProgramFilename string) ([]byte, []byte, error) {
	approval, err := os.ReadFile(approvalProgramFilename)
	if err != nil {
		return nil, nil, err
	}
	clear, err := os.ReadFile(clearProgramFilename)
	if err != nil {
		return nil, nil, err
	}
	compiledApprovalObject, err := algodClient.TealCompile(approval).Do(context.Background())
	if err != nil {
		return nil, nil, err
	}
	compiledClearObject, err := algodClient.TealCompile(clear).Do(context.Background())
	if err != nil {
		return nil, nil, err
	}

	compiledApprovalBytes, err := base64.StdEncoding.DecodeString(compiledApprovalObject.Result)
	if err != nil {
		return nil, nil, err
	}
	compiledClearBytes, err := base64.StdEncoding.DecodeString(compiledClearObject.Result)
	if err != nil {
		return nil, nil, err
	}

	return compiledApprovalBytes, compiledClearBytes, nil
}

// DeployCmd creates the oracle application: the singleton state account
// holding the round counter, the owner address and the oracle's VRF
// public key.
var DeployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "creates the oracle application",
	Run: func(cmd *cobra.Command, args []string) {
		if algodAddress == "" {
			log.Fatal("missing AF_ALGOD_ADDRESS environment variable")
		}

		algodClient, err := algod.MakeClient(algodAddress, algodToken)
		if err != nil {
			log.Fatalf("failed to make algod client: %+v", err)
		}

		creator, err := daemon.AccountFromMnemonic(creatorMnemonic)
		if err != nil {
			log.Fatalf("invalid creator mnemonic: %v", err)
		}

		rawKey, err := hex.DecodeString(vrfKeyHex)
		if err != nil {
			log.Fatalf("invalid vrf key: %v", err)
		}
		key, err := vrf.NewSecretKey(rawKey)
		if err != nil {
			log.Fatalf("invalid vrf key: %v", err)
		}

		approvalBytes, clearBytes, err := compileTeal(algodClient, approvalProgramFilename, clearProgramFilename)
		if err != nil {
			log.Fatalf("failed to compile programs: %+v", err)
		}

		sp, err := algodClient.SuggestedParams().Do(context.Background())
		if err != nil {
			log.Fatalf("failed to get suggested params: %+v", err)
		}

		// Global state: the round counter plus owner address and VRF
		// public key.
		globalStateSchema := types.StateSchema{NumUint: 1, NumByteSlice: 2}
		localStateSchema := types.StateSchema{NumUint: 0, NumByteSlice: 0}
		appArgs := [][]byte{creator.Address[:], key.Public().Bytes()}

		appCall, err := future.MakeApplicationCreateTx(
			false, approvalBytes, clearBytes, globalStateSchema, localStateSchema, appArgs,
			nil, nil, nil, sp, creator.Address, nil, types.Digest{}, [32]byte{}, types.ZeroAddress,
		)
		if err != nil {
			log.Fatalf("failed to make app create txn: %+v", err)
		}

		_, stxBytes, err := crypto.SignTransaction(creator.PrivateKey, appCall)
		if err != nil {
			log.Fatalf("failed signing app create txn: %v", err)
		}

		txID, err := algodClient.SendRawTransaction(stxBytes).Do(context.Background())
		if err != nil {
			log.Fatalf("failed sending app create transaction: %v", err)
		}

		res, err := future.WaitForConfirmation(algodClient, txID, 4, context.Background())
		if err != nil {
			log.Fatalf("failed while waiting for app create to be confirmed: %+v", err)
		}

		log.Infof("oracle app id: %d", res.ApplicationIndex)
	},
}
