package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cyph3rasi/synapsis-swarm/src/crypto/keys"
)

// NewKeygenCmd produces a KeygenCmd which dumps a fresh key pair. The running
// node manages its own identity in the database; this command is for
// operators who want to pre-provision or inspect key material.
func NewKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Dump new key pair",
		RunE:  keygen,
	}
}

func keygen(cmd *cobra.Command, args []string) error {
	key, err := keys.GenerateKey()
	if err != nil {
		return fmt.Errorf("Error generating key: %s", err)
	}

	fmt.Println("PublicKey:")
	fmt.Println(keys.PublicKeyHex(&key.PublicKey))
	fmt.Println("PrivateKey:")
	fmt.Printf("%X\n", keys.DumpPrivateKey(key))

	return nil
}
