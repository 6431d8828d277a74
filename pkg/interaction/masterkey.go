// Package interaction holds the operator-facing prompt flows used during
// bootstrap.
package interaction

import (
	"fmt"
	"os"

	"github.com/CodeMonkeyCybersecurity/charon/pkg/charon_err"
	"github.com/CodeMonkeyCybersecurity/charon/pkg/charon_io"
	cerr "github.com/cockroachdb/errors"
)

// maxMasterKeyAttempts bounds the prompt/confirm loop for a fresh key.
const maxMasterKeyAttempts = 3

// ObtainMasterKey asks the operator for the keyring encryption key.
//
// For an existing keyring the key is asked once, unconfirmed. For a fresh
// keyring the operator is walked through a prompt/confirm loop; an empty
// answer cancels the whole bootstrap silently (ErrAbortedByUser), it is not a
// failure. Mismatched confirmations retry up to maxMasterKeyAttempts times.
func ObtainMasterKey(rc *charon_io.RuntimeContext, keyringPath string, keyringExists bool, ask charon_io.SecretReader) (string, error) {
	if keyringExists {
		key, err := ask(rc, "Please provide the encryption key for key file at "+keyringPath)
		if err != nil {
			return "", err
		}
		if key == "" {
			return "", charon_err.ErrAbortedByUser
		}
		return key, nil
	}

	fmt.Fprint(os.Stdout,
		"Charon needs to create a metadata client account for this router.\n"+
			"To allow secure storage of its password, please provide an encryption key.\n"+
			"To generate a random encryption key to be stored in a local obscured file,\n"+
			"and allow the router to start without interaction, press Return to cancel\n"+
			"and use the --master-key-path option to specify a file location.\n\n")

	for attempt := 0; attempt < maxMasterKeyAttempts; attempt++ {
		key, err := ask(rc, "Please provide an encryption key")
		if err != nil {
			return "", err
		}
		if key == "" {
			return "", charon_err.ErrAbortedByUser
		}
		confirm, err := ask(rc, "Please confirm encryption key")
		if err != nil {
			return "", err
		}
		if confirm == key {
			return key, nil
		}
		fmt.Fprintln(os.Stdout, "Entered keys do not match. Please try again.")
	}
	return "", cerr.Newf("encryption keys did not match after %d attempts", maxMasterKeyAttempts)
}
