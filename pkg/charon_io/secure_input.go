// pkg/charon_io/secure_input.go

package charon_io

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	cerr "github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// MaxPasswordLength bounds interactive secret input.
const MaxPasswordLength = 256

// SecretReader is a blocking "ask the user for a secret" function. The
// production reader talks to the terminal; tests inject scripted ones.
type SecretReader func(rc *RuntimeContext, prompt string) (string, error)

// PromptSecurePassword prompts for a secret without echoing it to the screen.
// An empty answer is returned as-is: deciding whether empty means "cancel" is
// the caller's business.
func PromptSecurePassword(rc *RuntimeContext, prompt string) (string, error) {
	logger := otelzap.Ctx(rc.Ctx)

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", cerr.New("stdin is not a terminal; use --master-key-path for non-interactive bootstrap")
	}

	fmt.Print(prompt + ": ")
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", cerr.Wrap(err, "failed to read secret")
	}
	if len(secret) > MaxPasswordLength {
		return "", cerr.Newf("secret too long (%d chars, max %d)", len(secret), MaxPasswordLength)
	}

	logger.Debug("Read secret from terminal", zap.Int("length", len(secret)))
	return string(secret), nil
}

// PromptInput reads a single echoed line from stdin.
func PromptInput(rc *RuntimeContext, prompt string) (string, error) {
	logger := otelzap.Ctx(rc.Ctx)

	fmt.Print(prompt + ": ")
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", cerr.Wrap(err, "failed to read input")
		}
		return "", cerr.New("no input received")
	}
	input := strings.TrimSpace(scanner.Text())

	logger.Debug("Read input from terminal", zap.Int("length", len(input)))
	return input, nil
}
