// main.go

package main

import (
	"github.com/CodeMonkeyCybersecurity/charon/cmd"
	"github.com/CodeMonkeyCybersecurity/charon/pkg/logger"
)

func main() {
	logger.InitializeWithFallback()
	cmd.Execute()
}
