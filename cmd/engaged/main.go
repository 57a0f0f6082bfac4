// Command engaged serves and operates the engagement decision pipeline.
package main

import (
	"os"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
