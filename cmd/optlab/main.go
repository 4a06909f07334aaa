// Command optlab runs the optimization exercises from the command line
// and can also start the HTTP service.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
