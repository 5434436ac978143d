// Command bugbug queries the bugbug service for the test groups to run on a
// push, either once from the command line or as a memoizing HTTP proxy.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
