// Command busctl validates command bus configuration and explains routing
// and retry decisions.
//
//	busctl check --config commandbus.yaml
//	busctl route orders.create users.register
//	busctl policy orders.create
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
