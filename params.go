package main

import (
	"github.com/majchrzamemil/handshaker/chaincfg"
	"github.com/majchrzamemil/handshaker/wire"
)

// activeNetParams is a pointer to the parameters specific to the
// currently active bitcoin network. loadConfig replaces it with the
// network selected in the configuration.
var activeNetParams = &chaincfg.MainNetParams

// netName returns the name used for the per-network log directory. Testnet
// version 3 logs to "testnet", which does not match the Name field of its
// chaincfg parameters.
func netName(chainParams *chaincfg.Params) string {
	switch chainParams.Net {
	case wire.TestNet3:
		return "testnet"
	default:
		return chainParams.Name
	}
}
