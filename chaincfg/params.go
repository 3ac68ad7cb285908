package chaincfg

import (
	"errors"
	"strings"

	"github.com/majchrzamemil/handshaker/wire"
)

// Params defines a Bitcoin network by its parameters. These parameters may
// be used by Bitcoin applications to differentiate networks as well as
// addresses and keys for one network from those intended for use on
// another network.
type Params struct {
	// Name defines a human-readable identifier for the network.
	Name string

	// Net defines the magic bytes used to identify the network.
	Net wire.BitcoinNet

	// DefaultPort defines the default peer-to-peer port for the network.
	DefaultPort string
}

var (
	// ErrDuplicateNet describes an error where the parameters for a Bitcoin
	// network could not be set due to the network already being a standard
	// network or previously-registered into this package.
	ErrDuplicateNet = errors.New("duplicate Bitcoin network")

	// ErrUnknownNetwork describes an error where the provided network
	// selector does not name a registered network.
	ErrUnknownNetwork = errors.New("unknown Bitcoin network")
)

// MainNetParams defines the network parameters for the main Bitcoin network.
var MainNetParams = Params{
	Name:        "mainnet",
	Net:         wire.MainNet,
	DefaultPort: "8333",
}

// RegressionNetParams defines the network parameters for the regression test
// Bitcoin network. Not to be confused with the test Bitcoin network (version
// 3), this network is sometimes simply called "testnet".
var RegressionNetParams = Params{
	Name:        "regtest",
	Net:         wire.TestNet,
	DefaultPort: "18444",
}

// TestNet3Params defines the network parameters for the test Bitcoin network
// (version 3). Not to be confused with the regression test network, this
// network is sometimes simply called "testnet".
var TestNet3Params = Params{
	Name:        "testnet3",
	Net:         wire.TestNet3,
	DefaultPort: "18333",
}

// SigNetParams defines the network parameters for the default public signet
// Bitcoin network.
var SigNetParams = Params{
	Name:        "signet",
	Net:         wire.SigNet,
	DefaultPort: "38333",
}

var (
	registeredNets = make(map[wire.BitcoinNet]struct{})

	// netSelectors maps the lower case selector strings accepted in
	// configuration to their parameters.
	netSelectors = make(map[string]*Params)
)

// Register registers the network parameters for a Bitcoin network. This may
// error with ErrDuplicateNet if the network is already registered (either
// due to a previous Register call, or the network being one of the default
// networks).
//
// Network parameters should be registered into this package by a main package
// as early as possible. Then, library packages may lookup networks or network
// parameters based on inputs and work regardless of the network being standard
// or not.
func Register(params *Params, selectors ...string) error {
	if _, ok := registeredNets[params.Net]; ok {
		return ErrDuplicateNet
	}
	names := append([]string{params.Name}, selectors...)
	for _, s := range names {
		if _, ok := netSelectors[strings.ToLower(s)]; ok {
			return ErrDuplicateNet
		}
	}

	registeredNets[params.Net] = struct{}{}
	for _, s := range names {
		netSelectors[strings.ToLower(s)] = params
	}
	return nil
}

// ParamsForNetwork returns the parameters registered under the network
// selector, which is either a network name or one of its aliases, matched
// case insensitively. ErrUnknownNetwork is returned for anything else.
func ParamsForNetwork(selector string) (*Params, error) {
	params, ok := netSelectors[strings.ToLower(strings.TrimSpace(selector))]
	if !ok {
		return nil, ErrUnknownNetwork
	}
	return params, nil
}

// mustRegister performs the same function as Register except it panics if
// there is an error. This should only be called from package init
// functions.
func mustRegister(params *Params, selectors ...string) {
	if err := Register(params, selectors...); err != nil {
		panic("failed to register network: " + err.Error())
	}
}

func init() {
	// Register all default networks when the package is initialized.
	mustRegister(&MainNetParams, "main")
	mustRegister(&TestNet3Params, "testnet")
	mustRegister(&SigNetParams)
	mustRegister(&RegressionNetParams)
}
