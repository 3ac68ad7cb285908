package main

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	flags "github.com/jessevdk/go-flags"
	jsoniter "github.com/json-iterator/go"

	"github.com/majchrzamemil/handshaker/chaincfg"
	"github.com/majchrzamemil/handshaker/peer"
)

const (
	defaultConfigFilename = "config.json"
	sampleConfigFilename  = "sample-config.json"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "handshaker.log"
	defaultLogLevel       = "info"
	defaultNetwork        = "mainnet"
)

var (
	defaultHomeDir = btcutil.AppDataDir(appName, false)
	defaultLogDir  = filepath.Join(defaultHomeDir, defaultLogDirname)
)

// json is the codec used for the configuration file.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// config defines the configuration options for handshaker.
//
// See loadConfig for details on the configuration load process.
type config struct {
	ConfigFile       string        `short:"C" long:"configfile" description:"Path to JSON configuration file (may also be given as the first argument)"`
	DestAddr         string        `short:"d" long:"dest" description:"Address of the peer to handshake with (ip[:port], the network's default port is used when omitted)"`
	Network          string        `short:"n" long:"network" description:"Bitcoin network: mainnet, testnet3, signet or regtest"`
	UserAgent        string        `long:"useragent" description:"User agent advertised in the version message"`
	HandshakeTimeout time.Duration `long:"handshaketimeout" description:"Time allowed for the whole handshake -- 0 disables the limit"`
	LogDir           string        `long:"logdir" description:"Directory to log output"`
	DebugLevel       string        `short:"l" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	NoColor          bool          `long:"nocolor" description:"Disable colored console output"`
	ShowVersion      bool          `short:"V" long:"version" description:"Display version information and exit"`

	destAddr netip.AddrPort
	params   *chaincfg.Params
}

// fileConfig is the layout of the JSON configuration file.
type fileConfig struct {
	DestAddr         string `json:"dest_addr"`
	NetworkType      string `json:"network_type"`
	UserAgent        string `json:"user_agent,omitempty"`
	HandshakeTimeout string `json:"handshake_timeout,omitempty"`
}

// AddressParseError describes a destination address that is not a literal
// IP address and port.
type AddressParseError struct {
	Addr string
	Err  error
}

// Error satisfies the error interface.
func (e *AddressParseError) Error() string {
	return fmt.Sprintf("invalid destination address %q: %v", e.Addr, e.Err)
}

// Unwrap returns the underlying parse error.
func (e *AddressParseError) Unwrap() error {
	return e.Err
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = strings.Replace(path, "~", homeDir, 1)
		}
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// normalizeAddress returns addr with the default port appended if there is
// not already a port specified.
func normalizeAddress(addr, defaultPort string) string {
	_, _, err := net.SplitHostPort(addr)
	if err != nil {
		host := strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]")
		return net.JoinHostPort(host, defaultPort)
	}
	return addr
}

// parseDestination parses a literal IP address with an optional port. Host
// names are rejected since no name resolution is performed.
func parseDestination(addr, defaultPort string) (netip.AddrPort, error) {
	ap, err := netip.ParseAddrPort(normalizeAddress(addr, defaultPort))
	if err != nil {
		return netip.AddrPort{}, &AddressParseError{Addr: addr, Err: err}
	}
	return ap, nil
}

// readConfigFile applies the JSON configuration file at path to cfg.
func readConfigFile(path string, cfg *config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fc fileConfig
	if err := json.Unmarshal(b, &fc); err != nil {
		return fmt.Errorf("malformed configuration file %s: %w", path, err)
	}

	if fc.DestAddr != "" {
		cfg.DestAddr = fc.DestAddr
	}
	if fc.NetworkType != "" {
		cfg.Network = fc.NetworkType
	}
	if fc.UserAgent != "" {
		cfg.UserAgent = fc.UserAgent
	}
	if fc.HandshakeTimeout != "" {
		timeout, err := time.ParseDuration(fc.HandshakeTimeout)
		if err != nil {
			return fmt.Errorf("malformed handshake_timeout in %s: %w",
				path, err)
		}
		cfg.HandshakeTimeout = timeout
	}
	return nil
}

// loadConfig initializes and parses the config using a config file and
// command line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in handshaker functioning properly without any config
// settings while still allowing the user to override settings with config
// files and command line options. Command line options always take
// precedence. The destination address is validated before returning so no
// connection is attempted with a malformed one.
func loadConfig(args []string) (*config, []string, error) {
	// Default config.
	cfg := config{
		ConfigFile:       defaultConfigFilename,
		Network:          defaultNetwork,
		UserAgent:        defaultUserAgent(),
		HandshakeTimeout: peer.DefaultHandshakeTimeout,
		LogDir:           defaultLogDir,
		DebugLevel:       defaultLogLevel,
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified. Any errors aside from the
	// help message error can be ignored here since they will be caught by
	// the final parse below.
	preCfg := cfg
	preCfg.ConfigFile = ""
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	preArgs, err := preParser.ParseArgs(args)
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}
	}

	// Show the version and exit if the version flag was specified.
	progName := filepath.Base(os.Args[0])
	progName = strings.TrimSuffix(progName, filepath.Ext(progName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", progName)
	if preCfg.ShowVersion {
		fmt.Println(progName, "version", version())
		os.Exit(0)
	}

	// The config file may be named by flag or as the only positional
	// argument. A missing default config file is not an error.
	explicitConfig := true
	switch {
	case preCfg.ConfigFile != "":
		cfg.ConfigFile = preCfg.ConfigFile
	case len(preArgs) > 0:
		cfg.ConfigFile = preArgs[0]
	default:
		explicitConfig = false
	}
	cfg.ConfigFile = cleanAndExpandPath(cfg.ConfigFile)

	err = readConfigFile(cfg.ConfigFile, &cfg)
	if err != nil && (explicitConfig || !errors.Is(err, os.ErrNotExist)) {
		fmt.Fprintf(os.Stderr, "Error parsing config file: %v\n", err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// Parse command line options again to ensure they take precedence.
	parser := flags.NewParser(&cfg, flags.Default)
	remainingArgs, err := parser.ParseArgs(args)
	if err != nil {
		var e *flags.Error
		if !errors.As(err, &e) || e.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return nil, nil, err
	}
	if len(remainingArgs) > 1 {
		str := "%s: too many arguments %v -- only a config file may be " +
			"given"
		err := fmt.Errorf(str, "loadConfig", remainingArgs)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("%s: %v", "loadConfig", err.Error())
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	cfg.params, err = chaincfg.ParamsForNetwork(cfg.Network)
	if err != nil {
		err := fmt.Errorf("%s: network %q: %w", "loadConfig", cfg.Network, err)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}
	activeNetParams = cfg.params

	if cfg.HandshakeTimeout < 0 {
		str := "%s: the handshake timeout may not be negative: %v"
		err := fmt.Errorf(str, "loadConfig", cfg.HandshakeTimeout)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	if cfg.DestAddr == "" {
		str := "%s: no destination address -- set dest_addr in the " +
			"config file (see %s) or use --dest"
		err := fmt.Errorf(str, "loadConfig", sampleConfigFilename)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}
	cfg.destAddr, err = parseDestination(cfg.DestAddr, cfg.params.DefaultPort)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// Append the network type to the log directory so it is "namespaced"
	// per network.
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.LogDir = filepath.Join(cfg.LogDir, netName(cfg.params))

	return &cfg, remainingArgs, nil
}
