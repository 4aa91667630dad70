package main

import (
	"fmt"
	"os"
	"time"

	"github.com/alextanhongpin/friendlist/config"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	bindHost    string
	peerTimeout time.Duration
	readTimeout time.Duration
	opsAddr     string
	redisAddr   string
	logLevel    string
	logFormat   string

	rootCmd = &cobra.Command{
		Use:   "friendlist <port>",
		Short: "Serves a friend graph over HTTP and introduces friends from peer servers",
		Long: `friendlist keeps an in-memory, symmetric friend graph and serves it over a
minimal HTTP/1.0 protocol. /introduce crawls a peer friendlist server and
befriends the user with the friends it returns.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
)

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	flags.StringVar(&bindHost, "bind", "", "host to bind the friend protocol to")
	flags.DurationVar(&peerTimeout, "peer-timeout", config.DefaultPeerTimeout, "timeout for one peer fetch")
	flags.DurationVar(&readTimeout, "read-timeout", 0, "time allowed to read a request, 0 for none")
	flags.StringVar(&opsAddr, "ops-addr", "", "address for health, metrics and event streams")
	flags.StringVar(&redisAddr, "redis-addr", "", "redis address to publish graph changes to")
	flags.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	flags.StringVar(&logFormat, "log-format", "json", "json or text")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "friendlist: %v\n", err)
		fmt.Fprintf(os.Stderr, "usage: %s\n", rootCmd.UseLine())
		os.Exit(1)
	}
}

// loadConfig merges the config file, explicitly set flags and the port
// argument, in increasing precedence.
func loadConfig(cmd *cobra.Command, port string) (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("bind") {
		cfg.BindHost = bindHost
	}
	if flags.Changed("peer-timeout") {
		cfg.PeerTimeout = peerTimeout
	}
	if flags.Changed("read-timeout") {
		cfg.ReadTimeout = readTimeout
	}
	if flags.Changed("ops-addr") {
		cfg.OpsAddr = opsAddr
	}
	if flags.Changed("redis-addr") {
		cfg.RedisAddr = redisAddr
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = logFormat
	}
	cfg.Port = port

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
