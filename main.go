// ABOUTME: Entry point for the audio-share streaming server
// ABOUTME: Parses CLI flags and starts the control plane, UDP fan-out, and WebSocket gateway
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/audio-share/audio-share-go/internal/audioformat"
	"github.com/audio-share/audio-share-go/internal/audioshare"
	"github.com/audio-share/audio-share-go/internal/capture"
	"github.com/audio-share/audio-share-go/internal/netaddr"
)

// minPort, maxPort, and defaultPort mirror constants.hpp's MIN_PORT,
// MAX_PORT, and DEFAULT_PORT.
const (
	minPort     = 1
	maxPort     = 65535
	defaultPort = 65530
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "audio-share-server",
	Short: "Audio Share streaming server",
	Long:  "Audio Share server - streams captured PCM audio to TCP/UDP and WebSocket listeners",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var listEncodingCmd = &cobra.Command{
	Use:   "list-encoding",
	Short: "List available encodings and exit",
	Run: func(cmd *cobra.Command, args []string) {
		for _, e := range []string{"f32", "s8", "s16", "s24", "s32"} {
			fmt.Println(e)
		}
	},
}

var listEndpointCmd = &cobra.Command{
	Use:   "list-endpoint",
	Short: "List available network addresses and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		addrs, err := netaddr.List()
		if err != nil {
			return fmt.Errorf("error listing addresses: %w", err)
		}
		for _, a := range addrs {
			fmt.Println(a.String())
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./audio-share.yaml if present)")

	runCmd.Flags().String("bind", "", "Server bind address [host][:port] (default: autodetect host, port 65530)")
	runCmd.Flags().Int("websocket-port", 0, "WebSocket server port for browser clients (default: main port + 1)")
	runCmd.Flags().String("encoding", "s16", "Capture encoding: f32, s8, s16, s24, s32")
	runCmd.Flags().Int("channels", 2, "Number of channels")
	runCmd.Flags().Int("sample-rate", 48000, "Sample rate in Hz")
	runCmd.Flags().String("log-file", "audio-share.log", "Log file path")

	viper.BindPFlag("bind", runCmd.Flags().Lookup("bind"))
	viper.BindPFlag("websocket_port", runCmd.Flags().Lookup("websocket-port"))
	viper.BindPFlag("encoding", runCmd.Flags().Lookup("encoding"))
	viper.BindPFlag("channels", runCmd.Flags().Lookup("channels"))
	viper.BindPFlag("sample_rate", runCmd.Flags().Lookup("sample-rate"))
	viper.BindPFlag("log_file", runCmd.Flags().Lookup("log-file"))

	rootCmd.AddCommand(runCmd, listEncodingCmd, listEndpointCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig layers viper's defaults under any --config file and any
// AUDIOSHARE_-prefixed environment variable, with the run command's own
// flags (bound above) taking precedence over both - the same
// file/env/flag layering breeze-agent's internal/config.Load does with
// its own BREEZE_ env prefix.
func loadConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("audio-share")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	viper.SetEnvPrefix("AUDIOSHARE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}
	return nil
}

func runServer() error {
	if err := loadConfig(); err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	f, err := os.OpenFile(viper.GetString("log_file"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("error opening log file: %w", err)
	}
	defer f.Close()
	log.SetOutput(io.MultiWriter(os.Stdout, f))

	host, port, err := parseBind(viper.GetString("bind"))
	if err != nil {
		return err
	}

	enc, err := audioformat.ParseEncoding(viper.GetString("encoding"))
	if err != nil {
		return fmt.Errorf("invalid encoding: %w", err)
	}
	format := audioformat.Format{
		Encoding:   enc,
		Channels:   viper.GetInt("channels"),
		SampleRate: viper.GetInt("sample_rate"),
	}
	if err := format.Validate(); err != nil {
		return fmt.Errorf("invalid audio format: %w", err)
	}

	wsPort := viper.GetInt("websocket_port")
	if wsPort <= 0 || wsPort > maxPort {
		wsPort = port + 1
	}

	srv, err := audioshare.New(audioshare.Config{
		Host:          host,
		Port:          uint16(port),
		WebSocketPort: uint16(wsPort),
		Format:        format,
	})
	if err != nil {
		return fmt.Errorf("failed to configure server: %w", err)
	}

	log.Printf("Starting audio-share server on %s:%d (websocket %s:%d), format %s %dch %dHz",
		host, port, host, wsPort, format.Encoding, format.Channels, format.SampleRate)

	source := capture.NewTestTone(format)
	if err := srv.Start(source); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Printf("shutdown signal received, stopping")
	srv.Stop()
	log.Printf("server stopped")
	return nil
}

// parseBind splits a "[host][:port]" bind string the way main.cpp's
// --bind handling does: an empty port after a colon or a port outside
// [minPort, maxPort] is a fatal configuration error with the exact
// wording the original tool reports; an absent colon means defaultPort;
// an absent host means the machine's first private (or else first any)
// IPv4 address.
func parseBind(s string) (host string, port int, err error) {
	if s == "" {
		host, err = defaultHost()
		if err != nil {
			return "", 0, err
		}
		return host, defaultPort, nil
	}

	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		host = s
		port = defaultPort
	} else {
		host = s[:idx]
		portStr := s[idx+1:]
		if portStr == "" {
			return "", 0, fmt.Errorf("Port number cannot be empty")
		}
		portVal, convErr := strconv.Atoi(portStr)
		if convErr != nil {
			return "", 0, fmt.Errorf("invalid port number: %q", portStr)
		}
		if portVal < minPort || portVal > maxPort {
			return "", 0, fmt.Errorf("Port must be between %d and %d, got %d", minPort, maxPort, portVal)
		}
		port = portVal
	}

	if host == "" {
		host, err = defaultHost()
		if err != nil {
			return "", 0, err
		}
	}
	return host, port, nil
}

func defaultHost() (string, error) {
	host := netaddr.DefaultAddress()
	if host == "" {
		return "", fmt.Errorf("no valid network address found, please specify a host address")
	}
	return host, nil
}
