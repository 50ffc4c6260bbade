// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/cip/pkg/cip"
)

// handshakeTimeout bounds how long a one-shot subcommand waits for
// registration before giving up. The protocol itself has no configured
// handshake timeout (spec.md leaves TCP connect at a fixed 2s and the
// registration exchange is otherwise unbounded), so this is a CLI-only
// convenience, not a protocol constant.
const handshakeTimeout = 5 * time.Second

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "One-shot join operations against a processor",
}

func init() {
	rootCmd.AddCommand(connectCmd)
	connectCmd.AddCommand(pressCmd, releaseCmd, pulseCmd, analogCmd, serialCmd, updateCmd)
}

// connectAndWait connects a Client and blocks until it is registered
// or handshakeTimeout elapses, closing the client on failure so a
// one-shot subcommand never leaks a background connection.
func connectAndWait(cfg cip.Configuration) (*cip.Client, error) {
	ready := make(chan struct{}, 1)
	cfg.OnRegistrationState = func(r bool) {
		if r {
			select {
			case ready <- struct{}{}:
			default:
			}
		}
	}

	client := cip.NewClient(cfg)
	client.Connect(true)

	select {
	case <-ready:
		return client, nil
	case <-time.After(handshakeTimeout):
		lastErr := client.LastError()
		client.Close()
		return nil, fmt.Errorf("timed out waiting for registration after %s (last error: %v)", handshakeTimeout, lastErr)
	}
}

func parseJoin(s string) (cip.JoinID, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid join %q: %w", s, err)
	}
	return cip.JoinID(n), nil
}

var pressCmd = &cobra.Command{
	Use:   "press JOIN",
	Short: "Press a digital join (set high, button style)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		join, err := parseJoin(args[0])
		if err != nil {
			return err
		}
		client, err := connectAndWait(baseConfig())
		if err != nil {
			return err
		}
		defer client.Close()
		return client.Press(join)
	},
}

var releaseCmd = &cobra.Command{
	Use:   "release JOIN",
	Short: "Release a digital join (set low, button style)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		join, err := parseJoin(args[0])
		if err != nil {
			return err
		}
		client, err := connectAndWait(baseConfig())
		if err != nil {
			return err
		}
		defer client.Close()
		return client.Release(join)
	},
}

var pulseCmd = &cobra.Command{
	Use:   "pulse JOIN",
	Short: "Press then release a digital join",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		join, err := parseJoin(args[0])
		if err != nil {
			return err
		}
		client, err := connectAndWait(baseConfig())
		if err != nil {
			return err
		}
		defer client.Close()
		return client.Pulse(join)
	},
}

var analogCmd = &cobra.Command{
	Use:   "analog JOIN VALUE",
	Short: "Set an analog join's 16-bit value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		join, err := parseJoin(args[0])
		if err != nil {
			return err
		}
		value, err := strconv.ParseUint(args[1], 10, 16)
		if err != nil {
			return fmt.Errorf("invalid value %q: %w", args[1], err)
		}
		client, err := connectAndWait(baseConfig())
		if err != nil {
			return err
		}
		defer client.Close()
		return client.SetAnalog(join, uint16(value))
	},
}

var serialCmd = &cobra.Command{
	Use:   "serial JOIN STRING",
	Short: "Send an ASCII string (1-255 bytes) to a serial join",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		join, err := parseJoin(args[0])
		if err != nil {
			return err
		}
		client, err := connectAndWait(baseConfig())
		if err != nil {
			return err
		}
		defer client.Close()
		return client.SendSerial(join, args[1])
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Ask the processor to re-broadcast every join's current value",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := connectAndWait(baseConfig())
		if err != nil {
			return err
		}
		defer client.Close()
		return client.SendUpdateRequest()
	},
}
