// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Thermoquad/cip/pkg/cip"
)

var (
	host       string
	port       uint16
	ipid       uint8
	debugLevel int
)

var rootCmd = &cobra.Command{
	Use:   "cipctl",
	Short: "CIP client CLI",
	Long: `cipctl talks to a Crestron-over-IP (CIP) control processor as a
virtual touch panel: pressing/releasing digital joins, setting analog
values, sending serial strings, and watching join updates live.

The one-shot subcommands under connect wait for registration, perform
their operation, and disconnect; watch and serve connect without
waiting for registration and stay connected until they exit.`,
	Version: "0.1.0",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&host, "host", "", "processor hostname or IP address (required)")
	rootCmd.PersistentFlags().Uint16Var(&port, "port", cip.DefaultPort, "processor TCP port")
	rootCmd.PersistentFlags().Uint8Var(&ipid, "ipid", 3, "IPID this client registers as")
	rootCmd.PersistentFlags().IntVar(&debugLevel, "debug", int(cip.DebugLow), "diagnostic verbosity: 0=off 1=low 2=moderate 3=high")
	rootCmd.MarkPersistentFlagRequired("host")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// baseConfig builds the Configuration shared by every subcommand from
// the persistent flags.
func baseConfig() cip.Configuration {
	return cip.Configuration{
		Host:       host,
		Port:       port,
		IPID:       ipid,
		DebugLevel: cip.DebugLevel(debugLevel),
	}
}
