package main

/*
modbuscli is a thin command-line front end over the client pipeline,
reworked from the teacher's mbcli/mbcli.go: the same go-flags command tree
(one subcommand per object family, each with get/set children), but
talking to this package's Client instead of the teacher's channel-actor
Modbus/Client pair. The connection comes from a --conn string like
"tcp:host:port" (without the teacher's trailing unit, which is --unit
here), and client tuning comes from an optional config file via viper.
*/

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
)

// CLICommand is the root command tree, mirroring the teacher's
// per-object-family subcommand layout (coil/discrete/holding/input/diag).
type CLICommand struct {
	Config   string            `long:"config" description:"Path to a config file (yaml/json/toml), loaded via viper" env:"MODBUSCLI_CONFIG"`
	Conn     string            `long:"conn" description:"Connection string: tcp:host:port or rtu:device:baud:parity" env:"MODBUSCLI_CONN" required:"true"`
	Unit     int               `long:"unit" default:"1" description:"Device/unit ID to address"`
	Verbose  bool              `long:"verbose" description:"Has no effect; requests and responses are not printed"`
	Holding  HoldingCommands   `command:"holding" alias:"holdings" description:"Holding register functions"`
	Coil     CoilCommands      `command:"coil" alias:"coils" description:"Coil functions"`
	Input    InputCommands     `command:"input" alias:"inputs" description:"Input register functions"`
	Discrete DiscreteCommands  `command:"discrete" alias:"discretes" description:"Discrete input functions"`
	Diag     DiagCommands      `command:"diag" alias:"diagnostics" description:"Diagnostic functions"`
}

var cli CLICommand

func main() {
	parser := flags.NewParser(&cli, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.Parse(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
