package main

import (
	"fmt"

	"github.com/mbcore/modbus"
)

// DiscreteGetCommands reads discrete inputs; like InputRegister, DiscreteInput
// is read-only, so there is no DiscreteSetCommands.
type DiscreteGetCommands struct {
	Timeout int `short:"t" long:"timeout" default:"5" description:"Timeout (in seconds)"`
	Args    struct {
		Addresses []string `required:"1"`
	} `positional-args:"yes" required:"yes"`
}

func (c *DiscreteGetCommands) Execute(args []string) error {
	conn, err := connect()
	if err != nil {
		return err
	}
	defer conn.client.Close()

	ranges, err := parseRanges(c.Args.Addresses)
	if err != nil {
		return err
	}
	ctx, cancel := conn.context(c.Timeout)
	defer cancel()

	objs, err := conn.client.Read(ctx, modbus.DiscreteInput, conn.unit, ranges)
	if err != nil {
		return fmt.Errorf("modbuscli: read discretes: %w", err)
	}
	printCollection(objs, true)
	return nil
}

type DiscreteCommands struct {
	Get DiscreteGetCommands `command:"get" alias:"read" description:"Get or read discrete input values"`
}
