package main

import (
	"fmt"

	"github.com/mbcore/modbus"
)

// InputGetCommands reads input registers; InputRegister has no writable
// counterpart (see object.go's writable()), so there is no InputSetCommands.
type InputGetCommands struct {
	Timeout int `short:"t" long:"timeout" default:"5" description:"Timeout (in seconds)"`
	Args    struct {
		Addresses []string `required:"1"`
	} `positional-args:"yes" required:"yes"`
}

func (c *InputGetCommands) Execute(args []string) error {
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

	objs, err := conn.client.Read(ctx, modbus.InputRegister, conn.unit, ranges)
	if err != nil {
		return fmt.Errorf("modbuscli: read inputs: %w", err)
	}
	printCollection(objs, false)
	return nil
}

type InputCommands struct {
	Get InputGetCommands `command:"get" alias:"read" description:"Get or read input register values"`
}
