package main

import (
	"fmt"

	"github.com/mbcore/modbus"
)

type CoilGetCommands struct {
	Timeout int `short:"t" long:"timeout" default:"5" description:"Timeout (in seconds)"`
	Args    struct {
		Addresses []string `required:"1"`
	} `positional-args:"yes" required:"yes"`
}

func (c *CoilGetCommands) Execute(args []string) error {
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

	objs, err := conn.client.Read(ctx, modbus.Coil, conn.unit, ranges)
	if err != nil {
		return fmt.Errorf("modbuscli: read coils: %w", err)
	}
	printCollection(objs, true)
	return nil
}

// CoilSetCommands writes true/false values, e.g. "5=true", to one or more
// coils and reads them back to confirm.
type CoilSetCommands struct {
	Timeout int `short:"t" long:"timeout" default:"5" description:"Timeout (in seconds)"`
	Args    struct {
		AddressValues []string `required:"1"`
	} `positional-args:"yes" required:"yes"`
}

func (c *CoilSetCommands) Execute(args []string) error {
	conn, err := connect()
	if err != nil {
		return err
	}
	defer conn.client.Close()

	objs, err := parseAddressValues(modbus.Coil, true, c.Args.AddressValues)
	if err != nil {
		return err
	}
	ctx, cancel := conn.context(c.Timeout)
	defer cancel()

	if err := conn.client.Write(ctx, modbus.Coil, conn.unit, objs); err != nil {
		return fmt.Errorf("modbuscli: write coils: %w", err)
	}

	verifyRanges, err := objs.GetRanges(0, 0)
	if err != nil {
		return nil
	}
	got, err := conn.client.Read(ctx, modbus.Coil, conn.unit, verifyRanges)
	if err != nil {
		fmt.Printf("write coils verify: failed: %v\n", err)
		return nil
	}
	printCollection(got, true)
	return nil
}

type CoilCommands struct {
	Get CoilGetCommands `command:"get" alias:"read" description:"Get or read coil values"`
	Set CoilSetCommands `command:"set" alias:"write" description:"Set or write coil values"`
}
