package main

import (
	"fmt"

	"github.com/mbcore/modbus"
)

// HoldingGetCommands reads one or more address ranges of holding registers,
// following the teacher's HoldingGetCommands shape (positional addresses,
// a per-call timeout flag) but against this package's Client/Range types.
type HoldingGetCommands struct {
	Timeout int `short:"t" long:"timeout" default:"5" description:"Timeout (in seconds)"`
	Args    struct {
		Addresses []string `required:"1"`
	} `positional-args:"yes" required:"yes"`
}

func (c *HoldingGetCommands) Execute(args []string) error {
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

	objs, err := conn.client.Read(ctx, modbus.HoldingRegister, conn.unit, ranges)
	if err != nil {
		return fmt.Errorf("modbuscli: read holdings: %w", err)
	}
	printCollection(objs, false)
	return nil
}

// HoldingSetCommands writes address=value pairs and reads them back to
// confirm, mirroring the teacher's HoldingSetCommands verify-after-write.
type HoldingSetCommands struct {
	Timeout int `short:"t" long:"timeout" default:"5" description:"Timeout (in seconds)"`
	Args    struct {
		AddressValues []string `required:"1"`
	} `positional-args:"yes" required:"yes"`
}

func (c *HoldingSetCommands) Execute(args []string) error {
	conn, err := connect()
	if err != nil {
		return err
	}
	defer conn.client.Close()

	objs, err := parseAddressValues(modbus.HoldingRegister, false, c.Args.AddressValues)
	if err != nil {
		return err
	}
	ctx, cancel := conn.context(c.Timeout)
	defer cancel()

	if err := conn.client.Write(ctx, modbus.HoldingRegister, conn.unit, objs); err != nil {
		return fmt.Errorf("modbuscli: write holdings: %w", err)
	}

	verifyRanges, err := objs.GetRanges(0, 0)
	if err != nil {
		return nil
	}
	got, err := conn.client.Read(ctx, modbus.HoldingRegister, conn.unit, verifyRanges)
	if err != nil {
		fmt.Printf("write holdings verify: failed: %v\n", err)
		return nil
	}
	printCollection(got, false)
	return nil
}

type HoldingCommands struct {
	Get HoldingGetCommands `command:"get" alias:"read" description:"Get or read holding register values"`
	Set HoldingSetCommands `command:"set" alias:"write" description:"Set or write holding register values"`
}
