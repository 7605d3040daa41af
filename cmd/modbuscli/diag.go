package main

import (
	"fmt"
	"strconv"

	"github.com/mbcore/modbus"
)

// DiagStatusCommands reports exception status and the server ID/run
// indicator, mirroring the teacher's clientMetadata.go ReadExceptionStatus
// and ReportServerID, now read together since both are cheap status calls.
type DiagStatusCommands struct {
	Timeout int `short:"t" long:"timeout" default:"5" description:"Timeout (in seconds)"`
}

func (c *DiagStatusCommands) Execute(args []string) error {
	conn, err := connect()
	if err != nil {
		return err
	}
	defer conn.client.Close()
	ctx, cancel := conn.context(c.Timeout)
	defer cancel()

	status, err := conn.client.ReadExceptionStatus(ctx, conn.unit)
	if err != nil {
		return fmt.Errorf("modbuscli: read exception status: %w", err)
	}
	fmt.Printf("exception status: 0x%02x\n", status)

	id, err := conn.client.ReportServerID(ctx, conn.unit)
	if err != nil {
		return fmt.Errorf("modbuscli: report server id: %w", err)
	}
	fmt.Printf("server id: %v running: %v\n", id.ID, id.RunIndicator)
	return nil
}

// DiagEchoCommands sends words through function 8 sub-function 0 and
// checks the device echoed them back unchanged.
type DiagEchoCommands struct {
	Timeout int `short:"t" long:"timeout" default:"5" description:"Timeout (in seconds)"`
	Args    struct {
		Words []string `required:"1"`
	} `positional-args:"yes" required:"yes"`
}

func (c *DiagEchoCommands) Execute(args []string) error {
	conn, err := connect()
	if err != nil {
		return err
	}
	defer conn.client.Close()

	words := make([]uint16, len(c.Args.Words))
	for i, a := range c.Args.Words {
		v, err := strconv.ParseUint(a, 10, 16)
		if err != nil {
			return fmt.Errorf("modbuscli: illegal word %q", a)
		}
		words[i] = uint16(v)
	}
	ctx, cancel := conn.context(c.Timeout)
	defer cancel()

	got, err := conn.client.DiagnosticEcho(ctx, conn.unit, words)
	if err != nil {
		return fmt.Errorf("modbuscli: diagnostic echo: %w", err)
	}
	fmt.Printf("echoed: %v\n", got)
	return nil
}

// DiagCountCommands reads one diagnostic counter, named the way the
// teacher's Diagnostic.String() prints them.
type DiagCountCommands struct {
	Timeout int `short:"t" long:"timeout" default:"5" description:"Timeout (in seconds)"`
	Args    struct {
		Counter string `required:"1"`
	} `positional-args:"yes" required:"yes"`
}

var diagCounterNames = map[string]modbus.Diagnostic{
	"bus-messages":          modbus.BusMessages,
	"bus-comm-errors":       modbus.BusCommErrors,
	"bus-exception-errors":  modbus.BusExceptionErrors,
	"server-messages":       modbus.ServerMessages,
	"server-no-responses":   modbus.ServerNoResponses,
	"server-naks":           modbus.ServerNAKs,
	"server-busies":         modbus.ServerBusies,
	"bus-character-overruns": modbus.BusCharacterOverruns,
}

func (c *DiagCountCommands) Execute(args []string) error {
	counter, ok := diagCounterNames[c.Args.Counter]
	if !ok {
		return fmt.Errorf("modbuscli: unknown counter %q", c.Args.Counter)
	}
	conn, err := connect()
	if err != nil {
		return err
	}
	defer conn.client.Close()
	ctx, cancel := conn.context(c.Timeout)
	defer cancel()

	v, err := conn.client.DiagnosticCount(ctx, conn.unit, counter)
	if err != nil {
		return fmt.Errorf("modbuscli: diagnostic count: %w", err)
	}
	fmt.Printf("%v: %d\n", counter, v)
	return nil
}

// DiagClearCommands resets all diagnostic counters and the event log
// (function 8, sub-function 10).
type DiagClearCommands struct {
	Timeout int `short:"t" long:"timeout" default:"5" description:"Timeout (in seconds)"`
}

func (c *DiagClearCommands) Execute(args []string) error {
	conn, err := connect()
	if err != nil {
		return err
	}
	defer conn.client.Close()
	ctx, cancel := conn.context(c.Timeout)
	defer cancel()

	if err := conn.client.DiagnosticClear(ctx, conn.unit); err != nil {
		return fmt.Errorf("modbuscli: diagnostic clear: %w", err)
	}
	fmt.Println("diagnostic counters cleared")
	return nil
}

// DiagDeviceIDCommands walks the device identification categories
// (function 43 / MEI type 14) and prints every object the device offers.
type DiagDeviceIDCommands struct {
	Timeout int `short:"t" long:"timeout" default:"5" description:"Timeout (in seconds)"`
}

func (c *DiagDeviceIDCommands) Execute(args []string) error {
	conn, err := connect()
	if err != nil {
		return err
	}
	defer conn.client.Close()
	ctx, cancel := conn.context(c.Timeout)
	defer cancel()

	objs, err := conn.client.ReadDeviceIdentification(ctx, conn.unit)
	if err != nil {
		return fmt.Errorf("modbuscli: read device identification: %w", err)
	}
	for id, v := range objs {
		fmt.Printf("0x%02x: %s\n", id, v)
	}
	return nil
}

type DiagCommands struct {
	Status   DiagStatusCommands   `command:"status" description:"Read exception status and server ID"`
	Echo     DiagEchoCommands     `command:"echo" description:"Diagnostic echo test"`
	Count    DiagCountCommands    `command:"count" description:"Read a diagnostic counter"`
	Clear    DiagClearCommands    `command:"clear" description:"Clear diagnostic counters and event log"`
	DeviceID DiagDeviceIDCommands `command:"device-id" alias:"identification" description:"Read device identification objects"`
}
