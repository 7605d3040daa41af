package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/mbcore/modbus"
)

// loadClientOptions reads client pipeline tuning from the config file
// named on the command line (if any) via viper, falling back to this
// package's defaults when the file is absent or a key is unset.
func loadClientOptions() ([]modbus.ClientOption, error) {
	v := viper.New()
	v.SetDefault("responseTimeout", "2s")
	v.SetDefault("exceptionRetryDelay", "500ms")
	v.SetDefault("busyRetryDelay", "1s")
	v.SetDefault("retryCount", 4)
	v.SetDefault("idleTimeout", "7s")

	if cli.Config != "" {
		v.SetConfigFile(cli.Config)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("modbuscli: reading config %s: %w", cli.Config, err)
		}
	}

	var opts []modbus.ClientOption
	opts = append(opts, modbus.WithResponseTimeout(v.GetDuration("responseTimeout")))
	opts = append(opts, modbus.WithExceptionRetryDelay(v.GetDuration("exceptionRetryDelay")))
	opts = append(opts, modbus.WithBusyRetryDelay(v.GetDuration("busyRetryDelay")))
	opts = append(opts, modbus.WithRetryCount(v.GetInt("retryCount")))
	opts = append(opts, modbus.WithIdleTimeout(v.GetDuration("idleTimeout")))
	return opts, nil
}

// dialerFor parses a "tcp:host:port" or "rtu:device:baud:parity" connection
// string, following the shape of the teacher's mbcli access strings
// (tcp:host:port:unit / rtu:device:baud:parity:stop:unit), minus the unit
// ID: here the unit/device ID travels per-request, not per-connection.
func dialerFor(access string) (func(ctx context.Context) (modbus.Transport, error), error) {
	parts := strings.Split(access, ":")
	switch parts[0] {
	case "tcp":
		if len(parts) != 3 {
			return nil, fmt.Errorf("modbuscli: expected tcp:host:port, got %q", access)
		}
		addr := parts[1] + ":" + parts[2]
		return func(ctx context.Context) (modbus.Transport, error) {
			return modbus.DialTCP(ctx, addr, nil)
		}, nil
	case "rtu":
		if len(parts) != 4 {
			return nil, fmt.Errorf("modbuscli: expected rtu:device:baud:parity, got %q", access)
		}
		baud, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, fmt.Errorf("modbuscli: illegal baud %q", parts[2])
		}
		if len(parts[3]) != 1 {
			return nil, fmt.Errorf("modbuscli: illegal parity %q", parts[3])
		}
		cfg := modbus.RTUConfig{Address: parts[1], Baud: baud, Parity: parts[3][0], RS485: false}
		return func(ctx context.Context) (modbus.Transport, error) {
			return modbus.OpenRTU(cfg, nil)
		}, nil
	default:
		return nil, fmt.Errorf("modbuscli: unknown connection type %q (expect tcp or rtu)", parts[0])
	}
}
