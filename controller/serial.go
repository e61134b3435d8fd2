package controller

import (
	"errors"
	"fmt"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// SerialPortNone is offered alongside real ports to select the terminal console
const SerialPortNone = "None"

// ErrNoUSBSerial is returned when no USB serial adapter is connected
var ErrNoUSBSerial = errors.New("no USB serial ports found")

// GetSerialPorts lists the USB serial ports that can carry the operator console
func GetSerialPorts() ([]string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("error listing serial ports: %w", err)
	}

	var result []string
	for _, p := range ports {
		if p.IsUSB {
			result = append(result, p.Name)
		}
	}
	if len(result) == 0 {
		return nil, ErrNoUSBSerial
	}
	return result, nil
}

// OpenConsolePort opens the serial port used for operator prompts
func OpenConsolePort(cfg ConsoleConfig) (serial.Port, error) {
	baud := cfg.Baud
	if baud <= 0 {
		baud = defaultBaudRate
	}

	port, err := serial.Open(cfg.Port, &serial.Mode{
		BaudRate: baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("error opening serial port %s: %w", cfg.Port, err)
	}
	return port, nil
}
