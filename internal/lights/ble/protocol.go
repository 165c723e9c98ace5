package ble

import (
	"tinygo.org/x/bluetooth"

	"github.com/scheerer/bt-screen-colors/internal/lights"
)

// Vendor protocol of the ffd5/ffd9 family of RGB strip controllers.
const (
	ControlCharacteristicUUID = "0000ffd9-0000-1000-8000-00805f9b34fb"

	colorCommand byte = 0x56
	powerCommand byte = 0xcc
	powerOn      byte = 0x23
	powerOff     byte = 0x24
	powerTrailer byte = 0x33
)

// trailer that follows the RGB bytes: white level, RGB mode, end marker
var colorTrailer = [3]byte{0x00, 0xf0, 0xaa}

var controlCharacteristic = mustParseUUID(ControlCharacteristicUUID)

// ColorPacket encodes c as a set-color command: 0x56 R G B 0x00 0xF0 0xAA.
func ColorPacket(c lights.Color) []byte {
	return []byte{
		colorCommand,
		c.Red, c.Green, c.Blue,
		colorTrailer[0], colorTrailer[1], colorTrailer[2],
	}
}

// PowerPacket encodes a power on (0xCC 0x23 0x33) or off (0xCC 0x24 0x33) command.
func PowerPacket(on bool) []byte {
	state := powerOff
	if on {
		state = powerOn
	}
	return []byte{powerCommand, state, powerTrailer}
}

func mustParseUUID(s string) bluetooth.UUID {
	uuid, err := bluetooth.ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return uuid
}
