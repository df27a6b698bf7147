package device

import (
	"encoding/binary"
	"fmt"
)

// Bluetooth SIG assigned company identifiers seen around accelerometer sensors.
const (
	CompanySuunto uint16 = 0x009F // Movesense sensors advertise as Suunto Oy
	CompanyPolar  uint16 = 0x006B
	CompanyNordic uint16 = 0x0059
	CompanyApple  uint16 = 0x004C
)

var companyNames = map[uint16]string{
	CompanySuunto: "Suunto",
	CompanyPolar:  "Polar",
	CompanyNordic: "Nordic Semiconductor",
	CompanyApple:  "Apple",
}

// CompanyID extracts the company identifier from raw manufacturer data.
// By BLE convention it is the first 2 bytes, little-endian. Not every
// vendor follows the convention.
func CompanyID(data []byte) (uint16, error) {
	if len(data) < 2 {
		return 0, fmt.Errorf("manufacturer data too short: %d bytes", len(data))
	}
	return binary.LittleEndian.Uint16(data[0:2]), nil
}

// VendorName returns a human-readable vendor for the manufacturer data, or
// "" when the data is absent or the company is not one we know.
func VendorName(data []byte) string {
	id, err := CompanyID(data)
	if err != nil {
		return ""
	}
	return companyNames[id]
}
