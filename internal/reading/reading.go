// Package reading holds the decoded values produced by device drivers.
package reading

import "fmt"

// NodeID uniquely identifies a physical sensor node.
type NodeID uint64

// String renders the identity as fixed-width hex.
func (id NodeID) String() string {
	return fmt.Sprintf("0x%016X", uint64(id))
}

// Field is a single named numeric value of a reading.
type Field struct {
	Name  string
	Value float64
}

// Reading is implemented by every device-specific reading.
type Reading interface {
	Node() NodeID
	// Fields lists the values forwarded to metric sinks, in wire order.
	Fields() []Field
	reading()
}

// Environmental is produced by ENS160 + AHT21 nodes.
type Environmental struct {
	UniqueID    uint64  `json:"unique_id"`
	DeviceTime  uint64  `json:"device_time"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	CO2         uint16  `json:"co2"`
	TVOC        uint16  `json:"tvoc"`
	Ethanol     uint16  `json:"ethanol"`
	AQI         uint8   `json:"aqi"`
}

func (Environmental) reading() {}

// Node implements Reading.
func (r Environmental) Node() NodeID { return NodeID(r.UniqueID) }

// Fields implements Reading.
func (r Environmental) Fields() []Field {
	return []Field{
		{Name: "unique_id", Value: float64(r.UniqueID)},
		{Name: "device_time", Value: float64(r.DeviceTime)},
		{Name: "temperature", Value: r.Temperature},
		{Name: "humidity", Value: r.Humidity},
		{Name: "co2", Value: float64(r.CO2)},
		{Name: "tvoc", Value: float64(r.TVOC)},
		{Name: "ethanol", Value: float64(r.Ethanol)},
		{Name: "aqi", Value: float64(r.AQI)},
	}
}

// Light is produced by ambient light nodes.
type Light struct {
	UniqueID    uint64  `json:"unique_id"`
	Battery     float64 `json:"battery"`
	Illuminance float64 `json:"illuminance"`
}

func (Light) reading() {}

// Node implements Reading.
func (r Light) Node() NodeID { return NodeID(r.UniqueID) }

// Fields implements Reading.
func (r Light) Fields() []Field {
	return []Field{
		{Name: "battery", Value: r.Battery},
		{Name: "illuminance", Value: r.Illuminance},
	}
}
