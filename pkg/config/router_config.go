package config

// RouterConfig holds the inputs to the advertised router priority.
type RouterConfig struct {
	PowerSource    int `yaml:"power_source"`    // 1000..2500
	Mobility       int `yaml:"mobility"`        // 1..10
	Availability   int `yaml:"availability"`    // 3..24 hours, 0 derives it from host uptime
	NodeConnection int `yaml:"node_connection"` // 1..10

	// Capacity maxima for the dynamic score
	MaxTCP    int `yaml:"max_tcp"`
	MaxUDP    int `yaml:"max_udp"`
	MaxRemote int `yaml:"max_remote"`
}
