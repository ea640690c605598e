package nameservice

import (
	"time"

	"github.com/mackerelio/go-osstat/uptime"

	nserrors "github.com/DeBrosOfficial/nameservice/pkg/errors"
)

// Router priority inputs. Every input is an integer within a fixed range.
const (
	PowerSourceMin = 1000 // always on battery
	PowerSourceMax = 2500 // always on mains

	MobilityMin = 1  // always mobile
	MobilityMax = 10 // never moves

	AvailabilityMin = 3  // hours per day the node is expected to be up
	AvailabilityMax = 24

	NodeConnectionMin = 1  // wireless
	NodeConnectionMax = 10 // wired

	powerSourceWeight    = 1
	mobilityWeight       = 1500
	availabilityWeight   = 1329
	nodeConnectionWeight = 1500
	dynamicWeight        = 3152
)

// Score bounds derived from the weights above.
const (
	StaticScoreMin = PowerSourceMin*powerSourceWeight + MobilityMin*mobilityWeight +
		AvailabilityMin*availabilityWeight + NodeConnectionMin*nodeConnectionWeight
	StaticScoreMax = PowerSourceMax*powerSourceWeight + MobilityMax*mobilityWeight +
		AvailabilityMax*availabilityWeight + NodeConnectionMax*nodeConnectionWeight
	DynamicScoreMax = 3 * dynamicWeight

	// PriorityMax is the priority of the least capable node.
	PriorityMax = StaticScoreMax + DynamicScoreMax
)

func checkRange(param string, v, min, max int) error {
	if v < min || v > max {
		return nserrors.NewInvalidArgumentError(param, int64(v), int64(min), int64(max))
	}
	return nil
}

// StaticScore rates how suitable a host is to route for others, from
// properties that do not change while it runs.
func StaticScore(powerSource, mobility, availability, nodeConnection int) (uint32, error) {
	if err := checkRange("power_source", powerSource, PowerSourceMin, PowerSourceMax); err != nil {
		return 0, err
	}
	if err := checkRange("mobility", mobility, MobilityMin, MobilityMax); err != nil {
		return 0, err
	}
	if err := checkRange("availability", availability, AvailabilityMin, AvailabilityMax); err != nil {
		return 0, err
	}
	if err := checkRange("node_connection", nodeConnection, NodeConnectionMin, NodeConnectionMax); err != nil {
		return 0, err
	}
	return uint32(powerSource*powerSourceWeight + mobility*mobilityWeight +
		availability*availabilityWeight + nodeConnection*nodeConnectionWeight), nil
}

func capacityTerm(param string, avail, max int) (int, error) {
	if max < 1 {
		return 0, nserrors.NewInvalidArgumentError(param+"_max", int64(max), 1, int64(^uint32(0)>>1))
	}
	if err := checkRange(param+"_avail", avail, 0, max); err != nil {
		return 0, err
	}
	return dynamicWeight * avail / max, nil
}

// DynamicScore rates the spare connection capacity of a host: TCP, UDP and
// remote-client slots each contribute up to dynamicWeight.
func DynamicScore(tcpAvail, tcpMax, udpAvail, udpMax, tclAvail, tclMax int) (uint32, error) {
	tcp, err := capacityTerm("tcp", tcpAvail, tcpMax)
	if err != nil {
		return 0, err
	}
	udp, err := capacityTerm("udp", udpAvail, udpMax)
	if err != nil {
		return 0, err
	}
	tcl, err := capacityTerm("tcl", tclAvail, tclMax)
	if err != nil {
		return 0, err
	}
	return uint32(tcp + udp + tcl), nil
}

// Priority combines both scores into the advertised ranking. Lower values
// are preferred.
func Priority(staticScore, dynamicScore uint32) (uint32, error) {
	if err := checkRange("static_score", int(staticScore), StaticScoreMin, StaticScoreMax); err != nil {
		return 0, err
	}
	if err := checkRange("dynamic_score", int(dynamicScore), 0, DynamicScoreMax); err != nil {
		return 0, err
	}
	return PriorityMax - (staticScore + dynamicScore), nil
}

// AvailabilityFromUptime maps host uptime onto the availability range.
func AvailabilityFromUptime(d time.Duration) int {
	h := int(d / time.Hour)
	if h < AvailabilityMin {
		return AvailabilityMin
	}
	if h > AvailabilityMax {
		return AvailabilityMax
	}
	return h
}

// hostAvailability reads the host uptime, falling back to the minimum.
func hostAvailability() int {
	d, err := uptime.Get()
	if err != nil {
		return AvailabilityMin
	}
	return AvailabilityFromUptime(d)
}
