package validate

import "fmt"

// RouterConfig mirrors config.RouterConfig for validation purposes.
type RouterConfig struct {
	PowerSource    int
	Mobility       int
	Availability   int
	NodeConnection int
	MaxTCP         int
	MaxUDP         int
	MaxRemote      int
}

// ValidateRouter checks the static score inputs against their documented ranges.
func ValidateRouter(r RouterConfig) []error {
	var errs []error
	check := func(path string, v, lo, hi int) {
		if err := ValidateRange(v, lo, hi); err != nil {
			errs = append(errs, ValidationError{Path: path, Message: err.Error()})
		}
	}

	check("router.power_source", r.PowerSource, 1000, 2500)
	check("router.mobility", r.Mobility, 1, 10)
	if r.Availability != 0 {
		check("router.availability", r.Availability, 3, 24)
	}
	check("router.node_connection", r.NodeConnection, 1, 10)

	for path, v := range map[string]int{
		"router.max_tcp":    r.MaxTCP,
		"router.max_udp":    r.MaxUDP,
		"router.max_remote": r.MaxRemote,
	} {
		if v < 1 {
			errs = append(errs, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("must be at least 1; got %d", v),
			})
		}
	}

	return errs
}
