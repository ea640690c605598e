package validate

import "regexp"

// MetricsConfig mirrors config.MetricsConfig for validation purposes.
type MetricsConfig struct {
	Enabled    bool
	ListenAddr string
	Namespace  string
}

var metricNamespace = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateMetrics performs validation of the metrics endpoint.
func ValidateMetrics(m MetricsConfig) []error {
	var errs []error
	if m.Enabled {
		if err := ValidateHostPort(m.ListenAddr); err != nil {
			errs = append(errs, ValidationError{Path: "metrics.listen_addr", Message: err.Error()})
		}
	}
	if m.Namespace != "" && !metricNamespace.MatchString(m.Namespace) {
		errs = append(errs, ValidationError{
			Path:    "metrics.namespace",
			Message: "invalid Prometheus namespace",
			Hint:    "letters, digits and underscores, not starting with a digit",
		})
	}
	return errs
}
