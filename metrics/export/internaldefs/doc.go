// Package internaldefs holds the exported metric names, help strings and histogram
// bounds shared by the Prometheus and OTel exporters, so both publish identical
// series.
package internaldefs
