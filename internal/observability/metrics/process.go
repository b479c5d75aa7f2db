package metrics

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// RegisterDBStats exposes sql.DBStats for db under the go_sql_* metric family,
// labelled with db_name.
func RegisterDBStats(reg prometheus.Registerer, db *sql.DB, name string) error {
	if db == nil {
		return errors.New("register db stats: nil db")
	}
	if err := reg.Register(collectors.NewDBStatsCollector(db, name)); err != nil {
		return fmt.Errorf("register db stats: %w", err)
	}
	return nil
}

// RegisterBuildInfo publishes a constant catchup_notify_build_info gauge
// carrying the component and version as labels.
func RegisterBuildInfo(reg prometheus.Registerer, component, version string) error {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "catchup_notify_build_info",
		Help:        "Build information of the running binary",
		ConstLabels: prometheus.Labels{"component": component, "version": version},
	})
	g.Set(1)
	if err := reg.Register(g); err != nil {
		return fmt.Errorf("register build info: %w", err)
	}
	return nil
}
