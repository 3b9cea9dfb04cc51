package backup

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	filesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "housekeeper_backup_files_total",
		Help: "Files evaluated for backup by outcome (copied, skipped, error)",
	}, []string{"result"})

	lastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "housekeeper_backup_last_success_timestamp_seconds",
		Help: "Unix time of the last BackupAll run without errors",
	})

	archiveCommits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "housekeeper_backup_archive_commits_total",
		Help: "Commits recorded in the backup archive",
	})
)
