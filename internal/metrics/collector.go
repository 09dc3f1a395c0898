package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// CollectorStore defines the count queries the database collector runs.
type CollectorStore interface {
	CountUsers(ctx context.Context) (int64, error)
	ProjectStatusCounts(ctx context.Context) (map[string]int64, error)
	JobStatusCounts(ctx context.Context) (map[string]int64, error)
}

type dbSnapshot struct {
	users    int64
	projects map[string]int64
	jobsBy   map[string]int64
}

// DBCollector exposes database-derived gauges. Counts are cached so a
// tight scrape loop cannot hammer the database.
type DBCollector struct {
	store       CollectorStore
	logger      zerolog.Logger
	cacheExpiry time.Duration

	mu            sync.Mutex
	lastCollected time.Time
	cached        *dbSnapshot

	usersDesc    *prometheus.Desc
	projectsDesc *prometheus.Desc
	jobsDesc     *prometheus.Desc
}

// NewDBCollector creates a database gauge collector.
func NewDBCollector(store CollectorStore, logger zerolog.Logger) *DBCollector {
	return &DBCollector{
		store:       store,
		logger:      logger.With().Str("component", "metrics_collector").Logger(),
		cacheExpiry: 15 * time.Second,
		usersDesc: prometheus.NewDesc(
			"landppt_users_total",
			"Registered user accounts.",
			nil, nil,
		),
		projectsDesc: prometheus.NewDesc(
			"landppt_projects",
			"Projects by lifecycle status.",
			[]string{"status"}, nil,
		),
		jobsDesc: prometheus.NewDesc(
			"landppt_jobs",
			"Background jobs by queue status.",
			[]string{"status"}, nil,
		),
	}
}

func (c *DBCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.usersDesc
	ch <- c.projectsDesc
	ch <- c.jobsDesc
}

func (c *DBCollector) Collect(ch chan<- prometheus.Metric) {
	snapshot := c.snapshot()
	if snapshot == nil {
		return
	}

	ch <- prometheus.MustNewConstMetric(c.usersDesc, prometheus.GaugeValue, float64(snapshot.users))
	for status, count := range snapshot.projects {
		ch <- prometheus.MustNewConstMetric(c.projectsDesc, prometheus.GaugeValue, float64(count), status)
	}
	for status, count := range snapshot.jobsBy {
		ch <- prometheus.MustNewConstMetric(c.jobsDesc, prometheus.GaugeValue, float64(count), status)
	}
}

func (c *DBCollector) snapshot() *dbSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil && time.Since(c.lastCollected) < c.cacheExpiry {
		return c.cached
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snapshot := &dbSnapshot{}

	users, err := c.store.CountUsers(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to count users")
		return c.cached
	}
	snapshot.users = users

	projects, err := c.store.ProjectStatusCounts(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to count projects")
		return c.cached
	}
	snapshot.projects = projects

	jobs, err := c.store.JobStatusCounts(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to count jobs")
		return c.cached
	}
	snapshot.jobsBy = jobs

	c.cached = snapshot
	c.lastCollected = time.Now()
	return snapshot
}
