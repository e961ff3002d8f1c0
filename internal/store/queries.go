package store

// Host queries
const (
	queryUpsertHost = `
		INSERT INTO hosts (address, hostname, subnet, reachable, open_ports, os_class, latency_ms, survey_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (address) DO UPDATE SET
			hostname   = EXCLUDED.hostname,
			subnet     = EXCLUDED.subnet,
			reachable  = EXCLUDED.reachable,
			open_ports = EXCLUDED.open_ports,
			os_class   = EXCLUDED.os_class,
			latency_ms = EXCLUDED.latency_ms,
			survey_id  = EXCLUDED.survey_id,
			updated_at = CURRENT_TIMESTAMP`

	queryGetHost = `
		SELECT address, hostname, subnet, reachable, open_ports, os_class, latency_ms, survey_id
		FROM hosts WHERE address = ?`

	queryClearHosts = `DELETE FROM hosts`
)

// Survey queries
const (
	queryUpsertSurvey = `
		INSERT INTO surveys (id, state, targets, total, completed, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			state       = EXCLUDED.state,
			targets     = EXCLUDED.targets,
			total       = EXCLUDED.total,
			completed   = EXCLUDED.completed,
			started_at  = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at`

	queryGetSurvey = `
		SELECT id, state, targets, total, completed, started_at, finished_at
		FROM surveys WHERE id = ?`

	queryLatestSurvey = `
		SELECT id, state, targets, total, completed, started_at, finished_at
		FROM surveys ORDER BY started_at DESC LIMIT 1`
)
