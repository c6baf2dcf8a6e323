package timescaledb

const createTableSQL = `
CREATE TABLE IF NOT EXISTS feed_events (
    time timestamp WITH TIME ZONE NOT NULL,
    device_id text NOT NULL,
    boot_id text NULL,
    number bigint NOT NULL,
    kind text NOT NULL,
    slot_index smallint NULL,
    start_reason text NULL,
    stop_reason text NULL,
    flags smallint NULL,
    soil_before smallint NULL,
    soil_after smallint NULL,
    baseline_percent smallint NULL,
    dryback_percent smallint NULL,
    feed_ml integer NULL,
    daily_total_ml integer NULL,
    light_day_key integer NULL,
    duration_ms bigint NULL
);`

const createExtensionSQL = `CREATE EXTENSION IF NOT EXISTS timescaledb;`

const createHypertableSQL = `SELECT create_hypertable('feed_events', 'time', if_not_exists => true);`

const createDeviceIndexSQL = `CREATE INDEX IF NOT EXISTS feed_events_device_time_idx ON feed_events (device_id, time DESC);`

const createKindIndexSQL = `CREATE INDEX IF NOT EXISTS feed_events_kind_idx ON feed_events (kind, time DESC);`

// Daily totals per device. Only Feed rows carry delivered volume.
const createDailyViewSQL = `CREATE MATERIALIZED VIEW IF NOT EXISTS feed_events_1d
WITH (timescaledb.continuous) AS
SELECT
    time_bucket('1 day', time) AS bucket,
    device_id,
    count(*) FILTER (WHERE kind = 'feed') AS feeds,
    coalesce(sum(feed_ml) FILTER (WHERE kind = 'feed'), 0) AS total_ml,
    min(soil_before) FILTER (WHERE kind IN ('feed', 'snapshot')) AS min_percent,
    max(soil_after) FILTER (WHERE kind IN ('feed', 'snapshot')) AS max_percent,
    count(*) FILTER (WHERE stop_reason = 'runoff') AS runoff_stops
FROM feed_events
GROUP BY bucket, device_id
WITH NO DATA;`

const addAggregationPolicy1dSQL = `SELECT add_continuous_aggregate_policy('feed_events_1d', INTERVAL '30 days', INTERVAL '1 hour', INTERVAL '1 hour', if_not_exists => true);`

const addRetentionPolicySQL = `SELECT add_retention_policy('feed_events', INTERVAL '2 years', if_not_exists => true);`
