package postgres

// queryListTables has one %s placeholder for the schema filter clause.
const queryListTables = `
	SELECT
		t.table_name,
		CASE t.table_type
			WHEN 'BASE TABLE' THEN 'table'
			WHEN 'VIEW' THEN 'view'
			ELSE lower(t.table_type)
		END AS type,
		COALESCE(s.n_live_tup, 0) AS row_estimate,
		CASE WHEN t.table_type = 'BASE TABLE' THEN
			COALESCE(pg_total_relation_size(
				(quote_ident(t.table_schema) || '.' || quote_ident(t.table_name))::regclass
			), 0)
		ELSE 0
		END AS total_bytes,
		COALESCE(pg_catalog.obj_description(
			(quote_ident(t.table_schema) || '.' || quote_ident(t.table_name))::regclass, 'pg_class'
		), '') AS comment
	FROM information_schema.tables t
	LEFT JOIN pg_stat_user_tables s
		ON s.schemaname = t.table_schema AND s.relname = t.table_name
	WHERE %s
		AND t.table_type IN ('BASE TABLE', 'VIEW')
	ORDER BY t.table_schema, t.table_name`

// queryTableMeta has one %s placeholder for the schema filter clause.
// $1 is always table_name; schema filter params start at $2.
const queryTableMeta = `
	SELECT t.table_schema,
		   t.table_name,
		   COALESCE(pg_catalog.obj_description(
			   (quote_ident(t.table_schema) || '.' || quote_ident(t.table_name))::regclass, 'pg_class'
		   ), '')
	FROM information_schema.tables t
	WHERE lower(t.table_name) = lower($1)
		AND %s
	ORDER BY t.table_schema
	LIMIT 1`

// $1 = schema, $2 = table_name.
const queryColumns = `
	SELECT
		c.column_name,
		c.data_type,
		c.is_nullable = 'YES',
		COALESCE(pg_catalog.col_description(
			(quote_ident(c.table_schema) || '.' || quote_ident(c.table_name))::regclass,
			c.ordinal_position
		), '')
	FROM information_schema.columns c
	WHERE c.table_schema = $1 AND c.table_name = $2
	ORDER BY c.ordinal_position`

// queryIndexes lists each index with its key columns in definition order.
// Expression keys (attnum 0) have no pg_attribute row and are dropped.
// $1 = schema, $2 = table_name.
const queryIndexes = `
	SELECT
		ic.relname,
		ix.indisunique,
		ix.indisprimary,
		am.amname,
		array_agg(a.attname::text ORDER BY k.ord)
	FROM pg_index ix
	JOIN pg_class ic ON ic.oid = ix.indexrelid
	JOIN pg_am am ON am.oid = ic.relam
	CROSS JOIN LATERAL unnest(ix.indkey) WITH ORDINALITY AS k(attnum, ord)
	JOIN pg_attribute a ON a.attrelid = ix.indrelid AND a.attnum = k.attnum
	WHERE ix.indrelid = (quote_ident($1) || '.' || quote_ident($2))::regclass
	GROUP BY ic.relname, ix.indisunique, ix.indisprimary, am.amname
	ORDER BY ix.indisprimary DESC, ic.relname`

// queryTableSize fetches the row estimate and the heap and index sizes.
// $1 = schema, $2 = table_name.
const queryTableSize = `
	SELECT
		GREATEST(COALESCE(c.reltuples::bigint, 0), 0),
		COALESCE(pg_relation_size(c.oid), 0),
		COALESCE(pg_indexes_size(c.oid), 0)
	FROM pg_class c
	JOIN pg_namespace n ON n.oid = c.relnamespace
	WHERE n.nspname = $1 AND c.relname = $2`

// querySlowStatements reads pg_stat_statements (PostgreSQL 13+ column names).
// $1 = minimum mean time in ms, $2 = limit.
const querySlowStatements = `
	SELECT
		query,
		calls,
		mean_exec_time,
		total_exec_time,
		max_exec_time,
		min_exec_time,
		CASE WHEN calls > 0 THEN rows::float8 / calls ELSE 0 END AS avg_rows
	FROM pg_stat_statements
	WHERE mean_exec_time >= $1
	ORDER BY mean_exec_time DESC
	LIMIT $2`

// $1 = substring pattern, empty for all.
const querySettings = `
	SELECT name, setting, COALESCE(unit, ''), COALESCE(short_desc, '')
	FROM pg_settings
	WHERE $1 = '' OR name ILIKE '%' || $1 || '%'
	ORDER BY name`

// queryForeignKeys lists each foreign key with its columns paired by
// position. $1 = schema, $2 = table_name.
const queryForeignKeys = `
	SELECT
		con.conname,
		array_agg(a.attname::text ORDER BY k.ord),
		rc.relname,
		array_agg(ra.attname::text ORDER BY k.ord),
		CASE con.confupdtype
			WHEN 'r' THEN 'RESTRICT' WHEN 'c' THEN 'CASCADE' WHEN 'n' THEN 'SET NULL'
			WHEN 'd' THEN 'SET DEFAULT' ELSE 'NO ACTION'
		END,
		CASE con.confdeltype
			WHEN 'r' THEN 'RESTRICT' WHEN 'c' THEN 'CASCADE' WHEN 'n' THEN 'SET NULL'
			WHEN 'd' THEN 'SET DEFAULT' ELSE 'NO ACTION'
		END
	FROM pg_constraint con
	JOIN pg_class rc ON rc.oid = con.confrelid
	CROSS JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS k(attnum, refnum, ord)
	JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
	JOIN pg_attribute ra ON ra.attrelid = con.confrelid AND ra.attnum = k.refnum
	WHERE con.contype = 'f'
		AND con.conrelid = (quote_ident($1) || '.' || quote_ident($2))::regclass
	GROUP BY con.conname, rc.relname, con.confupdtype, con.confdeltype
	ORDER BY con.conname`

// queryBufferPool reads the shared_buffers size and the current database's
// block hit counters.
const queryBufferPool = `
	SELECT
		s.setting::bigint * current_setting('block_size')::bigint,
		current_setting('block_size')::bigint,
		COALESCE(d.blks_hit + d.blks_read, 0),
		COALESCE(d.blks_read, 0)
	FROM pg_settings s
	LEFT JOIN pg_stat_database d ON d.datname = current_database()
	WHERE s.name = 'shared_buffers'`

// queryTableSpace estimates reclaimable heap bytes from the dead tuple ratio.
// It has one %s placeholder for the schema filter clause.
const queryTableSpace = `
	SELECT
		s.relname,
		'heap'::text,
		s.n_live_tup,
		pg_relation_size(s.relid),
		pg_indexes_size(s.relid),
		CASE WHEN s.n_live_tup + s.n_dead_tup > 0
			THEN pg_relation_size(s.relid) * s.n_dead_tup / (s.n_live_tup + s.n_dead_tup)
			ELSE 0
		END
	FROM pg_stat_user_tables s
	WHERE %s
	ORDER BY pg_relation_size(s.relid) DESC, s.relname`
