package mysql

const queryListTables = `
	SELECT
		TABLE_NAME,
		CASE TABLE_TYPE
			WHEN 'BASE TABLE' THEN 'table'
			WHEN 'VIEW' THEN 'view'
			ELSE LOWER(TABLE_TYPE)
		END,
		COALESCE(ENGINE, ''),
		COALESCE(TABLE_ROWS, 0),
		COALESCE(DATA_LENGTH, 0) + COALESCE(INDEX_LENGTH, 0),
		CASE WHEN TABLE_TYPE = 'VIEW' THEN '' ELSE COALESCE(TABLE_COMMENT, '') END
	FROM information_schema.TABLES
	WHERE TABLE_SCHEMA = DATABASE()
	ORDER BY TABLE_NAME`

// ? = table name, matched case-insensitively.
const queryTableMeta = `
	SELECT
		TABLE_NAME,
		COALESCE(ENGINE, ''),
		COALESCE(TABLE_ROWS, 0),
		COALESCE(DATA_LENGTH, 0),
		COALESCE(INDEX_LENGTH, 0),
		CASE WHEN TABLE_TYPE = 'VIEW' THEN '' ELSE COALESCE(TABLE_COMMENT, '') END
	FROM information_schema.TABLES
	WHERE TABLE_SCHEMA = DATABASE() AND LOWER(TABLE_NAME) = LOWER(?)
	LIMIT 1`

const queryColumns = `
	SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE = 'YES', COLUMN_KEY, COLUMN_COMMENT
	FROM information_schema.COLUMNS
	WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
	ORDER BY ORDINAL_POSITION`

// One row per index key part, primary key first. COLUMN_NAME is NULL for
// functional key parts.
const queryIndexes = `
	SELECT INDEX_NAME, NON_UNIQUE, INDEX_TYPE, COLUMN_NAME
	FROM information_schema.STATISTICS
	WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
	ORDER BY INDEX_NAME = 'PRIMARY' DESC, INDEX_NAME, SEQ_IN_INDEX`

// Timers are in picoseconds.
const querySlowStatements = `
	SELECT
		DIGEST_TEXT,
		COUNT_STAR,
		AVG_TIMER_WAIT / 1000000000,
		SUM_TIMER_WAIT / 1000000000,
		MAX_TIMER_WAIT / 1000000000,
		MIN_TIMER_WAIT / 1000000000,
		SUM_ROWS_SENT / COUNT_STAR,
		SUM_ROWS_EXAMINED / COUNT_STAR,
		SUM_CREATED_TMP_TABLES,
		SUM_NO_INDEX_USED
	FROM performance_schema.events_statements_summary_by_digest
	WHERE DIGEST_TEXT IS NOT NULL
		AND COUNT_STAR > 0
		AND AVG_TIMER_WAIT / 1000000000 >= ?
	ORDER BY AVG_TIMER_WAIT DESC
	LIMIT ?`

// One row per foreign key column, in key order.
const queryForeignKeys = `
	SELECT k.CONSTRAINT_NAME, k.COLUMN_NAME, k.REFERENCED_TABLE_NAME, k.REFERENCED_COLUMN_NAME,
		r.UPDATE_RULE, r.DELETE_RULE
	FROM information_schema.KEY_COLUMN_USAGE k
	JOIN information_schema.REFERENTIAL_CONSTRAINTS r
		ON r.CONSTRAINT_SCHEMA = k.CONSTRAINT_SCHEMA AND r.CONSTRAINT_NAME = k.CONSTRAINT_NAME
	WHERE k.TABLE_SCHEMA = DATABASE() AND k.TABLE_NAME = ?
		AND k.REFERENCED_TABLE_NAME IS NOT NULL
	ORDER BY k.CONSTRAINT_NAME, k.ORDINAL_POSITION`

const queryBufferPoolVariables = `
	SHOW GLOBAL VARIABLES WHERE Variable_name IN (
		'innodb_buffer_pool_size',
		'innodb_buffer_pool_instances',
		'innodb_page_size'
	)`

const queryBufferPoolStatus = `
	SHOW GLOBAL STATUS WHERE Variable_name IN (
		'Innodb_buffer_pool_pages_total',
		'Innodb_buffer_pool_pages_free',
		'Innodb_buffer_pool_pages_data',
		'Innodb_buffer_pool_read_requests',
		'Innodb_buffer_pool_reads'
	)`

// Scans the whole buffer pool; needs the PROCESS privilege.
const queryBufferPoolTables = `
	SELECT TABLE_NAME, COALESCE(INDEX_NAME, ''), COUNT(*), COALESCE(SUM(DATA_SIZE), 0)
	FROM information_schema.INNODB_BUFFER_PAGE
	WHERE TABLE_NAME IS NOT NULL AND TABLE_NAME != ''
	GROUP BY TABLE_NAME, INDEX_NAME
	ORDER BY COUNT(*) DESC
	LIMIT 20`

const queryTableSpace = `
	SELECT TABLE_NAME, ENGINE, COALESCE(TABLE_ROWS, 0),
		COALESCE(DATA_LENGTH, 0), COALESCE(INDEX_LENGTH, 0), COALESCE(DATA_FREE, 0)
	FROM information_schema.TABLES
	WHERE TABLE_SCHEMA = DATABASE() AND ENGINE = 'InnoDB'
	ORDER BY DATA_LENGTH DESC`
