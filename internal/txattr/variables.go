package txattr

import (
	"sort"
	"strings"
)

// Variable describes one CockroachDB session variable.
type Variable struct {
	Name        string
	Default     string
	Description string
	// Immutable variables are reported by SHOW but rejected by SET.
	Immutable bool
	// Unofficial variables exist on the server but are not documented.
	Unofficial bool
	Deprecated bool
	// Since is the first server version that has the variable, if known.
	Since string
}

// Mutable reports whether the variable may be SET.
func (v Variable) Mutable() bool { return !v.Immutable }

// Official reports whether the variable is documented.
func (v Variable) Official() bool { return !v.Unofficial }

// DefaultOrUndefined returns Default, or "(undefined)" when it is empty.
func (v Variable) DefaultOrUndefined() string {
	if v.Default == "" {
		return "(undefined)"
	}
	return v.Default
}

// Version returns Since, or "(unknown)".
func (v Variable) Version() string {
	if v.Since == "" {
		return "(unknown)"
	}
	return v.Since
}

// LookupVariable finds a variable by case-insensitive name.
func LookupVariable(name string) (Variable, bool) {
	v, ok := variables[strings.ToLower(name)]
	return v, ok
}

// Variables returns every known variable sorted by name.
func Variables() []Variable {
	out := make([]Variable, len(variableTable))
	copy(out, variableTable)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// variableTable is the static catalogue of session variables, sorted by name.
var variableTable = []Variable{
	{Name: "alter_primary_region_super_region_override", Default: "", Unofficial: true},
	{Name: "application_name", Default: "", Description: "The current application name for statistics collection"},
	{Name: "avoid_buffering", Default: "off", Immutable: true, Unofficial: true},
	{Name: "backslash_quote", Default: "safe_encoding", Immutable: true, Deprecated: true},
	{Name: "bytea_output", Default: "hex", Description: "The mode for conversions from STRING to BYTES"},
	{Name: "check_function_bodies", Default: "on", Immutable: true, Unofficial: true},
	{Name: "client_encoding", Default: "UTF8", Immutable: true, Deprecated: true},
	{Name: "client_min_messages", Default: "notice", Description: "The severity level of notices displayed in the SQL shell. Accepted values include debug5, debug4, debug3, debug2, debug1, log, notice, warning, and error"},
	{Name: "copy_fast_path_enabled", Default: "on", Unofficial: true},
	{Name: "copy_from_atomic_enabled", Default: "on", Unofficial: true},
	{Name: "cost_scans_with_default_col_size", Default: "off", Unofficial: true},
	{Name: "crdb_version", Default: "CockroachDB OSS <version>", Description: "The version of CockroachDB", Immutable: true},
	{Name: "database", Default: "", Description: "The current database"},
	{Name: "datestyle", Default: "ISO, MDY", Description: "The input string format for DATE and TIMESTAMP values. Accepted values include ISO,MDY, ISO,DMY, and ISO,YMD"},
	{Name: "default_int_size", Default: "8", Description: "The size, in bytes, of an INT type"},
	{Name: "default_table_access_method", Default: "heap", Immutable: true},
	{Name: "default_tablespace", Default: "", Deprecated: true},
	{Name: "default_transaction_isolation", Default: "serializable", Immutable: true},
	{Name: "default_transaction_priority", Default: "normal"},
	{Name: "default_transaction_quality_of_service", Default: "regular", Since: "v22.1"},
	{Name: "default_transaction_read_only", Default: "off"},
	{Name: "default_transaction_use_follower_reads", Default: "off"},
	{Name: "default_with_oids", Default: "off", Unofficial: true},
	{Name: "disable_hoist_projection_in_join_limitation", Default: "off", Unofficial: true},
	{Name: "disable_partially_distributed_plans", Default: "off", Unofficial: true},
	{Name: "disable_plan_gists", Default: "off", Unofficial: true},
	{Name: "disallow_full_table_scans", Default: "off"},
	{Name: "distsql", Default: "auto"},
	{Name: "distsql_workmem", Default: "64 MiB", Unofficial: true},
	{Name: "enable_auto_rehoming", Default: "off", Unofficial: true},
	{Name: "enable_experimental_alter_column_type_general", Default: "off", Unofficial: true},
	{Name: "enable_experimental_stream_replication", Default: "off", Unofficial: true},
	{Name: "enable_implicit_select_for_update", Default: "on"},
	{Name: "enable_implicit_transaction_for_batch_statements", Default: "on", Unofficial: true},
	{Name: "enable_insert_fast_path", Default: "on"},
	{Name: "enable_multiple_modifications_of_table", Default: "off", Unofficial: true},
	{Name: "enable_multiregion_placement_policy", Default: "off", Unofficial: true},
	{Name: "enable_seqscan", Default: "on", Unofficial: true},
	{Name: "enable_super_regions", Default: "off", Unofficial: true},
	{Name: "enable_zigzag_join", Default: "on"},
	{Name: "enforce_home_region", Default: "off", Unofficial: true},
	{Name: "escape_string_warning", Default: "on", Unofficial: true},
	{Name: "expect_and_ignore_not_visible_columns_in_copy", Default: "off", Unofficial: true},
	{Name: "experimental_distsql_planning", Default: "off", Unofficial: true},
	{Name: "experimental_enable_auto_rehoming", Default: "off", Unofficial: true},
	{Name: "experimental_enable_implicit_column_partitioning", Default: "off", Unofficial: true},
	{Name: "experimental_enable_temp_tables", Default: "off", Unofficial: true},
	{Name: "experimental_enable_unique_without_index_constraints", Default: "off", Unofficial: true},
	{Name: "extra_float_digits", Default: "0"},
	{Name: "force_savepoint_restart", Default: "off"},
	{Name: "foreign_key_cascades_limit", Default: "10000"},
	{Name: "idle_in_session_timeout", Default: "0"},
	{Name: "idle_in_transaction_session_timeout", Default: "0"},
	{Name: "idle_session_timeout", Default: "0", Unofficial: true},
	{Name: "index_join_streamer_batch_size", Default: "8.0 MiB", Unofficial: true},
	{Name: "index_recommendations_enabled", Default: "on", Since: "v22.1"},
	{Name: "inject_retry_errors_enabled", Default: "off", Since: "v22.1"},
	{Name: "integer_datetimes", Default: "on", Deprecated: true},
	{Name: "intervalstyle", Default: "postgres"},
	{Name: "is_superuser", Default: "on", Immutable: true},
	{Name: "join_reader_index_join_strategy_batch_size", Default: "4.0 MiB", Unofficial: true},
	{Name: "join_reader_no_ordering_strategy_batch_size", Default: "2.0 MiB", Unofficial: true},
	{Name: "join_reader_ordering_strategy_batch_size", Default: "100 KiB", Unofficial: true},
	{Name: "large_full_scan_rows", Default: "1000", Immutable: true},
	{Name: "lc_collate", Default: "C.UTF-8", Unofficial: true},
	{Name: "lc_ctype", Default: "C.UTF-8", Unofficial: true},
	{Name: "lc_messages", Default: "C.UTF-8", Unofficial: true},
	{Name: "lc_monetary", Default: "C.UTF-8", Unofficial: true},
	{Name: "lc_numeric", Default: "C.UTF-8", Unofficial: true},
	{Name: "lc_time", Default: "C.UTF-8", Unofficial: true},
	{Name: "locality", Default: "", Immutable: true},
	{Name: "locality_optimized_partitioned_index_scan", Default: "on", Unofficial: true},
	{Name: "lock_timeout", Default: "0"},
	{Name: "max_identifier_length", Default: "128", Deprecated: true},
	{Name: "max_index_keys", Default: "32", Deprecated: true},
	{Name: "node_id", Default: "", Immutable: true},
	{Name: "null_ordered_last", Default: "off", Since: "v22.1"},
	{Name: "on_update_rehome_row_enabled", Default: "on", Unofficial: true},
	{Name: "opt_split_scan_limit", Default: "2048", Unofficial: true},
	{Name: "optimizer", Default: "on", Unofficial: true},
	{Name: "optimizer_use_forecasts", Default: "on", Unofficial: true},
	{Name: "optimizer_use_histograms", Default: "on", Immutable: true},
	{Name: "optimizer_use_multicol_stats", Default: "on", Immutable: true},
	{Name: "optimizer_use_not_visible_indexes", Default: "off", Unofficial: true},
	{Name: "override_multi_region_zone_config", Default: "on", Unofficial: true},
	{Name: "parallelize_multi_key_lookup_joins_enabled", Default: "off", Unofficial: true},
	{Name: "password_encryption", Default: "scram-sha-256", Unofficial: true},
	{Name: "prefer_lookup_joins_for_fks", Default: "off"},
	{Name: "propagate_input_ordering", Default: "off", Unofficial: true},
	{Name: "reorder_joins_limit", Default: "8"},
	{Name: "require_explicit_primary_keys", Default: "off", Unofficial: true},
	{Name: "results_buffer_size", Default: "16384"},
	{Name: "role", Default: "none", Unofficial: true},
	{Name: "row_security", Default: "off", Deprecated: true},
	{Name: "search_path", Default: "public"},
	{Name: "serial_normalization", Default: "rowid"},
	{Name: "server_encoding", Default: "UTF8", Deprecated: true},
	{Name: "server_version", Default: "13.0.0", Immutable: true},
	{Name: "server_version_num", Default: ""},
	{Name: "session_id", Default: "", Immutable: true},
	{Name: "session_user", Default: "", Immutable: true},
	{Name: "show_primary_key_constraint_on_not_visible_columns", Default: "on", Unofficial: true},
	{Name: "sql_safe_updates", Default: "off"},
	{Name: "standard_conforming_strings", Default: "on", Deprecated: true},
	{Name: "statement_timeout", Default: "0"},
	{Name: "stub_catalog_tables", Default: "on"},
	{Name: "synchronize_seqscans", Default: "on", Deprecated: true},
	{Name: "synchronous_commit", Default: "on", Deprecated: true},
	{Name: "testing_optimizer_cost_perturbation", Default: "0", Unofficial: true},
	{Name: "testing_optimizer_disable_rule_probability", Default: "0", Unofficial: true},
	{Name: "testing_optimizer_random_seed", Default: "0", Unofficial: true},
	{Name: "testing_vectorize_inject_panics", Default: "off", Unofficial: true},
	{Name: "timezone", Default: "UTC"},
	{Name: "tracing", Default: "off"},
	{Name: "transaction_isolation", Default: "serializable", Immutable: true},
	{Name: "transaction_priority", Default: "normal"},
	{Name: "transaction_read_only", Default: "off"},
	{Name: "transaction_rows_read_err", Default: "0"},
	{Name: "transaction_rows_read_log", Default: "0"},
	{Name: "transaction_rows_written_err", Default: "0"},
	{Name: "transaction_rows_written_log", Default: "0"},
	{Name: "transaction_status", Default: "NoTxn", Immutable: true},
	{Name: "troubleshooting_mode", Default: "off"},
	{Name: "unconstrained_non_covering_index_scan_enabled", Default: "off", Deprecated: true},
	{Name: "use_declarative_schema_changer", Default: "on"},
	{Name: "variable_inequality_lookup_join_enabled", Default: "on", Unofficial: true},
	{Name: "vectorize", Default: "on"},
	{Name: "xmloption", Default: "content", Unofficial: true},
}

var variables = indexVariables(variableTable)

func indexVariables(table []Variable) map[string]Variable {
	m := make(map[string]Variable, len(table))
	for _, v := range table {
		m[v.Name] = v
	}
	return m
}
