// Package domain models the flat weather observation records that flow
// through the batch pipeline, and the data-quality rules that judge them.
//
// # Data Source
//
// Observations originate from the weatherapi.com current-conditions
// endpoint. The ingest phase fetches one JSON document per configured city
// per batch and stores it verbatim; the process phase projects each
// document into the flat Observation schema below and writes the batch's
// partition to the warehouse.
//
// # Schema
//
// Every observation carries fourteen required fields: the city name, two
// timestamps (local_time from the station's location block, last_updated
// from the current block), and eleven measurements (temperature_c,
// condition_desc, wind_kph, wind_dir, pressure_mb, precip_mm, humidity,
// feelslike_c, windchill_c, dewpoint_c, gust_kph). Fields are carried as
// nullable text end to end: the projection never judges a value, so a
// document with "temp_c": "warm" still lands in the warehouse and is
// flagged later by the bad_datatypes rule rather than breaking the
// process phase.
//
// # Quality Rules
//
// Four independent rules classify a batch:
//
//	null_fields       any required field is absent
//	bad_timestamps    either timestamp is absent, fails to parse, or
//	                  predates 1900-01-01
//	duplicate_fields  another record in the batch is identical across all
//	                  required fields
//	bad_datatypes     a numeric or timestamp field is present but fails to
//	                  parse as its expected type
//
// Rules run over the same immutable snapshot and their outputs are
// unioned, so evaluation order never changes which rows are invalid. A row
// flagged by several rules is quarantined once, tagged with the first
// matching rule in canonical order; the full reason set is retained for
// reporting. The timestamp floor check is one shared predicate used both
// by bad_timestamps and by the positive valid-row check, which is what
// makes the valid/invalid split an exact partition of the batch.
package domain
