// Package manager implements the entity manager's query aggregation and
// mutation orchestration.
//
// It sits between the command transport and the registries:
//
//	api / services ──▶ Manager ──▶ Registry (entities, devices, areas, labels, config entries)
//	                      │
//	                      ├──▶ state.Store (latest snapshots, for listings and trigger context)
//	                      ├──▶ UserDirectory (display names for trigger context)
//	                      └──▶ Observers (audit, telemetry, events) after each mutation
//
// # Queries
//
//   - GroupedEntities: integration → device → entity view with true totals
//   - EntityDetail: cross-registry record for one entity
//   - ExportStates, Automations, TemplateSensors: sorted listings
//
// # Mutations
//
// Single mutations check existence before delegating to the registry and
// fail as a whole. Bulk mutations run sequentially in input order and
// report per-item failures in a BulkResult.
//
// # Thread Safety
//
// Manager holds no mutable state of its own beyond its observer list,
// which must be configured before use. Concurrent calls are serialised
// by the registry's own store.
package manager
