// Package registry holds the entity manager's view of the platform
// registries: entities, devices, areas, labels and config entries.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                     Registry (registry.go)                   │
//	│  • insertion-ordered entity cache                            │
//	│  • rename keeps the slot, remove drops it                    │
//	│                                                              │
//	│  ┌──────────────────────────┐  ┌──────────────────────────┐  │
//	│  │ EntityRepository         │  │ CatalogRepository        │  │
//	│  │ entities, entity_labels  │  │ devices, areas, labels,  │  │
//	│  │ (entity_repository.go)   │  │ config entries           │  │
//	│  └──────────────────────────┘  └──────────────────────────┘  │
//	└──────────────────────────────────────────────────────────────┘
//
// Entities keep registry insertion order. Listing always returns them in
// that order, and a rename keeps an entity in its original slot.
//
// The enumerated fields (DisabledBy, HiddenBy, EntityCategory,
// ConfigEntryDisabler) are distinct string types whose zero value is the
// None variant. None is stored as SQL NULL and serialised as JSON null.
//
// # Usage
//
//	reg := registry.New(
//	    registry.NewSQLiteEntityRepository(db.DB),
//	    registry.NewSQLiteCatalogRepository(db.DB),
//	)
//	reg.SetLogger(log.Component("registry"))
//	if err := reg.RefreshCache(ctx); err != nil {
//	    return err
//	}
package registry
