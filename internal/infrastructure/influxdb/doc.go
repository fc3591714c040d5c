// Package influxdb records entity mutation telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched writes and health monitoring. Every mutation the
// manager performs becomes one point in the entity_mutations measurement,
// tagged with the operation, its outcome, the request source and,
// optionally, the instance.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB,
//	    influxdb.WithInstance(cfg.Instance.ID),
//	    influxdb.WithLogger(log.Component("influxdb")),
//	)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteMutation(influxdb.MutationPoint{
//	    Operation: "disable_entity", Outcome: "success", Source: "api", Count: 1,
//	})
//
// All methods are safe for concurrent use. Write errors arrive
// asynchronously and are passed to the logger.
package influxdb
