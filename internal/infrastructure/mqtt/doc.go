// Package mqtt provides the entity manager's connection to the MQTT bus.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing mutation events to entitymanager/event/<type>
//   - Subscriptions for service calls and state snapshots
//   - Last Will and Testament (LWT) on entitymanager/system/status
//
// # Topics
//
//	entitymanager/event/<type>        events published after every mutation
//	entitymanager/service/<name>      enable_entity / disable_entity calls
//	entitymanager/state/<entity_id>   state snapshots pushed by the platform
//	entitymanager/system/status       retained Status (online/offline)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT,
//	    mqtt.WithInstance(cfg.Instance.ID),
//	    mqtt.WithLogger(log.Component("mqtt")),
//	)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(mqtt.Topics{}.Event("entity_updated"), event)
package mqtt
