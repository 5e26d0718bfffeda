// Package mqtt provides MQTT client connectivity for Gray Logic Sync.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The panel uses MQTT only as the voice command bridge: the voice pipeline
// publishes device intents, the panel dispatches them through the same
// optimistic command path as UI controls and publishes the outcome back.
//
//	Voice Pipeline ↔ MQTT Broker ↔ Gray Logic Sync
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.Voice)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all voice intents
//	err = client.Subscribe(mqtt.Topics{}.AllVoiceIntents(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
package mqtt
