// Package mqtt provides the MQTT bus connection for TypePilot.
//
// The core talks to the keystroke-emitting entry engine and to the global
// hotkey listener over a local broker:
//
//	hotkey listener ─► typepilot/hotkey/{target} ─► core
//	core ─► typepilot/engine/command/{verb} ─► entry engine
//	entry engine ─► typepilot/engine/response/{request} ─► core
//	entry engine ─► typepilot/engine/progress/{session} ─► core
//
// This package manages the connection (auto-reconnect, Last Will status,
// subscription replay) and topic naming. Message schemas belong to the
// engine and hotkey packages.
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.Hotkey("desktop"), 1,
//	    func(topic string, payload []byte) error {
//	        return source.handle(payload)
//	    })
//
// Use TLS (cfg.Broker.TLS) whenever the broker is not on the loopback interface:
// the start command carries the text to be typed.
package mqtt
