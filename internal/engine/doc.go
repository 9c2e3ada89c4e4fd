// Package engine drives the keystroke-emitting entry engine over MQTT.
//
// Every command is a JSON message on typepilot/engine/command/{verb}
// carrying a request_id. The engine answers on
// typepilot/engine/response/{request_id}; the Client waits for that reply
// (or the request timeout) before returning. Progress telemetry arrives on
// typepilot/engine/progress/{engine_session_id} and is forwarded to the
// session machine.
//
//	client := engine.New(mqttClient, engine.Options{QoS: 1}, log)
//	if err := client.Start(machine.HandleProgress); err != nil {
//	    return err
//	}
//	defer client.Stop()
package engine
