// Package process supervises a long-running child process.
//
// TypePilot uses it to run the entry engine when engine.managed is set:
// the engine binary is started with the core, its output is logged line by
// line, and it is restarted with exponential backoff if it exits. A run
// longer than StableThreshold resets the backoff.
//
//	mgr := process.NewManager(process.EngineConfig(cfg.Engine))
//	mgr.SetLogger(log)
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package process
