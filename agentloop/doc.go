// Package agentloop drives the multi-turn tool-calling loop on top of the
// llmrouter backend layer.
//
// A Session owns a permanent, append-only message log. Before each backend
// call the log is projected: tool results whose producing tool asked to be
// excluded from context are replaced by short stubs once the model has had
// an iteration to react to them. The projection is a view; the log itself
// keeps every result in full.
//
// Each iteration the session selects a backend for the projected context,
// streams one response, assembles it, and either returns the model's final
// text or executes the requested tool calls and goes around again. A
// retryable backend failure gets exactly one more attempt; a second
// failure, or hitting the iteration cap, aborts the session.
//
// Work on data too large for one call goes through PagedTaskRunner: the
// data is split into pages, each page processed in an isolated completion
// with no access to the session's history, and the per-page results
// aggregated by concatenation or a final synthesis call.
//
// # Quick Start
//
//	cfg, err := llmrouter.LoadConfig()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	set, err := cfg.Backends()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	registry := agentloop.NewToolRegistry()
//	runner := agentloop.NewPagedTaskRunner(set, cfg.RouterThreshold)
//	agentloop.RegisterPagedTaskTool(registry, runner, cfg.PageSize)
//
//	session := agentloop.NewSession(set, registry, nil)
//	defer session.Close()
//
//	go func() {
//	    for event := range session.Events() {
//	        fmt.Printf("[%s] %v\n", event.Kind, event.Data)
//	    }
//	}()
//
//	answer, err := session.Run(ctx, "Summarize the attached report")
package agentloop
