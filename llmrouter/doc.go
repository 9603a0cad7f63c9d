// Package llmrouter provides the chat-completion backend layer for the
// hyperfocus agent: backend descriptors, deterministic backend selection,
// streamed-response assembly, and adapters for OpenAI-compatible and
// gollm-backed endpoints.
//
// The router holds up to three configured backends: a local endpoint for
// cheap short-context turns, a remote endpoint for long-context turns, and
// an optional multimodal endpoint that is mandatory whenever the
// conversation carries image content. Selection is re-evaluated on every
// turn from the messages actually being sent, so a conversation migrates
// between backends as its context grows or shrinks under projection.
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
//	sel, err := llmrouter.Select(messages, set, cfg.RouterThreshold)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	events, err := sel.Backend.Client.Stream(ctx, llmrouter.Request{
//	    Model:    sel.Backend.Model,
//	    Messages: messages,
//	})
//	resp, err := llmrouter.Assemble(events, os.Stdout)
package llmrouter
