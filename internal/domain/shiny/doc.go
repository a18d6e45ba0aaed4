// Package shiny supervises the lifecycle of a single R/Shiny runtime process.
//
// A Supervisor owns the whole flow:
//
//	port scan -> spawn -> output drains -> readiness wait
//
// repeated with exponential backoff until the runtime answers or the attempt
// budget is spent. Readiness is decided by whichever comes first: a
// "Listening on" line on either output stream, or a TCP connect followed by a
// successful HTTP HEAD against the allocated port.
//
// The supervised process handle lives in a single-slot Registry owned by the
// Supervisor. Stop takes it out of the slot and kills it.
//
// Example Usage:
//
//	sup, err := shiny.New(cfg, shiny.WithNotifier(hub), shiny.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	url, err := sup.Start(ctx)
//	...
//	err = sup.Stop()
package shiny
