// Package engine assembles the archiving components into a single Service.
//
// The Service owns no logic of its own beyond wiring and aggregation: runs
// are delegated to the writer, integrity checks to the verifier, queries to
// the search engine, growth sampling to the tracker and automatic runs to the
// retention runner. The catalog is the single source of truth for locks and
// searchability; the Service caches neither.
//
// Basic usage:
//
//	svc, err := engine.Open(cfg, policies, collector)
//	if err != nil {
//	    return err
//	}
//	defer svc.Close()
//
//	result, err := svc.ArchiveTable(ctx, "audit_logs", cutoff)
package engine
