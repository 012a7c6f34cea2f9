// Package sightline is an LSP server for code intelligence: go to
// definition with fallbacks through overridden and implemented members,
// find usages, hover documentation and asynchronous project builds that
// report compiler messages as they arrive.
//
// The Server handles the protocol: lifecycle, document sync, workspace
// folders, middleware and typed configuration. NewIntelligence wires the
// code-intelligence packages into it:
//
//	s := sightline.NewServer("sightline", version,
//		sightline.WithTreeSitter(treesitter.DefaultConfig()),
//		sightline.WithConfig(settings.FileName, settings.Default()),
//	)
//	if _, err := sightline.NewIntelligence(s); err != nil {
//		return err
//	}
//	return sightline.Serve(ctx, s, sightline.WithStdio())
package sightline
