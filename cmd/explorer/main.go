// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command explorer runs the openSVM transaction graph explorer.
//
// The explorer serves interactive Solana transaction graphs: sessions
// seed a graph from an account or transaction signature, expand it
// incrementally against the chain, and stream focus and graph events
// over WebSockets. Exploration state persists across restarts through
// a two-tier (memory + BadgerDB) store.
//
// Usage:
//
//	explorer serve
//	explorer serve --port 9090 --rpc-url https://api.devnet.solana.com
//	explorer serve --storage memory
//	explorer states list
//	explorer states cleanup
//	explorer states delete <signature>
//	explorer states clear --force
//
// Configuration is read from ./explorer.yaml, then
// ~/.opensvm/explorer.yaml (written with defaults on first run), and
// can be overridden with EXPLORER_* environment variables or flags.
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/health
//
//	# Create a session seeded from a transaction signature
//	curl -X POST http://localhost:8080/v1/graph/sessions \
//	  -H "Content-Type: application/json" \
//	  -d '{"signature": "5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7"}'
//
//	# Expand an account node in the session
//	curl -X POST http://localhost:8080/v1/graph/sessions/<id>/expand \
//	  -H "Content-Type: application/json" \
//	  -d '{"address": "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"}'
package main

import (
	"log"
)

func main() {
	// Execute the root command. Cobra handles parsing the arguments.
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
