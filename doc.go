/*
Package stagehand is a framework for driving programmable laboratory
instruments and orchestrating parameterized measurement runs over them.

It keeps a registry of instruments reachable locally or through a network
gateway, exposes a uniform set/get/trigger/read contract over heterogeneous
drivers, and sequences nested parameter sweeps with strict ordering, bounded
retry, and partial-failure handling.

# Concept

A rig document declares the instruments on the bench by logical name. A plan
declares one measurement run: nested sweeps over instrument parameters
(outer sweeps vary slowest) plus the acquisition performed at every point.
The engine walks the sweep grid in lexicographic order and hands each sample
to an acquisition sink synchronously, so sink receipt order always matches
iteration order.

Instruments shared between processes are served by a gateway, which enforces
an at-most-one-writer lease per instrument. Remote calls are idempotent-safe
against retry: parameter writes converge by nature, and triggers are guarded
by sequence numbers so a duplicate from a retried call is ignored.

# Usage

	package main

	import (
		"context"
		"log"

		"github.com/stagehq/stagehand"
		"github.com/stagehq/stagehand/pkg/domain"
		"github.com/stagehq/stagehand/pkg/ports"
	)

	func main() {
		ctx := context.Background()

		stage := stagehand.New()
		if err := stage.LoadRig(ctx, "rig.yaml"); err != nil {
			log.Fatal(err)
		}
		defer stage.Close(ctx)

		plan, err := stage.LoadPlan("plan.yaml")
		if err != nil {
			log.Fatal(err)
		}

		sink := ports.SinkFunc(func(ctx context.Context, s domain.Sample) error {
			log.Printf("%v -> %v", s.Coordinate, s.Values)
			return nil
		})

		result := stage.Run(ctx, *plan, sink)
		log.Printf("run %s finished %s with %d samples", result.ID, result.State, len(result.Samples))
	}
*/
package stagehand
