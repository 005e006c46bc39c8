/*
Package ports defines the interfaces (Ports) that decouple the stagehand core
from its adapters, following Hexagonal Architecture.

Driven ports (implemented by adapters):
  - Driver: a per-model instrument capability (set/get parameter, trigger, read).
  - Sink: the acquisition boundary that receives every measured sample.
  - Locker: lease-based exclusive access to an instrument across processes.
  - RunStore: persistence for run results.

The package also exports contract-test suites so every adapter can verify it
honours the interface semantics, not just the signatures.
*/
package ports
