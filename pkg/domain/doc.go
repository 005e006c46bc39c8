/*
Package domain contains the core entities of the stagehand orchestration layer.

It defines instrument handles and their lifecycle states, parameter
descriptors, sweep plans, samples, and run results. This package is kept pure
and free of external dependencies like I/O or transport, following Hexagonal
Architecture principles.

# Key Entities

  - HandleState: Lifecycle state of a registered instrument.
  - ParameterDescriptor: Declared shape and bounds of one instrument parameter.
  - Plan: An immutable description of one measurement run (sweeps + acquisition).
  - Sample: One measured point, tagged with its sweep coordinate.
  - RunResult: The outcome of executing a Plan.
*/
package domain
