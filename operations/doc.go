/*
Package operations provides the Operations API for executing management tasks against the
application server in a structured, reliable, and traceable manner.

# Operations API

The Operations API enables:
- Defining reusable management tasks with versioning
- Executing them with retry logic and error handling
- Tracking results and generating reports
- Sequencing multiple tasks

# Core Components

Operation:
  - Defines a single task with typed input and output
  - Submits at most one management request through Bundle.Dispatch
  - Supports generic typing for type-safe operation definitions

Registry:
  - Stores and retrieves operations by ID and version

Executor:
  - ExecuteOperation runs an operation with an optional retry policy
  - ExecuteRequest and ExecuteComposite run a dmr.Submittable directly and record the request tree
    and the server outcome
  - Failed management outcomes are never retried

Sequence:
  - Runs several operations as one task and links their reports

Reporter:
  - MemoryReporter keeps reports in memory, package sqlreporter in a SQL database

# Basic Usage

	write := dmr.NewOperationBuilder(address, dmr.WriteAttributeOperation).
		Param(dmr.Name, "ear-subdeployments-isolated").
		Param(dmr.Value, true).
		MustBuild()
	composite, err := dmr.NewComposite(write)

	bundle := operations.NewBundle(ctxFn, lggr, operations.NewMemoryReporter(), client)
	report, err := operations.ExecuteComposite(bundle, operations.Definition{
		ID:      "ee-isolation",
		Version: semver.MustParse("1.0.0"),
	}, composite)
*/
package operations
