/*
Package dmr provides the dynamic model representation used by the management protocol of the
application server, together with the operations that are submitted against it.

# Model nodes

ModelNode is a tagged value tree. A node is undefined until a value is set, and navigating into
an undefined node converts it on demand, so request trees can be built without declaring the
intermediate levels:

	node := dmr.New()
	node.Get("operation").SetString("read-resource")
	node.Get("recursive").SetBool(true)

Mutating navigation (Get, Add) on a node of the wrong kind is a programming error and panics
with a *TypeError. Typed accessors (AsString, AsInt, AsList, ...) return ErrTypeMismatch instead.

# Operations

An Operation is a single named call against a ResourceAddress. A Composite bundles several
operations into one atomic request. Both implement Submittable, which is what the execution
layer accepts:

	write, err := dmr.NewOperationBuilder(address, dmr.WriteAttributeOperation).
		Param(dmr.Name, "ear-subdeployments-isolated").
		Param(dmr.Value, true).
		Build()

	composite, err := dmr.NewComposite(write, other)
	composite.AddBoolHeader(dmr.RollbackOnRuntimeFailure, true)

	cli, err := composite.AsCli()

# Wire format

ModelNode implements json.Marshaler and json.Unmarshaler using the DMR JSON form understood by
the HTTP management endpoint. Object key order is preserved in both directions.
*/
package dmr
