package dmr

// Structural keys of a management request or response.
const (
	OperationKey       = "operation"
	AddressKey         = "address"
	StepsKey           = "steps"
	OperationHeaders   = "operation-headers"
	Outcome            = "outcome"
	Result             = "result"
	Success            = "success"
	Failed             = "failed"
	FailureDescription = "failure-description"
	RolledBack         = "rolled-back"
	ResponseHeaders    = "response-headers"
)

// Common parameter and attribute names.
const (
	Name           = "name"
	Value          = "value"
	Recursive      = "recursive"
	IncludeRuntime = "include-runtime"
	Roles          = "roles"
)

// Operation header names.
const (
	RollbackOnRuntimeFailure    = "rollback-on-runtime-failure"
	AllowResourceServiceRestart = "allow-resource-service-restart"
	BlockingTimeout             = "blocking-timeout"
)

// Root resource attributes describing the management model version.
const (
	ManagementMajorVersion = "management-major-version"
	ManagementMinorVersion = "management-minor-version"
	ManagementMicroVersion = "management-micro-version"
)

// Standard operation names.
const (
	CompositeOperation               = "composite"
	ReadResourceOperation            = "read-resource"
	ReadAttributeOperation           = "read-attribute"
	WriteAttributeOperation          = "write-attribute"
	UndefineAttributeOperation       = "undefine-attribute"
	AddOperation                     = "add"
	RemoveOperation                  = "remove"
	ReadResourceDescriptionOperation = "read-resource-description"
	ReadChildrenNamesOperation       = "read-children-names"
	ListAddOperation                 = "list-add"
	ListRemoveOperation              = "list-remove"
)
