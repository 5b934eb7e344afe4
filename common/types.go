// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs and
// enumerations that express commonly used data-types.
package common

import "fmt"

// ResourceState identifies the access mode the GPU is allowed to use for a resource.
// Two states are compatible only when they are equal; read-only states are not combined.
type ResourceState int

const (
	// ResourceStateCommon is the neutral state resources are created in. Required for cross-queue sharing on copy queues.
	ResourceStateCommon ResourceState = iota
	// ResourceStateCopySource allows the resource to be the source of a GPU copy operation.
	ResourceStateCopySource
	// ResourceStateCopyDest allows the resource to be the destination of a GPU copy operation.
	ResourceStateCopyDest
	// ResourceStateRenderTarget allows the resource to be bound as a color render target.
	ResourceStateRenderTarget
	// ResourceStateDepthRead allows the resource to be bound as a read-only depth-stencil target.
	ResourceStateDepthRead
	// ResourceStateDepthWrite allows the resource to be bound as a writable depth-stencil target.
	ResourceStateDepthWrite
	// ResourceStateShaderResource allows the resource to be sampled or read from shaders.
	ResourceStateShaderResource
	// ResourceStateUnorderedAccess allows unordered (read/write) shader access.
	ResourceStateUnorderedAccess
	// ResourceStatePresent is required on a back buffer before the swap chain presents it.
	ResourceStatePresent
	// ResourceStateGenericRead is the combined read state required for upload-heap resources.
	ResourceStateGenericRead
	// ResourceStateIndirectArgument allows the resource to supply indirect draw/dispatch arguments.
	ResourceStateIndirectArgument
	// ResourceStateResolveSource allows the resource to be the source of an MSAA resolve.
	ResourceStateResolveSource
	// ResourceStateResolveDest allows the resource to be the destination of an MSAA resolve.
	ResourceStateResolveDest
)

var resourceStateNames = map[ResourceState]string{
	ResourceStateCommon:           "common",
	ResourceStateCopySource:       "copy-source",
	ResourceStateCopyDest:         "copy-dest",
	ResourceStateRenderTarget:     "render-target",
	ResourceStateDepthRead:        "depth-read",
	ResourceStateDepthWrite:       "depth-write",
	ResourceStateShaderResource:   "shader-resource",
	ResourceStateUnorderedAccess:  "unordered-access",
	ResourceStatePresent:          "present",
	ResourceStateGenericRead:      "generic-read",
	ResourceStateIndirectArgument: "indirect-argument",
	ResourceStateResolveSource:    "resolve-source",
	ResourceStateResolveDest:      "resolve-dest",
}

// String returns the lowercase dashed name of the state, or a numeric fallback for unknown values.
func (s ResourceState) String() string {
	if name, ok := resourceStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("resource-state(%d)", int(s))
}

// AllSubresources selects every subresource of a resource in a UsageRecord or barrier.
// Any non-negative value selects the single subresource at that index.
const AllSubresources = -1

// Color is a normalized RGBA color. Components are in the [0, 1] range.
type Color struct {
	// R is the red component.
	R float32
	// G is the green component.
	G float32
	// B is the blue component.
	B float32
	// A is the alpha component.
	A float32
}

// ColorCornflowerBlue is the traditional "everything works" clear color.
var ColorCornflowerBlue = Color{R: 0.39, G: 0.58, B: 0.93, A: 1.0}

// ColorFailureMagenta is the default failure-screen clear color. Chosen to be impossible to
// mistake for real scene output.
var ColorFailureMagenta = Color{R: 1.0, G: 0.0, B: 1.0, A: 1.0}
