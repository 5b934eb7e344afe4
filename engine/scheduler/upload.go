package scheduler

import (
	"github.com/Carmen-Shannon/forge-go/common"
)

// uploadTask is the implicit first task of every frame that has pending uploads. Its usage list
// is synthesized from the frame's UploadDescriptions, so staged resources participate in the
// barrier-injection pipeline like any other resource: the target enters as copy-dest and leaves
// in its declared post-upload state.
type uploadTask struct {
	uploads []UploadDescription
}

var _ Task = &uploadTask{}

func (t *uploadTask) Name() string {
	return "frame-upload"
}

func (t *uploadTask) Setup(ctx *SetupContext) error {
	for _, up := range t.uploads {
		// Sources are staged copy sources for the whole task; they are read exactly once.
		ctx.Use(up.Source, common.AllSubresources, common.ResourceStateCopySource, common.ResourceStateCopySource, false)
		// Targets are written (copy-dest) and may transition again inside the list, so they are
		// always MultipleUse.
		ctx.Use(up.Target, common.AllSubresources, common.ResourceStateCopyDest, up.TargetState, true)
	}
	return nil
}

func (t *uploadTask) Execute(ctx *RenderContext) error {
	list := ctx.CommandList()
	for _, up := range t.uploads {
		ctx.SetResourceState(up.Source, common.AllSubresources, common.ResourceStateCopySource)
		ctx.SetResourceState(up.Target, common.AllSubresources, common.ResourceStateCopyDest)
		if up.Size > 0 {
			list.CopyBufferRegion(up.Source, up.SourceOffset, up.Target, up.TargetOffset, up.Size)
		} else {
			list.CopyResource(up.Source, up.Target)
		}
	}
	// Post-copy transitions are recorded inside the upload list itself, after every copy has
	// been issued, so a resource uploaded twice in one frame is not flipped mid-task.
	for _, up := range t.uploads {
		if up.TargetState != common.ResourceStateCopyDest {
			ctx.SetResourceState(up.Target, common.AllSubresources, up.TargetState)
		}
	}
	return nil
}
