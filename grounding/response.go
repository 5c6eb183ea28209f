package grounding

import (
	"github.com/7blacky7/visionprep/api"
	"github.com/7blacky7/visionprep/vision"
)

// Response bringt das Sample in die Form der REST API. Die Patch-Werte
// ([3,S,S] flach) sind nur mit includePatch enthalten.
func (s *Sample) Response(model string, includePatch bool) (*api.GroundingResponse, error) {
	resp := &api.GroundingResponse{
		Model:        model,
		Source:       s.Source,
		PatchShape:   s.PatchImage.Shape().Clone(),
		PatchMask:    s.PatchMask,
		WResizeRatio: s.WResizeRatio,
		HResizeRatio: s.HResizeRatio,
		Caption:      s.Caption,
		Prompt:       s.Prompt,
		Width:        s.Width,
		Height:       s.Height,
	}

	if includePatch {
		patch, err := vision.Float32s(s.PatchImage)
		if err != nil {
			return nil, err
		}
		resp.PatchImage = patch
	}
	return resp, nil
}
